package proxy

import (
	"context"
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"synchrotron/internal/metrics"
	"synchrotron/internal/resp"
	"synchrotron/internal/router"
)

// maxBatch bounds how many buffered requests ReadBatch drains into one
// pipeline round — large enough for real pipelining, small enough that one
// client can't starve a listener's other connections indefinitely.
const maxBatch = 128

// clientTask owns one client connection end to end: read a batch, route it,
// write the replies back in order, repeat until the client disconnects or
// a read or write fails. Draining the listener does not end a connected
// client's loop.
type clientTask struct {
	conn    net.Conn
	rt      router.Router
	logger  *logrus.Logger
	metrics *metrics.Registry
	pool    string
}

func (t *clientTask) run(ctx context.Context) {
	defer t.conn.Close()

	reader := resp.NewReader(t.conn)
	writer := resp.NewWriter(t.conn)

	for {
		batch, err := reader.ReadBatch(maxBatch)
		if err != nil {
			if !errors.Is(err, resp.ErrEmpty) {
				t.logger.WithFields(logrus.Fields{
					"remote": t.conn.RemoteAddr(),
					"error":  err,
				}).Debug("client connection closed")
			}
			return
		}
		if t.metrics != nil {
			t.metrics.BatchSize.Observe(float64(len(batch)))
		}

		replies := t.rt.Route(ctx, batch)

		for _, r := range replies {
			if err := writer.Write(r); err != nil {
				t.logger.WithField("remote", t.conn.RemoteAddr()).Debug("write failed, dropping connection")
				return
			}
			if t.metrics != nil {
				outcome := "ok"
				if r.Kind == resp.KindError {
					outcome = "error"
				}
				t.metrics.RequestsTotal.WithLabelValues(t.pool, outcome).Inc()
			}
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}
