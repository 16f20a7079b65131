package proxy

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"synchrotron/internal/config"
	"synchrotron/internal/logging"
	"synchrotron/internal/metrics"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestServerRoutesFixedListenerEndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	listenAddr := freeAddr(t)

	cfg := &config.Config{
		DrainMs: 1000,
		Listeners: map[string]config.ListenerConfig{
			"main": {
				Protocol: "redis",
				Address:  listenAddr,
				Routing:  config.RoutingConfig{Type: "fixed"},
				Pools: map[string]config.PoolConfig{
					"default": {
						Addresses: []string{mr.Addr()},
						Options: config.PoolOptionsConfig{
							Distribution:          "modulo",
							Hash:                  "md5",
							ConnectionsPerBackend: 1,
							TimeoutMs:             500,
							CooloffTimeoutMs:      1000,
							FailureThreshold:      3,
							FailureWindowMs:       1000,
							NoKeyPolicy:           "first_backend",
						},
					},
				},
			},
		},
	}

	reg := metrics.NewRegistry(prometheus.NewRegistry())
	srv := NewServer(cfg, logging.Nop(), reg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop(context.Background(), time.Second)

	conn := dialWithRetry(t, listenAddr)
	defer conn.Close()

	conn.Write([]byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"))
	br := bufio.NewReader(conn)
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read SET reply: %v", err)
	}
	if line != "+OK\r\n" {
		t.Fatalf("got %q, want +OK", line)
	}

	conn.Write([]byte("*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"))
	line, _ = br.ReadString('\n')
	if line != "$1\r\n" {
		t.Fatalf("got %q, want $1 header", line)
	}
	val, _ := br.ReadString('\n')
	if val != "v\r\n" {
		t.Fatalf("got %q, want v", val)
	}
}

func dialWithRetry(t *testing.T, addr string) net.Conn {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			return conn
		}
		lastErr = err
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", addr, lastErr)
	return nil
}
