// Package policy blocks dangerous admin commands from reaching a backend:
// a static, Redis-specific command table plus optional custom deny
// patterns for operator-added rules.
package policy

import (
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"

	"synchrotron/internal/resp"
)

// Checker decides whether a command should be blocked before it reaches
// any backend: the static admin-command table, plus any custom deny
// patterns an operator has added.
type Checker struct {
	patterns       []*regexp.Regexp
	blockedCount   int64
	inspectedCount int64
	logger         *logrus.Logger
	mu             sync.RWMutex
}

// NewChecker builds a Checker with no custom patterns; the static
// admin-command table is always consulted regardless of what's added here.
func NewChecker(logger *logrus.Logger) *Checker {
	return &Checker{logger: logger}
}

// IsBlocked reports whether cmd is an admin/danger command a pool with
// block_admin_commands enabled should refuse to forward.
func IsBlocked(cmd string) bool {
	return resp.AdminCommands[cmd]
}

// Check inspects one command against the static table and any custom
// patterns, returning whether it's blocked and why.
func (c *Checker) Check(cmd string) (bool, string) {
	c.mu.Lock()
	c.inspectedCount++
	c.mu.Unlock()

	if resp.AdminCommands[cmd] {
		c.recordBlock(cmd, "admin command")
		return true, "admin command"
	}

	c.mu.RLock()
	patterns := c.patterns
	c.mu.RUnlock()
	for _, p := range patterns {
		if p.MatchString(cmd) {
			c.recordBlock(cmd, "matched deny pattern "+p.String())
			return true, "matched deny pattern " + p.String()
		}
	}

	return false, ""
}

func (c *Checker) recordBlock(cmd, reason string) {
	c.mu.Lock()
	c.blockedCount++
	c.mu.Unlock()
	c.logger.WithFields(logrus.Fields{
		"command": cmd,
		"reason":  reason,
	}).Warn("command blocked by proxy policy")
}

// AddPattern adds a custom deny pattern, matched against the upper-cased
// command name.
func (c *Checker) AddPattern(pattern string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns = append(c.patterns, compiled)
	return nil
}

// Stats returns the checker's running counters.
func (c *Checker) Stats() (inspected, blocked int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inspectedCount, c.blockedCount
}
