package agent

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Trade tools are gated behind single-use tokens: calling a mutating tool
// without a token registers a proposal and returns the token instead of
// trading; the trade only runs when the same action and arguments come back
// with a live token. This makes the "no trade without explicit user
// confirmation" policy enforceable instead of prompt-deep.

var (
	// ErrUnknownToken rejects tokens that were never issued, already
	// consumed, or expired.
	ErrUnknownToken = errors.New("unknown, expired, or already used confirm_token")

	// ErrTokenMismatch rejects a token replayed with different arguments
	// than the ones it was issued for.
	ErrTokenMismatch = errors.New("confirm_token does not match the proposed trade")
)

type proposal struct {
	action  string
	args    string // canonical JSON of the proposed arguments
	expires time.Time
}

type confirmations struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[string]proposal
}

func newConfirmations(ttl time.Duration) *confirmations {
	return &confirmations{
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]proposal),
	}
}

// propose registers a trade and returns its confirmation token.
func (c *confirmations) propose(action, args string) string {
	token := uuid.NewString()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune()
	c.pending[token] = proposal{
		action:  action,
		args:    args,
		expires: c.now().Add(c.ttl),
	}
	return token
}

// redeem consumes a token. The token must be live and bound to exactly the
// given action and arguments.
func (c *confirmations) redeem(token, action, args string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune()

	p, ok := c.pending[token]
	if !ok {
		return ErrUnknownToken
	}
	delete(c.pending, token)
	if p.action != action || p.args != args {
		return ErrTokenMismatch
	}
	return nil
}

// prune drops expired proposals. Callers hold the lock.
func (c *confirmations) prune() {
	now := c.now()
	for token, p := range c.pending {
		if now.After(p.expires) {
			delete(c.pending, token)
		}
	}
}
