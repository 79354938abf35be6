package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfirmations(t *testing.T) {
	t.Run("ExpiredTokensAreRejected", func(t *testing.T) {
		c := newConfirmations(time.Minute)
		current := time.Now()
		c.now = func() time.Time { return current }

		token := c.propose("buy", `{"ticker":"AAPL","qty":5}`)
		current = current.Add(2 * time.Minute)

		err := c.redeem(token, "buy", `{"ticker":"AAPL","qty":5}`)
		assert.ErrorIs(t, err, ErrUnknownToken)
	})

	t.Run("TokenIsBoundToTheAction", func(t *testing.T) {
		c := newConfirmations(time.Minute)

		token := c.propose("buy", `{"ticker":"AAPL","qty":5}`)

		err := c.redeem(token, "sell", `{"ticker":"AAPL","qty":5}`)
		assert.ErrorIs(t, err, ErrTokenMismatch)
	})

	t.Run("TokensAreSingleUse", func(t *testing.T) {
		c := newConfirmations(time.Minute)

		token := c.propose("sell", `{}`)

		assert.NoError(t, c.redeem(token, "sell", `{}`))
		assert.ErrorIs(t, c.redeem(token, "sell", `{}`), ErrUnknownToken)
	})
}
