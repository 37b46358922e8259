package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestScale(t *testing.T) {
	assert.Equal(t, int32(2), Scale("EUR"))
	assert.Equal(t, int32(2), Scale("USD"))
	assert.Equal(t, int32(0), Scale("JPY"))
	// Unknown codes fall back to two decimal places.
	assert.Equal(t, int32(2), Scale(""))
	assert.Equal(t, int32(2), Scale("???"))
}

func TestRound(t *testing.T) {
	amount := decimal.RequireFromString("50.005")
	assert.Equal(t, "50.01", Round(amount, "EUR").String())
	assert.Equal(t, "50", Round(amount, "JPY").String())

	// Already-exact amounts pass through unchanged.
	exact := decimal.RequireFromString("19.99")
	assert.True(t, exact.Equal(Round(exact, "EUR")))
}
