package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedTokens_ReturnsInOrder(t *testing.T) {
	src := NewFixedTokens("attempt-1", "attempt-2", "attempt-3")

	assert.Equal(t, "attempt-1", src.Token())
	assert.Equal(t, "attempt-2", src.Token())
	assert.Equal(t, "attempt-3", src.Token())
}

func TestFixedTokens_PanicsWhenExhausted(t *testing.T) {
	src := NewFixedTokens("only-one")

	require.Equal(t, "only-one", src.Token())
	assert.Panics(t, func() { src.Token() })
}

func TestFixedTokens_EmptyPanicsImmediately(t *testing.T) {
	src := NewFixedTokens()

	assert.Panics(t, func() { src.Token() })
}
