package testutil

import "sync"

// FixedTokens returns predetermined attempt tokens for tests.
//
// This enables deterministic log output and golden snapshot comparison.
// Tests provide a known sequence of tokens and verify exact output.
//
// Thread-safety: FixedTokens is safe for concurrent use via internal mutex.
type FixedTokens struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedTokens creates a source that returns tokens in order.
//
// Example:
//
//	src := NewFixedTokens("attempt-1", "attempt-2")
//	src.Token() // "attempt-1"
//	src.Token() // "attempt-2"
//	src.Token() // panic: all tokens exhausted
func NewFixedTokens(tokens ...string) *FixedTokens {
	return &FixedTokens{tokens: tokens}
}

// Token returns the next predetermined token.
//
// Panics if all tokens have been consumed. This is a fail-fast approach
// to catch test misconfiguration (more attempts than the test expected).
func (g *FixedTokens) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedTokens: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
