package llm

import "sync"

// Pool is an ordered set of credentials with a shared round-robin cursor.
// The cursor is only reachable through Next.
type Pool struct {
	mu     sync.Mutex
	creds  []string
	cursor int
}

// NewPool copies creds into a new Pool.
func NewPool(creds []string) *Pool {
	return &Pool{creds: append([]string(nil), creds...)}
}

// Size returns the number of credentials.
func (p *Pool) Size() int {
	return len(p.creds)
}

// Next returns the credential under the cursor and advances it, wrapping
// at Size. It returns (-1, "") for an empty pool.
func (p *Pool) Next() (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.creds) == 0 {
		return -1, ""
	}
	idx := p.cursor
	p.cursor = (p.cursor + 1) % len(p.creds)
	return idx, p.creds[idx]
}
