package operations

import (
	"path/filepath"
	"sync"
)

// ClaimRegistry hands out exclusive claims on output paths.
type ClaimRegistry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewClaimRegistry creates an empty registry
func NewClaimRegistry() *ClaimRegistry {
	return &ClaimRegistry{held: make(map[string]struct{})}
}

// processClaims is shared by every Downloader that is not given its own registry.
var processClaims = NewClaimRegistry()

// TryClaim claims path. It returns false when another job holds it; otherwise
// the returned release func must be called once the job is finished.
func (c *ClaimRegistry) TryClaim(path string) (release func(), ok bool) {
	key := claimKey(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.held[key]; busy {
		return nil, false
	}
	c.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.held, key)
			c.mu.Unlock()
		})
	}, true
}

// Held returns the number of active claims.
func (c *ClaimRegistry) Held() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.held)
}

func claimKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
