package gateway

import "sync"

const defaultCredentialCacheSize = 10000

// CredentialCache remembers which credentials opened each checkout so later
// lookups of that payment go to the same gateway account. Entries live in
// process memory only; the oldest are evicted once the cache is full.
type CredentialCache struct {
	mu    sync.Mutex
	max   int
	byID  map[string]Credentials
	order []string
}

func NewCredentialCache(size int) *CredentialCache {
	if size <= 0 {
		size = defaultCredentialCacheSize
	}
	return &CredentialCache{
		max:  size,
		byID: make(map[string]Credentials),
	}
}

func (c *CredentialCache) Remember(externalID string, creds Credentials) {
	if externalID == "" || creds.IsZero() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byID[externalID]; !ok {
		c.order = append(c.order, externalID)
	}
	c.byID[externalID] = creds

	for len(c.order) > c.max {
		delete(c.byID, c.order[0])
		c.order = c.order[1:]
	}
}

// Lookup returns the remembered credentials, or the zero value (the client
// defaults) when the checkout is unknown.
func (c *CredentialCache) Lookup(externalID string) (Credentials, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	creds, ok := c.byID[externalID]
	return creds, ok
}

func (c *CredentialCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}
