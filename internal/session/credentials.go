package session

import (
	"sync"

	"github.com/gosuda/parley/internal/domain"
)

// Credentials is the in-memory credential store. Secrets never leave the
// process.
type Credentials struct {
	mu    sync.RWMutex
	items map[string]domain.Credential
}

func NewCredentials() *Credentials {
	return &Credentials{items: make(map[string]domain.Credential)}
}

func (c *Credentials) Put(cred domain.Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[cred.AccountID] = cred
}

func (c *Credentials) Get(accountID string) (domain.Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cred, ok := c.items[accountID]
	return cred, ok
}

func (c *Credentials) Delete(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, accountID)
}
