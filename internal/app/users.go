package app

import (
	"context"
	"sync"

	"github.com/MrEthical07/authcore"
)

// Directory is an in-memory authcore.UserProvider seeded from configuration.
type Directory struct {
	mu    sync.RWMutex
	users map[string]authcore.UserRecord
}

func NewDirectory(records []authcore.UserRecord) *Directory {
	d := &Directory{users: make(map[string]authcore.UserRecord, len(records))}
	for _, r := range records {
		d.users[r.UserID] = r
	}
	return d
}

func (d *Directory) GetUser(_ context.Context, userID string) (authcore.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return u, nil
}

// Put adds or replaces a record.
func (d *Directory) Put(u authcore.UserRecord) {
	d.mu.Lock()
	d.users[u.UserID] = u
	d.mu.Unlock()
}
