// Package refs exposes per-consumer façades over the sync core: each
// reference owns its change observers, presents a read-only projection and
// offers action methods that enqueue writes. References are thin views;
// the store stays the only source of truth, handed to every façade at
// construction.
package refs

import (
	"chatsync/pkg/models"
	"chatsync/pkg/observe"
	"chatsync/pkg/store"
	"chatsync/pkg/syncer"
)

// Client is the entry point handed to the UI layer. It carries the store
// handle, the current user and the sync worker (nil for offline use, e.g.
// tests that drive the store directly).
type Client struct {
	store       *store.Store
	worker      *syncer.Worker
	currentUser models.User
}

func NewClient(st *store.Store, w *syncer.Worker, currentUser models.User) *Client {
	return &Client{store: st, worker: w, currentUser: currentUser}
}

func (c *Client) CurrentUser() models.User { return c.currentUser }

// meta stamps change batches: data is local-cache-only until the worker
// completes its first successful exchange with the backend.
func (c *Client) meta() observe.Metadata {
	confirmed := c.worker != nil && c.worker.RemoteConfirmed()
	return observe.Metadata{FromLocalCache: !confirmed}
}
