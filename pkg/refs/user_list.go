package refs

import (
	"chatsync/pkg/ids"
	"chatsync/pkg/models"
	"chatsync/pkg/observe"
	"chatsync/pkg/query"
	"chatsync/pkg/store"
)

// UserListReference observes the full user directory ordered by display
// name.
type UserListReference struct {
	client *Client
	obs    *observe.Observer[models.User]
}

func (c *Client) UserListRef() *UserListReference {
	r := &UserListReference{client: c}
	r.obs = observe.New(c.store, query.AllUsers(), c.meta)
	return r
}

func (r *UserListReference) Start() { r.obs.Start() }
func (r *UserListReference) Stop()  { r.obs.Stop() }

func (r *UserListReference) Users() []models.User {
	return r.obs.Current()
}

func (r *UserListReference) OnChanges(fn func(observe.Batch[models.User])) func() {
	return r.obs.AddListener(fn)
}

func (r *UserListReference) OnUsers(fn func([]models.User, observe.Metadata)) func() {
	return r.obs.AddResultListener(fn)
}

// AddUser commits a new user. Users are immutable after creation in this
// scope. Returns the new user id; the empty string on failure.
func (r *UserListReference) AddUser(name string, completion func(error)) string {
	u := models.User{ID: ids.New(), Name: name}
	err := r.client.store.Write(func(tx *store.Tx) error {
		return tx.PutUser(u)
	})
	if completion != nil {
		completion(err)
	}
	if err != nil {
		return ""
	}
	return u.ID
}
