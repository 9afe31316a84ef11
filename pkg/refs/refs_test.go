package refs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chatsync/pkg/models"
	"chatsync/pkg/observe"
	"chatsync/pkg/store"
	"chatsync/pkg/syncer"
	"chatsync/pkg/transport"
)

var alice = models.User{ID: "alice", Name: "Alice"}

func newOfflineClient(t *testing.T) (*store.Store, *Client) {
	t.Helper()
	st, err := store.Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st, NewClient(st, nil, alice)
}

func seedChannel(t *testing.T, st *store.Store, id string, members ...string) {
	t.Helper()
	err := st.Write(func(tx *store.Tx) error {
		return tx.PutChannel(models.Channel{ID: id, Name: id, Members: members, CreatedTS: 1})
	})
	if err != nil {
		t.Fatalf("seed channel: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSendMessageOptimisticallyVisible(t *testing.T) {
	st, client := newOfflineClient(t)
	seedChannel(t, st, "c1", alice.ID)
	ref := client.ChannelRef("c1")
	ref.Start()
	defer ref.Stop()

	var commitErr error = errors.New("not called")
	id := ref.SendMessage("hello", func(err error) { commitErr = err })
	if commitErr != nil {
		t.Fatalf("completion: %v", commitErr)
	}
	if id == "" {
		t.Fatalf("no message id returned")
	}

	// Visible in the same snapshot that committed it, flagged pending.
	m, ok := st.Snapshot().Message(id)
	if !ok || m.Pending != models.PendingSend || m.Text != "hello" {
		t.Fatalf("message not committed optimistically: %+v ok=%v", m, ok)
	}
	// Channel recency moved in the same commit.
	ch, _ := st.Snapshot().Channel("c1")
	if ch.LastMessageTS != m.CreatedTS {
		t.Fatalf("LastMessageTS = %d, want %d", ch.LastMessageTS, m.CreatedTS)
	}
}

func TestSendMessageUnknownChannel(t *testing.T) {
	_, client := newOfflineClient(t)
	ref := client.ChannelRef("ghost")
	var got error
	id := ref.SendMessage("x", func(err error) { got = err })
	if id != "" {
		t.Fatalf("id returned for failed send")
	}
	if !errors.Is(got, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", got)
	}
}

func TestMessageListUpdatesReachListener(t *testing.T) {
	st, client := newOfflineClient(t)
	seedChannel(t, st, "c1", alice.ID)
	ref := client.ChannelRef("c1")
	ref.Start()
	defer ref.Stop()

	got := make(chan []models.Message, 4)
	defer ref.OnMessages(func(ms []models.Message, _ observe.Metadata) { got <- ms })()

	id := ref.SendMessage("one", nil)
	select {
	case ms := <-got:
		if len(ms) != 1 || ms[0].ID != id {
			t.Fatalf("listener saw %+v", ms)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("listener never fired")
	}
	if msgs := ref.Messages(); len(msgs) != 1 {
		t.Fatalf("Messages() = %+v", msgs)
	}
}

// Two references over the same channel receive equivalent change batches;
// stopping one must not disturb the other.
func TestFanOutAcrossReferences(t *testing.T) {
	st, client := newOfflineClient(t)
	seedChannel(t, st, "c1", alice.ID)

	a := client.ChannelRef("c1")
	b := client.ChannelRef("c1")
	a.Start()
	b.Start()
	defer b.Stop()

	gotA := make(chan observe.Batch[models.Message], 4)
	gotB := make(chan observe.Batch[models.Message], 4)
	defer a.OnMessageChanges(func(x observe.Batch[models.Message]) { gotA <- x })()
	defer b.OnMessageChanges(func(x observe.Batch[models.Message]) { gotB <- x })()

	a.SendMessage("first", nil)
	var ba, bb observe.Batch[models.Message]
	select {
	case ba = <-gotA:
	case <-time.After(2 * time.Second):
		t.Fatalf("reference a never notified")
	}
	select {
	case bb = <-gotB:
	case <-time.After(2 * time.Second):
		t.Fatalf("reference b never notified")
	}
	if ba.Seq != bb.Seq || len(ba.Result) != len(bb.Result) {
		t.Fatalf("references diverged: %+v vs %+v", ba, bb)
	}

	// Cancel a; b keeps receiving.
	a.Stop()
	b.SendMessage("second", nil)
	select {
	case bb = <-gotB:
		if len(bb.Result) != 2 {
			t.Fatalf("reference b saw %d messages, want 2", len(bb.Result))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("reference b stopped receiving after a cancelled")
	}
	select {
	case x := <-gotA:
		t.Fatalf("cancelled reference notified: %+v", x)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelListRecencyReorders(t *testing.T) {
	st, client := newOfflineClient(t)
	seedChannel(t, st, "c1", alice.ID)
	seedChannel(t, st, "c2", alice.ID)

	list := client.ChannelListRef()
	list.Start()
	defer list.Stop()

	// Seeded with equal recency, so creation order decides; both CreatedTS
	// are equal too, leaving the id tie-break.
	chans := list.Channels()
	if len(chans) != 2 {
		t.Fatalf("channels = %+v", chans)
	}

	ref := client.ChannelRef("c2")
	ref.SendMessage("bump", nil)
	waitFor(t, "reorder", func() bool {
		cs := list.Channels()
		return len(cs) == 2 && cs[0].ID == "c2"
	})
}

func TestCreateChannelIncludesCreator(t *testing.T) {
	st, client := newOfflineClient(t)
	list := client.ChannelListRef()
	list.Start()
	defer list.Stop()

	id := list.CreateChannel("plans", []string{"bob"}, nil)
	if id == "" {
		t.Fatalf("no channel id")
	}
	ch, ok := st.Snapshot().Channel(id)
	if !ok || !ch.HasMember(alice.ID) || !ch.HasMember("bob") {
		t.Fatalf("channel membership wrong: %+v", ch)
	}
	if ch.Type != models.ChannelTypeMessaging {
		t.Fatalf("type = %q", ch.Type)
	}
	waitFor(t, "own channel visible in list", func() bool {
		cs := list.Channels()
		return len(cs) == 1 && cs[0].ID == id
	})
}

func TestUserListOrderedByName(t *testing.T) {
	_, client := newOfflineClient(t)
	list := client.UserListRef()
	list.Start()
	defer list.Stop()

	list.AddUser("Zoe", nil)
	list.AddUser("Ben", nil)
	waitFor(t, "user list", func() bool {
		us := list.Users()
		return len(us) == 2 && us[0].Name == "Ben" && us[1].Name == "Zoe"
	})
}

func TestDeleteWithoutWorkerCompletesLocally(t *testing.T) {
	st, client := newOfflineClient(t)
	seedChannel(t, st, "c1", alice.ID)
	ref := client.ChannelRef("c1")
	id := ref.SendMessage("bye", nil)

	var got error = errors.New("not called")
	ref.DeleteMessage(id, func(err error) { got = err })
	if got != nil {
		t.Fatalf("completion: %v", got)
	}
	m, ok := st.Snapshot().Message(id)
	if !ok || m.Pending != models.PendingDelete {
		t.Fatalf("message not flagged pending-delete: %+v ok=%v", m, ok)
	}
}

func TestDeleteMissingMessage(t *testing.T) {
	st, client := newOfflineClient(t)
	seedChannel(t, st, "c1", alice.ID)
	ref := client.ChannelRef("c1")
	var got error
	ref.DeleteMessage("ghost", func(err error) { got = err })
	if !errors.Is(got, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", got)
	}
}

// okSender accepts every request.
type okSender struct{}

func (okSender) Send(context.Context, transport.Request) (transport.Response, error) {
	return transport.Response{}, nil
}

// failingDeleteSender rejects deletes and accepts everything else.
type failingDeleteSender struct{ err error }

func (f failingDeleteSender) Send(_ context.Context, req transport.Request) (transport.Response, error) {
	if req.Kind == transport.ReqMessageDelete {
		return transport.Response{}, f.err
	}
	return transport.Response{}, nil
}

func newSyncedClient(t *testing.T, sender transport.Sender) (*store.Store, *Client) {
	t.Helper()
	st, err := store.Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	w := syncer.New(st, sender, syncer.Config{SendBackoff: time.Millisecond})
	w.Start(context.Background())
	t.Cleanup(w.Stop)
	return st, NewClient(st, w, alice)
}

func TestSendThenConfirmEndToEnd(t *testing.T) {
	st, client := newSyncedClient(t, okSender{})
	seedChannel(t, st, "c1", alice.ID)
	ref := client.ChannelRef("c1")
	ref.Start()
	defer ref.Stop()

	id := ref.SendMessage("hello", nil)
	m, _ := st.Snapshot().Message(id)
	if m.Pending != models.PendingSend {
		t.Fatalf("message not optimistic: %+v", m)
	}
	waitFor(t, "confirmation", func() bool {
		m, ok := st.Snapshot().Message(id)
		return ok && m.Pending == models.PendingNone
	})
}

func TestDeleteConfirmedEndToEnd(t *testing.T) {
	st, client := newSyncedClient(t, okSender{})
	seedChannel(t, st, "c1", alice.ID)
	ref := client.ChannelRef("c1")
	id := ref.SendMessage("doomed", nil)
	waitFor(t, "send confirmation", func() bool {
		m, ok := st.Snapshot().Message(id)
		return ok && m.Pending == models.PendingNone
	})

	done := make(chan error, 1)
	ref.DeleteMessage(id, func(err error) { done <- err })
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("delete completion: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("delete completion never fired")
	}
	if _, ok := st.Snapshot().Message(id); ok {
		t.Fatalf("message survived confirmed delete")
	}
}

func TestDeleteFailureSurfacesError(t *testing.T) {
	backendErr := errors.New("forbidden")
	st, client := newSyncedClient(t, failingDeleteSender{err: backendErr})
	seedChannel(t, st, "c1", alice.ID)
	ref := client.ChannelRef("c1")
	id := ref.SendMessage("sticky", nil)
	waitFor(t, "send confirmation", func() bool {
		m, ok := st.Snapshot().Message(id)
		return ok && m.Pending == models.PendingNone
	})

	done := make(chan error, 1)
	ref.DeleteMessage(id, func(err error) { done <- err })
	select {
	case err := <-done:
		if !errors.Is(err, backendErr) {
			t.Fatalf("completion err = %v, want backend error", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("delete completion never fired")
	}
	waitFor(t, "rollback to full visibility", func() bool {
		m, ok := st.Snapshot().Message(id)
		return ok && m.Pending == models.PendingNone
	})
}

// gatedSender holds every request until the gate closes.
type gatedSender struct{ gate <-chan struct{} }

func (g gatedSender) Send(ctx context.Context, _ transport.Request) (transport.Response, error) {
	select {
	case <-g.gate:
		return transport.Response{}, nil
	case <-ctx.Done():
		return transport.Response{}, ctx.Err()
	}
}

func TestMetadataFlipsAfterFirstExchange(t *testing.T) {
	gate := make(chan struct{})
	st, client := newSyncedClient(t, gatedSender{gate: gate})
	seedChannel(t, st, "c1", alice.ID)
	ref := client.ChannelRef("c1")
	ref.Start()
	defer ref.Stop()

	var mu sync.Mutex
	var metas []observe.Metadata
	defer ref.OnMessages(func(_ []models.Message, meta observe.Metadata) {
		mu.Lock()
		metas = append(metas, meta)
		mu.Unlock()
	})()

	id := ref.SendMessage("hello", nil)
	waitFor(t, "optimistic batch", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(metas) >= 1
	})
	mu.Lock()
	if !metas[0].FromLocalCache {
		mu.Unlock()
		t.Fatalf("pre-confirmation batch should be local-cache only")
	}
	mu.Unlock()

	close(gate)
	waitFor(t, "confirmation batch", func() bool {
		m, ok := st.Snapshot().Message(id)
		if !ok || m.Pending != models.PendingNone {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		return len(metas) >= 2
	})
	mu.Lock()
	defer mu.Unlock()
	if metas[len(metas)-1].FromLocalCache {
		t.Fatalf("post-confirmation batch still flagged local-cache")
	}
}
