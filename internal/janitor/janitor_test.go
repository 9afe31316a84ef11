package janitor

import (
	"context"
	"testing"
	"time"

	"chatsync/pkg/store"
)

func TestStartDisabled(t *testing.T) {
	cancel, err := Start(context.Background(), nil, Config{Enabled: false})
	if err != nil {
		t.Fatalf("disabled start: %v", err)
	}
	cancel()
}

func TestStartRejectsBadCron(t *testing.T) {
	if _, err := Start(context.Background(), nil, Config{Enabled: true, Cron: "every tuesday"}); err == nil {
		t.Fatalf("invalid cron accepted")
	}
}

func TestStartDefaultCron(t *testing.T) {
	st, err := store.Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	cancel, err := Start(context.Background(), st, Config{Enabled: true, MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("start with default cron: %v", err)
	}
	cancel()
}
