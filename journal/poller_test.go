package journal

import (
	"testing"
	"time"
)

func journalCalls(c *fakeClient) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.journalCalls
}

func TestPollerRefreshesWhenIdle(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, nil, nil)))
	store, _, stop := startStore(t, client)
	defer stop()
	waitFor(t, func() bool { return journalCalls(client) == 1 })

	// The test clock is frozen well in the past, so the store counts as idle.
	poller := NewPollerWithTimings(store, time.Hour, time.Second)
	poller.Tick()
	waitFor(t, func() bool { return journalCalls(client) == 2 })
}

func TestPollerDefersWhileActive(t *testing.T) {
	client := newFakeClient(demoOrder(1, testItem(10, nil, nil)))
	store, _, stop := startStore(t, client)
	defer stop()
	waitFor(t, func() bool { return journalCalls(client) == 1 })

	store.Touch()
	poller := NewPollerWithTimings(store, time.Hour, time.Hour)
	poller.Tick()
	view := store.Snapshot()
	if !view.PendingRefresh {
		t.Fatal("active user: refresh should be pending, not executed")
	}
	if journalCalls(client) != 1 {
		t.Fatalf("journal fetched %d times while user active, want 1", journalCalls(client))
	}

	// Once idle again, the next tick runs the deferred refresh.
	idlePoller := NewPollerWithTimings(store, time.Hour, 0)
	idlePoller.Tick()
	waitFor(t, func() bool { return journalCalls(client) == 2 })
	if store.Snapshot().PendingRefresh {
		t.Fatal("pending refresh not cleared after idle tick")
	}
}
