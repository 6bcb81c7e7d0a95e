package relay

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// attachClient registers a connectionless client whose output stays in its
// send buffer.
func attachClient(srv *Server) *client {
	c := &client{
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
		server: srv,
	}
	srv.subscriptionsMu.Lock()
	srv.subscriptions[c] = make(map[string]string)
	srv.subscriptionsMu.Unlock()
	return c
}

func drainTypes(c *client) map[string]int {
	counts := make(map[string]int)
	for {
		select {
		case data := <-c.send:
			var env Envelope
			if err := json.Unmarshal(data, &env); err == nil {
				counts[env.Type]++
			}
		default:
			return counts
		}
	}
}

func TestServer_ConcurrentSubscribeOnce(t *testing.T) {
	q := &stubQuerier{messages: conversation(), block: true}
	srv, reg := newTestServer(q, 4)

	run, err := reg.Start("hi", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		reg.Cancel(run.ID)
		waitRun(t, reg, run.ID)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		msgs, _ := reg.Messages(run.ID)
		if len(msgs) == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run produced %d messages, expected 3", len(msgs))
		}
		time.Sleep(5 * time.Millisecond)
	}

	c := attachClient(srv)

	// A client connecting while the run starts is subscribed from both
	// handleWebSocket and subscribeAllClients.
	const callers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			srv.subscribeClient(c, run.ID)
		}()
	}
	close(start)
	wg.Wait()

	srv.subscriptionsMu.Lock()
	subID := srv.subscriptions[c][run.ID]
	srv.subscriptionsMu.Unlock()

	mr, err := reg.lookup(run.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	mr.subMu.Lock()
	registered := len(mr.subscribers)
	_, known := mr.subscribers[subID]
	mr.subMu.Unlock()

	if registered != 1 {
		t.Errorf("expected 1 registry subscriber, got %d", registered)
	}
	if subID == pendingSubscription || !known {
		t.Errorf("expected the client to hold the registered subscription, got %q", subID)
	}

	if got := drainTypes(c)[TypeRunMessage]; got != 3 {
		t.Errorf("expected history replayed once (3 messages), got %d", got)
	}
}

func TestServer_SubscribeUnknownRunLeavesNoReservation(t *testing.T) {
	srv, _ := newTestServer(&stubQuerier{}, 4)
	c := attachClient(srv)

	srv.subscribeClient(c, "missing")

	srv.subscriptionsMu.Lock()
	_, exists := srv.subscriptions[c]["missing"]
	srv.subscriptionsMu.Unlock()
	if exists {
		t.Error("expected failed subscription to release its reservation")
	}
}

func TestServer_SubscribeAfterClientRemoved(t *testing.T) {
	q := &stubQuerier{messages: conversation(), block: true}
	srv, reg := newTestServer(q, 4)

	run, err := reg.Start("hi", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		reg.Cancel(run.ID)
		waitRun(t, reg, run.ID)
	}()

	c := attachClient(srv)
	srv.removeClient(c)
	srv.subscribeClient(c, run.ID)

	mr, err := reg.lookup(run.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	mr.subMu.Lock()
	registered := len(mr.subscribers)
	mr.subMu.Unlock()
	if registered != 0 {
		t.Errorf("expected no subscriber for a removed client, got %d", registered)
	}
}
