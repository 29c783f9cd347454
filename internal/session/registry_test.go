package session

import (
	"sync"
	"testing"
	"time"
)

func TestRegisterAssignsUniqueIDs(t *testing.T) {
	r := New()
	id1 := r.Register("10.0.0.1:1234", "")
	id2 := r.Register("10.0.0.2:1234", "")
	if id1 == id2 {
		t.Fatalf("expected distinct ids, got %d and %d", id1, id2)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegisterInitialState(t *testing.T) {
	r := New()
	id := r.Register("10.0.0.1:1234", "client.example")
	e, ok := r.Get(id)
	if !ok {
		t.Fatal("Get() after Register() returned ok=false")
	}
	if e.State != Handshaking {
		t.Errorf("initial State = %v, want Handshaking", e.State)
	}
	if e.PeerAddr != "10.0.0.1:1234" || e.PeerHostname != "client.example" {
		t.Errorf("unexpected peer info: %+v", e)
	}
}

func TestSetStateModuleBytes(t *testing.T) {
	r := New()
	id := r.Register("10.0.0.1:1234", "")

	r.SetState(id, Transferring)
	r.SetModule(id, "backups")
	r.AddBytes(id, 100, 50)
	r.AddBytes(id, 10, 5)

	e, _ := r.Get(id)
	if e.State != Transferring {
		t.Errorf("State = %v, want Transferring", e.State)
	}
	if e.Module != "backups" {
		t.Errorf("Module = %q, want backups", e.Module)
	}
	if e.BytesReceived != 110 || e.BytesSent != 55 {
		t.Errorf("bytes = %d/%d, want 110/55", e.BytesReceived, e.BytesSent)
	}
}

func TestUpdatesOnMissingIDAreNoops(t *testing.T) {
	r := New()
	r.SetState(9999, Transferring)
	r.SetModule(9999, "x")
	r.AddBytes(9999, 1, 1)
	if _, ok := r.Get(9999); ok {
		t.Fatal("Get() for never-registered id should report ok=false")
	}
}

func TestUnregisterRemovesEntry(t *testing.T) {
	r := New()
	id := r.Register("p", "")
	r.Unregister(id)
	if _, ok := r.Get(id); ok {
		t.Fatal("entry should be gone after Unregister")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestPruneInactiveRemovesOnlyTerminalEntries(t *testing.T) {
	r := New()
	idActive := r.Register("a", "")
	idDone := r.Register("b", "")
	idFailed := r.Register("c", "")

	r.SetState(idActive, Transferring)
	r.SetState(idDone, Completed)
	r.SetState(idFailed, Failed)

	pruned := r.PruneInactive()
	if pruned != 2 {
		t.Errorf("PruneInactive() = %d, want 2", pruned)
	}
	if _, ok := r.Get(idActive); !ok {
		t.Error("active session should survive PruneInactive")
	}
	if _, ok := r.Get(idDone); ok {
		t.Error("completed session should be pruned")
	}
	if _, ok := r.Get(idFailed); ok {
		t.Error("failed session should be pruned")
	}
}

func TestPruneOlderThanIgnoresState(t *testing.T) {
	r := New()
	id := r.Register("a", "")
	r.SetState(id, Transferring)

	if pruned := r.PruneOlderThan(time.Hour); pruned != 0 {
		t.Errorf("PruneOlderThan(1h) on a fresh entry = %d, want 0", pruned)
	}
	if pruned := r.PruneOlderThan(-time.Second); pruned != 1 {
		t.Errorf("PruneOlderThan(negative) should treat every entry as stale, got %d", pruned)
	}
}

func TestSessionsForModuleFiltersByModule(t *testing.T) {
	r := New()
	id1 := r.Register("a", "")
	id2 := r.Register("b", "")
	id3 := r.Register("c", "")
	r.SetModule(id1, "backups")
	r.SetModule(id2, "src")
	r.SetModule(id3, "backups")

	got := r.SessionsForModule("backups")
	if len(got) != 2 {
		t.Fatalf("SessionsForModule(backups) returned %d entries, want 2", len(got))
	}
	for _, e := range got {
		if e.Module != "backups" {
			t.Errorf("unexpected module in result: %+v", e)
		}
	}
}

func TestConcurrentRegisterPreservesIDUniqueness(t *testing.T) {
	r := New()
	const n = 500
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- r.Register("peer", "")
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d assigned under concurrent Register", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d unique ids, want %d", len(seen), n)
	}
	if r.Len() != n {
		t.Errorf("Len() = %d, want %d", r.Len(), n)
	}
}

func TestConcurrentUpdatesDoNotRace(t *testing.T) {
	r := New()
	id := r.Register("peer", "")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.AddBytes(id, 1, 1)
		}()
	}
	wg.Wait()

	e, _ := r.Get(id)
	if e.BytesReceived != 100 || e.BytesSent != 100 {
		t.Errorf("bytes = %d/%d, want 100/100", e.BytesReceived, e.BytesSent)
	}
}
