package sync

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/petfolio/shelterq/internal/petsapi"
	"github.com/petfolio/shelterq/internal/queue"
)

func newTestStore(t *testing.T) *queue.Store {
	t.Helper()
	return queue.NewStore(queue.NewFileRepository(filepath.Join(t.TempDir(), "queue.json")))
}

func alwaysOnline() bool  { return true }
func alwaysOffline() bool { return false }

// enqueueUpdates queues n field edits against pets p1..pn and returns the
// stored operations.
func enqueueUpdates(t *testing.T, store *queue.Store, n int) []queue.Operation {
	t.Helper()
	ops := make([]queue.Operation, n)
	for i := 0; i < n; i++ {
		op, err := store.Enqueue(queue.NewUpdate(
			fmt.Sprintf("p%d", i+1),
			queue.PetRecord{Description: fmt.Sprintf("edit %d", i+1)},
			false, "",
		))
		if err != nil {
			t.Fatalf("Enqueue() unexpected error: %v", err)
		}
		ops[i] = op
	}
	return ops
}

func TestSyncDrainsQueueInOrder(t *testing.T) {
	server := petsapi.NewMockServer()
	defer server.Close()

	store := newTestStore(t)
	enqueueUpdates(t, store, 4)

	engine := NewEngine(store, petsapi.New(server.URL, ""), alwaysOnline)
	res, err := engine.Sync()
	if err != nil {
		t.Fatalf("Sync() unexpected error: %v", err)
	}

	if res.Synced != 4 || res.Failed != 0 {
		t.Errorf("Sync() = %+v, want {Synced:4 Failed:0}", res)
	}
	if store.Count() != 0 {
		t.Errorf("queue has %d operations after full sync, want 0", store.Count())
	}

	want := []string{"PATCH /pets/p1", "PATCH /pets/p2", "PATCH /pets/p3", "PATCH /pets/p4"}
	if got := server.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("server observed %v, want enqueue order %v", got, want)
	}
}

func TestConnectivityFailureHaltsPass(t *testing.T) {
	server := petsapi.NewMockServer()
	defer server.Close()
	server.DropConnection("PATCH /pets/p3")

	store := newTestStore(t)
	ops := enqueueUpdates(t, store, 5)

	engine := NewEngine(store, petsapi.New(server.URL, ""), alwaysOnline)
	res, err := engine.Sync()
	if err != nil {
		t.Fatalf("Sync() unexpected error: %v", err)
	}

	if res.Synced != 2 || res.Failed != 3 {
		t.Errorf("Sync() = %+v, want {Synced:2 Failed:3}", res)
	}

	remainder := store.List()
	if len(remainder) != 3 {
		t.Fatalf("queue has %d operations, want 3", len(remainder))
	}
	for i, op := range remainder {
		if op.ID != ops[i+2].ID {
			t.Errorf("remainder[%d].ID = %q, want %q (original order)", i, op.ID, ops[i+2].ID)
		}
	}

	// Nothing after the failed operation may have been attempted.
	for _, call := range server.Calls() {
		if call == "PATCH /pets/p4" || call == "PATCH /pets/p5" {
			t.Errorf("server received %s after the connectivity failure", call)
		}
	}
}

func TestApplicationFailureDropsAndContinues(t *testing.T) {
	server := petsapi.NewMockServer()
	defer server.Close()
	server.RespondWithStatus("PATCH /pets/p2", http.StatusUnprocessableEntity)

	store := newTestStore(t)
	enqueueUpdates(t, store, 4)

	engine := NewEngine(store, petsapi.New(server.URL, ""), alwaysOnline)
	res, err := engine.Sync()
	if err != nil {
		t.Fatalf("Sync() unexpected error: %v", err)
	}

	if res.Synced != 3 || res.Failed != 1 {
		t.Errorf("Sync() = %+v, want {Synced:3 Failed:1}", res)
	}
	if store.Count() != 0 {
		t.Errorf("queue has %d operations, want 0: rejected operation must be dropped", store.Count())
	}

	want := []string{"PATCH /pets/p1", "PATCH /pets/p2", "PATCH /pets/p3", "PATCH /pets/p4"}
	if got := server.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("server observed %v, want %v", got, want)
	}
}

func TestOfflineIsNoOp(t *testing.T) {
	server := petsapi.NewMockServer()
	defer server.Close()

	store := newTestStore(t)
	ops := enqueueUpdates(t, store, 3)

	engine := NewEngine(store, petsapi.New(server.URL, ""), alwaysOffline)
	res, err := engine.Sync()
	if err != nil {
		t.Fatalf("Sync() unexpected error: %v", err)
	}

	if res.Synced != 0 || res.Failed != 3 {
		t.Errorf("Sync() = %+v, want {Synced:0 Failed:3}", res)
	}
	if len(server.Calls()) != 0 {
		t.Errorf("offline sync made %d network calls, want 0", len(server.Calls()))
	}

	after := store.List()
	if len(after) != 3 {
		t.Fatalf("queue has %d operations, want 3", len(after))
	}
	for i := range after {
		if after[i].ID != ops[i].ID {
			t.Error("offline sync must leave the queue unchanged")
		}
	}
}

func TestEmptyQueue(t *testing.T) {
	server := petsapi.NewMockServer()
	defer server.Close()

	engine := NewEngine(newTestStore(t), petsapi.New(server.URL, ""), alwaysOnline)
	res, err := engine.Sync()
	if err != nil {
		t.Fatalf("Sync() unexpected error: %v", err)
	}
	if res.Synced != 0 || res.Failed != 0 {
		t.Errorf("Sync() = %+v, want zero result", res)
	}
	if len(server.Calls()) != 0 {
		t.Error("empty queue should make no network calls")
	}
}

func TestTwoStepUpdateOrder(t *testing.T) {
	server := petsapi.NewMockServer()
	defer server.Close()

	store := newTestStore(t)
	_, err := store.Enqueue(queue.NewUpdate("p1", queue.PetRecord{Breed: "lab"}, true, "adopted"))
	if err != nil {
		t.Fatalf("Enqueue() unexpected error: %v", err)
	}

	engine := NewEngine(store, petsapi.New(server.URL, ""), alwaysOnline)
	res, err := engine.Sync()
	if err != nil {
		t.Fatalf("Sync() unexpected error: %v", err)
	}

	if res.Synced != 1 || res.Failed != 0 {
		t.Errorf("Sync() = %+v, want {Synced:1 Failed:0}", res)
	}

	want := []string{"PATCH /pets/p1", "PATCH /pets/p1/status"}
	if got := server.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("server observed %v, want field edit then status transition", got)
	}
	if got := server.StatusUpdates("p1"); !reflect.DeepEqual(got, []string{"adopted"}) {
		t.Errorf("status updates = %v, want [adopted]", got)
	}
}

func TestStatusTransitionSkippedWhenFieldEditRejected(t *testing.T) {
	server := petsapi.NewMockServer()
	defer server.Close()
	server.RespondWithStatus("PATCH /pets/p1", http.StatusForbidden)

	store := newTestStore(t)
	if _, err := store.Enqueue(queue.NewUpdate("p1", queue.PetRecord{}, true, "adopted")); err != nil {
		t.Fatalf("Enqueue() unexpected error: %v", err)
	}

	engine := NewEngine(store, petsapi.New(server.URL, ""), alwaysOnline)
	res, err := engine.Sync()
	if err != nil {
		t.Fatalf("Sync() unexpected error: %v", err)
	}

	if res.Synced != 0 || res.Failed != 1 {
		t.Errorf("Sync() = %+v, want {Synced:0 Failed:1}", res)
	}
	if len(server.StatusUpdates("p1")) != 0 {
		t.Error("status transition must not run when the field edit is rejected")
	}
	if store.Count() != 0 {
		t.Error("rejected operation must be dropped")
	}
}

func TestCreateWithInlinePhoto(t *testing.T) {
	server := petsapi.NewMockServer()
	defer server.Close()
	server.QueueUploadURL("/uploads/a.png")

	store := newTestStore(t)
	inline := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	_, err := store.Enqueue(queue.NewCreate(queue.PetRecord{
		Name:    "Maple",
		Species: "dog",
		Photos:  []string{inline},
	}, "shelter-2"))
	if err != nil {
		t.Fatalf("Enqueue() unexpected error: %v", err)
	}

	engine := NewEngine(store, petsapi.New(server.URL, ""), alwaysOnline)
	res, err := engine.Sync()
	if err != nil {
		t.Fatalf("Sync() unexpected error: %v", err)
	}

	if res.Synced != 1 || res.Failed != 0 {
		t.Errorf("Sync() = %+v, want {Synced:1 Failed:0}", res)
	}
	if store.Count() != 0 {
		t.Errorf("queue has %d operations, want 0", store.Count())
	}

	bodies := server.CreateBodies()
	if len(bodies) != 1 {
		t.Fatalf("server received %d creates, want 1", len(bodies))
	}
	photos, ok := bodies[0]["photos"].([]interface{})
	if !ok || len(photos) != 1 || photos[0] != "/uploads/a.png" {
		t.Errorf("create body photos = %v, want [/uploads/a.png]", bodies[0]["photos"])
	}
	if bodies[0]["shelterOwner"] != "shelter-2" {
		t.Errorf("create body shelterOwner = %v", bodies[0]["shelterOwner"])
	}
}

func TestUploadConnectivityFailureHaltsPass(t *testing.T) {
	server := petsapi.NewMockServer()
	defer server.Close()
	server.DropConnection("POST /pets/upload-image")

	store := newTestStore(t)
	inline := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("x"))
	if _, err := store.Enqueue(queue.NewCreate(queue.PetRecord{Name: "A", Photos: []string{inline}}, "")); err != nil {
		t.Fatalf("Enqueue() unexpected error: %v", err)
	}
	if _, err := store.Enqueue(queue.NewUpdate("p2", queue.PetRecord{}, false, "")); err != nil {
		t.Fatalf("Enqueue() unexpected error: %v", err)
	}

	engine := NewEngine(store, petsapi.New(server.URL, ""), alwaysOnline)
	res, err := engine.Sync()
	if err != nil {
		t.Fatalf("Sync() unexpected error: %v", err)
	}

	if res.Synced != 0 || res.Failed != 2 {
		t.Errorf("Sync() = %+v, want {Synced:0 Failed:2}", res)
	}
	if store.Count() != 2 {
		t.Errorf("queue has %d operations, want both retained", store.Count())
	}
	if got := server.Calls(); !reflect.DeepEqual(got, []string{"POST /pets/upload-image"}) {
		t.Errorf("server observed %v, want only the upload attempt", got)
	}

	// Inline photos stay inline in the retained queue; nothing partial is
	// committed back.
	retained := store.List()
	if retained[0].Create.Pet.Photos[0] != inline {
		t.Error("retained operation should keep its inline photo")
	}
}

func TestMalformedOperationsDroppedWithoutNetworkCalls(t *testing.T) {
	server := petsapi.NewMockServer()
	defer server.Close()

	store := newTestStore(t)
	malformed := []queue.Operation{
		{Kind: "delete", TargetID: "p1"},
		{Kind: queue.KindCreate},
		{Kind: queue.KindUpdate, Update: &queue.UpdatePayload{}},
	}
	for _, op := range malformed {
		if _, err := store.Enqueue(op); err != nil {
			t.Fatalf("Enqueue() unexpected error: %v", err)
		}
	}

	engine := NewEngine(store, petsapi.New(server.URL, ""), alwaysOnline)
	res, err := engine.Sync()
	if err != nil {
		t.Fatalf("Sync() unexpected error: %v", err)
	}

	if res.Synced != 0 || res.Failed != 3 {
		t.Errorf("Sync() = %+v, want {Synced:0 Failed:3}", res)
	}
	if store.Count() != 0 {
		t.Error("malformed operations must be dropped, not retried")
	}
	if len(server.Calls()) != 0 {
		t.Errorf("malformed operations made %d network calls, want 0", len(server.Calls()))
	}
}

func TestOverlappingSyncRejected(t *testing.T) {
	server := petsapi.NewMockServer()
	defer server.Close()
	server.SetDelay(150 * time.Millisecond)

	store := newTestStore(t)
	enqueueUpdates(t, store, 1)

	engine := NewEngine(store, petsapi.New(server.URL, ""), alwaysOnline)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := engine.Sync()
		done <- outcome{res, err}
	}()

	time.Sleep(50 * time.Millisecond)
	if _, err := engine.Sync(); !errors.Is(err, ErrSyncInFlight) {
		t.Errorf("overlapping Sync() error = %v, want ErrSyncInFlight", err)
	}

	first := <-done
	if first.err != nil {
		t.Fatalf("first Sync() unexpected error: %v", first.err)
	}
	if first.res.Synced != 1 {
		t.Errorf("first pass = %+v, want {Synced:1 Failed:0}", first.res)
	}

	// The guard releases once the pass completes.
	server.SetDelay(0)
	if _, err := engine.Sync(); err != nil {
		t.Errorf("Sync() after completed pass: %v", err)
	}
}
