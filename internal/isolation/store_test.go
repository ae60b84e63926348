package isolation

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSaveAndGet(t *testing.T) {
	store := newTestStore(t)

	ws := &Workspace{
		ItemID:     "ws-1",
		ExecutorID: "exec-1",
		Branch:     "workstream-ws-1-exec-1-abcd1234",
		Path:       "/tmp/workspaces/ws-1",
		CreatedAt:  time.Now(),
	}
	if err := store.SaveWorkspace(ws); err != nil {
		t.Fatalf("save workspace: %v", err)
	}

	got, err := store.GetWorkspace("ws-1")
	if err != nil {
		t.Fatalf("get workspace: %v", err)
	}
	if got == nil {
		t.Fatal("expected workspace, got nil")
	}
	if got.Branch != ws.Branch || got.Path != ws.Path || got.ExecutorID != "exec-1" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetWorkspace("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing workspace, got %+v", got)
	}
}

func TestStoreSaveReplaces(t *testing.T) {
	store := newTestStore(t)

	ws := &Workspace{ItemID: "ws-1", ExecutorID: "a", Branch: "b1", Path: "/p1", CreatedAt: time.Now()}
	if err := store.SaveWorkspace(ws); err != nil {
		t.Fatalf("save: %v", err)
	}
	ws.Branch = "b2"
	if err := store.SaveWorkspace(ws); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	got, err := store.GetWorkspace("ws-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Branch != "b2" {
		t.Errorf("expected replaced branch b2, got %s", got.Branch)
	}
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)

	ws := &Workspace{ItemID: "ws-1", ExecutorID: "a", Branch: "b", Path: "/p", CreatedAt: time.Now()}
	if err := store.SaveWorkspace(ws); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.DeleteWorkspace("ws-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := store.GetWorkspace("ws-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}

	// Deleting again is not an error.
	if err := store.DeleteWorkspace("ws-1"); err != nil {
		t.Errorf("second delete should succeed: %v", err)
	}
}

func TestStoreList(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"ws-1", "ws-2", "ws-3"} {
		ws := &Workspace{ItemID: id, ExecutorID: "a", Branch: "br-" + id, Path: "/p/" + id, CreatedAt: time.Now()}
		if err := store.SaveWorkspace(ws); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	workspaces, err := store.ListWorkspaces()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(workspaces) != 3 {
		t.Errorf("expected 3 workspaces, got %d", len(workspaces))
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ws := &Workspace{ItemID: "ws-1", ExecutorID: "a", Branch: "b", Path: "/p", CreatedAt: time.Now()}
	if err := store.SaveWorkspace(ws); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetWorkspace("ws-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Branch != "b" {
		t.Errorf("expected mapping to survive reopen, got %+v", got)
	}
}
