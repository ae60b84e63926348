package isolation

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/weftworks/weft/internal/git"
)

// Workspace represents an isolated working directory bound to a branch.
type Workspace struct {
	ItemID     string    // Work item that owns this workspace
	ExecutorID string    // Executor the workspace was created for
	Branch     string    // Branch backing the workspace
	Path       string    // Absolute path to the worktree directory
	CreatedAt  time.Time // When the workspace was created
}

// WorkspaceStatus reports the health of a workspace.
type WorkspaceStatus struct {
	// Exists indicates the worktree directory is present on disk.
	Exists bool
	// HasChanges indicates uncommitted changes in the worktree.
	HasChanges bool
	// Orphaned indicates a mapping exists but the directory does not.
	Orphaned bool
	// LastChecked is when this status was computed.
	LastChecked time.Time
}

// Provider defines the interface for workspace management.
// This abstraction allows mocking workspace operations in tests.
type Provider interface {
	// CreateWorkspace creates an isolated workspace for the item, or
	// returns nil if isolation is unavailable.
	CreateWorkspace(itemID, executorID string) *Workspace
	// CommitChanges commits all pending changes in the item's workspace.
	CommitChanges(itemID, message string) error
	// Integrate merges the item's branch back into the trunk.
	Integrate(itemID string) error
	// Cleanup removes the item's workspace. Idempotent.
	Cleanup(itemID string) error
	// Status reports the health of the item's workspace.
	Status(itemID string) (*WorkspaceStatus, error)
	// ListWorkspaces returns all recorded workspaces.
	ListWorkspaces() ([]*Workspace, error)
	// CleanupAll removes every recorded workspace.
	CleanupAll(ctx context.Context) error
}

// Verify Manager implements Provider at compile time.
var _ Provider = (*Manager)(nil)

// Manager handles git worktree operations for work item isolation.
type Manager struct {
	repoPath string
	trunk    string
	baseDir  string // Where worktrees are materialized
	store    *Store
	repo     git.Runner
	// gitFor builds a runner bound to a worktree path. Overridable in tests.
	gitFor func(path string) git.Runner
	mu     sync.Mutex
}

// NewManager creates a workspace manager for the repository at repoPath.
// Workspaces branch off trunk and live under baseDir.
func NewManager(repoPath, trunk, baseDir string, store *Store) (*Manager, error) {
	return newManager(repoPath, trunk, baseDir, store, git.NewRunner(repoPath), func(path string) git.Runner {
		return git.NewRunner(path)
	})
}

// NewManagerWithRunner creates a Manager with custom git runners (for testing).
func NewManagerWithRunner(repoPath, trunk, baseDir string, store *Store, repo git.Runner, gitFor func(path string) git.Runner) (*Manager, error) {
	return newManager(repoPath, trunk, baseDir, store, repo, gitFor)
}

func newManager(repoPath, trunk, baseDir string, store *Store, repo git.Runner, gitFor func(path string) git.Runner) (*Manager, error) {
	if baseDir == "" {
		baseDir = filepath.Join(repoPath, ".weft", "workspaces")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create workspace base directory: %w", err)
	}

	return &Manager{
		repoPath: repoPath,
		trunk:    trunk,
		baseDir:  baseDir,
		store:    store,
		repo:     repo,
		gitFor:   gitFor,
	}, nil
}

// BaseDir returns the base directory where workspaces are created.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// RepoPath returns the path to the main git repository.
func (m *Manager) RepoPath() string {
	return m.repoPath
}

// CreateWorkspace creates an isolated workspace for the given item.
// Returns nil on any failure; work then proceeds without isolation, so
// this must never panic or abort the caller.
func (m *Manager) CreateWorkspace(itemID, executorID string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.repo.IsRepository() {
		log.Printf("isolation: %s is not a git repository, skipping workspace for %s", m.repoPath, itemID)
		return nil
	}

	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	branch := fmt.Sprintf("workstream-%s-%s-%s", itemID, executorID, suffix)
	path := filepath.Join(m.baseDir, branch)

	if err := m.repo.CreateBranchFrom(branch, m.trunk); err != nil {
		log.Printf("isolation: create branch %s: %v", branch, err)
		return nil
	}

	if err := m.repo.WorktreeAdd(path, branch); err != nil {
		log.Printf("isolation: add worktree %s: %v", path, err)
		_ = m.repo.DeleteBranch(branch)
		return nil
	}

	ws := &Workspace{
		ItemID:     itemID,
		ExecutorID: executorID,
		Branch:     branch,
		Path:       path,
		CreatedAt:  time.Now(),
	}

	if err := m.store.SaveWorkspace(ws); err != nil {
		log.Printf("isolation: persist workspace %s: %v", itemID, err)
		// The worktree exists and is usable; the mapping is best-effort.
	}

	return ws
}

// CommitChanges commits all pending changes in the item's workspace.
// A clean workspace is a successful no-op.
func (m *Manager) CommitChanges(itemID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, err := m.store.GetWorkspace(itemID)
	if err != nil {
		return err
	}
	if ws == nil {
		return fmt.Errorf("no workspace for item %s", itemID)
	}

	wt := m.gitFor(ws.Path)
	hasChanges, err := wt.HasChanges()
	if err != nil {
		return fmt.Errorf("check workspace changes: %w", err)
	}
	if !hasChanges {
		return nil
	}

	if err := wt.AddAll(); err != nil {
		return fmt.Errorf("stage workspace changes: %w", err)
	}
	if err := wt.Commit(message); err != nil {
		return fmt.Errorf("commit workspace changes: %w", err)
	}
	return nil
}

// Integrate merges the item's branch back into the trunk with a merge
// commit. A merge conflict aborts the merge and returns an error; the
// branch is left intact for manual resolution.
func (m *Manager) Integrate(itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, err := m.store.GetWorkspace(itemID)
	if err != nil {
		return err
	}
	if ws == nil {
		return fmt.Errorf("no workspace for item %s", itemID)
	}

	if err := m.repo.CheckoutBranch(m.trunk); err != nil {
		return fmt.Errorf("checkout %s: %w", m.trunk, err)
	}

	message := fmt.Sprintf("Merge workstream %s", itemID)
	if err := m.repo.MergeNoFFMessage(ws.Branch, message); err != nil {
		// Leave the repository clean for the next integration.
		_ = m.repo.MergeAbort()
		return fmt.Errorf("merge %s into %s: %w", ws.Branch, m.trunk, err)
	}
	return nil
}

// Cleanup removes the item's workspace and branch, and deletes the
// mapping. Idempotent: cleaning up an unknown item is a success.
func (m *Manager) Cleanup(itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanupLocked(itemID)
}

func (m *Manager) cleanupLocked(itemID string) error {
	ws, err := m.store.GetWorkspace(itemID)
	if err != nil {
		return err
	}
	if ws == nil {
		return nil
	}

	if err := m.repo.WorktreeRemove(ws.Path, false); err != nil {
		// Retry with force for worktrees holding uncommitted changes.
		if err := m.repo.WorktreeRemove(ws.Path, true); err != nil {
			// Last resort: remove the directory directly and prune.
			if rmErr := os.RemoveAll(ws.Path); rmErr != nil {
				return fmt.Errorf("remove worktree %s: %w", ws.Path, err)
			}
			_ = m.repo.WorktreePrune()
		}
	}

	if err := m.repo.DeleteBranch(ws.Branch); err != nil {
		log.Printf("isolation: delete branch %s: %v", ws.Branch, err)
	}

	return m.store.DeleteWorkspace(itemID)
}

// Status reports the health of the item's workspace.
func (m *Manager) Status(itemID string) (*WorkspaceStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, err := m.store.GetWorkspace(itemID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, fmt.Errorf("no workspace for item %s", itemID)
	}

	status := &WorkspaceStatus{LastChecked: time.Now()}
	if _, err := os.Stat(ws.Path); err != nil {
		status.Orphaned = true
		return status, nil
	}
	status.Exists = true

	hasChanges, err := m.gitFor(ws.Path).HasChanges()
	if err != nil {
		return nil, fmt.Errorf("check workspace changes: %w", err)
	}
	status.HasChanges = hasChanges
	return status, nil
}

// ListWorkspaces returns all recorded workspaces.
func (m *Manager) ListWorkspaces() ([]*Workspace, error) {
	return m.store.ListWorkspaces()
}

// ListOrphans returns recorded workspaces whose directories no longer exist.
// Useful at startup to surface leftovers from a crashed run.
func (m *Manager) ListOrphans() ([]*Workspace, error) {
	workspaces, err := m.store.ListWorkspaces()
	if err != nil {
		return nil, err
	}

	var orphans []*Workspace
	for _, ws := range workspaces {
		if _, err := os.Stat(ws.Path); err != nil {
			orphans = append(orphans, ws)
		}
	}
	return orphans, nil
}

// CleanupAll removes every recorded workspace in parallel. Individual
// failures are collected; the first error is returned after all cleanups
// have been attempted.
func (m *Manager) CleanupAll(ctx context.Context) error {
	workspaces, err := m.store.ListWorkspaces()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, ws := range workspaces {
		ws := ws
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return m.Cleanup(ws.ItemID)
		})
	}
	return g.Wait()
}
