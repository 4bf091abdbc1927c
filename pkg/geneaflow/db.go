// Package geneaflow is the embeddable database facade: one handle that
// owns the store, the consistency engine, the mutation coordinator, and
// the change log, and exposes every tree operation the HTTP layer (or an
// embedding program) needs.
//
// Authorization happens here, not in the transport: every operation takes
// the acting user and resolves their role on the target tree (viewer can
// read, editor can mutate persons and relationships, admin can manage the
// tree itself). The tree owner is implicitly admin.
//
// Example:
//
//	db, err := geneaflow.Open("./data", geneaflow.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	tree, _ := db.CreateTree("u-1", "Familia García", "")
//	person, err := db.CreatePerson(tree.ID, "u-1", geneaflow.PersonInput{
//		GivenNames: []string{"Juan"},
//		Birth:      storage.LifeEvent{Date: "1965-03-11"},
//	})
package geneaflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DavidMGG/geneaflow/pkg/audit"
	"github.com/DavidMGG/geneaflow/pkg/graph"
	"github.com/DavidMGG/geneaflow/pkg/mutate"
	"github.com/DavidMGG/geneaflow/pkg/storage"
	"github.com/DavidMGG/geneaflow/pkg/validate"
)

// Facade-level errors.
var (
	ErrForbidden      = errors.New("insufficient role for this operation")
	ErrTreeNotFound   = errors.New("tree not found")
	ErrAlreadyInvited = errors.New("user is already a collaborator on this tree")
	ErrInvalidInput   = errors.New("invalid input")
)

// Config selects the storage engine and tunes the embedded components.
type Config struct {
	// InMemory selects the memory store instead of Badger on disk.
	InMemory bool

	// BadgerSyncWrites forces fsync on every Badger write.
	BadgerSyncWrites bool

	Engine validate.Config
	Audit  audit.Config
}

// DefaultConfig returns a config with Badger persistence, the default
// engine thresholds, and change-logging enabled.
func DefaultConfig() *Config {
	return &Config{
		Engine: validate.DefaultConfig(),
		Audit:  audit.DefaultConfig(),
	}
}

// DB is the facade handle. Safe for concurrent use.
type DB struct {
	store     storage.Store
	engine    *validate.Engine
	coord     *mutate.Coordinator
	changelog *audit.Logger
}

// Open creates or opens a GeneaFlow database under dataDir. With
// Config.InMemory set, dataDir is ignored and nothing touches disk.
func Open(dataDir string, cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var store storage.Store
	if cfg.InMemory {
		store = storage.NewMemoryStore()
	} else {
		s, err := storage.NewBadgerStoreWithOptions(storage.BadgerOptions{
			DataDir:    dataDir,
			SyncWrites: cfg.BadgerSyncWrites,
		})
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		store = s
	}

	db, err := OpenWithStore(store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return db, nil
}

// OpenWithStore builds the facade over an already-open store. The store is
// closed by DB.Close.
func OpenWithStore(store storage.Store, cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	changelog, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("opening change log: %w", err)
	}

	engine := validate.NewEngine(store, graph.NewStoreAccessor(store), cfg.Engine)
	return &DB{
		store:     store,
		engine:    engine,
		coord:     mutate.NewCoordinator(store, engine),
		changelog: changelog,
	}, nil
}

// Close releases the store and the change log.
func (db *DB) Close() error {
	logErr := db.changelog.Close()
	storeErr := db.store.Close()
	if storeErr != nil {
		return storeErr
	}
	return logErr
}

// Store exposes the underlying store for read-side integrations.
func (db *DB) Store() storage.Store { return db.store }

// Changelog exposes the change-log logger.
func (db *DB) Changelog() *audit.Logger { return db.changelog }

// requireRole loads the tree and checks the actor's role against the
// minimum. Missing tree maps to ErrTreeNotFound; insufficient role to
// ErrForbidden.
func (db *DB) requireRole(treeID storage.TreeID, actor storage.UserID, min storage.Role) (*storage.Tree, error) {
	tree, err := db.store.GetTree(treeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", treeID, ErrTreeNotFound)
		}
		return nil, err
	}
	if !tree.RoleFor(actor).AtLeast(min) {
		return nil, fmt.Errorf("user %s on tree %s: %w", actor, treeID, ErrForbidden)
	}
	return tree, nil
}

// record appends a change-log entry, best-effort: a failed audit write
// never fails the primary mutation.
func (db *DB) record(entry audit.Entry) {
	_ = db.changelog.Log(entry)
}

func newID() string {
	return uuid.NewString()
}

// CreateTree creates a tree owned by the actor. The owner needs no
// collaborator row; ownership implies admin.
func (db *DB) CreateTree(actor storage.UserID, name, description string) (*storage.Tree, error) {
	if name == "" {
		return nil, fmt.Errorf("tree name required: %w", ErrInvalidInput)
	}
	now := time.Now()
	tree := &storage.Tree{
		ID:          storage.TreeID(newID()),
		OwnerID:     actor,
		Name:        name,
		Description: description,
		Visibility:  "private",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.store.CreateTree(tree); err != nil {
		return nil, err
	}
	db.record(audit.Entry{
		EntityType:  audit.EntityTree,
		EntityID:    string(tree.ID),
		Operation:   audit.OpCreate,
		PerformedBy: string(actor),
		TreeID:      string(tree.ID),
		Changes:     map[string]any{"name": name},
	})
	return tree, nil
}

// GetTree returns a tree the actor can at least view.
func (db *DB) GetTree(treeID storage.TreeID, actor storage.UserID) (*storage.Tree, error) {
	return db.requireRole(treeID, actor, storage.RoleViewer)
}

// ListTrees returns every tree the actor owns or collaborates on.
func (db *DB) ListTrees(actor storage.UserID) ([]*storage.Tree, error) {
	return db.store.TreesForUser(actor)
}

// RenameTree updates a tree's name and description. Admin only.
func (db *DB) RenameTree(treeID storage.TreeID, actor storage.UserID, name, description string) (*storage.Tree, error) {
	tree, err := db.requireRole(treeID, actor, storage.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("tree name required: %w", ErrInvalidInput)
	}
	tree.Name = name
	tree.Description = description
	tree.UpdatedAt = time.Now()
	if err := db.store.UpdateTree(tree); err != nil {
		return nil, err
	}
	db.record(audit.Entry{
		EntityType:  audit.EntityTree,
		EntityID:    string(treeID),
		Operation:   audit.OpUpdate,
		PerformedBy: string(actor),
		TreeID:      string(treeID),
		Changes:     map[string]any{"name": name, "description": description},
	})
	return tree, nil
}

// DeleteTree soft-deletes every member of the tree, then removes the tree
// record itself. Admin only.
func (db *DB) DeleteTree(treeID storage.TreeID, actor storage.UserID) error {
	if _, err := db.requireRole(treeID, actor, storage.RoleAdmin); err != nil {
		return err
	}
	persons, err := db.store.PersonsInTree(treeID)
	if err != nil {
		return err
	}
	for _, p := range persons {
		if err := db.coord.SoftDeletePerson(treeID, p.ID, actor); err != nil {
			return fmt.Errorf("deleting member %s: %w", p.ID, err)
		}
	}
	if err := db.store.DeleteTree(treeID); err != nil {
		return err
	}
	db.record(audit.Entry{
		EntityType:  audit.EntityTree,
		EntityID:    string(treeID),
		Operation:   audit.OpDelete,
		PerformedBy: string(actor),
		TreeID:      string(treeID),
	})
	return nil
}

// InviteCollaborator adds a user with the given role. Admin only; inviting
// an existing collaborator (or the owner) is a conflict.
func (db *DB) InviteCollaborator(treeID storage.TreeID, actor, userID storage.UserID, role storage.Role) (*storage.Tree, error) {
	tree, err := db.requireRole(treeID, actor, storage.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !storage.ValidRole(role) {
		return nil, fmt.Errorf("role %q: %w", role, ErrInvalidInput)
	}
	if tree.OwnerID == userID {
		return nil, fmt.Errorf("user %s owns the tree: %w", userID, ErrAlreadyInvited)
	}
	for _, c := range tree.Collaborators {
		if c.UserID == userID {
			return nil, fmt.Errorf("user %s: %w", userID, ErrAlreadyInvited)
		}
	}
	tree.Collaborators = append(tree.Collaborators, storage.Collaborator{
		UserID:    userID,
		Role:      role,
		InvitedBy: actor,
		InvitedAt: time.Now(),
	})
	tree.UpdatedAt = time.Now()
	if err := db.store.UpdateTree(tree); err != nil {
		return nil, err
	}
	db.record(audit.Entry{
		EntityType:  audit.EntityTree,
		EntityID:    string(treeID),
		Operation:   audit.OpUpdate,
		PerformedBy: string(actor),
		TreeID:      string(treeID),
		Changes:     map[string]any{"invited": string(userID), "role": string(role)},
	})
	return tree, nil
}

// RemoveCollaborator drops a user's access. Admin only; removing the owner
// is invalid.
func (db *DB) RemoveCollaborator(treeID storage.TreeID, actor, userID storage.UserID) (*storage.Tree, error) {
	tree, err := db.requireRole(treeID, actor, storage.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if tree.OwnerID == userID {
		return nil, fmt.Errorf("cannot remove the owner: %w", ErrInvalidInput)
	}
	kept := tree.Collaborators[:0]
	found := false
	for _, c := range tree.Collaborators {
		if c.UserID == userID {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return nil, fmt.Errorf("user %s is not a collaborator: %w", userID, ErrInvalidInput)
	}
	tree.Collaborators = kept
	tree.UpdatedAt = time.Now()
	if err := db.store.UpdateTree(tree); err != nil {
		return nil, err
	}
	db.record(audit.Entry{
		EntityType:  audit.EntityTree,
		EntityID:    string(treeID),
		Operation:   audit.OpUpdate,
		PerformedBy: string(actor),
		TreeID:      string(treeID),
		Changes:     map[string]any{"removed": string(userID)},
	})
	return tree, nil
}

// ListCollaborators returns the collaborator rows. Viewer and above.
func (db *DB) ListCollaborators(treeID storage.TreeID, actor storage.UserID) ([]storage.Collaborator, error) {
	tree, err := db.requireRole(treeID, actor, storage.RoleViewer)
	if err != nil {
		return nil, err
	}
	return tree.Collaborators, nil
}
