// Package graph provides the read-only graph accessor used by the
// consistency engine.
//
// Every structural check in the engine (cycle detection, parent slots,
// gender distinctness) reads through the narrow Relations projection
// instead of the full person document. The small, stable contract keeps
// the engine independent of storage-layer details and makes the
// projection cheap to cache.
//
// Soft-deleted persons are invisible here: an accessor lookup of a
// soft-deleted person returns ErrNotFound, which is exactly how the rest
// of the engine must perceive them.
package graph

import (
	"errors"
	"fmt"

	"github.com/DavidMGG/geneaflow/pkg/storage"
)

// ErrNotFound is returned when a person does not exist, is soft-deleted,
// or belongs to a different tree.
var ErrNotFound = errors.New("person not found")

// Relations is the projection of a person the engine traverses on:
// parent slots, partner set, sex, and birth date. Nothing else.
type Relations struct {
	ID       storage.PersonID
	FatherID storage.PersonID
	MotherID storage.PersonID
	Partners []storage.PersonID
	Sex      storage.Sex
	BirthDate string
}

// Accessor resolves Relations projections by person id within a tree.
// Implementations must be safe for concurrent use.
type Accessor interface {
	// Relations returns the projection for a live person in the given
	// tree, or ErrNotFound.
	Relations(treeID storage.TreeID, personID storage.PersonID) (*Relations, error)
}

// StoreAccessor is the Accessor backed by a storage.Store.
type StoreAccessor struct {
	store storage.Store
}

// NewStoreAccessor wraps a store in the accessor contract.
func NewStoreAccessor(store storage.Store) *StoreAccessor {
	return &StoreAccessor{store: store}
}

// Relations fetches the projection of one person. Soft-deleted persons and
// persons outside treeID report ErrNotFound, keeping the tree boundary and
// the soft-delete rule enforced on every graph read.
func (a *StoreAccessor) Relations(treeID storage.TreeID, personID storage.PersonID) (*Relations, error) {
	p, err := a.store.GetPerson(personID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading person %s: %w", personID, err)
	}
	if p.SoftDeleted || (treeID != "" && p.TreeID != treeID) {
		return nil, ErrNotFound
	}

	return &Relations{
		ID:        p.ID,
		FatherID:  p.FatherID,
		MotherID:  p.MotherID,
		Partners:  append([]storage.PersonID(nil), p.Partners...),
		Sex:       p.Sex,
		BirthDate: p.Birth.Date,
	}, nil
}
