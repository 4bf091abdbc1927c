// Package mutate is the mutation coordinator: the single write path for
// relationship-bearing changes to persons.
//
// Every mutation follows the same shape: load the person, ask the
// consistency engine whether the change is admissible, apply it to a copy,
// and write back through the store's version check. A concurrent writer
// makes the version check fail with storage.ErrConflict; the coordinator
// then reloads and revalidates from scratch, up to a small retry limit,
// so a stale read can never smuggle an inadmissible edge past the engine.
package mutate

import (
	"errors"
	"fmt"
	"time"

	"github.com/DavidMGG/geneaflow/pkg/storage"
	"github.com/DavidMGG/geneaflow/pkg/validate"
)

// DefaultMaxRetries is how many times a mutation is retried after a
// version conflict before giving up with storage.ErrConflict.
const DefaultMaxRetries = 3

// Coordinator serializes structural writes through the consistency engine
// and the store's optimistic version check.
type Coordinator struct {
	store      storage.Store
	engine     *validate.Engine
	maxRetries int
}

// NewCoordinator builds a coordinator over the store and engine.
func NewCoordinator(store storage.Store, engine *validate.Engine) *Coordinator {
	return &Coordinator{store: store, engine: engine, maxRetries: DefaultMaxRetries}
}

// ParentResult reports what AssignParent did.
type ParentResult struct {
	Slot validate.ParentSlot

	// NoOp is true when the parent already occupied a slot on the child
	// and nothing was written.
	NoOp bool

	// OverrideUsed carries the age-plausibility override through to the
	// caller so it can be recorded in the change log.
	OverrideUsed   bool
	OverrideReason string
}

// AssignParent makes parentID a biological parent of childID, filling the
// first empty slot (father, then mother). The engine's full
// parent-assignment pipeline runs on every attempt; a repeat assignment is
// reported as a no-op rather than an error.
func (c *Coordinator) AssignParent(treeID storage.TreeID, parentID, childID storage.PersonID, overrideReason string, actor storage.UserID) (ParentResult, error) {
	var result ParentResult
	err := c.withRetry(func() error {
		check, err := c.engine.CheckBiologicalParent(treeID, parentID, childID, overrideReason)
		if err != nil {
			return err
		}
		result = ParentResult{
			Slot:           check.Slot,
			NoOp:           check.AlreadyAssigned,
			OverrideUsed:   check.OverrideUsed,
			OverrideReason: check.OverrideReason,
		}
		if check.AlreadyAssigned {
			return nil
		}

		child, err := c.store.GetPerson(childID)
		if err != nil {
			return err
		}
		switch check.Slot {
		case validate.SlotFather:
			child.FatherID = parentID
		case validate.SlotMother:
			child.MotherID = parentID
		}
		child.UpdatedBy = actor
		child.UpdatedAt = time.Now()
		return c.store.UpdatePerson(child)
	})
	return result, err
}

// AddPartnerEdge records a symmetric partner edge between a and b. The
// union is idempotent: an existing edge on either side is completed, never
// duplicated. When the reciprocal write fails after the first side landed,
// the first edge is removed again so a failed call never leaves a one-sided
// partner reference behind.
func (c *Coordinator) AddPartnerEdge(treeID storage.TreeID, aID, bID storage.PersonID, actor storage.UserID) error {
	if err := c.engine.CheckPartner(treeID, aID, bID); err != nil {
		return err
	}
	added, err := c.addPartner(aID, bID, actor)
	if err != nil {
		return err
	}
	if _, err := c.addPartner(bID, aID, actor); err != nil {
		if added {
			c.removePartner(aID, bID, actor)
		}
		return err
	}
	return nil
}

// addPartner appends partnerID to one person's partner set under the
// version check. Reports whether a write actually happened.
func (c *Coordinator) addPartner(id, partnerID storage.PersonID, actor storage.UserID) (bool, error) {
	added := false
	err := c.withRetry(func() error {
		added = false
		p, err := c.store.GetPerson(id)
		if err != nil {
			return err
		}
		if p.HasPartner(partnerID) {
			return nil
		}
		p.Partners = append(p.Partners, partnerID)
		p.UpdatedBy = actor
		p.UpdatedAt = time.Now()
		added = true
		return c.store.UpdatePerson(p)
	})
	return added && err == nil, err
}

// removePartner undoes one side of a partner edge. Best-effort: it backs
// out a half-applied AddPartnerEdge, and if the removal itself fails the
// next successful AddPartnerEdge call completes the pair anyway.
func (c *Coordinator) removePartner(id, partnerID storage.PersonID, actor storage.UserID) {
	_ = c.withRetry(func() error {
		p, err := c.store.GetPerson(id)
		if err != nil {
			return err
		}
		if !p.HasPartner(partnerID) {
			return nil
		}
		kept := p.Partners[:0]
		for _, existing := range p.Partners {
			if existing != partnerID {
				kept = append(kept, existing)
			}
		}
		p.Partners = kept
		p.UpdatedBy = actor
		p.UpdatedAt = time.Now()
		return c.store.UpdatePerson(p)
	})
}

// SoftDeletePerson marks a person deleted without removing the record.
// Parent slots on other persons keep pointing at the id; graph reads stop
// seeing it. Deleting an already-deleted person is a no-op.
func (c *Coordinator) SoftDeletePerson(treeID storage.TreeID, id storage.PersonID, actor storage.UserID) error {
	return c.withRetry(func() error {
		p, err := c.store.GetPerson(id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%s: %w", id, validate.ErrPersonNotFound)
			}
			return err
		}
		if treeID != "" && p.TreeID != treeID {
			return fmt.Errorf("%s: %w", id, validate.ErrPersonNotFound)
		}
		if p.SoftDeleted {
			return nil
		}
		p.SoftDeleted = true
		p.UpdatedBy = actor
		p.UpdatedAt = time.Now()
		return c.store.UpdatePerson(p)
	})
}

// withRetry runs fn, retrying on version conflicts. Each attempt starts
// from a fresh read, so fn must contain its own load and validation.
func (c *Coordinator) withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err = fn()
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("retries exhausted: %w", err)
}
