package validate

import (
	"fmt"

	"github.com/DavidMGG/geneaflow/pkg/dates"
	"github.com/DavidMGG/geneaflow/pkg/graph"
	"github.com/DavidMGG/geneaflow/pkg/storage"
)

// ParentSlot names which of the two biological-parent slots an assignment
// will occupy.
type ParentSlot string

const (
	SlotFather ParentSlot = "father"
	SlotMother ParentSlot = "mother"
)

// ParentCheck is the admissibility verdict for a biological-parent
// assignment. The slot is chosen deterministically: father first, then
// mother, never overwriting an occupied slot.
type ParentCheck struct {
	Slot ParentSlot

	// AlreadyAssigned is true when parentID already occupies a slot on the
	// child; the coordinator treats the assignment as a no-op.
	AlreadyAssigned bool

	// OverrideUsed is true when the age gap was implausible and the caller
	// supplied a justification; the coordinator records it to the audit
	// sink after the write succeeds.
	OverrideUsed   bool
	OverrideReason string
}

// CheckBiologicalParent runs the full parent-assignment pipeline for
// "parentID becomes a biological parent of childID" and returns the slot
// the assignment should occupy. Nothing is written; the mutation
// coordinator applies the verdict.
//
// Checks run in order: self-assignment, existence of both persons, free
// slot available, ancestor-cycle detection, age plausibility (soft,
// overridable with a reason), and parent-born-before-child. The resulting
// father/mother pair is finally checked for gender distinctness so a
// violating pair is rejected before any write happens.
func (e *Engine) CheckBiologicalParent(treeID storage.TreeID, parentID, childID storage.PersonID, overrideReason string) (ParentCheck, error) {
	var check ParentCheck
	if parentID == childID {
		return check, ErrSelfParent
	}
	parent, err := e.relations(treeID, parentID)
	if err != nil {
		return check, err
	}
	child, err := e.relations(treeID, childID)
	if err != nil {
		return check, err
	}

	switch {
	case child.FatherID == parentID:
		check.Slot, check.AlreadyAssigned = SlotFather, true
		return check, nil
	case child.MotherID == parentID:
		check.Slot, check.AlreadyAssigned = SlotMother, true
		return check, nil
	case child.FatherID == "":
		check.Slot = SlotFather
	case child.MotherID == "":
		check.Slot = SlotMother
	default:
		return check, fmt.Errorf("child %s: %w", childID, ErrMaxParents)
	}

	if err := e.AssertNoCycleOnAssignParent(treeID, childID, parentID); err != nil {
		return check, err
	}

	parentYear, parentOK := dates.ExtractYear(parent.BirthDate)
	childYear, childOK := dates.ExtractYear(child.BirthDate)
	if parentOK && childOK {
		if !dates.IsParentAgePlausible(parent.BirthDate, child.BirthDate, e.cfg.MinParentAge) {
			if overrideReason == "" {
				return check, fmt.Errorf("gap between %d and %d under %d years: %w", parentYear, childYear, e.cfg.MinParentAge, ErrAgeImplausible)
			}
			check.OverrideUsed = true
			check.OverrideReason = overrideReason
		}
		if childYear <= parentYear {
			return check, fmt.Errorf("parent born %d, child born %d: %w", parentYear, childYear, ErrParentYoungerThanChild)
		}
	}

	if err := e.checkResultingParentPair(treeID, child, parent, check.Slot); err != nil {
		return check, err
	}
	return check, nil
}

// checkResultingParentPair validates the father/mother pair the assignment
// would produce: distinct genders when both are known.
func (e *Engine) checkResultingParentPair(treeID storage.TreeID, child, newParent *graph.Relations, slot ParentSlot) error {
	otherID := child.MotherID
	if slot == SlotMother {
		otherID = child.FatherID
	}
	if otherID == "" {
		return nil
	}
	if newParent.Sex == storage.SexUnknown || newParent.Sex == "" {
		return nil
	}
	other, err := e.relations(treeID, otherID)
	if err != nil {
		return err
	}
	if other.Sex == newParent.Sex {
		return fmt.Errorf("%s and %s: %w", newParent.ID, other.ID, ErrSameGenderParents)
	}
	return nil
}

// CheckPartner validates "a and b become partners": both must exist in the
// tree, be distinct, not be recorded as parent and child of each other, and
// not share a known gender. The partner edge itself is symmetric and
// idempotent; the coordinator handles the set union.
func (e *Engine) CheckPartner(treeID storage.TreeID, aID, bID storage.PersonID) error {
	if aID == bID {
		return fmt.Errorf("person %s: %w", aID, ErrSelfParent)
	}
	a, err := e.relations(treeID, aID)
	if err != nil {
		return err
	}
	b, err := e.relations(treeID, bID)
	if err != nil {
		return err
	}
	if a.FatherID == bID || a.MotherID == bID || b.FatherID == aID || b.MotherID == aID {
		return fmt.Errorf("%s and %s are parent and child: %w", aID, bID, ErrNonReciprocal)
	}
	if a.Sex != storage.SexUnknown && a.Sex != "" && a.Sex == b.Sex {
		return fmt.Errorf("%s and %s: %w", aID, bID, ErrSameGenderPartners)
	}
	return nil
}
