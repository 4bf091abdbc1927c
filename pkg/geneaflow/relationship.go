package geneaflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/DavidMGG/geneaflow/pkg/audit"
	"github.com/DavidMGG/geneaflow/pkg/storage"
	"github.com/DavidMGG/geneaflow/pkg/validate"
)

// RelationshipInput is the payload for creating a relationship.
//
// For biological_parent, FromID is the parent and ToID the child. For
// partner, the edge is symmetric and the order of FromID/ToID is
// irrelevant. OverrideReason justifies a soft plausibility failure; it is
// ignored when every check passes.
type RelationshipInput struct {
	Type           storage.RelationshipType `json:"type"`
	FromID         storage.PersonID         `json:"fromId"`
	ToID           storage.PersonID         `json:"toId"`
	StartDate      string                   `json:"startDate,omitempty"`
	EndDate        string                   `json:"endDate,omitempty"`
	Note           string                   `json:"note,omitempty"`
	OverrideReason string                   `json:"overrideReason,omitempty"`
}

// CreateRelationship validates and applies a relationship. Editor and
// above.
//
// The authoritative structural state lives on the Person records (parent
// slots, partner sets); the Relationship row is an additional immutable
// record of the operation, so deleting a row later never unwinds the
// structure.
func (db *DB) CreateRelationship(treeID storage.TreeID, actor storage.UserID, in RelationshipInput) (*storage.Relationship, error) {
	if _, err := db.requireRole(treeID, actor, storage.RoleEditor); err != nil {
		return nil, err
	}
	if !storage.ValidRelationshipType(in.Type) {
		return nil, fmt.Errorf("relationship type %q: %w", in.Type, ErrInvalidInput)
	}
	if in.FromID == "" || in.ToID == "" {
		return nil, fmt.Errorf("both persons required: %w", ErrInvalidInput)
	}

	overrideReason := ""
	switch in.Type {
	case storage.RelBiologicalParent:
		result, err := db.coord.AssignParent(treeID, in.FromID, in.ToID, in.OverrideReason, actor)
		if err != nil {
			return nil, err
		}
		if result.OverrideUsed {
			overrideReason = result.OverrideReason
		}
	case storage.RelPartner:
		if err := db.coord.AddPartnerEdge(treeID, in.FromID, in.ToID, actor); err != nil {
			return nil, err
		}
	case storage.RelGuardian:
		if err := db.assignGuardian(treeID, in.FromID, in.ToID, actor); err != nil {
			return nil, err
		}
	default:
		// adoptive_parent and other are record-only: both persons must
		// exist, nothing structural changes.
		if _, err := db.getTreePerson(treeID, in.FromID); err != nil {
			return nil, err
		}
		if _, err := db.getTreePerson(treeID, in.ToID); err != nil {
			return nil, err
		}
	}

	rel := &storage.Relationship{
		ID:             storage.RelationshipID(newID()),
		TreeID:         treeID,
		Type:           in.Type,
		FromID:         in.FromID,
		ToID:           in.ToID,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Note:           in.Note,
		OverrideReason: overrideReason,
		CreatedBy:      actor,
		CreatedAt:      time.Now(),
	}
	if err := db.store.CreateRelationship(rel); err != nil {
		return nil, err
	}

	db.record(audit.Entry{
		EntityType:  audit.EntityRelationship,
		EntityID:    string(rel.ID),
		Operation:   audit.OpCreate,
		PerformedBy: string(actor),
		TreeID:      string(treeID),
		Changes: map[string]any{
			"type": string(in.Type),
			"from": string(in.FromID),
			"to":   string(in.ToID),
		},
	})
	if overrideReason != "" {
		db.record(audit.Entry{
			EntityType:  audit.EntityRelationship,
			EntityID:    string(rel.ID),
			Operation:   audit.OpOverride,
			PerformedBy: string(actor),
			TreeID:      string(treeID),
			Reason:      overrideReason,
		})
	}
	return rel, nil
}

// assignGuardian appends a guardian reference on the ward. Idempotent.
func (db *DB) assignGuardian(treeID storage.TreeID, guardianID, wardID storage.PersonID, actor storage.UserID) error {
	if guardianID == wardID {
		return fmt.Errorf("person %s: %w", wardID, validate.ErrSelfParent)
	}
	if _, err := db.getTreePerson(treeID, guardianID); err != nil {
		return err
	}
	ward, err := db.getTreePerson(treeID, wardID)
	if err != nil {
		return err
	}
	for _, g := range ward.Guardians {
		if g == guardianID {
			return nil
		}
	}
	ward.Guardians = append(ward.Guardians, guardianID)
	ward.UpdatedBy = actor
	ward.UpdatedAt = time.Now()
	return db.store.UpdatePerson(ward)
}

// GetRelationship returns one relationship row. Viewer and above.
func (db *DB) GetRelationship(treeID storage.TreeID, actor storage.UserID, relID storage.RelationshipID) (*storage.Relationship, error) {
	if _, err := db.requireRole(treeID, actor, storage.RoleViewer); err != nil {
		return nil, err
	}
	rel, err := db.store.GetRelationship(relID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", relID, validate.ErrRelationNotFound)
		}
		return nil, err
	}
	if rel.TreeID != treeID {
		return nil, fmt.Errorf("%s: %w", relID, validate.ErrRelationNotFound)
	}
	return rel, nil
}

// ListRelationships returns every relationship row in the tree. Viewer and
// above.
func (db *DB) ListRelationships(treeID storage.TreeID, actor storage.UserID) ([]*storage.Relationship, error) {
	if _, err := db.requireRole(treeID, actor, storage.RoleViewer); err != nil {
		return nil, err
	}
	return db.store.RelationshipsInTree(treeID)
}

// DeleteRelationship removes a relationship row. Editor and above. Only
// the row disappears: parent slots and partner sets on the persons are
// left exactly as they are.
func (db *DB) DeleteRelationship(treeID storage.TreeID, actor storage.UserID, relID storage.RelationshipID) error {
	if _, err := db.requireRole(treeID, actor, storage.RoleEditor); err != nil {
		return err
	}
	if _, err := db.GetRelationship(treeID, actor, relID); err != nil {
		return err
	}
	if err := db.store.DeleteRelationship(relID); err != nil {
		return err
	}
	db.record(audit.Entry{
		EntityType:  audit.EntityRelationship,
		EntityID:    string(relID),
		Operation:   audit.OpDelete,
		PerformedBy: string(actor),
		TreeID:      string(treeID),
	})
	return nil
}
