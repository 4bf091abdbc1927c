package geneaflow

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/DavidMGG/geneaflow/pkg/audit"
	"github.com/DavidMGG/geneaflow/pkg/dates"
	"github.com/DavidMGG/geneaflow/pkg/storage"
	"github.com/DavidMGG/geneaflow/pkg/validate"
)

// PersonInput is the caller-supplied person payload for creates and
// updates. Parent and partner references are not settable here: structural
// edges only change through relationship operations, so the engine can
// guard them.
type PersonInput struct {
	GivenNames  []string          `json:"givenNames,omitempty"`
	FamilyNames []string          `json:"familyNames,omitempty"`
	DisplayName string            `json:"displayName,omitempty"`
	Prefixes    []string          `json:"prefixes,omitempty"`
	Suffixes    []string          `json:"suffixes,omitempty"`
	Sex         storage.Sex       `json:"sex,omitempty"`
	Birth       storage.LifeEvent `json:"birth,omitempty"`
	Death       storage.LifeEvent `json:"death,omitempty"`
	OtherEvents []storage.Event   `json:"otherEvents,omitempty"`
	Photos      []storage.Photo   `json:"photos,omitempty"`
	Sources     []storage.SourceRef `json:"sources,omitempty"`
	Notes       string            `json:"notes,omitempty"`
}

// PersonSummary is the compact read model returned by tree listings.
type PersonSummary struct {
	ID          storage.PersonID   `json:"id"`
	DisplayName string             `json:"displayName"`
	FatherID    storage.PersonID   `json:"fatherId,omitempty"`
	MotherID    storage.PersonID   `json:"motherId,omitempty"`
	Partners    []storage.PersonID `json:"partners,omitempty"`
	Sex         storage.Sex        `json:"sex,omitempty"`
	BirthYear   int                `json:"birthYear,omitempty"`
	DeathYear   int                `json:"deathYear,omitempty"`
	HasPhoto    bool               `json:"hasPhoto,omitempty"`
}

func summarize(p *storage.Person) PersonSummary {
	s := PersonSummary{
		ID:          p.ID,
		DisplayName: p.FullName(),
		FatherID:    p.FatherID,
		MotherID:    p.MotherID,
		Partners:    p.Partners,
		Sex:         p.Sex,
		HasPhoto:    len(p.Photos) > 0,
	}
	if y, ok := dates.ExtractYear(p.Birth.Date); ok {
		s.BirthYear = y
	}
	if y, ok := dates.ExtractYear(p.Death.Date); ok {
		s.DeathYear = y
	}
	return s
}

func (in PersonInput) validateData() validate.PersonData {
	return validate.PersonData{
		GivenNames:  in.GivenNames,
		FamilyNames: in.FamilyNames,
		DisplayName: in.DisplayName,
		Sex:         in.Sex,
		BirthDate:   in.Birth.Date,
		DeathDate:   in.Death.Date,
	}
}

// CreatePerson validates and stores a new person. Editor and above.
func (db *DB) CreatePerson(treeID storage.TreeID, actor storage.UserID, in PersonInput) (*storage.Person, error) {
	if _, err := db.requireRole(treeID, actor, storage.RoleEditor); err != nil {
		return nil, err
	}
	if err := db.engine.ValidatePersonData(treeID, "", in.validateData()); err != nil {
		return nil, err
	}

	now := time.Now()
	p := &storage.Person{
		ID:          storage.PersonID(newID()),
		TreeID:      treeID,
		GivenNames:  in.GivenNames,
		FamilyNames: in.FamilyNames,
		DisplayName: in.DisplayName,
		Prefixes:    in.Prefixes,
		Suffixes:    in.Suffixes,
		Sex:         in.Sex,
		Birth:       in.Birth,
		Death:       in.Death,
		OtherEvents: in.OtherEvents,
		Photos:      in.Photos,
		Sources:     in.Sources,
		Notes:       in.Notes,
		CreatedBy:   actor,
		UpdatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.RefreshSearchKeys()
	if err := db.store.CreatePerson(p); err != nil {
		return nil, err
	}
	db.record(audit.Entry{
		EntityType:  audit.EntityPerson,
		EntityID:    string(p.ID),
		Operation:   audit.OpCreate,
		PerformedBy: string(actor),
		TreeID:      string(treeID),
		Changes:     map[string]any{"displayName": p.FullName()},
	})
	return p, nil
}

// UpdatePerson validates and applies identity changes to an existing
// person. The write goes through the store's version check: a concurrent
// update surfaces as storage.ErrConflict rather than a silent overwrite.
func (db *DB) UpdatePerson(treeID storage.TreeID, actor storage.UserID, personID storage.PersonID, in PersonInput) (*storage.Person, error) {
	if _, err := db.requireRole(treeID, actor, storage.RoleEditor); err != nil {
		return nil, err
	}
	p, err := db.getTreePerson(treeID, personID)
	if err != nil {
		return nil, err
	}

	data := in.validateData()
	data.FatherID = p.FatherID
	data.MotherID = p.MotherID
	data.Partners = p.Partners
	if err := db.engine.ValidatePersonData(treeID, personID, data); err != nil {
		return nil, err
	}

	p.GivenNames = in.GivenNames
	p.FamilyNames = in.FamilyNames
	p.DisplayName = in.DisplayName
	p.Prefixes = in.Prefixes
	p.Suffixes = in.Suffixes
	p.Sex = in.Sex
	p.Birth = in.Birth
	p.Death = in.Death
	p.OtherEvents = in.OtherEvents
	p.Photos = in.Photos
	p.Sources = in.Sources
	p.Notes = in.Notes
	p.UpdatedBy = actor
	p.UpdatedAt = time.Now()
	p.RefreshSearchKeys()

	if err := db.store.UpdatePerson(p); err != nil {
		return nil, err
	}
	db.record(audit.Entry{
		EntityType:  audit.EntityPerson,
		EntityID:    string(personID),
		Operation:   audit.OpUpdate,
		PerformedBy: string(actor),
		TreeID:      string(treeID),
		Changes:     map[string]any{"displayName": p.FullName()},
	})
	return p, nil
}

// GetPerson returns one person. Viewer and above. Soft-deleted persons are
// still readable by id; listings exclude them.
func (db *DB) GetPerson(treeID storage.TreeID, actor storage.UserID, personID storage.PersonID) (*storage.Person, error) {
	if _, err := db.requireRole(treeID, actor, storage.RoleViewer); err != nil {
		return nil, err
	}
	return db.getTreePerson(treeID, personID)
}

// ListPersons returns compact summaries of every live person in the tree,
// ordered by display name. Viewer and above.
func (db *DB) ListPersons(treeID storage.TreeID, actor storage.UserID) ([]PersonSummary, error) {
	if _, err := db.requireRole(treeID, actor, storage.RoleViewer); err != nil {
		return nil, err
	}
	persons, err := db.store.PersonsInTree(treeID)
	if err != nil {
		return nil, err
	}
	out := make([]PersonSummary, 0, len(persons))
	for _, p := range persons {
		out = append(out, summarize(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// SoftDeletePerson marks a person deleted. Editor and above. The record
// stays readable by id; graph traversals and listings stop seeing it.
func (db *DB) SoftDeletePerson(treeID storage.TreeID, actor storage.UserID, personID storage.PersonID) error {
	if _, err := db.requireRole(treeID, actor, storage.RoleEditor); err != nil {
		return err
	}
	if err := db.coord.SoftDeletePerson(treeID, personID, actor); err != nil {
		return err
	}
	db.record(audit.Entry{
		EntityType:  audit.EntityPerson,
		EntityID:    string(personID),
		Operation:   audit.OpDelete,
		PerformedBy: string(actor),
		TreeID:      string(treeID),
	})
	return nil
}

// TreeExport is the JSON export shape: the tree record plus its live
// members in full.
type TreeExport struct {
	Tree       *storage.Tree     `json:"tree"`
	Persons    []*storage.Person `json:"persons"`
	ExportedAt time.Time         `json:"exportedAt"`
}

// ExportTree returns the full export of a tree. Viewer and above.
func (db *DB) ExportTree(treeID storage.TreeID, actor storage.UserID) (*TreeExport, error) {
	tree, err := db.requireRole(treeID, actor, storage.RoleViewer)
	if err != nil {
		return nil, err
	}
	persons, err := db.store.PersonsInTree(treeID)
	if err != nil {
		return nil, err
	}
	sort.Slice(persons, func(i, j int) bool { return persons[i].ID < persons[j].ID })
	return &TreeExport{Tree: tree, Persons: persons, ExportedAt: time.Now().UTC()}, nil
}

// getTreePerson loads a person and enforces the tree boundary.
func (db *DB) getTreePerson(treeID storage.TreeID, personID storage.PersonID) (*storage.Person, error) {
	p, err := db.store.GetPerson(personID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", personID, validate.ErrPersonNotFound)
		}
		return nil, err
	}
	if p.TreeID != treeID {
		return nil, fmt.Errorf("%s: %w", personID, validate.ErrPersonNotFound)
	}
	return p, nil
}
