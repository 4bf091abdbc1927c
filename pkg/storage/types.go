// Package storage provides the document store interface and implementations
// for GeneaFlow.
//
// The store holds three record kinds: Person, Relationship, and Tree. A
// Person carries the authoritative graph state (father/mother slots and the
// partner set); Relationship rows are audit-style records created alongside
// graph mutations and never consulted for parent/partner status. Trees own
// persons and hold collaborator role assignments.
//
// Design principles:
//   - Testability through dependency injection (Store interface)
//   - Thread-safe implementations
//   - Deep copies on read and write to prevent external mutation
//   - Optimistic concurrency on Person records via a version counter
//
// Example:
//
//	store := storage.NewMemoryStore()
//	defer store.Close()
//
//	tree := &storage.Tree{ID: "tree-1", Name: "García family"}
//	store.CreateTree(tree)
//
//	person := &storage.Person{
//		ID:          "p-1",
//		TreeID:      "tree-1",
//		GivenNames:  []string{"Juan"},
//		FamilyNames: []string{"García"},
//		Sex:         storage.SexMale,
//		Birth:       storage.LifeEvent{Date: "1965"},
//	}
//	person.RefreshSearchKeys()
//	store.CreatePerson(person)
package storage

import (
	"errors"
	"time"

	"github.com/DavidMGG/geneaflow/pkg/text"
)

// Common errors returned by Store implementations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrConflict      = errors.New("version conflict")
	ErrStoreClosed   = errors.New("store closed")
)

// PersonID is a strongly-typed unique identifier for person records.
// Using distinct ID types keeps tree, person, and relationship identifiers
// from being swapped at call sites.
type PersonID string

// TreeID identifies an owning tree scope.
type TreeID string

// RelationshipID identifies a relationship record.
type RelationshipID string

// UserID identifies a collaborator account.
type UserID string

// Sex is an unordered categorical: male, female, or unspecified.
// SexUnknown is exempt from gender-distinctness checks.
type Sex string

// Sex values.
const (
	SexMale    Sex = "M"
	SexFemale  Sex = "F"
	SexUnknown Sex = "U"
)

// RelationshipType classifies a relationship record.
type RelationshipType string

// Relationship types.
const (
	RelBiologicalParent RelationshipType = "biological_parent"
	RelAdoptiveParent   RelationshipType = "adoptive_parent"
	RelPartner          RelationshipType = "partner"
	RelGuardian         RelationshipType = "guardian"
	RelOther            RelationshipType = "other"
)

// ValidRelationshipType reports whether t is one of the known types.
func ValidRelationshipType(t RelationshipType) bool {
	switch t {
	case RelBiologicalParent, RelAdoptiveParent, RelPartner, RelGuardian, RelOther:
		return true
	}
	return false
}

// Role is a tree collaborator capability level. Levels are strictly
// ordered: viewer < editor < admin.
type Role string

// Collaborator roles.
const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// Level returns the numeric capability level of a role. Unknown roles
// map to 0, below viewer.
func (r Role) Level() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// AtLeast reports whether r grants at least the capability of required.
//
// Example:
//
//	storage.RoleAdmin.AtLeast(storage.RoleEditor) => true
//	storage.RoleViewer.AtLeast(storage.RoleEditor) => false
func (r Role) AtLeast(required Role) bool {
	return r.Level() >= required.Level() && required.Level() > 0
}

// ValidRole reports whether r is one of the three collaborator roles.
func ValidRole(r Role) bool {
	return r.Level() > 0
}

// LifeEvent is a birth or death record: a loosely formatted date string
// plus an optional place reference. An empty Date means unknown.
type LifeEvent struct {
	Date    string `json:"date,omitempty"`
	PlaceID string `json:"placeId,omitempty"`
	Note    string `json:"note,omitempty"`
}

// Event is any other dated event attached to a person (baptism,
// emigration, census entry).
type Event struct {
	Type    string `json:"type,omitempty"`
	Date    string `json:"date,omitempty"`
	PlaceID string `json:"placeId,omitempty"`
	Note    string `json:"note,omitempty"`
}

// Photo is an uploaded image attached to a person.
type Photo struct {
	URL        string `json:"url"`
	Caption    string `json:"caption,omitempty"`
	UploadedBy UserID `json:"uploadedBy,omitempty"`
	StoredAt   string `json:"storedAt,omitempty"`
}

// SourceRef cites an external record backing a fact.
type SourceRef struct {
	Type        string `json:"type,omitempty"`
	ReferenceID string `json:"referenceId,omitempty"`
	Description string `json:"description,omitempty"`
}

// SearchKeys holds the derived search index fields for a person, refreshed
// on every write via RefreshSearchKeys.
type SearchKeys struct {
	NormalizedFullName string   `json:"normalizedFullName,omitempty"`
	Tokens             []string `json:"tokens,omitempty"`
}

// Person is a member of exactly one tree. FatherID and MotherID are the two
// biological parent slots; an empty value means the slot is open. Partners
// is a symmetric set kept reciprocal by the mutation coordinator.
//
// Version implements optimistic concurrency: Store.UpdatePerson succeeds
// only when the caller's Version matches the stored one, then increments it.
// Soft-deleted persons stay in the store (they may still be referenced by
// parent slots) but are excluded from graph traversals and lookups.
type Person struct {
	ID     PersonID `json:"id"`
	TreeID TreeID   `json:"treeId"`

	GivenNames  []string `json:"givenNames,omitempty"`
	FamilyNames []string `json:"familyNames,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	Prefixes    []string `json:"prefixes,omitempty"`
	Suffixes    []string `json:"suffixes,omitempty"`

	Sex   Sex       `json:"sex,omitempty"`
	Birth LifeEvent `json:"birth,omitempty"`
	Death LifeEvent `json:"death,omitempty"`

	OtherEvents []Event `json:"otherEvents,omitempty"`

	FatherID  PersonID   `json:"fatherId,omitempty"`
	MotherID  PersonID   `json:"motherId,omitempty"`
	Partners  []PersonID `json:"partners,omitempty"`
	Guardians []PersonID `json:"guardians,omitempty"`

	Photos  []Photo     `json:"photos,omitempty"`
	Sources []SourceRef `json:"sources,omitempty"`
	Notes   string      `json:"notes,omitempty"`

	Search SearchKeys `json:"search,omitempty"`

	Version     int64 `json:"version"`
	SoftDeleted bool  `json:"softDeleted,omitempty"`

	CreatedBy UserID    `json:"createdBy,omitempty"`
	UpdatedBy UserID    `json:"updatedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// FullName returns the person's display name, or given + family names when
// no display name is set.
func (p *Person) FullName() string {
	return text.FullName(p.GivenNames, p.FamilyNames, p.DisplayName)
}

// RefreshSearchKeys recomputes the derived search fields from the current
// name fields. Callers must invoke this before every store write that may
// have touched a name.
func (p *Person) RefreshSearchKeys() {
	full := p.FullName()
	p.Search = SearchKeys{
		NormalizedFullName: text.Normalize(full),
		Tokens:             text.Tokenize(full),
	}
}

// HasPartner reports whether id is already in the partner set.
func (p *Person) HasPartner(id PersonID) bool {
	for _, partner := range p.Partners {
		if partner == id {
			return true
		}
	}
	return false
}

// ParentCount returns how many biological parent slots are filled.
func (p *Person) ParentCount() int {
	n := 0
	if p.FatherID != "" {
		n++
	}
	if p.MotherID != "" {
		n++
	}
	return n
}

// Relationship is a typed edge record between two persons in one tree.
// Rows are independent audit-style records: they never carry authoritative
// parent/partner state, which lives on the Person fields.
//
// OverrideReason is the operator-supplied justification recorded when a
// soft plausibility check (parent age gap) was bypassed.
type Relationship struct {
	ID     RelationshipID   `json:"id"`
	TreeID TreeID           `json:"treeId"`
	Type   RelationshipType `json:"type"`

	FromID PersonID `json:"fromId"`
	ToID   PersonID `json:"toId"`

	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`

	Primary bool   `json:"primary,omitempty"`
	Note    string `json:"note,omitempty"`

	OverrideReason string `json:"overrideReason,omitempty"`

	CreatedBy UserID    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Collaborator is a role assignment on a tree.
type Collaborator struct {
	UserID    UserID    `json:"userId"`
	Role      Role      `json:"role"`
	InvitedBy UserID    `json:"invitedBy,omitempty"`
	InvitedAt time.Time `json:"invitedAt,omitempty"`
}

// Tree is the owning scope for persons and relationships. The owner holds
// implicit admin capability; everyone else goes through Collaborators.
type Tree struct {
	ID          TreeID `json:"id"`
	OwnerID     UserID `json:"ownerId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Collaborators []Collaborator `json:"collaborators,omitempty"`
	Visibility    string         `json:"visibility,omitempty"` // private|public|unlisted

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RoleFor resolves the effective role of a user on this tree. The owner is
// always admin; unknown users get an empty role (level 0).
func (t *Tree) RoleFor(userID UserID) Role {
	if t.OwnerID != "" && t.OwnerID == userID {
		return RoleAdmin
	}
	for _, c := range t.Collaborators {
		if c.UserID == userID {
			return c.Role
		}
	}
	return ""
}

// Store is the document store interface for GeneaFlow records.
//
// All implementations MUST be:
//   - Thread-safe: safe for concurrent access from multiple goroutines
//   - Atomic per operation
//   - Copy-safe: returned records are deep copies
//
// Person reads return records regardless of the soft-delete flag; callers
// that traverse the graph filter through the graph accessor, which is where
// the exclusion rule lives. PersonsInTree excludes soft-deleted records
// because every list-style consumer wants live persons only.
//
// Implementations:
//   - MemoryStore: in-memory maps, for tests and small datasets
//   - BadgerStore: persistent disk storage on BadgerDB
type Store interface {
	// Tree operations
	CreateTree(tree *Tree) error
	GetTree(id TreeID) (*Tree, error)
	UpdateTree(tree *Tree) error
	DeleteTree(id TreeID) error
	TreesForUser(userID UserID) ([]*Tree, error)

	// Person operations
	CreatePerson(p *Person) error
	GetPerson(id PersonID) (*Person, error)
	// UpdatePerson applies an optimistic-concurrency write: it succeeds only
	// when p.Version equals the stored version, stores the record with the
	// version incremented, and reflects the new version back into p.
	// Returns ErrConflict when another writer got there first.
	UpdatePerson(p *Person) error
	// PersonsInTree lists non-soft-deleted persons of a tree.
	PersonsInTree(treeID TreeID) ([]*Person, error)

	// Relationship operations
	CreateRelationship(r *Relationship) error
	GetRelationship(id RelationshipID) (*Relationship, error)
	DeleteRelationship(id RelationshipID) error
	RelationshipsInTree(treeID TreeID) ([]*Relationship, error)

	// Stats
	PersonCount() (int64, error)

	// Lifecycle
	Close() error
}

// copyPerson returns a deep copy of a person record.
func copyPerson(p *Person) *Person {
	cp := *p
	cp.GivenNames = append([]string(nil), p.GivenNames...)
	cp.FamilyNames = append([]string(nil), p.FamilyNames...)
	cp.Prefixes = append([]string(nil), p.Prefixes...)
	cp.Suffixes = append([]string(nil), p.Suffixes...)
	cp.OtherEvents = append([]Event(nil), p.OtherEvents...)
	cp.Partners = append([]PersonID(nil), p.Partners...)
	cp.Guardians = append([]PersonID(nil), p.Guardians...)
	cp.Photos = append([]Photo(nil), p.Photos...)
	cp.Sources = append([]SourceRef(nil), p.Sources...)
	cp.Search.Tokens = append([]string(nil), p.Search.Tokens...)
	return &cp
}

// copyTree returns a deep copy of a tree record.
func copyTree(t *Tree) *Tree {
	cp := *t
	cp.Collaborators = append([]Collaborator(nil), t.Collaborators...)
	return &cp
}

// copyRelationship returns a copy of a relationship record.
func copyRelationship(r *Relationship) *Relationship {
	cp := *r
	return &cp
}
