// Package validate implements the genealogical consistency engine.
//
// The engine is the single authority on whether a person record or a
// relationship mutation is admissible. It is purely read-only: it inspects
// the tree through a graph.Accessor and the store, reports the first
// violated rule as a typed error, and never writes anything itself. The
// mutation coordinator (pkg/mutate) and the facade (pkg/geneaflow) call it
// before every write.
//
// Validation is fail-fast and ordered: cheap syntactic checks run before
// store scans, and store scans before graph traversals, so malformed input
// never reaches the expensive paths.
//
// Example:
//
//	eng := validate.NewEngine(store, graph.NewStoreAccessor(store), validate.DefaultConfig())
//	if err := eng.ValidatePersonData(treeID, "", data); err != nil {
//		// err wraps one of the validate.Err* sentinels
//	}
package validate

import (
	"fmt"
	"regexp"
	"time"

	"github.com/DavidMGG/geneaflow/pkg/dates"
	"github.com/DavidMGG/geneaflow/pkg/graph"
	"github.com/DavidMGG/geneaflow/pkg/storage"
	"github.com/DavidMGG/geneaflow/pkg/text"
)

// nameRe is the allow-list for person names: Latin letters (accented
// included), whitespace, hyphen, apostrophe and period.
var nameRe = regexp.MustCompile(`^[\p{Latin}\s\-'.]+$`)

// Config tunes the engine's plausibility thresholds and traversal guards.
type Config struct {
	// MinParentAge is the minimum plausible parent-child age gap in years.
	MinParentAge int

	// MinBirthYear is the lower bound of acceptable birth years.
	MinBirthYear int

	// MaxExpansions caps how many nodes the ancestor traversal may dequeue.
	// Zero or negative means unbounded: the visited set alone terminates
	// the walk. A positive cap is only a guard against accessor anomalies
	// (for example a store mutating underneath the walk); when the cap is
	// hit the traversal stops and reports no cycle.
	MaxExpansions int

	// Now supplies the current time for year-bound checks. Nil means
	// time.Now. Tests pin it for stable year arithmetic.
	Now func() time.Time
}

// DefaultConfig returns the engine defaults: 12-year minimum parent age,
// births from year 1000 onward, unbounded ancestor traversal.
func DefaultConfig() Config {
	return Config{
		MinParentAge:  dates.DefaultMinParentAge,
		MinBirthYear:  1000,
		MaxExpansions: 0,
	}
}

// PersonData is the candidate identity payload checked by
// ValidatePersonData. It mirrors the mutable identity fields of
// storage.Person without requiring a stored record, so creates and updates
// go through the same path.
type PersonData struct {
	GivenNames  []string
	FamilyNames []string
	DisplayName string
	Sex         storage.Sex
	BirthDate   string
	DeathDate   string
	FatherID    storage.PersonID
	MotherID    storage.PersonID
	Partners    []storage.PersonID
}

// FromPerson projects a stored person into the candidate payload, so
// update paths validate exactly what is about to be written.
func FromPerson(p *storage.Person) PersonData {
	return PersonData{
		GivenNames:  p.GivenNames,
		FamilyNames: p.FamilyNames,
		DisplayName: p.DisplayName,
		Sex:         p.Sex,
		BirthDate:   p.Birth.Date,
		DeathDate:   p.Death.Date,
		FatherID:    p.FatherID,
		MotherID:    p.MotherID,
		Partners:    p.Partners,
	}
}

// fullName joins the name parts the same way storage.Person does.
func (d PersonData) fullName() string {
	return text.FullName(d.GivenNames, d.FamilyNames, d.DisplayName)
}

// Engine validates person data and relationship mutations against a tree.
type Engine struct {
	store storage.Store
	graph graph.Accessor
	cfg   Config
}

// NewEngine builds an engine over the given store and accessor.
func NewEngine(store storage.Store, accessor graph.Accessor, cfg Config) *Engine {
	if cfg.MinParentAge <= 0 {
		cfg.MinParentAge = dates.DefaultMinParentAge
	}
	if cfg.MinBirthYear <= 0 {
		cfg.MinBirthYear = 1000
	}
	return &Engine{store: store, graph: accessor, cfg: cfg}
}

func (e *Engine) now() time.Time {
	if e.cfg.Now != nil {
		return e.cfg.Now()
	}
	return time.Now()
}

// ValidatePersonData runs the full ordered rule set over a candidate person
// record. excludeID is the person's own id on updates, so the record never
// collides with itself in the duplicate scan; it is empty on creates.
//
// The first violated rule aborts the run and is returned wrapped around its
// sentinel. A nil return means the record is admissible as written.
func (e *Engine) ValidatePersonData(treeID storage.TreeID, excludeID storage.PersonID, d PersonData) error {
	if err := e.checkName(d); err != nil {
		return err
	}
	birthYear, err := e.checkBirthYear(d.BirthDate)
	if err != nil {
		return err
	}
	if err := e.checkDuplicate(treeID, excludeID, d); err != nil {
		return err
	}
	if err := e.checkLifeSpan(birthYear, d.DeathDate); err != nil {
		return err
	}
	if err := e.checkCalendarDates(d.BirthDate, d.DeathDate); err != nil {
		return err
	}
	if err := e.checkSelfParent(excludeID, d); err != nil {
		return err
	}
	if err := e.checkParentOlder(treeID, birthYear, d); err != nil {
		return err
	}
	if err := e.checkParentsNotMutual(treeID, d); err != nil {
		return err
	}
	if err := e.checkPartnerGenders(treeID, excludeID, d); err != nil {
		return err
	}
	return nil
}

// checkName requires at least one non-blank name and restricts its
// characters to the name allow-list.
func (e *Engine) checkName(d PersonData) error {
	full := d.fullName()
	if full == "" {
		return fmt.Errorf("empty name: %w", ErrInvalidName)
	}
	for _, part := range append(append([]string{}, d.GivenNames...), d.FamilyNames...) {
		if part == "" {
			continue
		}
		if !nameRe.MatchString(part) {
			return fmt.Errorf("name %q contains invalid characters: %w", part, ErrInvalidName)
		}
	}
	if d.DisplayName != "" && !nameRe.MatchString(d.DisplayName) {
		return fmt.Errorf("name %q contains invalid characters: %w", d.DisplayName, ErrInvalidName)
	}
	return nil
}

// checkBirthYear requires a birth date carrying a four-digit year between
// MinBirthYear and the current year. Returns the extracted year.
func (e *Engine) checkBirthYear(birthDate string) (int, error) {
	if birthDate == "" {
		return 0, ErrMissingBirthYear
	}
	year, ok := dates.ExtractYear(birthDate)
	if !ok {
		return 0, fmt.Errorf("birth date %q: %w", birthDate, ErrInvalidYear)
	}
	current := e.now().Year()
	if year < e.cfg.MinBirthYear || year > current {
		return 0, fmt.Errorf("birth year %d outside %d..%d: %w", year, e.cfg.MinBirthYear, current, ErrInvalidYear)
	}
	return year, nil
}

// checkDuplicate scans the tree for a living (non-deleted) person that the
// candidate would collide with. Two records collide when their normalized
// full names match, or when they share at least one given name and one
// family name; a birth date on the candidate additionally has to match.
func (e *Engine) checkDuplicate(treeID storage.TreeID, excludeID storage.PersonID, d PersonData) error {
	persons, err := e.store.PersonsInTree(treeID)
	if err != nil {
		return err
	}
	candFull := text.Normalize(d.fullName())
	candGiven := normalizeSet(d.GivenNames)
	candFamily := normalizeSet(d.FamilyNames)
	for _, p := range persons {
		if p.ID == excludeID {
			continue
		}
		if d.BirthDate != "" && p.Birth.Date != d.BirthDate {
			continue
		}
		if text.Normalize(p.FullName()) == candFull {
			return fmt.Errorf("%s: %w", p.FullName(), ErrDuplicatePerson)
		}
		if overlaps(candGiven, normalizeSet(p.GivenNames)) && overlaps(candFamily, normalizeSet(p.FamilyNames)) {
			return fmt.Errorf("%s: %w", p.FullName(), ErrDuplicatePerson)
		}
	}
	return nil
}

func normalizeSet(parts []string) map[string]bool {
	set := make(map[string]bool, len(parts))
	for _, s := range parts {
		if n := text.Normalize(s); n != "" {
			set[n] = true
		}
	}
	return set
}

func overlaps(a, b map[string]bool) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

// checkLifeSpan rejects a death year at or before the birth year.
func (e *Engine) checkLifeSpan(birthYear int, deathDate string) error {
	if deathDate == "" {
		return nil
	}
	deathYear, ok := dates.ExtractYear(deathDate)
	if !ok {
		return fmt.Errorf("death date %q: %w", deathDate, ErrInvalidYear)
	}
	if deathYear <= birthYear {
		return fmt.Errorf("death year %d not after birth year %d: %w", deathYear, birthYear, ErrInvalidYear)
	}
	return nil
}

// checkCalendarDates rejects structured dates naming a day that does not
// exist, February 29 outside leap years above all.
func (e *Engine) checkCalendarDates(birthDate, deathDate string) error {
	if !dates.IsLeapYearValid(birthDate) {
		return fmt.Errorf("birth date %q is not a real calendar date: %w", birthDate, ErrInvalidYear)
	}
	if !dates.IsLeapYearValid(deathDate) {
		return fmt.Errorf("death date %q is not a real calendar date: %w", deathDate, ErrInvalidYear)
	}
	return nil
}

// checkSelfParent rejects a person listed as their own father or mother.
// Only meaningful on updates, when the record has an id to compare.
func (e *Engine) checkSelfParent(excludeID storage.PersonID, d PersonData) error {
	if excludeID == "" {
		return nil
	}
	if d.FatherID == excludeID || d.MotherID == excludeID {
		return ErrSelfParent
	}
	return nil
}

// checkParentOlder requires each referenced parent to be born strictly
// before the candidate. Parents without a known birth year pass.
func (e *Engine) checkParentOlder(treeID storage.TreeID, birthYear int, d PersonData) error {
	for _, pid := range []storage.PersonID{d.FatherID, d.MotherID} {
		if pid == "" {
			continue
		}
		rel, err := e.relations(treeID, pid)
		if err != nil {
			return err
		}
		parentYear, ok := dates.ExtractYear(rel.BirthDate)
		if !ok {
			continue
		}
		if birthYear <= parentYear {
			return fmt.Errorf("parent %s born %d, child born %d: %w", pid, parentYear, birthYear, ErrParentYoungerThanChild)
		}
	}
	return nil
}

// checkParentsNotMutual rejects a father and mother who are recorded as
// parent and child of each other.
func (e *Engine) checkParentsNotMutual(treeID storage.TreeID, d PersonData) error {
	if d.FatherID == "" || d.MotherID == "" {
		return nil
	}
	father, err := e.relations(treeID, d.FatherID)
	if err != nil {
		return err
	}
	mother, err := e.relations(treeID, d.MotherID)
	if err != nil {
		return err
	}
	fatherIsMothersParent := mother.FatherID == d.FatherID || mother.MotherID == d.FatherID
	motherIsFathersParent := father.FatherID == d.MotherID || father.MotherID == d.MotherID
	if fatherIsMothersParent && motherIsFathersParent {
		return fmt.Errorf("%s and %s: %w", d.FatherID, d.MotherID, ErrNonReciprocal)
	}
	return nil
}

// checkPartnerGenders rejects partners with the same recorded gender.
// Unknown gender on either side passes.
func (e *Engine) checkPartnerGenders(treeID storage.TreeID, excludeID storage.PersonID, d PersonData) error {
	if len(d.Partners) == 0 {
		return nil
	}
	own := d.Sex
	if own == "" && excludeID != "" {
		rel, err := e.relations(treeID, excludeID)
		if err != nil {
			return err
		}
		own = rel.Sex
	}
	if own == storage.SexUnknown || own == "" {
		return nil
	}
	for _, pid := range d.Partners {
		rel, err := e.relations(treeID, pid)
		if err != nil {
			return err
		}
		if rel.Sex != storage.SexUnknown && rel.Sex != "" && rel.Sex == own {
			return fmt.Errorf("partner %s: %w", pid, ErrSameGenderPartners)
		}
	}
	return nil
}

// relations fetches the narrow relational view of a person, mapping a miss
// to the engine's ErrPersonNotFound.
func (e *Engine) relations(treeID storage.TreeID, id storage.PersonID) (*graph.Relations, error) {
	rel, err := e.graph.Relations(treeID, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, ErrPersonNotFound)
	}
	return rel, nil
}
