package validate

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidMGG/geneaflow/pkg/graph"
	"github.com/DavidMGG/geneaflow/pkg/storage"
)

// fixedNow pins "today" so year-bound checks do not drift.
var fixedNow = func() time.Time {
	return time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
}

func newEngine(t *testing.T) (*Engine, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.CreateTree(&storage.Tree{ID: "t1", Name: "test"}))

	cfg := DefaultConfig()
	cfg.Now = fixedNow
	return NewEngine(store, graph.NewStoreAccessor(store), cfg), store
}

func seedPerson(t *testing.T, store storage.Store, p *storage.Person) {
	t.Helper()
	if p.TreeID == "" {
		p.TreeID = "t1"
	}
	p.RefreshSearchKeys()
	require.NoError(t, store.CreatePerson(p))
}

func TestValidatePersonDataNames(t *testing.T) {
	eng, _ := newEngine(t)

	tests := []struct {
		name string
		data PersonData
		want error
	}{
		{"no names at all", PersonData{BirthDate: "1970"}, ErrInvalidName},
		{"blank given name only", PersonData{GivenNames: []string{"   "}, BirthDate: "1970"}, ErrInvalidName},
		{"digits rejected", PersonData{GivenNames: []string{"R2D2"}, BirthDate: "1970"}, ErrInvalidName},
		{"symbols rejected", PersonData{DisplayName: "Juan <admin>", BirthDate: "1970"}, ErrInvalidName},
		{"accented latin accepted", PersonData{GivenNames: []string{"José Ángel"}, FamilyNames: []string{"Muñoz"}, BirthDate: "1970"}, nil},
		{"hyphen apostrophe period accepted", PersonData{DisplayName: "O'Brien-Smith Jr.", BirthDate: "1970"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eng.ValidatePersonData("t1", "", tt.data)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestValidatePersonDataDates(t *testing.T) {
	eng, _ := newEngine(t)

	tests := []struct {
		name string
		data PersonData
		want error
	}{
		{"missing birth date", PersonData{DisplayName: "Ana"}, ErrMissingBirthYear},
		{"no year in birth date", PersonData{DisplayName: "Ana", BirthDate: "sometime"}, ErrInvalidYear},
		{"birth year before floor", PersonData{DisplayName: "Ana", BirthDate: "0999"}, ErrInvalidYear},
		{"birth year in the future", PersonData{DisplayName: "Ana", BirthDate: "2031"}, ErrInvalidYear},
		{"current year accepted", PersonData{DisplayName: "Ana", BirthDate: "2026"}, nil},
		{"death before birth", PersonData{DisplayName: "Ana", BirthDate: "1990", DeathDate: "1980"}, ErrInvalidYear},
		{"death equals birth", PersonData{DisplayName: "Ana", BirthDate: "1990", DeathDate: "1990"}, ErrInvalidYear},
		{"death after birth", PersonData{DisplayName: "Ana", BirthDate: "1990", DeathDate: "2010"}, nil},
		{"feb 29 on leap year", PersonData{DisplayName: "Ana", BirthDate: "2000-02-29"}, nil},
		{"feb 29 on century non-leap", PersonData{DisplayName: "Ana", BirthDate: "1900-02-29"}, ErrInvalidYear},
		{"feb 29 on plain non-leap death", PersonData{DisplayName: "Ana", BirthDate: "1990", DeathDate: "2021-02-29"}, ErrInvalidYear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eng.ValidatePersonData("t1", "", tt.data)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestValidatePersonDataDuplicates(t *testing.T) {
	eng, store := newEngine(t)
	seedPerson(t, store, &storage.Person{
		ID:          "p1",
		GivenNames:  []string{"María"},
		FamilyNames: []string{"García", "López"},
		Birth:       storage.LifeEvent{Date: "1950"},
	})

	t.Run("same normalized name and birth date", func(t *testing.T) {
		err := eng.ValidatePersonData("t1", "", PersonData{
			GivenNames:  []string{"Maria"},
			FamilyNames: []string{"Garcia", "Lopez"},
			BirthDate:   "1950",
		})
		assert.ErrorIs(t, err, ErrDuplicatePerson)
	})

	t.Run("name overlap with matching birth date", func(t *testing.T) {
		err := eng.ValidatePersonData("t1", "", PersonData{
			GivenNames:  []string{"María", "Isabel"},
			FamilyNames: []string{"García"},
			BirthDate:   "1950",
		})
		assert.ErrorIs(t, err, ErrDuplicatePerson)
	})

	t.Run("different birth date passes", func(t *testing.T) {
		err := eng.ValidatePersonData("t1", "", PersonData{
			GivenNames:  []string{"María"},
			FamilyNames: []string{"García", "López"},
			BirthDate:   "1980",
		})
		assert.NoError(t, err)
	})

	t.Run("update excludes own record", func(t *testing.T) {
		err := eng.ValidatePersonData("t1", "p1", PersonData{
			GivenNames:  []string{"María"},
			FamilyNames: []string{"García", "López"},
			BirthDate:   "1950",
		})
		assert.NoError(t, err)
	})

	t.Run("soft-deleted record does not collide", func(t *testing.T) {
		seedPerson(t, store, &storage.Person{
			ID:          "p-gone",
			DisplayName: "Pedro Ruiz",
			Birth:       storage.LifeEvent{Date: "1940"},
			SoftDeleted: true,
		})
		err := eng.ValidatePersonData("t1", "", PersonData{
			DisplayName: "Pedro Ruiz",
			BirthDate:   "1940",
		})
		assert.NoError(t, err)
	})
}

func TestValidatePersonDataStructure(t *testing.T) {
	eng, store := newEngine(t)
	seedPerson(t, store, &storage.Person{ID: "father", DisplayName: "Juan Viejo", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1940"}})
	seedPerson(t, store, &storage.Person{ID: "mother", DisplayName: "Rosa Vieja", Sex: storage.SexFemale, Birth: storage.LifeEvent{Date: "1942"}})

	t.Run("self parent rejected on update", func(t *testing.T) {
		err := eng.ValidatePersonData("t1", "p9", PersonData{DisplayName: "Ana", BirthDate: "1970", FatherID: "p9"})
		assert.ErrorIs(t, err, ErrSelfParent)
	})

	t.Run("missing parent reported", func(t *testing.T) {
		err := eng.ValidatePersonData("t1", "", PersonData{DisplayName: "Ana", BirthDate: "1970", FatherID: "ghost"})
		assert.ErrorIs(t, err, ErrPersonNotFound)
	})

	t.Run("child born before parent rejected", func(t *testing.T) {
		err := eng.ValidatePersonData("t1", "", PersonData{DisplayName: "Ana", BirthDate: "1930", FatherID: "father"})
		assert.ErrorIs(t, err, ErrParentYoungerThanChild)
	})

	t.Run("valid parents pass", func(t *testing.T) {
		err := eng.ValidatePersonData("t1", "", PersonData{DisplayName: "Ana", BirthDate: "1970", FatherID: "father", MotherID: "mother"})
		assert.NoError(t, err)
	})

	t.Run("mutually parented pair rejected", func(t *testing.T) {
		// a and b each list the other as parent; using both as father and
		// mother of a third person must fail.
		seedPerson(t, store, &storage.Person{ID: "a", DisplayName: "Ciclo Uno", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1950"}, FatherID: "b"})
		seedPerson(t, store, &storage.Person{ID: "b", DisplayName: "Ciclo Dos", Sex: storage.SexFemale, Birth: storage.LifeEvent{Date: "1951"}, MotherID: "a"})

		err := eng.ValidatePersonData("t1", "", PersonData{DisplayName: "Hijo Ciclo", BirthDate: "1980", FatherID: "a", MotherID: "b"})
		assert.ErrorIs(t, err, ErrNonReciprocal)
	})
}

func TestValidatePersonDataPartnerGenders(t *testing.T) {
	eng, store := newEngine(t)
	seedPerson(t, store, &storage.Person{ID: "m1", DisplayName: "Luis Par", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1960"}})
	seedPerson(t, store, &storage.Person{ID: "f1", DisplayName: "Carmen Par", Sex: storage.SexFemale, Birth: storage.LifeEvent{Date: "1961"}})
	seedPerson(t, store, &storage.Person{ID: "u1", DisplayName: "Alex Par", Sex: storage.SexUnknown, Birth: storage.LifeEvent{Date: "1962"}})

	t.Run("same gender rejected", func(t *testing.T) {
		err := eng.ValidatePersonData("t1", "", PersonData{DisplayName: "Pedro Nuevo", BirthDate: "1960", Sex: storage.SexMale, Partners: []storage.PersonID{"m1"}})
		assert.ErrorIs(t, err, ErrSameGenderPartners)
	})

	t.Run("opposite gender passes", func(t *testing.T) {
		err := eng.ValidatePersonData("t1", "", PersonData{DisplayName: "Pedro Nuevo", BirthDate: "1960", Sex: storage.SexMale, Partners: []storage.PersonID{"f1"}})
		assert.NoError(t, err)
	})

	t.Run("unknown gender on either side passes", func(t *testing.T) {
		err := eng.ValidatePersonData("t1", "", PersonData{DisplayName: "Pedro Nuevo", BirthDate: "1960", Sex: storage.SexMale, Partners: []storage.PersonID{"u1"}})
		assert.NoError(t, err)

		err = eng.ValidatePersonData("t1", "", PersonData{DisplayName: "Sam Nuevo", BirthDate: "1960", Partners: []storage.PersonID{"m1"}})
		assert.NoError(t, err)
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusFor(nil))
	assert.Equal(t, http.StatusNotFound, StatusFor(fmt.Errorf("x: %w", ErrPersonNotFound)))
	assert.Equal(t, http.StatusBadRequest, StatusFor(ErrGenealogicalCycle))
	assert.Equal(t, http.StatusBadRequest, StatusFor(fmt.Errorf("y: %w", ErrDuplicatePerson)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fmt.Errorf("disk on fire")))
	assert.True(t, IsValidationError(ErrMaxParents))
	assert.False(t, IsValidationError(fmt.Errorf("disk on fire")))
}
