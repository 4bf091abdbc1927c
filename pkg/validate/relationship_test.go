package validate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidMGG/geneaflow/pkg/graph"
	"github.com/DavidMGG/geneaflow/pkg/storage"
)

func TestCheckBiologicalParentSlots(t *testing.T) {
	eng, store := newEngine(t)
	seedPerson(t, store, &storage.Person{ID: "juan", DisplayName: "Juan Sosa", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1965"}})
	seedPerson(t, store, &storage.Person{ID: "rosa", DisplayName: "Rosa Díaz", Sex: storage.SexFemale, Birth: storage.LifeEvent{Date: "1967"}})
	seedPerson(t, store, &storage.Person{ID: "ana", DisplayName: "Ana Sosa", Sex: storage.SexFemale, Birth: storage.LifeEvent{Date: "1990"}})

	t.Run("first parent takes the father slot", func(t *testing.T) {
		check, err := eng.CheckBiologicalParent("t1", "juan", "ana", "")
		require.NoError(t, err)
		assert.Equal(t, SlotFather, check.Slot)
		assert.False(t, check.AlreadyAssigned)
		assert.False(t, check.OverrideUsed)
	})

	t.Run("second parent takes the mother slot", func(t *testing.T) {
		ana, err := store.GetPerson("ana")
		require.NoError(t, err)
		ana.FatherID = "juan"
		require.NoError(t, store.UpdatePerson(ana))

		check, err := eng.CheckBiologicalParent("t1", "rosa", "ana", "")
		require.NoError(t, err)
		assert.Equal(t, SlotMother, check.Slot)
	})

	t.Run("repeat assignment is a no-op", func(t *testing.T) {
		check, err := eng.CheckBiologicalParent("t1", "juan", "ana", "")
		require.NoError(t, err)
		assert.True(t, check.AlreadyAssigned)
		assert.Equal(t, SlotFather, check.Slot)
	})

	t.Run("third parent rejected", func(t *testing.T) {
		seedPerson(t, store, &storage.Person{ID: "extra", DisplayName: "Tercero Sosa", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1960"}})
		ana, err := store.GetPerson("ana")
		require.NoError(t, err)
		ana.MotherID = "rosa"
		require.NoError(t, store.UpdatePerson(ana))

		_, err = eng.CheckBiologicalParent("t1", "extra", "ana", "")
		assert.ErrorIs(t, err, ErrMaxParents)
	})

	t.Run("self assignment rejected", func(t *testing.T) {
		_, err := eng.CheckBiologicalParent("t1", "ana", "ana", "")
		assert.ErrorIs(t, err, ErrSelfParent)
	})

	t.Run("unknown persons rejected", func(t *testing.T) {
		_, err := eng.CheckBiologicalParent("t1", "ghost", "ana", "")
		assert.ErrorIs(t, err, ErrPersonNotFound)
		_, err = eng.CheckBiologicalParent("t1", "juan", "ghost", "")
		assert.ErrorIs(t, err, ErrPersonNotFound)
	})
}

func TestCheckBiologicalParentAgeRules(t *testing.T) {
	eng, store := newEngine(t)
	seedPerson(t, store, &storage.Person{ID: "young", DisplayName: "Padre Joven", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1985"}})
	seedPerson(t, store, &storage.Person{ID: "child", DisplayName: "Hija Mayor", Sex: storage.SexFemale, Birth: storage.LifeEvent{Date: "1990"}})
	seedPerson(t, store, &storage.Person{ID: "elder", DisplayName: "Hijo Previo", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1960"}})
	seedPerson(t, store, &storage.Person{ID: "undated", DisplayName: "Sin Fecha", Sex: storage.SexMale})

	t.Run("implausible gap without reason rejected", func(t *testing.T) {
		_, err := eng.CheckBiologicalParent("t1", "young", "child", "")
		assert.ErrorIs(t, err, ErrAgeImplausible)
	})

	t.Run("implausible gap with reason records the override", func(t *testing.T) {
		check, err := eng.CheckBiologicalParent("t1", "young", "child", "adoption recorded in parish book")
		require.NoError(t, err)
		assert.True(t, check.OverrideUsed)
		assert.Equal(t, "adoption recorded in parish book", check.OverrideReason)
	})

	t.Run("gap of exactly the minimum is plausible", func(t *testing.T) {
		// 1990 - 1978 = 12, the default minimum.
		seedPerson(t, store, &storage.Person{ID: "boundary", DisplayName: "Padre Limite", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1978"}})
		_, err := eng.CheckBiologicalParent("t1", "boundary", "child", "")
		assert.NoError(t, err)
	})

	t.Run("parent born after child rejected even with reason", func(t *testing.T) {
		_, err := eng.CheckBiologicalParent("t1", "child", "elder", "definitely sure")
		assert.ErrorIs(t, err, ErrParentYoungerThanChild)
	})

	t.Run("unknown birth dates skip the age checks", func(t *testing.T) {
		_, err := eng.CheckBiologicalParent("t1", "undated", "child", "")
		assert.NoError(t, err)
	})

	t.Run("full date strings feed the plausibility check", func(t *testing.T) {
		seedPerson(t, store, &storage.Person{ID: "fechado", DisplayName: "Padre Fechado", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1984-11-02"}})
		seedPerson(t, store, &storage.Person{ID: "hija-f", DisplayName: "Hija Fechada", Sex: storage.SexFemale, Birth: storage.LifeEvent{Date: "1990-05-20"}})
		_, err := eng.CheckBiologicalParent("t1", "fechado", "hija-f", "")
		assert.ErrorIs(t, err, ErrAgeImplausible)

		check, err := eng.CheckBiologicalParent("t1", "fechado", "hija-f", "late registration, year uncertain")
		require.NoError(t, err)
		assert.True(t, check.OverrideUsed)
	})
}

func TestCheckBiologicalParentGenderPair(t *testing.T) {
	eng, store := newEngine(t)
	seedPerson(t, store, &storage.Person{ID: "padre", DisplayName: "Padre Uno", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1950"}})
	seedPerson(t, store, &storage.Person{ID: "otro", DisplayName: "Padre Dos", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1952"}})
	seedPerson(t, store, &storage.Person{ID: "neutro", DisplayName: "Padre Tres", Sex: storage.SexUnknown, Birth: storage.LifeEvent{Date: "1951"}})
	seedPerson(t, store, &storage.Person{ID: "hijo", DisplayName: "Hijo Par", Birth: storage.LifeEvent{Date: "1980"}, FatherID: "padre"})

	t.Run("second parent of same gender rejected", func(t *testing.T) {
		_, err := eng.CheckBiologicalParent("t1", "otro", "hijo", "")
		assert.ErrorIs(t, err, ErrSameGenderParents)
	})

	t.Run("unknown gender passes", func(t *testing.T) {
		check, err := eng.CheckBiologicalParent("t1", "neutro", "hijo", "")
		require.NoError(t, err)
		assert.Equal(t, SlotMother, check.Slot)
	})
}

func TestCheckPartner(t *testing.T) {
	eng, store := newEngine(t)
	seedPerson(t, store, &storage.Person{ID: "m1", DisplayName: "Luis Uno", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1960"}})
	seedPerson(t, store, &storage.Person{ID: "m2", DisplayName: "Luis Dos", Sex: storage.SexMale, Birth: storage.LifeEvent{Date: "1961"}})
	seedPerson(t, store, &storage.Person{ID: "f1", DisplayName: "Marta Uno", Sex: storage.SexFemale, Birth: storage.LifeEvent{Date: "1962"}})
	seedPerson(t, store, &storage.Person{ID: "kid", DisplayName: "Hija Luis", Sex: storage.SexFemale, Birth: storage.LifeEvent{Date: "1985"}, FatherID: "m1"})

	assert.NoError(t, eng.CheckPartner("t1", "m1", "f1"))
	assert.ErrorIs(t, eng.CheckPartner("t1", "m1", "m2"), ErrSameGenderPartners)
	assert.ErrorIs(t, eng.CheckPartner("t1", "m1", "m1"), ErrSelfParent)
	assert.ErrorIs(t, eng.CheckPartner("t1", "m1", "kid"), ErrNonReciprocal)
	assert.ErrorIs(t, eng.CheckPartner("t1", "m1", "ghost"), ErrPersonNotFound)
}

// buildChain creates persons p0 <- p1 <- ... <- pN-1 where each pI+1 has pI
// as father. Returns the ids of the first and last link.
func buildChain(t *testing.T, store storage.Store, n int) (first, last storage.PersonID) {
	t.Helper()
	for i := 0; i < n; i++ {
		p := &storage.Person{
			ID:          storage.PersonID(fmt.Sprintf("chain-%04d", i)),
			DisplayName: fmt.Sprintf("Eslabón %d", i),
			Birth:       storage.LifeEvent{Date: fmt.Sprintf("%d", 1000+i)},
		}
		if i > 0 {
			p.FatherID = storage.PersonID(fmt.Sprintf("chain-%04d", i-1))
		}
		seedPerson(t, store, p)
	}
	return "chain-0000", storage.PersonID(fmt.Sprintf("chain-%04d", n-1))
}

func TestAssertNoCycleOnAssignParent(t *testing.T) {
	t.Run("direct cycle detected", func(t *testing.T) {
		eng, store := newEngine(t)
		seedPerson(t, store, &storage.Person{ID: "a", DisplayName: "A Uno", Birth: storage.LifeEvent{Date: "1940"}})
		seedPerson(t, store, &storage.Person{ID: "b", DisplayName: "B Uno", Birth: storage.LifeEvent{Date: "1970"}, FatherID: "a"})

		// a is already b's father; making b a parent of a closes the loop.
		assert.ErrorIs(t, eng.AssertNoCycleOnAssignParent("t1", "a", "b"), ErrGenealogicalCycle)
		assert.NoError(t, eng.AssertNoCycleOnAssignParent("t1", "b", "a"))
	})

	t.Run("transitive cycle through a chain detected", func(t *testing.T) {
		eng, store := newEngine(t)
		first, last := buildChain(t, store, 5)
		// first is an ancestor of last; assigning last as parent of first
		// would make first its own ancestor.
		assert.ErrorIs(t, eng.AssertNoCycleOnAssignParent("t1", first, last), ErrGenealogicalCycle)
	})

	t.Run("cycle beyond the legacy traversal cap still detected", func(t *testing.T) {
		eng, store := newEngine(t)
		first, last := buildChain(t, store, LegacyMaxExpansions+50)
		assert.ErrorIs(t, eng.AssertNoCycleOnAssignParent("t1", first, last), ErrGenealogicalCycle)
	})

	t.Run("capped traversal stops without reporting a cycle", func(t *testing.T) {
		store := storage.NewMemoryStore()
		t.Cleanup(func() { store.Close() })
		require.NoError(t, store.CreateTree(&storage.Tree{ID: "t1", Name: "test"}))

		cfg := DefaultConfig()
		cfg.Now = fixedNow
		cfg.MaxExpansions = LegacyMaxExpansions
		capped := NewEngine(store, graph.NewStoreAccessor(store), cfg)

		first, last := buildChain(t, store, LegacyMaxExpansions+50)
		assert.NoError(t, capped.AssertNoCycleOnAssignParent("t1", first, last))
	})

	t.Run("dangling parent reference skipped", func(t *testing.T) {
		eng, store := newEngine(t)
		seedPerson(t, store, &storage.Person{ID: "orphaned", DisplayName: "Huérfano Ref", Birth: storage.LifeEvent{Date: "1970"}, FatherID: "never-existed"})
		seedPerson(t, store, &storage.Person{ID: "target", DisplayName: "Objetivo Ref", Birth: storage.LifeEvent{Date: "1990"}})

		assert.NoError(t, eng.AssertNoCycleOnAssignParent("t1", "target", "orphaned"))
	})
}
