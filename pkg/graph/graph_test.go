package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidMGG/geneaflow/pkg/storage"
)

func newAccessor(t *testing.T) (*StoreAccessor, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.CreateTree(&storage.Tree{ID: "t1", Name: "test"}))
	return NewStoreAccessor(store), store
}

func TestRelationsProjection(t *testing.T) {
	acc, store := newAccessor(t)

	require.NoError(t, store.CreatePerson(&storage.Person{
		ID:       "p1",
		TreeID:   "t1",
		FatherID: "f1",
		MotherID: "m1",
		Partners: []storage.PersonID{"sp1"},
		Sex:      storage.SexFemale,
		Birth:    storage.LifeEvent{Date: "1990-05-01"},
		Notes:    "should not leak into the projection",
	}))

	rel, err := acc.Relations("t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, storage.PersonID("p1"), rel.ID)
	assert.Equal(t, storage.PersonID("f1"), rel.FatherID)
	assert.Equal(t, storage.PersonID("m1"), rel.MotherID)
	assert.Equal(t, []storage.PersonID{"sp1"}, rel.Partners)
	assert.Equal(t, storage.SexFemale, rel.Sex)
	assert.Equal(t, "1990-05-01", rel.BirthDate)
}

func TestRelationsNotFound(t *testing.T) {
	acc, store := newAccessor(t)

	_, err := acc.Relations("t1", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	// Soft-deleted persons are invisible through the accessor
	require.NoError(t, store.CreatePerson(&storage.Person{ID: "gone", TreeID: "t1"}))
	p, err := store.GetPerson("gone")
	require.NoError(t, err)
	p.SoftDeleted = true
	require.NoError(t, store.UpdatePerson(p))

	_, err = acc.Relations("t1", "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	// Tree boundary enforced
	require.NoError(t, store.CreateTree(&storage.Tree{ID: "t2", Name: "other"}))
	require.NoError(t, store.CreatePerson(&storage.Person{ID: "elsewhere", TreeID: "t2"}))
	_, err = acc.Relations("t1", "elsewhere")
	assert.ErrorIs(t, err, ErrNotFound)
}
