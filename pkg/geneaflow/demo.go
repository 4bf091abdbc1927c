package geneaflow

import (
	"fmt"

	"github.com/DavidMGG/geneaflow/pkg/storage"
)

// SeedDemo creates a small three-generation tree owned by actor and
// returns it. Useful for first-run setups and manual testing.
func (db *DB) SeedDemo(actor storage.UserID) (*storage.Tree, error) {
	tree, err := db.CreateTree(actor, "Familia García (demo)", "Three generations of sample data")
	if err != nil {
		return nil, err
	}

	type seed struct {
		key    string
		given  []string
		family []string
		sex    storage.Sex
		birth  string
		death  string
	}
	seeds := []seed{
		{"abuelo", []string{"Antonio"}, []string{"García"}, storage.SexMale, "1938-05-02", "2011-01-19"},
		{"abuela", []string{"Carmen"}, []string{"Ruiz"}, storage.SexFemale, "1941-11-30", ""},
		{"padre", []string{"Juan"}, []string{"García", "Ruiz"}, storage.SexMale, "1965-03-11", ""},
		{"madre", []string{"Lucía"}, []string{"Fernández"}, storage.SexFemale, "1968-07-22", ""},
		{"hija", []string{"Ana"}, []string{"García", "Fernández"}, storage.SexFemale, "1990-09-14", ""},
		{"hijo", []string{"Diego"}, []string{"García", "Fernández"}, storage.SexMale, "1993-02-27", ""},
	}

	ids := make(map[string]storage.PersonID, len(seeds))
	for _, s := range seeds {
		p, err := db.CreatePerson(tree.ID, actor, PersonInput{
			GivenNames:  s.given,
			FamilyNames: s.family,
			Sex:         s.sex,
			Birth:       storage.LifeEvent{Date: s.birth},
			Death:       storage.LifeEvent{Date: s.death},
		})
		if err != nil {
			return nil, fmt.Errorf("seeding %s: %w", s.key, err)
		}
		ids[s.key] = p.ID
	}

	type edge struct {
		typ  storage.RelationshipType
		from string
		to   string
	}
	edges := []edge{
		{storage.RelBiologicalParent, "abuelo", "padre"},
		{storage.RelBiologicalParent, "abuela", "padre"},
		{storage.RelPartner, "abuelo", "abuela"},
		{storage.RelBiologicalParent, "padre", "hija"},
		{storage.RelBiologicalParent, "madre", "hija"},
		{storage.RelBiologicalParent, "padre", "hijo"},
		{storage.RelBiologicalParent, "madre", "hijo"},
		{storage.RelPartner, "padre", "madre"},
	}
	for _, e := range edges {
		if _, err := db.CreateRelationship(tree.ID, actor, RelationshipInput{
			Type:   e.typ,
			FromID: ids[e.from],
			ToID:   ids[e.to],
		}); err != nil {
			return nil, fmt.Errorf("seeding %s %s->%s: %w", e.typ, e.from, e.to, err)
		}
	}
	return tree, nil
}
