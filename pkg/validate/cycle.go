package validate

import (
	"errors"
	"fmt"

	"github.com/DavidMGG/geneaflow/pkg/graph"
	"github.com/DavidMGG/geneaflow/pkg/storage"
)

// LegacyMaxExpansions is the historical traversal cap. The engine no longer
// depends on it for termination (the visited set is what stops the walk),
// but Config.MaxExpansions can restore a cap as an anomaly guard.
const LegacyMaxExpansions = 200

// AssertNoCycleOnAssignParent checks whether making candidateParent a
// biological parent of child would close a cycle: it walks the ancestor
// closure of candidateParent breadth-first and fails if child is ever
// reached. The visited set guarantees termination on any finite tree, so
// arbitrarily deep ancestries are walked in full.
//
// Dangling parent references (a parent id whose record is missing or
// deleted) are skipped rather than failed: the walk is a reachability
// question, not an integrity audit.
func (e *Engine) AssertNoCycleOnAssignParent(treeID storage.TreeID, child, candidateParent storage.PersonID) error {
	visited := map[storage.PersonID]bool{}
	queue := []storage.PersonID{candidateParent}
	expansions := 0

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		if current == child {
			return fmt.Errorf("%s is an ancestor of %s: %w", child, candidateParent, ErrGenealogicalCycle)
		}

		expansions++
		if e.cfg.MaxExpansions > 0 && expansions > e.cfg.MaxExpansions {
			return nil
		}

		rel, err := e.graph.Relations(treeID, current)
		if err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				continue
			}
			return err
		}
		if rel.FatherID != "" {
			queue = append(queue, rel.FatherID)
		}
		if rel.MotherID != "" {
			queue = append(queue, rel.MotherID)
		}
	}
	return nil
}
