package boot

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vietddude/overseer/internal/core/domain"
)

// ErrDependencyCycle is returned when the dependency graph cannot be
// ordered. This is a configuration error: fatal, never retried.
var ErrDependencyCycle = errors.New("dependency cycle detected")

// Waves topologically sorts units into startup waves. Every unit in a
// wave depends only on units in earlier waves, so a wave can start
// concurrently once the previous one is ready. Ties break by tier then
// name to keep boot order deterministic.
func Waves(units []*domain.Unit) ([][]string, error) {
	byName := make(map[string]*domain.Unit, len(units))
	indegree := make(map[string]int, len(units))
	dependents := make(map[string][]string)

	for _, u := range units {
		byName[u.Name] = u
		indegree[u.Name] = 0
	}
	for _, u := range units {
		for _, dep := range u.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("unit %s depends on unknown unit %s", u.Name, dep)
			}
			indegree[u.Name]++
			dependents[dep] = append(dependents[dep], u.Name)
		}
	}

	var waves [][]string
	placed := 0

	frontier := make([]string, 0, len(units))
	for name, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, name)
		}
	}

	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool {
			a, b := byName[frontier[i]], byName[frontier[j]]
			if a.Tier != b.Tier {
				return a.Tier < b.Tier
			}
			return a.Name < b.Name
		})
		waves = append(waves, frontier)
		placed += len(frontier)

		var next []string
		for _, name := range frontier {
			for _, dep := range dependents[name] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}

	if placed != len(units) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: %v", ErrDependencyCycle, stuck)
	}
	return waves, nil
}
