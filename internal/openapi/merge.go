package openapi

import (
	"fmt"
	"strings"
)

// MergePolicy decides what happens when two tools map the same path.
type MergePolicy int

const (
	// MergeLastWins keeps the later tool's entry and records the shadowing.
	MergeLastWins MergePolicy = iota
	// MergeStrict rejects the merge on the first collision.
	MergeStrict
)

// String implements fmt.Stringer.
func (p MergePolicy) String() string {
	if p == MergeStrict {
		return "strict"
	}
	return "last-wins"
}

// CollisionError reports a path mapped by two tools under MergeStrict.
type CollisionError struct {
	Path     string
	Existing string
	Incoming string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("route %s is mapped to both %s and %s", e.Path, e.Existing, e.Incoming)
}

// DuplicateFunctionError reports function names defined more than once
// under MergeStrict.
type DuplicateFunctionError struct {
	Names []string
}

func (e *DuplicateFunctionError) Error() string {
	return "duplicate function names: " + strings.Join(e.Names, ", ")
}

// MergeRouteMaps folds maps into one in argument order. Under MergeLastWins a
// later map overwrites an earlier entry for the same path and the overwrite
// is reported in the returned slice.
func MergeRouteMaps(policy MergePolicy, maps ...RouteMap) (RouteMap, []Shadowed, error) {
	merged := make(RouteMap)
	var shadowed []Shadowed
	for _, m := range maps {
		for _, path := range m.Paths() {
			op := m[path]
			if prev, ok := merged[path]; ok {
				if policy == MergeStrict {
					return nil, nil, &CollisionError{Path: path, Existing: prev, Incoming: op}
				}
				shadowed = append(shadowed, Shadowed{Path: path, Previous: prev, Winner: op})
			}
			merged[path] = op
		}
	}
	return merged, shadowed, nil
}
