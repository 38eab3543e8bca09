package toolstore

import (
	"fmt"
	"strings"

	"github.com/toolzflow/toolbridge/internal/openapi"
)

// Platform lists the built-in tools.
type Platform interface {
	ToolSpecs() []openapi.ToolSpec
}

// NotFoundError is returned when a selected tool id is unknown.
type NotFoundError struct {
	IDs []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", strings.Join(e.IDs, ", "))
}

// Catalog is the set of selectable tools: platform tools plus the store.
type Catalog struct {
	store    *Store
	platform Platform
}

// NewCatalog combines store and platform. Either may be nil.
func NewCatalog(store *Store, platform Platform) *Catalog {
	return &Catalog{store: store, platform: platform}
}

// All returns platform tools first, then stored tools. A stored tool that
// reuses a platform id is dropped.
func (c *Catalog) All() ([]openapi.ToolSpec, error) {
	var out []openapi.ToolSpec
	seen := make(map[string]bool)
	if c.platform != nil {
		for _, sp := range c.platform.ToolSpecs() {
			seen[sp.ID] = true
			out = append(out, sp)
		}
	}
	if c.store != nil {
		stored, err := c.store.List()
		if err != nil {
			return nil, err
		}
		for _, sp := range stored {
			if !seen[sp.ID] {
				out = append(out, sp)
			}
		}
	}
	return out, nil
}

// Select returns the tools with the given ids in the order given, which is
// the order the compiler merges them in. Unknown ids fail the whole
// selection with a NotFoundError.
func (c *Catalog) Select(ids []string) ([]openapi.ToolSpec, error) {
	all, err := c.All()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]openapi.ToolSpec, len(all))
	for _, sp := range all {
		byID[sp.ID] = sp
	}

	out := make([]openapi.ToolSpec, 0, len(ids))
	var missing []string
	for _, id := range ids {
		sp, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, sp)
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{IDs: missing}
	}
	return out, nil
}
