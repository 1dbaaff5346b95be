package model

import (
	"fmt"
)

// Cardinality describes how a child field stores parent ids.
type Cardinality string

const (
	// CardinalitySingle means the field holds one EntityID.
	CardinalitySingle Cardinality = "single"
	// CardinalityArray means the field holds an array of EntityIDs.
	CardinalityArray Cardinality = "array"
)

// ReferenceRule declares that documents in ChildCollection carry parent ids
// of ParentType at ChildFieldPath. Rules are fixed at process start.
type ReferenceRule struct {
	ParentType      string      `json:"parentType"`
	ChildCollection string      `json:"childCollection"`
	ChildFieldPath  string      `json:"childFieldPath"`
	Cardinality     Cardinality `json:"cardinality"`
}

// Validate checks a single rule for structural completeness.
func (r ReferenceRule) Validate() error {
	if r.ParentType == "" {
		return fmt.Errorf("reference rule: parent type is required")
	}
	if r.ChildCollection == "" {
		return fmt.Errorf("reference rule for %q: child collection is required", r.ParentType)
	}
	if r.ChildFieldPath == "" {
		return fmt.Errorf("reference rule for %q on %q: child field path is required", r.ParentType, r.ChildCollection)
	}
	if r.Cardinality != CardinalitySingle && r.Cardinality != CardinalityArray {
		return fmt.Errorf("reference rule for %q on %q: invalid cardinality %q", r.ParentType, r.ChildCollection, r.Cardinality)
	}
	return nil
}

// Catalog is the process-wide, read-only set of reference rules. It is built
// once at startup and never mutated afterwards, so lookups need no locking.
type Catalog struct {
	byParent map[string][]ReferenceRule
}

// NewCatalog builds a catalog from the given rules. It rejects invalid rules
// and duplicate (childCollection, childFieldPath) pairs for the same parent,
// so misdeclared relationships fail at startup rather than at request time.
func NewCatalog(rules ...ReferenceRule) (*Catalog, error) {
	byParent := make(map[string][]ReferenceRule)
	seen := make(map[string]struct{})

	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		key := rule.ParentType + "\x00" + rule.ChildCollection + "\x00" + rule.ChildFieldPath
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate reference rule: %s -> %s.%s",
				rule.ParentType, rule.ChildCollection, rule.ChildFieldPath)
		}
		seen[key] = struct{}{}
		byParent[rule.ParentType] = append(byParent[rule.ParentType], rule)
	}

	return &Catalog{byParent: byParent}, nil
}

// RulesFor returns the rules declared for a parent type. The returned slice
// must be treated as read-only.
func (c *Catalog) RulesFor(parentType string) []ReferenceRule {
	return c.byParent[parentType]
}

// HasParentType reports whether any rule is declared for the parent type.
func (c *Catalog) HasParentType(parentType string) bool {
	_, ok := c.byParent[parentType]
	return ok
}

// ParentTypes returns every declared parent type.
func (c *Catalog) ParentTypes() []string {
	types := make([]string, 0, len(c.byParent))
	for t := range c.byParent {
		types = append(types, t)
	}
	return types
}
