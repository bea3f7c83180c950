// Package workflowdef's PinnedWorkflowStore wraps the generic CAS
// (snapshot.Store) with the structural validation spec.md §1 assigns to
// workflow source loaders: a pinned definition must satisfy its schema
// before it is ever allowed to become the frozen reference a run's
// lifetime depends on (spec.md §3.4, §9 "pinned workflow").
package workflowdef

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/workrail/engine/snapshot"
)

// PinnedWorkflowStore is the content-addressed store of frozen workflow
// definitions, keyed by workflowHash.
type PinnedWorkflowStore struct {
	cas    *snapshot.Store
	schema *jsonschema.Schema
}

// NewPinnedWorkflowStore wraps cas. schemaJSON is optional; when nil, Put
// skips structural validation (useful for fixture providers in tests and
// demos that have no schema of their own).
func NewPinnedWorkflowStore(cas *snapshot.Store, schemaJSON []byte) (*PinnedWorkflowStore, error) {
	s := &PinnedWorkflowStore{cas: cas}
	if len(schemaJSON) == 0 {
		return s, nil
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return nil, fmt.Errorf("workflowdef: unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("pinned_workflow.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("workflowdef: add schema resource: %w", err)
	}
	schema, err := c.Compile("pinned_workflow.json")
	if err != nil {
		return nil, fmt.Errorf("workflowdef: compile schema: %w", err)
	}
	s.schema = schema
	return s, nil
}

// Put canonicalizes, validates (if a schema is configured), and durably
// writes pinned, returning its workflowHash ref. A structurally invalid
// definition is never written: the CAS must never hold a pin a run could
// later fail to interpret.
func (s *PinnedWorkflowStore) Put(pinned PinnedWorkflowV1) (workflowHash string, err error) {
	if s.schema != nil {
		b, err := json.Marshal(pinned)
		if err != nil {
			return "", fmt.Errorf("workflowdef: marshal for validation: %w", err)
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return "", fmt.Errorf("workflowdef: unmarshal for validation: %w", err)
		}
		if err := s.schema.Validate(doc); err != nil {
			return "", fmt.Errorf("workflowdef: pinned workflow failed schema validation: %w", err)
		}
	}
	return s.cas.Put(pinned)
}

// Get returns the canonical bytes of the pinned workflow at ref; callers
// that need the typed PinnedWorkflowV1 shape decode them themselves.
func (s *PinnedWorkflowStore) Get(ref string) ([]byte, error) {
	return s.cas.Get(ref)
}
