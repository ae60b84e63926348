package main

import (
	"strings"
	"testing"
	"time"

	"github.com/weftworks/weft/pkg/models"
)

func TestParsePlan(t *testing.T) {
	data := []byte(`
items:
  - id: schema
    name: Design schema
    priority: 2
    estimated_duration: 30s
    resources:
      - id: db
        type: database
        exclusive: true
  - id: migrate
    depends_on: [schema]
    optional_after: [schema]
`)

	items, err := parsePlan(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	schema := items[0]
	if schema.Priority != 2 || schema.EstimatedDuration != 30*time.Second {
		t.Errorf("schema fields not parsed: priority=%d duration=%v", schema.Priority, schema.EstimatedDuration)
	}
	if len(schema.Requires) != 1 || !schema.Requires[0].Exclusive || schema.Requires[0].Type != models.ResourceDatabase {
		t.Errorf("schema resources not parsed: %+v", schema.Requires)
	}

	migrate := items[1]
	if migrate.Name != "migrate" {
		t.Errorf("missing name should default to id, got %q", migrate.Name)
	}
	if migrate.Priority != 5 {
		t.Errorf("missing priority should default to 5, got %d", migrate.Priority)
	}
	if len(migrate.Dependencies) != 2 {
		t.Fatalf("expected 2 dependency edges, got %d", len(migrate.Dependencies))
	}
	if !migrate.Dependencies[0].Critical || migrate.Dependencies[0].Kind != models.DependencyRequires {
		t.Errorf("depends_on must produce a critical requires edge: %+v", migrate.Dependencies[0])
	}
	if migrate.Dependencies[1].Critical || migrate.Dependencies[1].Kind != models.DependencyOptional {
		t.Errorf("optional_after must produce a non-critical optional edge: %+v", migrate.Dependencies[1])
	}
}

func TestParsePlanErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "items: []", "no items"},
		{"missing id", "items:\n  - name: x", "missing id"},
		{"duplicate id", "items:\n  - id: a\n  - id: a", "duplicate item id"},
		{"bad priority", "items:\n  - id: a\n    priority: 11", "priority must be 1-10"},
		{"bad duration", "items:\n  - id: a\n    estimated_duration: fast", "bad estimated_duration"},
		{"bad resource type", "items:\n  - id: a\n    resources:\n      - id: r\n        type: gpu", "unknown resource type"},
		{"unknown dependency", "items:\n  - id: a\n    depends_on: [ghost]", "unknown item"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePlan([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
