package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weftworks/weft/pkg/models"
)

// planFile is the on-disk plan format.
type planFile struct {
	Items []planFileItem `yaml:"items"`
}

type planFileItem struct {
	ID            string             `yaml:"id"`
	Name          string             `yaml:"name"`
	Description   string             `yaml:"description"`
	Priority      int                `yaml:"priority"`
	Duration      string             `yaml:"estimated_duration"`
	DependsOn     []string           `yaml:"depends_on"`
	OptionalAfter []string           `yaml:"optional_after"`
	Tags          []string           `yaml:"tags"`
	Resources     []planFileResource `yaml:"resources"`
}

type planFileResource struct {
	ID        string `yaml:"id"`
	Type      string `yaml:"type"`
	Name      string `yaml:"name"`
	Exclusive bool   `yaml:"exclusive"`
}

// loadPlan reads a plan file and converts it into work items.
func loadPlan(path string) ([]*models.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	return parsePlan(data)
}

func parsePlan(data []byte) ([]*models.WorkItem, error) {
	var plan planFile
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan file: %w", err)
	}
	if len(plan.Items) == 0 {
		return nil, fmt.Errorf("plan file has no items")
	}

	seen := make(map[string]bool, len(plan.Items))
	items := make([]*models.WorkItem, 0, len(plan.Items))

	for i, entry := range plan.Items {
		if entry.ID == "" {
			return nil, fmt.Errorf("item %d: missing id", i)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("duplicate item id %q", entry.ID)
		}
		seen[entry.ID] = true

		item := &models.WorkItem{
			ID:          entry.ID,
			Name:        entry.Name,
			Description: entry.Description,
			Status:      models.ItemStatusPending,
			Priority:    entry.Priority,
			Tags:        entry.Tags,
		}
		if item.Name == "" {
			item.Name = entry.ID
		}
		if item.Priority == 0 {
			item.Priority = 5
		}
		if item.Priority < 1 || item.Priority > 10 {
			return nil, fmt.Errorf("item %s: priority must be 1-10, got %d", entry.ID, item.Priority)
		}

		if entry.Duration != "" {
			d, err := time.ParseDuration(entry.Duration)
			if err != nil {
				return nil, fmt.Errorf("item %s: bad estimated_duration %q: %v", entry.ID, entry.Duration, err)
			}
			item.EstimatedDuration = d
		}

		for _, dep := range entry.DependsOn {
			item.Dependencies = append(item.Dependencies, models.DependencyEdge{
				SourceID: entry.ID,
				TargetID: dep,
				Kind:     models.DependencyRequires,
				Critical: true,
			})
		}
		for _, dep := range entry.OptionalAfter {
			item.Dependencies = append(item.Dependencies, models.DependencyEdge{
				SourceID: entry.ID,
				TargetID: dep,
				Kind:     models.DependencyOptional,
			})
		}

		for _, res := range entry.Resources {
			if res.ID == "" {
				return nil, fmt.Errorf("item %s: resource missing id", entry.ID)
			}
			rt, err := parseResourceType(res.Type)
			if err != nil {
				return nil, fmt.Errorf("item %s: %v", entry.ID, err)
			}
			name := res.Name
			if name == "" {
				name = res.ID
			}
			item.Requires = append(item.Requires, models.ResourceRequirement{
				ResourceID: res.ID,
				Type:       rt,
				Name:       name,
				Exclusive:  res.Exclusive,
			})
		}

		items = append(items, item)
	}

	// Dangling dependency targets would silently never unblock.
	for _, item := range items {
		for _, dep := range item.Dependencies {
			if !seen[dep.TargetID] {
				return nil, fmt.Errorf("item %s depends on unknown item %q", item.ID, dep.TargetID)
			}
		}
	}

	return items, nil
}

func parseResourceType(s string) (models.ResourceType, error) {
	switch rt := models.ResourceType(s); rt {
	case models.ResourceFile, models.ResourceDatabase, models.ResourceAPIEndpoint,
		models.ResourceExternalService, models.ResourceComputational:
		return rt, nil
	case "":
		return models.ResourceFile, nil
	default:
		return "", fmt.Errorf("unknown resource type %q", s)
	}
}
