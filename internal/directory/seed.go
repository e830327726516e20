// Package directory loads the department and provider mirror from a YAML seed file.
package directory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/pkg/schedule"
)

type Seed struct {
	Departments []DepartmentSeed `yaml:"departments"`
	Providers   []ProviderSeed   `yaml:"providers"`
}

type DepartmentSeed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type ProviderSeed struct {
	ID             string   `yaml:"id"`
	FirstName      string   `yaml:"firstName"`
	LastName       string   `yaml:"lastName"`
	Role           string   `yaml:"role"`
	Specialization string   `yaml:"specialization"`
	Department     string   `yaml:"department"`
	WorkingDays    []string `yaml:"workingDays"`
	Hours          []string `yaml:"hours"`
	SlotMinutes    int      `yaml:"slotMinutes"`
	Active         *bool    `yaml:"active"`
}

func LoadFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory seed: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse directory seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) Validate() error {
	departments := make(map[string]bool, len(s.Departments))
	for i, d := range s.Departments {
		if d.ID == "" || d.Name == "" {
			return fmt.Errorf("department %d: id and name are required", i)
		}
		if departments[d.ID] {
			return fmt.Errorf("department %q is defined twice", d.ID)
		}
		departments[d.ID] = true
	}

	for i, p := range s.Providers {
		if _, err := p.toModel(); err != nil {
			return fmt.Errorf("provider %d (%s %s): %w", i, p.FirstName, p.LastName, err)
		}
		if !departments[p.Department] {
			return fmt.Errorf("provider %d (%s %s): unknown department %q", i, p.FirstName, p.LastName, p.Department)
		}
	}
	return nil
}

func (p ProviderSeed) toModel() (*model.Provider, error) {
	if p.FirstName == "" && p.LastName == "" {
		return nil, fmt.Errorf("name is required")
	}

	provider := &model.Provider{
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Role:           model.ProviderRole(strings.ToLower(p.Role)),
		Specialization: p.Specialization,
		DepartmentID:   p.Department,
		SlotMinutes:    p.SlotMinutes,
		IsActive:       p.Active == nil || *p.Active,
	}
	if provider.Role == "" {
		provider.Role = model.ProviderRoleDoctor
	}

	if p.ID != "" {
		id, err := uuid.Parse(p.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid id: %w", err)
		}
		provider.ID = id
	} else {
		// stable across reloads so upserts do not duplicate
		provider.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.Department+"/"+p.FirstName+"/"+p.LastName))
	}

	for _, day := range p.WorkingDays {
		wd, err := schedule.ParseWeekday(day)
		if err != nil {
			return nil, err
		}
		provider.WorkingDays = append(provider.WorkingDays, wd)
	}
	for _, h := range p.Hours {
		w, err := schedule.ParseRange(h)
		if err != nil {
			return nil, err
		}
		provider.Hours = append(provider.Hours, w)
	}

	if err := provider.Catalog().Validate(); err != nil {
		return nil, err
	}
	return provider, nil
}

// Apply upserts the seed into repo and returns the number of providers written.
func (s *Seed) Apply(ctx context.Context, repo repository.DirectoryRepository) (int, error) {
	for _, d := range s.Departments {
		if err := repo.UpsertDepartment(ctx, &model.Department{ID: d.ID, Name: d.Name}); err != nil {
			return 0, err
		}
	}

	count := 0
	for _, p := range s.Providers {
		provider, err := p.toModel()
		if err != nil {
			return count, err
		}
		if err := repo.UpsertProvider(ctx, provider); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
