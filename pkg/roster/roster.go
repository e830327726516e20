// Package roster narrows provider lists by department, activity and availability.
package roster

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
)

// FilterByDepartment keeps providers of the department. An empty department keeps everyone.
func FilterByDepartment(providers []*model.Provider, department string) []*model.Provider {
	if department == "" {
		return providers
	}
	out := make([]*model.Provider, 0, len(providers))
	for _, p := range providers {
		if strings.EqualFold(p.DepartmentID, department) {
			out = append(out, p)
		}
	}
	return out
}

func FilterActive(providers []*model.Provider) []*model.Provider {
	out := make([]*model.Provider, 0, len(providers))
	for _, p := range providers {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out
}

// FilterAvailable drops every provider marked busy.
func FilterAvailable(providers []*model.Provider, busy map[uuid.UUID]bool) []*model.Provider {
	out := make([]*model.Provider, 0, len(providers))
	for _, p := range providers {
		if !busy[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// SortByName orders providers by last then first name. Ties fall back to ID so the
// order is stable between calls.
func SortByName(providers []*model.Provider) []*model.Provider {
	out := make([]*model.Provider, len(providers))
	copy(out, providers)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID.String() < b.ID.String()
	})
	return out
}
