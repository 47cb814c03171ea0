package models

import (
	"cmp"
	"slices"
	"time"
)

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SortPersonal orders projects by stars, then last update, then creation,
// all descending. The input is not modified.
func SortPersonal(projects []Project) []Project {
	out := slices.Clone(projects)
	slices.SortStableFunc(out, func(a, b Project) int {
		if c := cmp.Compare(b.Stars, a.Stars); c != 0 {
			return c
		}
		if c := parseTime(b.UpdatedAt).Compare(parseTime(a.UpdatedAt)); c != 0 {
			return c
		}
		return parseTime(b.CreatedAt).Compare(parseTime(a.CreatedAt))
	})
	return out
}

// SortProfessional orders projects by last update, newest first.
func SortProfessional(projects []Project) []Project {
	out := slices.Clone(projects)
	slices.SortStableFunc(out, func(a, b Project) int {
		return parseTime(b.UpdatedAt).Compare(parseTime(a.UpdatedAt))
	})
	return out
}

// SortForDisplay returns professional projects followed by personal ones,
// each group in display order. Projects of any other category are dropped.
func SortForDisplay(projects []Project) []Project {
	var professional, personal []Project
	for _, p := range projects {
		switch p.Category {
		case CategoryProfessional:
			professional = append(professional, p)
		case CategoryPersonal:
			personal = append(personal, p)
		}
	}
	out := make([]Project, 0, len(professional)+len(personal))
	out = append(out, SortProfessional(professional)...)
	return append(out, SortPersonal(personal)...)
}

// FindProject returns the project whose ID, or failing that name, equals key.
func FindProject(projects []Project, key string) (*Project, bool) {
	for i := range projects {
		if projects[i].ID == key {
			return &projects[i], true
		}
	}
	for i := range projects {
		if projects[i].Name == key {
			return &projects[i], true
		}
	}
	return nil, false
}
