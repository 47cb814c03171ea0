package refresh

import (
	"maps"
	"slices"
	"strconv"

	"github.com/BaCuaBan77/Portfolio-generator/internal/github"
	"github.com/BaCuaBan77/Portfolio-generator/internal/markdown"
	"github.com/BaCuaBan77/Portfolio-generator/internal/models"
)

// BuildProject creates a personal project from fresh repository metadata and
// parsed README content. README technologies win over repository topics.
func BuildProject(repo github.Repo, parsed markdown.ParsedReadme) models.Project {
	techs := parsed.Technologies
	if len(techs) == 0 {
		techs = repo.Topics
	}

	return models.Project{
		ID:       strconv.FormatInt(repo.ID, 10),
		Name:     repo.Name,
		Category: models.CategoryPersonal,

		Description: repo.Description,
		Language:    repo.Language,
		Stars:       repo.StargazersCount,
		Topics:      slices.Clone(repo.Topics),
		GitHubURL:   repo.HTMLURL,
		UpdatedAt:   repo.UpdatedAt,
		CreatedAt:   repo.CreatedAt,

		Abstract:           parsed.Abstract,
		Overview:           parsed.Overview,
		ReadmeDescription:  parsed.Description,
		ProjectDescription: parsed.ProjectDescription,
		Image:              parsed.ImageURL,
		Technologies:       slices.Clone(techs),
	}
}

// Merge returns candidate with the manual fields of existing carried over.
// GitHub and README fields always come from candidate. Neither argument is
// modified.
func Merge(candidate models.Project, existing *models.Project) models.Project {
	out := candidate
	out.Topics = slices.Clone(candidate.Topics)
	out.Technologies = slices.Clone(candidate.Technologies)
	out.Extra = nil

	if existing == nil {
		return out
	}
	out.LiveURL = existing.LiveURL
	if len(existing.Extra) > 0 {
		out.Extra = maps.Clone(existing.Extra)
	}
	return out
}
