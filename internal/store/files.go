package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/BaCuaBan77/Portfolio-generator/internal/models"
)

// File names inside the config directory.
const (
	PortfolioJSON  = "portfolio.json"
	PortfolioYAML  = "portfolio.yaml"
	PortfolioYML   = "portfolio.yml"
	ProjectsFile   = "projects.json"
	CustomCSSFile  = "custom.css"
	ProfilePicDir  = "profile-pic"
	ProfilePicPath = "/config/profile-pic/"
)

var imageFileRe = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)

// FileStore implements ConfigStore over a directory of hand-edited files.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.Dir, name)
}

// ReadPortfolio loads portfolio.yaml (or .yml) when present, otherwise
// portfolio.json. The profile picture URL is filled in when the file leaves
// it empty.
func (s *FileStore) ReadPortfolio(ctx context.Context) (*models.Portfolio, error) {
	p, err := s.loadPortfolio()
	if err != nil {
		return nil, err
	}
	if p.GitHubUsername == "" {
		return nil, fmt.Errorf("portfolio: githubUsername is required")
	}
	if p.ProfilePictureURL == "" {
		p.ProfilePictureURL = s.ProfilePictureURL(p.GitHubUsername)
	}
	return p, nil
}

func (s *FileStore) loadPortfolio() (*models.Portfolio, error) {
	var p models.Portfolio
	for _, name := range []string{PortfolioYAML, PortfolioYML} {
		data, err := os.ReadFile(s.path(name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return &p, nil
	}

	data, err := os.ReadFile(s.path(PortfolioJSON))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", PortfolioJSON, err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", PortfolioJSON, err)
	}
	return &p, nil
}

// ProfilePictureURL returns the first image in the profile-pic directory as a
// served path, falling back to the GitHub avatar.
func (s *FileStore) ProfilePictureURL(githubUsername string) string {
	entries, err := os.ReadDir(s.path(ProfilePicDir))
	if err == nil {
		var names []string
		for _, e := range entries {
			if !e.IsDir() && imageFileRe.MatchString(e.Name()) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		if len(names) > 0 {
			return ProfilePicPath + names[0]
		}
	}
	if githubUsername == "" {
		return ""
	}
	return "https://github.com/" + githubUsername + ".png?size=420"
}

// ReadProjects returns the stored projects. A missing file, or one that is
// not a JSON array, is treated as an empty list. Records are decoded one at a
// time; a record with mistyped fields is kept verbatim and logged.
func (s *FileStore) ReadProjects(ctx context.Context) ([]models.Project, error) {
	data, err := os.ReadFile(s.path(ProjectsFile))
	if err != nil {
		return []models.Project{}, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return []models.Project{}, nil
	}

	projects := make([]models.Project, 0, len(records))
	for i, rec := range records {
		p, err := models.DecodeProject(rec)
		if err != nil {
			slog.Warn("project record kept verbatim", "index", i, "id", p.ID, "category", p.Category, "error", err)
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// WriteProjects writes projects as indented JSON to a temp file in the same
// directory and renames it over projects.json.
func (s *FileStore) WriteProjects(ctx context.Context, projects []models.Project) error {
	if projects == nil {
		projects = []models.Project{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(projects); err != nil {
		return fmt.Errorf("encode projects: %w", err)
	}

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".projects-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", ProjectsFile, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", ProjectsFile, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", ProjectsFile, err)
	}
	if err := os.Rename(tmpName, s.path(ProjectsFile)); err != nil {
		return fmt.Errorf("replace %s: %w", ProjectsFile, err)
	}
	return nil
}

// ReadCustomCSS returns custom.css, or "" if there is none.
func (s *FileStore) ReadCustomCSS(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.path(CustomCSSFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", CustomCSSFile, err)
	}
	return string(data), nil
}
