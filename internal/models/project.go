package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ProjectCategory separates hand-maintained projects from GitHub-derived ones.
type ProjectCategory string

const (
	CategoryProfessional ProjectCategory = "professional"
	CategoryPersonal     ProjectCategory = "personal"
)

// Valid reports whether c is one of the two known categories.
func (c ProjectCategory) Valid() bool {
	return c == CategoryProfessional || c == CategoryPersonal
}

// Project is a single portfolio entry as persisted in projects.json.
//
// Personal projects are rebuilt from GitHub on every sync. Fields that neither
// GitHub nor the README supply (LiveURL and any unknown keys kept in Extra) are
// carried forward from the previous record.
type Project struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category ProjectCategory `json:"category"`

	// GitHub repository metadata.
	Description string   `json:"description"`
	Language    string   `json:"language,omitempty"`
	Stars       int      `json:"stars,omitempty"`
	Topics      []string `json:"topics,omitempty"`
	GitHubURL   string   `json:"githubUrl"`
	UpdatedAt   string   `json:"updatedAt"`
	CreatedAt   string   `json:"createdAt"`

	// README sections.
	Abstract           string   `json:"abstract"`
	Overview           string   `json:"overview,omitempty"`
	ReadmeDescription  string   `json:"readmeDescription,omitempty"`
	ProjectDescription string   `json:"projectDescription,omitempty"`
	Image              string   `json:"image,omitempty"`
	Technologies       []string `json:"technologies"`

	// Manual fields.
	LiveURL string `json:"liveUrl,omitempty"`

	// Extra holds keys not modelled above so hand edits survive a rewrite.
	Extra map[string]json.RawMessage `json:"-"`

	// raw is the record as it was read. Non-personal projects are written
	// back from it byte for byte.
	raw json.RawMessage
}

// projectFields is the set of JSON keys owned by Project's struct fields.
var projectFields = map[string]bool{
	"id": true, "name": true, "category": true,
	"description": true, "language": true, "stars": true, "topics": true,
	"githubUrl": true, "updatedAt": true, "createdAt": true,
	"abstract": true, "overview": true, "readmeDescription": true,
	"projectDescription": true, "image": true, "technologies": true,
	"liveUrl": true,
}

type projectAlias Project

// MarshalJSON writes the known fields in declaration order followed by Extra
// keys in sorted order, so identical projects always encode identically. A
// professional project that was read from disk encodes as the bytes it was
// read from.
func (p Project) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 && !p.IsPersonal() {
		return p.raw, nil
	}
	a := projectAlias(p)
	if a.Technologies == nil {
		a.Technologies = []string{}
	}
	base, err := marshalNoEscape(a)
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}

	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		if !projectFields[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(p.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalNoEscape is json.Marshal without HTML escaping, so "&" in README
// text stays readable in projects.json.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON decodes the known fields and keeps everything else in Extra.
func (p *Project) UnmarshalJSON(data []byte) error {
	var a projectAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode project keys: %w", err)
	}
	for k := range raw {
		if projectFields[k] {
			delete(raw, k)
		}
	}
	if len(raw) == 0 {
		raw = nil
	}

	*p = Project(a)
	p.Extra = raw
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// DecodeProject decodes one projects.json record. When the record does not
// fit Project's field types it is still returned, holding only the id, name
// and category that could be read, and it encodes as the original bytes. The
// decode error is returned alongside it.
func DecodeProject(data []byte) (Project, error) {
	var p Project
	err := json.Unmarshal(data, &p)
	if err == nil {
		return p, nil
	}

	p = Project{raw: append(json.RawMessage(nil), data...)}
	var keys map[string]json.RawMessage
	if json.Unmarshal(data, &keys) == nil {
		_ = json.Unmarshal(keys["id"], &p.ID)
		_ = json.Unmarshal(keys["name"], &p.Name)
		_ = json.Unmarshal(keys["category"], &p.Category)
	}
	return p, err
}

// IsPersonal reports whether the project is owned by the GitHub sync.
func (p *Project) IsPersonal() bool {
	return p.Category == CategoryPersonal
}

// Summary returns the first non-empty README section, in display priority.
func (p *Project) Summary() string {
	for _, s := range []string{p.Abstract, p.Overview, p.ReadmeDescription, p.ProjectDescription} {
		if s != "" {
			return s
		}
	}
	return p.Description
}
