package markdown

// ParsedReadme is everything the sync takes from a README.
type ParsedReadme struct {
	Abstract           string
	Overview           string
	Description        string
	ProjectDescription string
	// ImageURL is absolute, or "" when the README has no image.
	ImageURL     string
	Technologies []string
}

// HasContent reports whether any summary section is present. A README with
// only an image or a technology list does not qualify.
func (p ParsedReadme) HasContent() bool {
	return p.Abstract != "" || p.Overview != "" || p.Description != "" || p.ProjectDescription != ""
}

// ParseReadme extracts all project info from md. Relative image paths are
// resolved against the repository's raw content at branch.
func ParseReadme(md, owner, repo, branch string) ParsedReadme {
	parsed := ParsedReadme{
		Abstract:           ExtractAbstract(md),
		Overview:           ExtractOverview(md),
		Description:        ExtractDescription(md),
		ProjectDescription: ExtractProjectDescription(md),
		Technologies:       ExtractTechnologies(md),
	}
	if img := ExtractFirstImage(md); img != "" {
		parsed.ImageURL = ResolveImageURL(img, owner, repo, branch)
	}
	return parsed
}
