package models

// SocialLinks are optional profile links shown in the page header.
type SocialLinks struct {
	LinkedIn string `json:"linkedin,omitempty" yaml:"linkedin,omitempty"`
	Twitter  string `json:"twitter,omitempty" yaml:"twitter,omitempty"`
	Website  string `json:"website,omitempty" yaml:"website,omitempty"`
}

// Experience is one entry of the work timeline.
type Experience struct {
	Company      string   `json:"company" yaml:"company"`
	Position     string   `json:"position" yaml:"position"`
	StartDate    string   `json:"startDate" yaml:"startDate"`
	EndDate      string   `json:"endDate" yaml:"endDate"`
	Description  string   `json:"description" yaml:"description"`
	Achievements []string `json:"achievements,omitempty" yaml:"achievements,omitempty"`
}

// SkillGroup is a named list of skills.
type SkillGroup struct {
	Category string   `json:"category" yaml:"category"`
	Items    []string `json:"items" yaml:"items"`
}

// Certification is a single certificate with a verification link.
type Certification struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	URL         string `json:"url" yaml:"url"`
}

// Education is one entry of the education timeline.
type Education struct {
	School    string `json:"school" yaml:"school"`
	Degree    string `json:"degree" yaml:"degree"`
	StartDate string `json:"startDate" yaml:"startDate"`
	EndDate   string `json:"endDate" yaml:"endDate"`
}

// Portfolio is the hand-edited profile. The sync only reads GitHubUsername.
type Portfolio struct {
	Name              string          `json:"name" yaml:"name"`
	Title             string          `json:"title" yaml:"title"`
	ShortBio          string          `json:"shortBio,omitempty" yaml:"shortBio,omitempty"`
	Motto             string          `json:"motto,omitempty" yaml:"motto,omitempty"`
	Bio               string          `json:"bio" yaml:"bio"`
	Email             string          `json:"email" yaml:"email"`
	GitHubUsername    string          `json:"githubUsername" yaml:"githubUsername"`
	ProfilePictureURL string          `json:"profilePictureUrl,omitempty" yaml:"profilePictureUrl,omitempty"`
	Domains           []string        `json:"domains,omitempty" yaml:"domains,omitempty"`
	Skills            []SkillGroup    `json:"skills,omitempty" yaml:"skills,omitempty"`
	Experience        []Experience    `json:"experience,omitempty" yaml:"experience,omitempty"`
	SocialLinks       SocialLinks     `json:"socialLinks" yaml:"socialLinks"`
	Certifications    []Certification `json:"certifications,omitempty" yaml:"certifications,omitempty"`
	Education         []Education     `json:"education,omitempty" yaml:"education,omitempty"`
}
