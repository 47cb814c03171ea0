// Package markdown pulls portfolio metadata out of README files: the summary
// sections, the first image, and the declared technology list.
package markdown

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Recognized summary headings, in priority order.
const (
	HeadingAbstract           = "Abstract"
	HeadingOverview           = "Overview"
	HeadingDescription        = "Description"
	HeadingProjectDescription = "Project Description"
)

// TechnologyHeadings name the section that lists a project's stack.
var TechnologyHeadings = []string{"Technologies", "Technology", "Tech Stack", "Built With", "Stack"}

const (
	maxTechnologies = 20
	maxTechLength   = 50
	rawContentHost  = "https://raw.githubusercontent.com"
)

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})[ \t]+(.*?)[ \t]*$`)
	fenceRe    = regexp.MustCompile("(?s)```.*?```")
	htmlImgRe  = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["'][^>]*>`)
	mdImageRe  = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)
	mdLinkRe   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	inlineCode = regexp.MustCompile("`([^`]+)`")
	tokenSepRe = regexp.MustCompile(`[,\n]`)
)

type heading struct {
	level int
	title string
}

// parseHeading reports the ATX heading on line, if any.
func parseHeading(line string) (heading, bool) {
	m := headingRe.FindStringSubmatch(line)
	if m == nil {
		return heading{}, false
	}
	return heading{level: len(m[1]), title: m[2]}, true
}

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

// fenced marks the lines that belong to a closed code fence, fence lines
// included. An opening fence with no closing fence is ordinary text.
func fenced(lines []string) []bool {
	mask := make([]bool, len(lines))
	open := -1
	for i, line := range lines {
		if !isFence(line) {
			continue
		}
		if open < 0 {
			open = i
			continue
		}
		for j := open; j <= i; j++ {
			mask[j] = true
		}
		open = -1
	}
	return mask
}

// section returns the raw body under the first level-2/3 heading titled name.
// The body ends before the next level-1/2/3 heading outside a code fence.
func section(md, name string) (string, bool) {
	lines := strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n")
	inFence := fenced(lines)

	start := -1
	for i, line := range lines {
		if inFence[i] {
			continue
		}
		h, ok := parseHeading(line)
		if !ok {
			continue
		}
		if start >= 0 {
			if h.level <= 3 {
				return strings.Join(lines[start:i], "\n"), true
			}
			continue
		}
		if (h.level == 2 || h.level == 3) && strings.EqualFold(h.title, name) {
			start = i + 1
		}
	}
	if start < 0 {
		return "", false
	}
	return strings.Join(lines[start:], "\n"), true
}

// ExtractSection returns the trimmed body of the first heading in names that
// has a non-empty body. Names are tried in the order given, so callers list
// the preferred heading first.
func ExtractSection(md string, names ...string) string {
	for _, name := range names {
		body, ok := section(md, name)
		if !ok {
			continue
		}
		if body = strings.TrimSpace(body); body != "" {
			return body
		}
	}
	return ""
}

// ExtractAbstract returns the "Abstract" section.
func ExtractAbstract(md string) string { return ExtractSection(md, HeadingAbstract) }

// ExtractOverview returns the "Overview" section.
func ExtractOverview(md string) string { return ExtractSection(md, HeadingOverview) }

// ExtractDescription returns the "Description" section.
func ExtractDescription(md string) string { return ExtractSection(md, HeadingDescription) }

// ExtractProjectDescription returns the "Project Description" section.
func ExtractProjectDescription(md string) string {
	return ExtractSection(md, HeadingProjectDescription)
}

// ExtractFirstImage returns the first image path in the document, or "" if
// there is none. An HTML <img> tag anywhere wins over Markdown image syntax;
// Markdown images inside fenced code blocks are ignored.
func ExtractFirstImage(md string) string {
	if m := htmlImgRe.FindStringSubmatch(md); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := mdImageRe.FindStringSubmatch(fenceRe.ReplaceAllString(md, "")); m != nil {
		return strings.TrimSpace(m[2])
	}
	return ""
}

// stripInline reduces Markdown inline syntax to plain text: images are
// dropped, links keep their text, code spans lose their backticks.
func stripInline(s string) string {
	s = mdImageRe.ReplaceAllString(s, "")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = inlineCode.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

func validTech(s string) bool {
	n := utf8.RuneCountInString(s)
	return n > 0 && n < maxTechLength
}

// ExtractTechnologies reads the technology section. Bullet items are used
// when present; otherwise the section is split on commas and newlines.
func ExtractTechnologies(md string) []string {
	body := ExtractSection(md, TechnologyHeadings...)
	if body == "" {
		return nil
	}

	var techs []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		item, ok := strings.CutPrefix(line, "- ")
		if !ok {
			item, ok = strings.CutPrefix(line, "* ")
		}
		if !ok {
			continue
		}
		if tech := stripInline(item); validTech(tech) {
			techs = append(techs, tech)
		}
	}

	if len(techs) == 0 {
		for _, tok := range tokenSepRe.Split(stripInline(body), -1) {
			if tok = strings.TrimSpace(tok); validTech(tok) {
				techs = append(techs, tok)
			}
		}
	}

	if len(techs) > maxTechnologies {
		techs = techs[:maxTechnologies]
	}
	return techs
}

// ResolveImageURL turns a repository-relative image path into a raw content
// URL. Absolute http(s) URLs are returned unchanged.
func ResolveImageURL(path, owner, repo, branch string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	clean, ok := strings.CutPrefix(path, "./")
	if !ok {
		clean = strings.TrimPrefix(path, "/")
	}
	return strings.Join([]string{rawContentHost, owner, repo, branch, clean}, "/")
}
