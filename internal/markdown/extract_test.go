package markdown

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAbstract(t *testing.T) {
	md := "# Project\n\n## Abstract\nHello world\n\n## Next\nignored"
	assert.Equal(t, "Hello world", ExtractAbstract(md))
}

func TestExtractSection_CaseInsensitiveLevel3(t *testing.T) {
	assert.Equal(t, "Lower case", ExtractAbstract("### abstract\nLower case\n"))
}

func TestExtractSection_Level1AndLevel4AreNotSections(t *testing.T) {
	assert.Empty(t, ExtractAbstract("# Abstract\ntext"))
	assert.Empty(t, ExtractAbstract("#### Abstract\ntext"))
}

func TestExtractSection_HeadingOnLastLine(t *testing.T) {
	assert.Empty(t, ExtractAbstract("intro\n## Abstract"))
	assert.Empty(t, ExtractAbstract(""))
}

func TestExtractSection_RunsToEndOfFile(t *testing.T) {
	md := "## Overview\n\nFirst paragraph.\n\nSecond paragraph.\n"
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", ExtractOverview(md))
}

func TestExtractSection_Level4HeadingStaysInside(t *testing.T) {
	md := "## Abstract\nText\n#### Detail\nmore\n### Other\nx"
	assert.Equal(t, "Text\n#### Detail\nmore", ExtractAbstract(md))
}

func TestExtractSection_IgnoresHeadingsInCodeFence(t *testing.T) {
	md := "## Abstract\nRun:\n```sh\n# install\nmake\n```\n## Usage\nx"
	assert.Equal(t, "Run:\n```sh\n# install\nmake\n```", ExtractAbstract(md))
}

func TestExtractSection_UnclosedFenceIsText(t *testing.T) {
	md := "## Abstract\nRun:\n```sh\nmake\n## Usage\nx\n## Overview\nMore"
	assert.Equal(t, "Run:\n```sh\nmake", ExtractAbstract(md))
	assert.Equal(t, "More", ExtractOverview(md))
}

func TestExtractSection_FenceAfterUnclosedPair(t *testing.T) {
	md := "## Abstract\nA\n```\n# not a heading\n```\n## Overview\nB\n```\n"
	assert.Equal(t, "A\n```\n# not a heading\n```", ExtractAbstract(md))
	assert.Equal(t, "B\n```", ExtractOverview(md))
}

func TestExtractSection_CRLF(t *testing.T) {
	md := "## Abstract\r\nWindows text\r\n## Next\r\n"
	assert.Equal(t, "Windows text", ExtractAbstract(md))
}

func TestExtractSection_Priority(t *testing.T) {
	md := "## Overview\nOverview text\n## Abstract\nAbstract text\n"
	assert.Equal(t, "Abstract text", ExtractSection(md, HeadingAbstract, HeadingOverview))
	assert.Equal(t, "Overview text", ExtractSection(md, HeadingOverview, HeadingAbstract))

	// An empty section falls through to the next name.
	md = "## Abstract\n\n## Overview\nOverview text\n"
	assert.Equal(t, "Overview text", ExtractSection(md, HeadingAbstract, HeadingOverview))
}

func TestExtractDescription_ExactTitle(t *testing.T) {
	md := "## Project Description\nLong form\n"
	assert.Empty(t, ExtractDescription(md))
	assert.Equal(t, "Long form", ExtractProjectDescription(md))
}

func TestExtractFirstImage(t *testing.T) {
	tests := []struct {
		name string
		md   string
		want string
	}{
		{"html wins over markdown", "![x](b.png)\n<img src=\"a.png\"/>", "a.png"},
		{"html case insensitive", "<IMG width=\"10\" SRC='logo.svg'>", "logo.svg"},
		{"markdown image", "text\n![Logo](./docs/logo.png)\n![two](two.png)", "./docs/logo.png"},
		{"quotes in alt and spaces in path", "![Image with \"quotes\"](./my image.png)", "./my image.png"},
		{"skips fenced image", "```\n![fake](fake.png)\n```\n![real](real.png)", "real.png"},
		{"none", "# Title\nno images here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFirstImage(tt.md))
		})
	}
}

func TestExtractTechnologies_Bullets(t *testing.T) {
	md := "## Technologies\n- Go\n- [React](https://react.dev)\n* `Docker`\n- ![badge](b.svg) Postgres\n\n## Next\n- not a tech"
	assert.Equal(t, []string{"Go", "React", "Docker", "Postgres"}, ExtractTechnologies(md))
}

func TestExtractTechnologies_AlternateHeadings(t *testing.T) {
	assert.Equal(t, []string{"Go"}, ExtractTechnologies("### Built With\n* Go\n"))
	assert.Equal(t, []string{"Rust"}, ExtractTechnologies("## stack\n- Rust\n"))
}

func TestExtractTechnologies_CommaFallback(t *testing.T) {
	md := "## Tech Stack\nGo, TypeScript\nDocker\n"
	assert.Equal(t, []string{"Go", "TypeScript", "Docker"}, ExtractTechnologies(md))
}

func TestExtractTechnologies_LengthLimit(t *testing.T) {
	long := strings.Repeat("a", 50)
	ok := strings.Repeat("b", 49)
	md := fmt.Sprintf("## Technologies\n- %s\n- %s\n", long, ok)
	assert.Equal(t, []string{ok}, ExtractTechnologies(md))
}

func TestExtractTechnologies_Cap(t *testing.T) {
	var b strings.Builder
	b.WriteString("## Technologies\n")
	for i := 1; i <= 25; i++ {
		fmt.Fprintf(&b, "- Tech %d\n", i)
	}
	techs := ExtractTechnologies(b.String())
	assert.Len(t, techs, 20)
	assert.Equal(t, "Tech 1", techs[0])
	assert.Equal(t, "Tech 20", techs[19])
}

func TestExtractTechnologies_Missing(t *testing.T) {
	assert.Empty(t, ExtractTechnologies("## Abstract\nNo stack listed.\n"))
}

func TestResolveImageURL(t *testing.T) {
	base := "https://raw.githubusercontent.com/u/r/main/"
	assert.Equal(t, base+"img.png", ResolveImageURL("./img.png", "u", "r", "main"))
	assert.Equal(t, base+"docs/a.png", ResolveImageURL("/docs/a.png", "u", "r", "main"))
	assert.Equal(t, base+"assets/a.png", ResolveImageURL("assets/a.png", "u", "r", "main"))
	assert.Equal(t, "https://cdn.example.com/a.png", ResolveImageURL("https://cdn.example.com/a.png", "u", "r", "main"))
}

func TestParseReadme(t *testing.T) {
	md := "# App\n![shot](./screen.png)\n\n## Abstract\nShort.\n\n## Overview\nLonger.\n\n## Technologies\n- Go\n- SQLite\n"
	p := ParseReadme(md, "octo", "app", "develop")

	assert.True(t, p.HasContent())
	assert.Equal(t, "Short.", p.Abstract)
	assert.Equal(t, "Longer.", p.Overview)
	assert.Empty(t, p.Description)
	assert.Equal(t, "https://raw.githubusercontent.com/octo/app/develop/screen.png", p.ImageURL)
	assert.Equal(t, []string{"Go", "SQLite"}, p.Technologies)
}

func TestParseReadme_AbstractOnly(t *testing.T) {
	p := ParseReadme("## Abstract\nJust text.\n", "octo", "app", "main")
	assert.True(t, p.HasContent())
	assert.Empty(t, p.ImageURL)
	assert.Empty(t, p.Technologies)
}

func TestParsedReadme_HasContent(t *testing.T) {
	// Image and technologies alone do not qualify.
	p := ParseReadme("![x](a.png)\n## Technologies\n- Go\n", "octo", "app", "main")
	assert.False(t, p.HasContent())

	for _, p := range []ParsedReadme{
		{Abstract: "a"}, {Overview: "o"}, {Description: "d"}, {ProjectDescription: "pd"},
	} {
		assert.True(t, p.HasContent())
	}
}
