package markdown

import (
	"bytes"
	"fmt"

	"github.com/adrg/frontmatter"
)

// FrontMatter is the optional metadata block at the top of an essay.
type FrontMatter struct {
	Title       string         `yaml:"title" toml:"title" json:"title"`
	Description string         `yaml:"description" toml:"description" json:"description"`
	Custom      map[string]any `yaml:",inline" toml:"-" json:"-"`
}

// SplitFrontMatter separates metadata from the Markdown body. Sources with
// no front matter come back unchanged with a zero FrontMatter.
func SplitFrontMatter(src []byte) (FrontMatter, []byte, error) {
	var meta FrontMatter
	body, err := frontmatter.Parse(bytes.NewReader(src), &meta)
	if err != nil {
		return FrontMatter{}, nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	return meta, body, nil
}
