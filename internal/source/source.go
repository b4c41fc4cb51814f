package source

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned when no candidate file exists for a path.
var ErrNotFound = errors.New("essay not found")

// Document is a fetched Markdown essay.
type Document struct {
	Markdown []byte
	// Path is the resolved file path with a leading slash and no ".md" suffix.
	Path string
	URL  string
	SHA  string
}

// Source fetches essay Markdown from a repository.
type Source interface {
	Fetch(ctx context.Context, acct, repo, ref, path string) (*Document, error)
}

// Candidates lists the files tried, in order, for a requested path.
func Candidates(p string) []string {
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	switch {
	case strings.HasSuffix(p, ".md"):
		return []string{p}
	case strings.HasSuffix(p, "/"):
		return []string{p + "README.md", p + "index.md"}
	default:
		return []string{p + ".md", p + "/README.md", p + "/index.md"}
	}
}

// EssayPath normalizes a resolved file path for use as the essay name.
func EssayPath(file string) string {
	file = path.Clean("/" + file)
	return strings.TrimSuffix(file, ".md")
}
