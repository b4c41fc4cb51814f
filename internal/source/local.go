package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// Local reads essays from a directory tree. Account, repository and ref are
// ignored.
type Local struct {
	root string
}

func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) Fetch(ctx context.Context, _, _, _, p string) (*Document, error) {
	for _, candidate := range Candidates(p) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		full := filepath.Join(l.root, filepath.FromSlash(path.Clean(candidate)))
		info, err := os.Stat(full)
		if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", candidate, err)
		}
		md, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", candidate, err)
		}
		return &Document{
			Markdown: md,
			Path:     EssayPath(candidate),
			URL:      "file://" + full,
		}, nil
	}
	return nil, fmt.Errorf("fetch %s: %w", p, ErrNotFound)
}
