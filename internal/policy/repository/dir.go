package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"clavionx/backend/internal/policy/domain"
)

// DirRepository reads *.rego files from a directory. Files whose name starts with "_" are disabled.
type DirRepository struct {
	dir string
}

// NewDirRepository returns a repository over dir. An empty dir yields no policies.
func NewDirRepository(dir string) *DirRepository {
	return &DirRepository{dir: dir}
}

// ListEnabled returns the enabled modules sorted by file name.
func (r *DirRepository) ListEnabled(ctx context.Context) ([]*domain.Policy, error) {
	if r.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read policy dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".rego" || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]*domain.Policy, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := os.ReadFile(filepath.Join(r.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read policy %s: %w", name, err)
		}
		out = append(out, &domain.Policy{Name: name, Rules: string(b), Enabled: true})
	}
	return out, nil
}
