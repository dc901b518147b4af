// Package git provides the "git" source, which reports the repository root,
// current branch and short revision of a working copy.
package git

import (
	"context"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// shortRevLen matches the abbreviation git uses by default.
const shortRevLen = 7

// GitSource emits {root, branch, rev} under its id.
type GitSource struct {
	entity.Base
	directory string
}

// Produce implements entity.Source. The directory may be anywhere inside
// the working copy.
func (s *GitSource) Produce(ctx context.Context) (*datamap.Map, error) {
	repo, err := gogit.PlainOpenWithOptions(s.directory, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("unable to open git repository at %s: %w", s.directory, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("unable to determine git root: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("unable to determine git revision: %w", err)
	}

	// A detached HEAD reports "HEAD" as its branch, like git rev-parse does.
	info := datamap.New()
	info.Set("root", wt.Filesystem.Root())
	info.Set("branch", head.Name().Short())
	info.Set("rev", head.Hash().String()[:shortRevLen])

	out := datamap.New()
	out.Set(s.ID, info)
	return out, nil
}

// Register registers the source with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSource("git", func(base entity.Base) (entity.Entity, error) {
		dir, err := base.Config.String("directory", ".")
		if err != nil {
			return nil, err
		}
		return &GitSource{Base: base, directory: dir}, nil
	})
}
