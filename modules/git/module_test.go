package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowgrid/internal/datamap"
	"github.com/vk/flowgrid/internal/entity"
	"github.com/vk/flowgrid/internal/registry"
)

// initRepo creates a repository on branch trunk with one empty commit and
// returns that commit.
func initRepo(t *testing.T, dir string) plumbing.Hash {
	t.Helper()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("trunk"))
	require.NoError(t, repo.Storer.SetReference(head))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	hash, err := wt.Commit("init", &gogit.CommitOptions{
		AllowEmptyCommits: true,
		Author:            &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash
}

func produce(t *testing.T, dir string) (*datamap.Map, error) {
	t.Helper()
	reg := registry.New(&Module{})
	e, err := reg.Build(entity.SourceKind, entity.Base{Type: "git", ID: "repo", Config: entity.Config{"directory": dir}})
	require.NoError(t, err)
	return e.(entity.Source).Produce(context.Background())
}

func TestGitSource_Produce(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		subdir string
	}{
		{name: "repository root"},
		{name: "nested directory", subdir: filepath.Join("a", "b")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			dir := t.TempDir()
			hash := initRepo(t, dir)
			target := filepath.Join(dir, tc.subdir)
			require.NoError(t, os.MkdirAll(target, 0o755))

			// --- Act ---
			out, err := produce(t, target)

			// --- Assert ---
			require.NoError(t, err)
			v, ok := out.Get("repo")
			require.True(t, ok)
			info := v.(*datamap.Map)
			assert.Equal(t, []string{"root", "branch", "rev"}, info.Keys())

			root, _ := info.Get("root")
			wantRoot, err := filepath.EvalSymlinks(dir)
			require.NoError(t, err)
			gotRoot, err := filepath.EvalSymlinks(root.(string))
			require.NoError(t, err)
			assert.Equal(t, wantRoot, gotRoot)

			branch, _ := info.Get("branch")
			assert.Equal(t, "trunk", branch)
			rev, _ := info.Get("rev")
			assert.Equal(t, hash.String()[:7], rev)
		})
	}
}

func TestGitSource_NotARepository(t *testing.T) {
	t.Parallel()

	src := &GitSource{Base: entity.Base{ID: "repo"}, directory: t.TempDir()}

	_, err := src.Produce(context.Background())

	assert.ErrorIs(t, err, gogit.ErrRepositoryNotExists)
	assert.ErrorContains(t, err, "unable to open git repository")
}

func TestGitSource_NoCommits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	_, err = produce(t, dir)

	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
	assert.ErrorContains(t, err, "unable to determine git revision")
}
