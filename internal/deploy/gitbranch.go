package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	sferrors "git.home.luguber.info/inful/siteforge/internal/errors"
)

const deployAuthor = "siteforge"

// gitPublisher publishes the artifact tree as a commit on a branch of a
// remote repository (pages-style hosting). Target is the branch name,
// Remote the repository URL.
type gitPublisher struct {
	env Environment
}

func newGitPublisher(env Environment) *gitPublisher {
	return &gitPublisher{env: env}
}

func (p *gitPublisher) Publish(ctx context.Context, artifactDir string) (int, error) {
	workDir, err := os.MkdirTemp("", "siteforge-deploy-*")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(workDir)

	repo, err := p.checkout(ctx, workDir, p.env.Target)
	if err != nil {
		return 0, err
	}

	count, err := p.replaceWorktree(ctx, workDir, artifactDir)
	if err != nil {
		return 0, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return 0, err
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return 0, fmt.Errorf("stage artifacts: %w", err)
	}
	_, err = wt.Commit(fmt.Sprintf("Publish %d files to %s", count, p.env.Name), &git.CommitOptions{
		Author:            &object.Signature{Name: deployAuthor, Email: deployAuthor + "@localhost", When: time.Now()},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return 0, fmt.Errorf("commit artifacts: %w", err)
	}

	if err := p.push(ctx, repo, p.env.Target, p.env.Target); err != nil {
		return 0, err
	}
	return count, nil
}

// PromoteFrom pushes the source environment's branch head onto this
// environment's branch. Both environments share the remote in the usual
// setup; a differing source remote is fetched first.
func (p *gitPublisher) PromoteFrom(ctx context.Context, source Environment) (int, error) {
	workDir, err := os.MkdirTemp("", "siteforge-promote-*")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(workDir)

	repo, err := git.PlainCloneContext(ctx, workDir, false, &git.CloneOptions{
		URL:           source.Remote,
		ReferenceName: plumbing.NewBranchReferenceName(source.Target),
		SingleBranch:  true,
	})
	if err != nil {
		return 0, fmt.Errorf("clone %s branch %s: %w", source.Remote, source.Target, err)
	}

	if p.env.Remote != source.Remote {
		if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
			Name: "promote-target",
			URLs: []string{p.env.Remote},
		}); err != nil {
			return 0, err
		}
		return 0, repo.PushContext(ctx, &git.PushOptions{
			RemoteName: "promote-target",
			RefSpecs: []gitconfig.RefSpec{
				gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/heads/%s", source.Target, p.env.Target)),
			},
		})
	}
	return 0, p.push(ctx, repo, source.Target, p.env.Target)
}

// checkout clones the publishing branch, or initializes a fresh repository
// pointed at the remote when the branch does not exist yet.
func (p *gitPublisher) checkout(ctx context.Context, workDir, branch string) (*git.Repository, error) {
	repo, err := git.PlainCloneContext(ctx, workDir, false, &git.CloneOptions{
		URL:           p.env.Remote,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	})
	if err == nil {
		return repo, nil
	}

	repo, initErr := git.PlainInit(workDir, false)
	if initErr != nil {
		return nil, fmt.Errorf("clone %s: %v; init fallback: %w", p.env.Remote, err, initErr)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{p.env.Remote},
	}); err != nil {
		return nil, err
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, err
	}
	return repo, nil
}

func (p *gitPublisher) replaceWorktree(ctx context.Context, workDir, artifactDir string) (int, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if entry.Name() == git.GitDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(workDir, entry.Name())); err != nil {
			return 0, err
		}
	}
	return syncTreeInto(ctx, artifactDir, workDir)
}

func (p *gitPublisher) push(ctx context.Context, repo *git.Repository, from, to string) error {
	err := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/heads/%s", from, to)),
		},
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return sferrors.PublishNetworkError(p.env.Remote, fmt.Errorf("push %s: %w", to, err))
	}
	return nil
}

// syncTreeInto copies src's contents into an existing dest without clearing
// it first.
func syncTreeInto(ctx context.Context, src, dest string) (int, error) {
	count := 0
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := copyRegular(path, target); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}
