package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"mercator-hq/aegis/pkg/config"
)

// Commit describes the checked out revision.
type Commit struct {
	SHA       string    `json:"sha"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Short returns the abbreviated SHA.
func (c Commit) Short() string {
	if len(c.SHA) < 8 {
		return c.SHA
	}
	return c.SHA[:8]
}

// PullResult reports what a pull changed.
type PullResult struct {
	From         string
	To           string
	ChangedFiles []string
}

// HadChanges reports whether the pull moved HEAD.
func (r PullResult) HadChanges() bool {
	return r.From != r.To
}

// Touches reports whether file is among the changed paths.
func (r PullResult) Touches(file string) bool {
	file = filepath.ToSlash(filepath.Clean(file))
	for _, f := range r.ChangedFiles {
		if f == file {
			return true
		}
	}
	return false
}

// Repository is a local clone of the pack repository.
type Repository struct {
	cfg  config.KnowledgeGitConfig
	auth transport.AuthMethod

	mu   sync.Mutex
	repo *gogit.Repository
}

// NewRepository validates cfg and prepares authentication. Nothing touches
// the network until Sync.
func NewRepository(cfg config.KnowledgeGitConfig) (*Repository, error) {
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}
	if cfg.LocalPath == "" {
		return nil, fmt.Errorf("local path cannot be empty")
	}
	auth, err := authMethod(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to configure git auth: %w", err)
	}
	return &Repository{cfg: cfg, auth: auth}, nil
}

// PackPath is the pack file inside the working tree.
func (r *Repository) PackPath() string {
	return filepath.Join(r.cfg.LocalPath, filepath.FromSlash(r.cfg.File))
}

// Sync clones the repository, or opens an existing clone and pulls it, so
// the working tree is at the tip of the tracked branch.
func (r *Repository) Sync(ctx context.Context) (*Commit, error) {
	r.mu.Lock()
	opened := false
	if r.repo == nil {
		if _, err := os.Stat(filepath.Join(r.cfg.LocalPath, ".git")); err == nil {
			repo, err := gogit.PlainOpen(r.cfg.LocalPath)
			if err != nil {
				r.mu.Unlock()
				return nil, fmt.Errorf("failed to open existing clone: %w", err)
			}
			r.repo = repo
			opened = true
		} else if err := r.clone(ctx); err != nil {
			r.mu.Unlock()
			return nil, err
		}
	}
	r.mu.Unlock()

	if opened {
		if _, err := r.Pull(ctx); err != nil {
			return nil, err
		}
	}
	return r.Head()
}

func (r *Repository) clone(ctx context.Context) error {
	if err := os.MkdirAll(r.cfg.LocalPath, 0o755); err != nil {
		return fmt.Errorf("failed to create clone directory: %w", err)
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	repo, err := gogit.PlainCloneContext(ctx, r.cfg.LocalPath, false, &gogit.CloneOptions{
		URL:           r.cfg.Repository,
		Auth:          r.auth,
		ReferenceName: plumbing.NewBranchReferenceName(r.cfg.Branch),
		SingleBranch:  true,
		Depth:         r.cfg.Depth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", r.cfg.Repository, err)
	}
	r.repo = repo
	return nil
}

// Pull fast-forwards the working tree and lists the files that changed.
func (r *Repository) Pull(ctx context.Context) (*PullResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized, call Sync first")
	}
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	err = wt.PullContext(ctx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(r.cfg.Branch),
		SingleBranch:  true,
		Auth:          r.auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("failed to pull: %w", err)
	}

	newHead, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	result := &PullResult{From: head.Hash().String(), To: newHead.Hash().String()}
	if result.HadChanges() {
		if result.ChangedFiles, err = r.changedFiles(head.Hash(), newHead.Hash()); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Head describes the checked out commit.
func (r *Repository) Head() (*Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized, call Sync first")
	}
	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	c, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to read commit: %w", err)
	}
	return &Commit{
		SHA:       c.Hash.String(),
		Author:    c.Author.Name,
		Timestamp: c.Author.When,
		Message:   c.Message,
	}, nil
}

func (r *Repository) changedFiles(from, to plumbing.Hash) ([]string, error) {
	fromCommit, err := r.repo.CommitObject(from)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", from, err)
	}
	toCommit, err := r.repo.CommitObject(to)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", to, err)
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	files := make([]string, 0, len(changes))
	for _, ch := range changes {
		if ch.To.Name != "" {
			files = append(files, ch.To.Name)
		} else {
			files = append(files, ch.From.Name)
		}
	}
	return files, nil
}
