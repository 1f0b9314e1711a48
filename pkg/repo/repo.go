// Package repo ties the object store, references, index and working tree
// into a git repository, and implements merge, cherry-pick, revert and
// rebase on top of them.
package repo

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/odvcencio/weft/pkg/ignore"
	"github.com/odvcencio/weft/pkg/index"
	"github.com/odvcencio/weft/pkg/object"
)

// GitDirName is the metadata directory of a non-bare repository.
const GitDirName = ".git"

// DefaultBranch is the branch HEAD points at after Init.
const DefaultBranch = "master"

// Repo is an opened repository. It is meant to be used from one goroutine
// at a time; the ref lock files are the only cross-process coordination.
type Repo struct {
	dotgit   billy.Filesystem
	worktree billy.Filesystem // nil when bare
	Store    *object.Store

	logger *slog.Logger
	now    func() time.Time
	config *Config

	graphOnce sync.Once
	graph     *commitGraph
}

type options struct {
	logger        *slog.Logger
	now           func() time.Time
	cacheSize     int
	defaultBranch string
}

// Option configures Init and Open.
type Option func(*options)

// WithLogger sets the logger for debug output. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now for signatures the repository creates
// itself.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithObjectCacheSize sets the decoded-object cache capacity.
func WithObjectCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithDefaultBranch sets the branch HEAD names after Init.
func WithDefaultBranch(name string) Option {
	return func(o *options) {
		if name != "" {
			o.defaultBranch = name
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:        slog.New(slog.DiscardHandler),
		now:           time.Now,
		cacheSize:     object.DefaultCacheSize,
		defaultBranch: DefaultBranch,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newRepo(dotgit, worktree billy.Filesystem, o options) (*Repo, error) {
	r := &Repo{
		dotgit:   dotgit,
		worktree: worktree,
		Store:    object.NewStore(dotgit, object.WithCacheSize(o.cacheSize), object.WithStoreLogger(o.logger)),
		logger:   o.logger,
		now:      o.now,
	}
	cfg, err := loadConfig(dotgit)
	if err != nil {
		return nil, err
	}
	r.config = cfg
	return r, nil
}

// Init creates a repository whose metadata lives in .git below worktree.
func Init(worktree billy.Filesystem, opts ...Option) (*Repo, error) {
	dotgit, err := worktree.Chroot(GitDirName)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return initRepo(dotgit, worktree, buildOptions(opts))
}

// InitBare creates a bare repository directly in fs.
func InitBare(fs billy.Filesystem, opts ...Option) (*Repo, error) {
	return initRepo(fs, nil, buildOptions(opts))
}

func initRepo(dotgit, worktree billy.Filesystem, o options) (*Repo, error) {
	if _, err := dotgit.Stat("HEAD"); err == nil {
		return nil, fmt.Errorf("init: repository already exists: %w", ErrExists)
	}
	for _, d := range []string{"objects/info", "objects/pack", "refs/heads", "refs/tags", "info"} {
		if err := dotgit.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}
	head := []byte("ref: refs/heads/" + o.defaultBranch + "\n")
	if err := util.WriteFile(dotgit, "HEAD", head, 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}

	r, err := newRepo(dotgit, worktree, o)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	r.config.Set("core", "repositoryformatversion", "0")
	r.config.Set("core", "filemode", "true")
	r.config.Set("core", "bare", fmt.Sprint(worktree == nil))
	if worktree != nil {
		r.config.Set("core", "logallrefupdates", "true")
	}
	if err := r.config.Save(); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	r.logger.Debug("initialized repository", "bare", worktree == nil)
	return r, nil
}

// Open opens the repository whose metadata lives in .git below worktree.
func Open(worktree billy.Filesystem, opts ...Option) (*Repo, error) {
	dotgit, err := worktree.Chroot(GitDirName)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if _, err := dotgit.Stat("HEAD"); err != nil {
		return nil, fmt.Errorf("open: not a repository: %w", ErrNotFound)
	}
	return newRepo(dotgit, worktree, buildOptions(opts))
}

// OpenBare opens a bare repository rooted at fs.
func OpenBare(fs billy.Filesystem, opts ...Option) (*Repo, error) {
	if _, err := fs.Stat("HEAD"); err != nil {
		return nil, fmt.Errorf("open: not a repository: %w", ErrNotFound)
	}
	return newRepo(fs, nil, buildOptions(opts))
}

// PlainInit initializes a repository on disk at path.
func PlainInit(path string, bare bool, opts ...Option) (*Repo, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if bare {
		return InitBare(osfs.New(path), opts...)
	}
	return Init(osfs.New(path), opts...)
}

// PlainOpen searches upward from path for a .git directory, or a bare
// repository, and opens it.
func PlainOpen(path string, opts ...Option) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}
	for cur := abs; ; {
		if info, err := os.Stat(filepath.Join(cur, GitDirName)); err == nil && info.IsDir() {
			return Open(osfs.New(cur), opts...)
		}
		if isBareDir(cur) {
			return OpenBare(osfs.New(cur), opts...)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not a repository (or any parent up to /): %w", ErrNotFound)
		}
		cur = parent
	}
}

func isBareDir(dir string) bool {
	for _, name := range []string{"HEAD", "objects", "refs"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// DotGit returns the filesystem holding the repository metadata.
func (r *Repo) DotGit() billy.Filesystem { return r.dotgit }

// Worktree returns the working tree filesystem, or nil for a bare
// repository.
func (r *Repo) Worktree() billy.Filesystem { return r.worktree }

// IsBare reports whether the repository has no working tree.
func (r *Repo) IsBare() bool { return r.worktree == nil }

// Config returns the repository configuration.
func (r *Repo) Config() *Config { return r.config }

// Logger returns the repository logger.
func (r *Repo) Logger() *slog.Logger { return r.logger }

// Index opens the repository index with the working tree and ignore rules
// attached.
func (r *Repo) Index() (*index.Index, error) {
	opts := []index.Option{index.WithLogger(r.logger)}
	if r.worktree != nil {
		opts = append(opts, index.WithWorktree(r.worktree), index.WithIgnore(r.ignoreChecker()))
	}
	ix, err := index.Open(r.dotgit, "index", r.Store, opts...)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return ix, nil
}

func (r *Repo) ignoreChecker() *ignore.Checker {
	c := ignore.New(r.worktree)
	c.AddPatternsFromFile(r.dotgit, "info/exclude")
	return c
}

// DefaultSignature builds a signature from user.name and user.email at the
// current time.
func (r *Repo) DefaultSignature() (object.Signature, error) {
	name, email := r.config.UserName(), r.config.UserEmail()
	if name == "" || email == "" {
		return object.Signature{}, fmt.Errorf("default signature: user.name and user.email must be set: %w", ErrNotFound)
	}
	return object.Signature{Name: name, Email: email, When: r.now()}, nil
}

// signatureOr returns sig when set, else the configured identity, else a
// placeholder. Used for reflog entries, which must always carry one.
func (r *Repo) signatureOr(sig *object.Signature) object.Signature {
	if sig != nil && sig.Name != "" {
		return *sig
	}
	if def, err := r.DefaultSignature(); err == nil {
		return def
	}
	return object.Signature{Name: "unknown", Email: "unknown", When: r.now()}
}

func (r *Repo) readGitFile(name string) ([]byte, error) {
	data, err := util.ReadFile(r.dotgit, name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", name, ErrNotFound)
	}
	return data, err
}

func (r *Repo) hasGitFile(name string) bool {
	_, err := r.dotgit.Stat(name)
	return err == nil
}

// writeGitFile replaces name atomically through a temp file and rename.
func (r *Repo) writeGitFile(name string, data []byte) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := r.dotgit.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("write %s: mkdir: %w", name, err)
		}
	}
	tmp, err := util.TempFile(r.dotgit, filepath.Dir(name), filepath.Base(name)+".tmp-")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = r.dotgit.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = r.dotgit.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := r.dotgit.Rename(tmp.Name(), name); err != nil {
		_ = r.dotgit.Remove(tmp.Name())
		return fmt.Errorf("write %s: rename: %w", name, err)
	}
	return nil
}

func (r *Repo) removeGitFile(name string) error {
	err := r.dotgit.Remove(name)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func (r *Repo) graphState() *commitGraph {
	r.graphOnce.Do(func() { r.graph = newCommitGraph(r.Store) })
	return r.graph
}
