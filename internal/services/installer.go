package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/mattn/go-shellwords"
	"go.uber.org/zap"

	"github.com/vlazic/mcphub/internal/models"
)

// CommandRunner runs an install command to completion in dir.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// RepositoryFetcher clones url into dir, or updates an existing checkout there,
// and returns a short revision for the checked out HEAD.
type RepositoryFetcher interface {
	Fetch(ctx context.Context, url, dir string) (string, error)
}

// InstallResult describes a completed install.
type InstallResult struct {
	Path    string
	Version string
}

// Installer acquires server packages under a fixed servers root. A failed install
// leaves its directory in place for inspection.
type Installer struct {
	serversDir string
	npm        string
	pip        string
	timeout    time.Duration
	runner     CommandRunner
	fetcher    RepositoryFetcher
	logger     *zap.Logger
}

type InstallerOption func(*Installer)

func WithCommandRunner(r CommandRunner) InstallerOption {
	return func(i *Installer) { i.runner = r }
}

func WithRepositoryFetcher(f RepositoryFetcher) InstallerOption {
	return func(i *Installer) { i.fetcher = f }
}

func NewInstaller(settings *models.Settings, logger *zap.Logger, opts ...InstallerOption) *Installer {
	i := &Installer{
		serversDir: settings.ServersDir,
		npm:        settings.NPMCommand,
		pip:        settings.PipCommand,
		timeout:    settings.InstallTimeout,
		runner:     &execRunner{validator: NewValidatorService(), logger: logger},
		fetcher:    &gitFetcher{depth: settings.CloneDepth},
		logger:     logger,
	}
	if i.npm == "" {
		i.npm = "npm"
	}
	if i.pip == "" {
		i.pip = "pip"
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InstallPath returns the directory a server with this name installs into.
func (i *Installer) InstallPath(name string) string {
	return filepath.Join(i.serversDir, models.Slug(name))
}

func (i *Installer) Install(ctx context.Context, d *models.ServerDescriptor) (*InstallResult, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	slug := d.Slug()
	dir := i.InstallPath(d.Name)
	logger := i.logger.With(zap.String("server", slug), zap.String("path", dir))

	fail := func(step string, err error) (*InstallResult, error) {
		logger.Warn("install step failed, leaving directory for inspection",
			zap.String("step", step), zap.Error(err))
		return nil, &InstallError{Server: slug, Step: step, Err: err}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail(StepCreateDirectory, err)
	}

	version := d.Version
	if d.IsRepository() {
		logger.Info("fetching repository", zap.String("url", d.PackageReference))
		revision, err := i.fetcher.Fetch(ctx, d.PackageReference, dir)
		if err != nil {
			return fail(StepFetchRepository, err)
		}
		if version == "" {
			version = revision
		}
	} else {
		name, args, err := i.packageCommand(d)
		if err != nil {
			return fail(StepInstallPackage, err)
		}
		logger.Info("installing package", zap.String("command", name), zap.Strings("args", args))
		if err := i.runner.Run(ctx, dir, name, args...); err != nil {
			return fail(StepInstallPackage, err)
		}
	}

	if err := i.installDependencies(ctx, d, dir); err != nil {
		return fail(StepInstallDependencies, err)
	}

	if version == "" {
		version = "latest"
	}
	logger.Info("install complete", zap.String("version", version))
	return &InstallResult{Path: dir, Version: version}, nil
}

// packageCommand picks the registry install invocation, honoring an explicit override.
func (i *Installer) packageCommand(d *models.ServerDescriptor) (string, []string, error) {
	if d.InstallCommand != "" {
		return overrideCommand(d)
	}
	if d.Runtime == models.RuntimeNode {
		return i.npm, []string{"install", "-g", d.PackageReference}, nil
	}
	return i.pip, []string{"install", d.PackageReference}, nil
}

// installDependencies installs the manifest found in a fetched tree. For repositories an
// explicit install command replaces the manifest step.
func (i *Installer) installDependencies(ctx context.Context, d *models.ServerDescriptor, dir string) error {
	if d.IsRepository() && d.InstallCommand != "" {
		name, args, err := overrideCommand(d)
		if err != nil {
			return err
		}
		return i.runner.Run(ctx, dir, name, args...)
	}

	switch d.Runtime {
	case models.RuntimePython:
		if fileExists(filepath.Join(dir, "requirements.txt")) {
			return i.runner.Run(ctx, dir, i.pip, "install", "-r", "requirements.txt")
		}
	case models.RuntimeNode:
		if d.IsRepository() && fileExists(filepath.Join(dir, "package.json")) {
			return i.runner.Run(ctx, dir, i.npm, "install")
		}
	}
	return nil
}

func overrideCommand(d *models.ServerDescriptor) (string, []string, error) {
	if len(d.InstallArgs) > 0 {
		return d.InstallCommand, append([]string(nil), d.InstallArgs...), nil
	}
	parts, err := shellwords.Parse(d.InstallCommand)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse install command %q: %w", d.InstallCommand, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("install command is empty")
	}
	return parts[0], parts[1:], nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

type execRunner struct {
	validator *ValidatorService
	logger    *zap.Logger
}

func (r *execRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	if !r.validator.IsCommandAvailable(name) {
		return fmt.Errorf("command '%s' not found in PATH", name)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, lastLines(string(output), 5))
	}
	r.logger.Debug("command finished", zap.String("command", name), zap.String("output", lastLines(string(output), 20)))
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

type gitFetcher struct {
	depth int
}

func (f *gitFetcher) Fetch(ctx context.Context, url, dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	switch {
	case err == nil:
		worktree, err := repo.Worktree()
		if err != nil {
			return "", fmt.Errorf("failed to open worktree: %w", err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin", Depth: f.depth})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return "", fmt.Errorf("failed to pull %s: %w", url, err)
		}
	case errors.Is(err, git.ErrRepositoryNotExists):
		repo, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url, Depth: f.depth})
		if err != nil {
			return "", fmt.Errorf("failed to clone %s: %w", url, err)
		}
	default:
		return "", fmt.Errorf("failed to open repository in %s: %w", dir, err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String()[:7], nil
}
