// SPDX-License-Identifier: MPL-2.0

package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// ClassesDir is the unit subtree of a staging directory.
	ClassesDir = "classes"
	// LibsDir is the vendored subtree of a staging directory.
	LibsDir = "libs"
	// ArchiveName is the packed classes/ subtree.
	ArchiveName = "confinity.tar.gz"
)

// ErrBundling is the sentinel error wrapped by Error.
var ErrBundling = errors.New("bundling failed")

type (
	// Error describes a bundling step that failed. The staging directory has
	// already been removed when it is returned.
	Error struct {
		Step string
		// Item is the unit identifier or vendored path involved, if any.
		Item string
		Err  error
	}

	// Config holds bundler settings.
	Config struct {
		// StagingParent is where staging directories are created.
		// Default: os.TempDir()
		StagingParent string

		// Suffixes maps staging-only file suffixes of vendored artifacts to
		// their loadable form (e.g. ".sox" -> ".so").
		Suffixes map[string]string

		Logger *slog.Logger
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)

	// Bundler writes closures into staging directories.
	Bundler struct {
		locator Locator
		config  Config
	}

	// Layout describes a populated staging directory.
	Layout struct {
		Dir        string
		ClassesDir string
		LibsDir    string
		Archive    string
		// Digest is the hex BLAKE3 digest of Archive.
		Digest string
		// Units lists the bundled identifiers in sorted order.
		Units []string
		// Libs lists the basenames written to LibsDir in sorted order.
		Libs []string
	}
)

// DefaultSuffixes are the staging-only suffixes translated by default.
func DefaultSuffixes() map[string]string {
	return map[string]string{
		".sox":  ".so",
		".jarx": ".jar",
	}
}

func (e *Error) Error() string {
	msg := ErrBundling.Error() + ": " + e.Step
	if e.Item != "" {
		msg += " " + e.Item
	}
	return msg + ": " + e.Err.Error()
}

// Is reports ErrBundling so callers can match the kind with errors.Is.
func (e *Error) Is(target error) bool { return target == ErrBundling }

func (e *Error) Unwrap() error { return e.Err }

// WithStagingParent sets the directory staging directories are created in.
// An empty dir keeps the default.
func WithStagingParent(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.StagingParent = dir
		}
	}
}

// WithSuffixes replaces the suffix translation table.
func WithSuffixes(suffixes map[string]string) Option {
	return func(c *Config) {
		c.Suffixes = suffixes
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// New creates a Bundler resolving units through locator.
func New(locator Locator, opts ...Option) *Bundler {
	cfg := Config{
		StagingParent: os.TempDir(),
		Suffixes:      DefaultSuffixes(),
		Logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bundler{locator: locator, config: cfg}
}

// Bundle stages every unit of closure and every vendored file, packs the
// unit tree and returns the resulting layout. Duplicate identifiers are
// bundled once. Any missing unit or unreadable vendored file aborts the
// bundle: the partial staging directory is removed and an *Error returned.
func (b *Bundler) Bundle(ctx context.Context, closure, vendored []string) (layout *Layout, err error) {
	if err := os.MkdirAll(b.config.StagingParent, 0o755); err != nil {
		return nil, &Error{Step: "create staging parent", Item: b.config.StagingParent, Err: err}
	}
	dir, err := os.MkdirTemp(b.config.StagingParent, "confinity-stage-*")
	if err != nil {
		return nil, &Error{Step: "create staging directory", Err: err}
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir) // partial stage is never reused
		}
	}()

	layout = &Layout{
		Dir:        dir,
		ClassesDir: filepath.Join(dir, ClassesDir),
		LibsDir:    filepath.Join(dir, LibsDir),
		Archive:    filepath.Join(dir, ArchiveName),
	}
	for _, d := range []string{layout.ClassesDir, layout.LibsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, &Error{Step: "create staging directory", Item: d, Err: err}
		}
	}

	units := slices.Sorted(slices.Values(closure))
	units = slices.Compact(units)
	for _, id := range units {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Step: "stage unit", Item: id, Err: err}
		}
		if err := b.stageUnit(layout.ClassesDir, id); err != nil {
			return nil, &Error{Step: "stage unit", Item: id, Err: err}
		}
	}
	layout.Units = units

	libs, err := b.stageVendored(layout.LibsDir, vendored)
	if err != nil {
		return nil, err
	}
	layout.Libs = libs

	if err := Pack(layout.ClassesDir, layout.Archive); err != nil {
		return nil, &Error{Step: "pack archive", Item: layout.Archive, Err: err}
	}
	digest, err := Digest(layout.Archive)
	if err != nil {
		return nil, &Error{Step: "digest archive", Item: layout.Archive, Err: err}
	}
	layout.Digest = digest

	b.config.Logger.Debug("bundle staged",
		"dir", dir,
		"units", len(layout.Units),
		"libs", len(layout.Libs),
		"digest", digest)

	return layout, nil
}

func (b *Bundler) stageUnit(classesDir, id string) (err error) {
	rel, err := UnitPath(id)
	if err != nil {
		return err
	}
	rc, mode, err := b.locator.Locate(id)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }() // read-only source

	dst := filepath.Join(classesDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return writeFile(dst, rc, mode)
}

func (b *Bundler) stageVendored(libsDir string, vendored []string) ([]string, error) {
	seen := make(map[string]string, len(vendored))
	names := make([]string, 0, len(vendored))
	for _, src := range vendored {
		name := b.translate(filepath.Base(src))
		if prev, ok := seen[name]; ok {
			if prev == src {
				continue
			}
			return nil, &Error{
				Step: "stage vendored file",
				Item: src,
				Err:  fmt.Errorf("basename %q already taken by %s", name, prev),
			}
		}
		seen[name] = src

		if err := copyFile(src, filepath.Join(libsDir, name)); err != nil {
			return nil, &Error{Step: "stage vendored file", Item: src, Err: err}
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// translate rewrites the longest matching staging-only suffix of name.
func (b *Bundler) translate(name string) string {
	best := ""
	for from := range b.config.Suffixes {
		if strings.HasSuffix(name, from) && len(from) > len(best) {
			best = from
		}
	}
	if best == "" {
		return name
	}
	return strings.TrimSuffix(name, best) + b.config.Suffixes[best]
}

// Remove deletes the staging directory.
func (l *Layout) Remove() error {
	return os.RemoveAll(l.Dir)
}

func writeFile(dst string, r io.Reader, mode fs.FileMode) (err error) {
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = f.Close() }() // read-only source

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}
	return writeFile(dst, f, info.Mode().Perm())
}
