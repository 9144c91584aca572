// Package local manages the per-run output area on the local filesystem and
// writes downloaded resources into it without ever overwriting a file.
package local

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/normalize"
)

// Subfolders of every run folder.
const (
	DirHTML   = "htmls"
	DirImages = "images"
	DirFiles  = "files"
)

// runStampLayout gives run folders one-second granularity.
const runStampLayout = "2006-01-02-15-04-05"

// Config captures the parameters for the output area.
type Config struct {
	// Root is the directory that holds run folders and archives.
	Root string `mapstructure:"root" yaml:"root"`
}

// Area is one run's output folder: <root>/<term>_<timestamp>/{htmls,images,files}.
type Area struct {
	root   string
	name   string
	folder string
	locks  *keyedMutex
}

// NewArea creates the run folder for term at time now.
func NewArea(cfg Config, term string, now time.Time) (*Area, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, &catalog.ConfigError{Field: "output.root", Reason: "must not be empty"}
	}
	if err := ensureWritableDir(cfg.Root); err != nil {
		return nil, err
	}
	name := RunName(term, now)
	folder := filepath.Join(cfg.Root, name)
	if err := os.Mkdir(folder, 0o750); err != nil {
		return nil, &catalog.FilesystemError{Op: "create run folder", Path: folder, Err: err}
	}
	for _, sub := range []string{DirHTML, DirImages, DirFiles} {
		dir := filepath.Join(folder, sub)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, &catalog.FilesystemError{Op: "create folder", Path: dir, Err: err}
		}
	}
	return &Area{root: cfg.Root, name: name, folder: folder, locks: newKeyedMutex()}, nil
}

// RunName is the deterministic folder name of a run.
func RunName(term string, now time.Time) string {
	return normalize.FileStem(term) + "_" + now.Format(runStampLayout)
}

// Root returns the directory holding run folders.
func (a *Area) Root() string { return a.root }

// Name returns the run folder's base name.
func (a *Area) Name() string { return a.name }

// Path returns the run folder.
func (a *Area) Path() string { return a.folder }

// Placement returns the subfolder and extension used for a category.
func Placement(category catalog.Category) (dir, ext string) {
	switch category {
	case catalog.CategoryImage:
		return DirImages, "jpg"
	case catalog.CategoryHTML:
		return DirHTML, "html"
	}
	ext = strings.Trim(normalize.Sanitize(strings.ToLower(strings.TrimSpace(string(category)))), ". ")
	if ext == "" {
		ext = "bin"
	}
	return DirFiles, ext
}

// Write stores r under a collision-free name derived from title and returns
// the path. An existing file is never overwritten: the first free name of
// "<stem>.<ext>", "<stem>_1.<ext>", "<stem>_2.<ext>", ... is reserved with an
// exclusive create while a lock on "<dir>/<stem>.<ext>" is held.
func (a *Area) Write(category catalog.Category, title string, r io.Reader) (string, int64, error) {
	sub, ext := Placement(category)
	dir := filepath.Join(a.folder, sub)
	stem := normalize.FileStem(title)

	f, path, err := a.reserve(dir, stem, ext)
	if err != nil {
		return "", 0, err
	}
	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
		return "", 0, &catalog.FilesystemError{Op: "write", Path: path, Err: err}
	}
	return path, n, nil
}

func (a *Area) reserve(dir, stem, ext string) (*os.File, string, error) {
	unlock := a.locks.Lock(filepath.Join(dir, stem+"."+ext))
	defer unlock()

	for i := 0; ; i++ {
		name := stem + "." + ext
		if i > 0 {
			name = stem + "_" + strconv.Itoa(i) + "." + ext
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) // #nosec G304 -- name is sanitized and joined under the run folder.
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", &catalog.FilesystemError{Op: "create", Path: path, Err: err}
		}
	}
}

func ensureWritableDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return &catalog.FilesystemError{Op: "create root", Path: dir, Err: mkErr}
		}
	case err != nil:
		return &catalog.FilesystemError{Op: "stat root", Path: dir, Err: err}
	case !info.IsDir():
		return &catalog.FilesystemError{Op: "stat root", Path: dir, Err: fmt.Errorf("not a directory")}
	}

	probe := filepath.Join(dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return &catalog.FilesystemError{Op: "probe root", Path: dir, Err: err}
	}
	if err := os.Remove(probe); err != nil {
		return &catalog.FilesystemError{Op: "probe root", Path: dir, Err: err}
	}
	return nil
}
