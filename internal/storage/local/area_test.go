// Package local_test tests the run output area and downloader.
package local_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/storage/local"
)

var runTime = time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

func newArea(t *testing.T) *local.Area {
	t.Helper()
	area, err := local.NewArea(local.Config{Root: t.TempDir()}, "roman history", runTime)
	require.NoError(t, err)
	return area
}

func TestNewArea(t *testing.T) {
	t.Run("CreatesRunFolder", func(t *testing.T) {
		root := t.TempDir()
		area, err := local.NewArea(local.Config{Root: root}, "roman/history?", runTime)
		require.NoError(t, err)
		assert.Equal(t, "romanhistory_2024-03-09-14-05-07", area.Name())
		assert.Equal(t, filepath.Join(root, area.Name()), area.Path())
		for _, sub := range []string{local.DirHTML, local.DirImages, local.DirFiles} {
			info, err := os.Stat(filepath.Join(area.Path(), sub))
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		}
	})

	t.Run("CreatesMissingRoot", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "output")
		_, err := local.NewArea(local.Config{Root: root}, "x", runTime)
		require.NoError(t, err)
	})

	t.Run("MissingRoot", func(t *testing.T) {
		_, err := local.NewArea(local.Config{}, "x", runTime)
		assert.True(t, catalog.IsConfig(err))
	})

	t.Run("RootIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.NewArea(local.Config{Root: file}, "x", runTime)
		var fe *catalog.FilesystemError
		assert.ErrorAs(t, err, &fe)
	})

	t.Run("SameSecondTwice", func(t *testing.T) {
		root := t.TempDir()
		_, err := local.NewArea(local.Config{Root: root}, "x", runTime)
		require.NoError(t, err)
		_, err = local.NewArea(local.Config{Root: root}, "x", runTime)
		var fe *catalog.FilesystemError
		assert.ErrorAs(t, err, &fe)
	})
}

func TestPlacement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		category catalog.Category
		dir, ext string
	}{
		{catalog.CategoryImage, local.DirImages, "jpg"},
		{catalog.CategoryHTML, local.DirHTML, "html"},
		{"pdf", local.DirFiles, "pdf"},
		{" DJVU ", local.DirFiles, "djvu"},
		{"../../etc", local.DirFiles, "etc"},
		{"", local.DirFiles, "bin"},
	}
	for _, tt := range tests {
		dir, ext := local.Placement(tt.category)
		assert.Equal(t, tt.dir, dir, string(tt.category))
		assert.Equal(t, tt.ext, ext, string(tt.category))
	}
}

func TestWriteCollisionSuffixes(t *testing.T) {
	t.Parallel()

	area := newArea(t)
	var paths []string
	for i := 0; i < 3; i++ {
		path, n, err := area.Write("pdf", "Rome: A History", strings.NewReader(fmt.Sprintf("copy %d", i)))
		require.NoError(t, err)
		assert.EqualValues(t, len("copy 0"), n)
		paths = append(paths, path)
	}

	dir := filepath.Join(area.Path(), local.DirFiles)
	assert.Equal(t, []string{
		filepath.Join(dir, "Rome A History.pdf"),
		filepath.Join(dir, "Rome A History_1.pdf"),
		filepath.Join(dir, "Rome A History_2.pdf"),
	}, paths)

	// The first file keeps its original content.
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "copy 0", string(data))
}

func TestWriteConcurrentSameTitle(t *testing.T) {
	t.Parallel()

	area := newArea(t)
	const writers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		paths = map[string]struct{}{}
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, _, err := area.Write(catalog.CategoryImage, "Same Title", strings.NewReader(fmt.Sprint(i)))
			assert.NoError(t, err)
			mu.Lock()
			paths[path] = struct{}{}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, paths, writers)
	entries, err := os.ReadDir(filepath.Join(area.Path(), local.DirImages))
	require.NoError(t, err)
	assert.Len(t, entries, writers)
}

func TestWriteFailureRemovesPartialFile(t *testing.T) {
	t.Parallel()

	area := newArea(t)
	_, _, err := area.Write("pdf", "Broken", &failingReader{})
	var fe *catalog.FilesystemError
	require.ErrorAs(t, err, &fe)

	entries, err := os.ReadDir(filepath.Join(area.Path(), local.DirFiles))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteUntitled(t *testing.T) {
	t.Parallel()

	area := newArea(t)
	path, _, err := area.Write(catalog.CategoryHTML, "???", strings.NewReader("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, "untitled.html", filepath.Base(path))
}

type failingReader struct{ done bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.done {
		r.done = true
		return copy(p, "partial"), nil
	}
	return 0, errors.New("connection dropped")
}

type fakeFetcher struct {
	bodies map[string]string
	calls  int
	mu     sync.Mutex
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (catalog.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	body, ok := f.bodies[rawURL]
	if !ok {
		return catalog.Response{}, &catalog.TransportError{URL: rawURL, StatusCode: 404, Err: errors.New("Not Found")}
	}
	return catalog.Response{URL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}
