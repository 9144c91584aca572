package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
	"github.com/mrtz90/Libgen-Scraper-CLI/internal/storage/local"
)

func TestDownloaderFetchesURL(t *testing.T) {
	t.Parallel()

	area := newArea(t)
	f := &fakeFetcher{bodies: map[string]string{"https://covers.test/a.jpg": "JPEGDATA"}}
	d, err := local.NewDownloader(area, f, nil)
	require.NoError(t, err)

	path, err := d.Download(context.Background(), catalog.Source{URL: "https://covers.test/a.jpg"}, catalog.CategoryImage, "A Title")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(area.Path(), local.DirImages, "A Title.jpg"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "JPEGDATA", string(data))
}

func TestDownloaderReusesBody(t *testing.T) {
	t.Parallel()

	area := newArea(t)
	f := &fakeFetcher{}
	d, err := local.NewDownloader(area, f, nil)
	require.NoError(t, err)

	path, err := d.Download(context.Background(), catalog.Source{URL: "https://libgen.test/book", Body: []byte("<html/>")}, catalog.CategoryHTML, "A Title")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(area.Path(), local.DirHTML, "A Title.html"), path)
	assert.Zero(t, f.calls)
}

func TestDownloaderFetchFailureWritesNothing(t *testing.T) {
	t.Parallel()

	area := newArea(t)
	d, err := local.NewDownloader(area, &fakeFetcher{}, nil)
	require.NoError(t, err)

	_, err = d.Download(context.Background(), catalog.Source{URL: "https://download.test/missing.pdf"}, "pdf", "Missing")
	require.Error(t, err)
	assert.True(t, catalog.IsTransport(err))

	entries, err := os.ReadDir(filepath.Join(area.Path(), local.DirFiles))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloaderNeedsSource(t *testing.T) {
	t.Parallel()

	d, err := local.NewDownloader(newArea(t), &fakeFetcher{}, nil)
	require.NoError(t, err)
	_, err = d.Download(context.Background(), catalog.Source{}, catalog.CategoryImage, "x")
	assert.Error(t, err)

	_, err = local.NewDownloader(nil, &fakeFetcher{}, nil)
	assert.Error(t, err)
}
