package report

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"

	"github.com/mrtz90/Libgen-Scraper-CLI/internal/catalog"
)

// Archive zips the folder at src into <dst>/<base(src)>.zip. Entries are
// stored under the folder name so extraction recreates the run folder.
func Archive(src, dst string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", &catalog.FilesystemError{Op: "stat", Path: src, Err: err}
	}
	if !info.IsDir() {
		return "", &catalog.FilesystemError{Op: "stat", Path: src, Err: fmt.Errorf("not a directory")}
	}

	base := filepath.Base(src)
	target := filepath.Join(dst, base+".zip")
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", &catalog.FilesystemError{Op: "create archive", Path: target, Err: err}
	}

	if err := writeArchive(out, src, base); err != nil {
		_ = out.Close()
		_ = os.Remove(target)
		return "", &catalog.FilesystemError{Op: "write archive", Path: target, Err: err}
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(target)
		return "", &catalog.FilesystemError{Op: "close archive", Path: target, Err: err}
	}
	return target, nil
}

func writeArchive(w io.Writer, src, base string) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(base, rel))
		if d.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}
		return addFile(zw, path, name, d)
	})
	if err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(dst, f)
	return err
}
