package fetcher

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Unzip extracts the archive into dest and returns the extracted file
// paths. Entries that would land outside dest are rejected.
func Unzip(zipPath, dest string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open %s", filepath.Base(zipPath))
	}
	defer r.Close() //nolint:errcheck

	var files []string
	for _, entry := range r.File {
		if !filepath.IsLocal(entry.Name) {
			return files, eris.Errorf("zip: entry %q escapes the destination", entry.Name)
		}
		target := filepath.Join(dest, entry.Name)
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, eris.Wrapf(err, "zip: create %s", entry.Name)
			}
			continue
		}
		if err := unzipFile(entry, target); err != nil {
			return files, err
		}
		files = append(files, target)
	}
	return files, nil
}

func unzipFile(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return eris.Wrapf(err, "zip: create parent of %s", entry.Name)
	}
	src, err := entry.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: read %s", entry.Name)
	}
	defer src.Close() //nolint:errcheck

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return eris.Wrapf(err, "zip: create %s", entry.Name)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return eris.Wrapf(err, "zip: write %s", entry.Name)
	}
	return eris.Wrapf(dst.Close(), "zip: close %s", entry.Name)
}

// Zip packs files flat (base names only) into a new archive at zipPath.
// The archive is written beside zipPath and renamed over it, so an
// existing archive is replaced only once the new one is complete.
func Zip(zipPath string, files []string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(zipPath), ".zip-*")
	if err != nil {
		return eris.Wrap(err, "zip: create archive")
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := zip.NewWriter(tmp)
	for _, path := range files {
		if err = zipFile(w, path); err != nil {
			return err
		}
	}
	if err = w.Close(); err != nil {
		return eris.Wrap(err, "zip: finish archive")
	}
	if err = tmp.Close(); err != nil {
		return eris.Wrap(err, "zip: close archive")
	}
	if err = os.Rename(tmp.Name(), zipPath); err != nil {
		return eris.Wrapf(err, "zip: move archive to %s", zipPath)
	}
	return nil
}

func zipFile(w *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "zip: open %s", path)
	}
	defer src.Close() //nolint:errcheck

	name := filepath.Base(path)
	dst, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return eris.Wrapf(err, "zip: add %s", name)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return eris.Wrapf(err, "zip: write %s", name)
	}
	return nil
}

// FindByExt returns the lexically first file under dir whose extension
// equals ext, ignoring case.
func FindByExt(dir, ext string) (string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && strings.EqualFold(filepath.Ext(path), ext) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "zip: walk %s", dir)
	}
	if len(found) == 0 {
		return "", eris.Errorf("zip: no %s file under %s", ext, dir)
	}
	sort.Strings(found)
	return found[0], nil
}
