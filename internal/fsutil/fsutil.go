package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// DefaultFS is the filesystem used when callers pass nil.
var DefaultFS afero.Fs = afero.NewOsFs()

func orDefault(fs afero.Fs) afero.Fs {
	if fs == nil {
		return DefaultFS
	}
	return fs
}

// Exists reports whether path exists. Errors other than "not exist" are
// treated as existing so callers do not clobber files they cannot stat.
func Exists(fs afero.Fs, path string) bool {
	_, err := orDefault(fs).Stat(path)
	if err == nil {
		return true
	}
	return !os.IsNotExist(err)
}

// WriteFile truncates path and writes data to it.
func WriteFile(fs afero.Fs, path string, data []byte) error {
	if err := afero.WriteFile(orDefault(fs), filepath.Clean(path), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Rename moves oldPath to newPath, replacing newPath if it exists.
func Rename(fs afero.Fs, oldPath, newPath string) error {
	if err := orDefault(fs).Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}

// WriteFileAtomic writes data to a temporary file in the target directory,
// syncs it and renames it over path. Readers see either the old or the new
// contents, never a partial write.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	fs = orDefault(fs)
	clean := filepath.Clean(path)
	dir := filepath.Dir(clean)
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(clean)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fs.Chmod(tmpName, perm); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := Rename(fs, tmpName, clean); err != nil {
		_ = fs.Remove(tmpName)
		return err
	}
	return nil
}

// CurrentDate formats t in local time as yyyymmdd.
func CurrentDate(t time.Time) string {
	return t.Local().Format("20060102")
}
