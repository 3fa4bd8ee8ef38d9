// Package atomicfile replaces files so that concurrent readers observe either
// the old or the new content, never a partial write.
package atomicfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type options struct {
	validate func([]byte) error
	backup   bool
	mode     os.FileMode
}

type Option func(*options)

// WithValidate re-reads the temp file and rejects the write if validate fails.
func WithValidate(validate func([]byte) error) Option {
	return func(o *options) { o.validate = validate }
}

// WithBackup copies the current file to "<path>.bak" before replacing it.
func WithBackup(enabled bool) Option {
	return func(o *options) { o.backup = enabled }
}

// WithMode sets the mode of a newly created file. An existing file keeps its mode.
func WithMode(mode os.FileMode) Option {
	return func(o *options) { o.mode = mode }
}

// Write stores content at path via a temp file in the same directory, fsync
// and rename.
func Write(path string, content []byte, opts ...Option) error {
	o := options{mode: 0644}
	for _, opt := range opts {
		opt(&o)
	}

	mode := o.mode
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cmdrelay-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if o.validate != nil {
		written, err := os.ReadFile(tmpName)
		if err != nil {
			return fmt.Errorf("read temp file for validation: %w", err)
		}
		if err := o.validate(written); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	if o.backup {
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, path+".bak"); err != nil {
				return fmt.Errorf("create backup: %w", err)
			}
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
