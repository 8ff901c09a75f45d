// Package archive implements the two-stage zip extraction used to stage
// dataset files: the outer archive is unpacked into a throwaway staging
// directory and merged into the target, then a nested archive found in the
// target is unpacked in place.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mholt/archiver/v4"
)

// ExtractOuter unpacks archivePath into a unique staging directory, then
// copies every top-level entry into targetDir. Directories are merged
// recursively and existing files are overwritten; file metadata is
// preserved. The staging directory is removed whether or not the copy
// succeeds.
func ExtractOuter(ctx context.Context, archivePath, targetDir string) error {
	staging, err := os.MkdirTemp("", "alembic-staging-*")
	if err != nil {
		return fmt.Errorf("error creating staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			log.Warnf("error removing staging directory: %v", err)
		}
	}()

	count, err := extractZip(ctx, archivePath, staging)
	if err != nil {
		return fmt.Errorf("error extracting %v: %w", filepath.Base(archivePath), err)
	}
	log.Infof("extracted %v members from %v", count, filepath.Base(archivePath))

	entries, err := os.ReadDir(staging)
	if err != nil {
		return fmt.Errorf("error reading staging directory: %w", err)
	}
	for _, e := range entries {
		src := filepath.Join(staging, e.Name())
		dst := filepath.Join(targetDir, e.Name())
		if e.IsDir() {
			err = CopyTree(src, dst)
		} else {
			err = CopyFile(src, dst)
		}
		if err != nil {
			return fmt.Errorf("error staging %v: %w", e.Name(), err)
		}
	}
	return nil
}

// ExtractNested unpacks nestedName inside targetDir, in place, if it
// exists. If the extraction produced folderName, any of the wanted files
// found inside it are copied up to targetDir, overwriting. A missing
// nested archive is a no-op.
func ExtractNested(ctx context.Context, targetDir, nestedName, folderName string, wanted []string) error {
	nested := filepath.Join(targetDir, nestedName)
	if _, err := os.Stat(nested); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("error checking nested archive: %w", err)
	}

	count, err := extractZip(ctx, nested, targetDir)
	if err != nil {
		return fmt.Errorf("error extracting nested archive %v: %w", nestedName, err)
	}
	log.Infof("extracted %v members from nested archive %v", count, nestedName)

	folder := filepath.Join(targetDir, folderName)
	if _, err := os.Stat(folder); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("error checking nested folder: %w", err)
	}
	for _, name := range wanted {
		src := filepath.Join(folder, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := CopyFile(src, filepath.Join(targetDir, name)); err != nil {
			return fmt.Errorf("error staging %v from nested folder: %w", name, err)
		}
	}
	return nil
}

func extractZip(ctx context.Context, archivePath, dest string) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	var count int
	handler := func(_ context.Context, member archiver.File) error {
		count++
		return writeMember(member, dest)
	}
	if err := (archiver.Zip{}).Extract(ctx, f, nil, handler); err != nil {
		return count, err
	}
	return count, nil
}

func writeMember(member archiver.File, dest string) error {
	path := filepath.Join(dest, filepath.FromSlash(member.NameInArchive))
	if !strings.HasPrefix(path, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("archive member escapes destination: %v", member.NameInArchive)
	}
	if member.IsDir() {
		return os.MkdirAll(path, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	in, err := member.Open()
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	perm := member.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(path, member.ModTime(), member.ModTime())
}

// CopyFile copies src to dst, overwriting, preserving permissions and
// modification time.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// CopyTree recursively copies the directory src into dst, merging with any
// existing contents. Files at the same relative path are overwritten.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return CopyFile(path, target)
	})
}
