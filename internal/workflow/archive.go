package workflow

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/WolVesz/oic-devops/internal/constants"
)

// zipDirectory writes the contents of src to dst with paths relative to src.
func zipDirectory(src, dst string) (err error) {
	file, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.ArtifactFilePerm)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing archive: %w", closeErr)
		}
	}()

	writer := zip.NewWriter(file)

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		return addZipEntry(writer, path, filepath.ToSlash(rel))
	})
	if err != nil {
		_ = writer.Close()

		return fmt.Errorf("archiving %s: %w", src, err)
	}

	err = writer.Close()
	if err != nil {
		return fmt.Errorf("finishing archive: %w", err)
	}

	return nil
}

func addZipEntry(writer *zip.Writer, path, name string) error {
	source, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer source.Close()

	entry, err := writer.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}

	_, err = io.Copy(entry, source)

	return err
}

// extractZip unpacks archive into dst.
func extractZip(archive, dst string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer reader.Close()

	root := filepath.Clean(dst) + string(os.PathSeparator)

	for _, entry := range reader.File {
		target := filepath.Join(dst, filepath.FromSlash(entry.Name))
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("%w: %s", constants.ErrDirectoryTraversalDetected, entry.Name)
		}

		if entry.FileInfo().IsDir() {
			err = os.MkdirAll(target, constants.ConfigDirPerm)
			if err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}

			continue
		}

		err = extractZipEntry(entry, target)
		if err != nil {
			return err
		}
	}

	return nil
}

func extractZipEntry(entry *zip.File, target string) error {
	err := os.MkdirAll(filepath.Dir(target), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
	}

	source, err := entry.Open()
	if err != nil {
		return fmt.Errorf("reading %s: %w", entry.Name, err)
	}
	defer source.Close()

	out, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.ArtifactFilePerm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}

	_, err = io.Copy(out, source) //nolint:gosec // archives are our own backups
	closeErr := out.Close()

	if err != nil {
		return fmt.Errorf("extracting %s: %w", entry.Name, err)
	}

	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", target, closeErr)
	}

	return nil
}
