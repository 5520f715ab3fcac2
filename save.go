package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// Directory permissions when creating download directories.
	downloadDirPermissions = 0750
)

var (
	ErrInvalidFilePath = errors.New("invalid file path")

	// Characters Windows refuses in file names.
	fileNameReplacer = strings.NewReplacer(
		"<", "_",
		">", "_",
		":", "_",
		"\"", "_",
		"\\", "_",
		"/", "_",
		"|", "_",
		"?", "_",
		"*", "_",
	)
)

// SanitizeFileName replaces characters that are not allowed in file names on
// common filesystems.  "", "." and ".." become "_".
func SanitizeFileName(name string) string {
	name = fileNameReplacer.Replace(name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// downloadTarget decides where file index of count is written.
//
// Parameters:
//   - destPath: A directory, or a file path used as a name template
//   - fileName: The file's own name, used inside a directory
//   - index: Position of the file in the item
//   - count: Number of files in the item
//
// Returns:
//   - string: A clean path to write to
//   - error: Any error creating the parent directory
func downloadTarget(destPath, fileName string, index, count int) (string, error) {
	if destPath == "" {
		destPath = "."
	}

	info, err := os.Stat(destPath)
	isDir := err == nil && info.IsDir()
	if !isDir && strings.HasSuffix(destPath, string(filepath.Separator)) {
		err = os.MkdirAll(destPath, downloadDirPermissions)
		if err != nil {
			return "", fmt.Errorf("failed to create target directory: %w", err)
		}
		isDir = true
	}
	if isDir {
		return filepath.Join(destPath, fileName), nil
	}

	err = os.MkdirAll(filepath.Dir(destPath), downloadDirPermissions)
	if err != nil {
		return "", fmt.Errorf("failed to create target directory: %w", err)
	}

	target := filepath.Clean(destPath)
	if count > 1 {
		ext := filepath.Ext(target)
		base := strings.TrimSuffix(target, ext)
		if ext == "" {
			ext = filepath.Ext(fileName)
		}
		target = fmt.Sprintf("%s_%d%s", base, index, ext)
	}
	return target, nil
}

// downloadHTTP fetches uri through the item's fetcher and writes it to target.
func downloadHTTP(ctx context.Context, item *MediaItem, uri, target string) (bool, error) {
	data, err := item.f.get(ctx, uri)
	if err != nil {
		return false, err
	}
	err = WriteAndFsyncFile(target, data)
	if err != nil {
		return false, err
	}
	return true, nil
}

// WriteAndFsyncFile writes data to a file and fsyncs it to disk, so that a
// file which exists after a crash is complete.  The file is written under a
// temporary name and renamed into place.
//
// Parameters:
//   - filePath: The target file path where data should be written
//   - data: The byte data to write to the file
//
// Returns:
//   - error: Any error encountered during file creation, writing, or syncing
func WriteAndFsyncFile(filePath string, data []byte) (err error) {
	// Prevent directory traversal attacks.
	if filePath != filepath.Clean(filePath) {
		return fmt.Errorf("%w: %s", ErrInvalidFilePath, filePath)
	}

	tempPath := filePath + ".tmp"
	fh, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		_ = fh.Close()
		if err != nil {
			_ = os.Remove(tempPath)
		}
	}()

	_, err = fh.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	err = fh.Sync()
	if err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	err = fh.Close()
	if err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	err = os.Rename(tempPath, filePath)
	if err != nil {
		return fmt.Errorf("failed to finalize file: %w", err)
	}
	return nil
}
