// Package kgdoc manages the on-disk inbox a document passes through before
// ingestion: staging uploads, rejecting unsupported extensions and path
// traversal, and moving accepted files into an __enqueued__ subdirectory
// with a collision-safe name. Ported from
// original_source/runtime/src/pipeline/document_manager.rs.
package kgdoc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileRepository abstracts the filesystem operations DocumentManager needs,
// letting tests substitute an in-memory fake instead of touching disk.
type FileRepository interface {
	CreateDirAll(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(path string) bool
}

// FsFileRepository implements FileRepository over the real filesystem.
type FsFileRepository struct{}

func (FsFileRepository) CreateDirAll(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

func (FsFileRepository) Rename(ctx context.Context, from, to string) error {
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("move %s to %s: %w", from, to, err)
	}
	return nil
}

func (FsFileRepository) Read(ctx context.Context, path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	return b, nil
}

func (FsFileRepository) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DocumentManager owns the ingest inbox directory for a single workspace.
type DocumentManager struct {
	baseInputDir        string
	workspace           string
	supportedExtensions map[string]struct{}
	repo                FileRepository
}

// New constructs a DocumentManager over the real filesystem.
func New(ctx context.Context, inputDir, workspace string, supportedExtensions []string) (*DocumentManager, error) {
	return WithRepository(ctx, inputDir, workspace, supportedExtensions, FsFileRepository{})
}

// WithRepository constructs a DocumentManager over a custom FileRepository,
// used by tests to avoid real disk I/O.
func WithRepository(ctx context.Context, inputDir, workspace string, supportedExtensions []string, repo FileRepository) (*DocumentManager, error) {
	extensions := make(map[string]struct{}, len(supportedExtensions))
	for _, ext := range supportedExtensions {
		extensions[normalizeExtension(ext)] = struct{}{}
	}

	dm := &DocumentManager{
		baseInputDir:        inputDir,
		workspace:           workspace,
		supportedExtensions: extensions,
		repo:                repo,
	}

	effectiveDir := dm.InputDir()
	if err := repo.CreateDirAll(ctx, effectiveDir); err != nil {
		return nil, fmt.Errorf("failed to create input directory at %s: %w", effectiveDir, err)
	}

	return dm, nil
}

// InputDir is the workspace-scoped inbox directory: baseInputDir/workspace
// when a workspace is set, or baseInputDir alone otherwise.
func (dm *DocumentManager) InputDir() string {
	if dm.workspace != "" {
		return filepath.Join(dm.baseInputDir, dm.workspace)
	}
	return dm.baseInputDir
}

// IsSupportedFile reports whether filename's extension is in the
// configured allowlist. A filename with no extension is never supported.
func (dm *DocumentManager) IsSupportedFile(filename string) bool {
	ext := filepath.Ext(filename)
	if ext == "" {
		return false
	}
	_, ok := dm.supportedExtensions[normalizeExtension(ext)]
	return ok
}

// SanitizeFilename rejects empty names and any path traversal or directory
// separator, returning the trimmed name otherwise.
func SanitizeFilename(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}
	if strings.Contains(trimmed, "..") || strings.ContainsAny(trimmed, "/\\") {
		return "", fmt.Errorf("invalid filename: %q", raw)
	}
	return trimmed, nil
}

// PathIsDuplicate reports whether filename already exists in the inbox.
func (dm *DocumentManager) PathIsDuplicate(filename string) bool {
	return dm.repo.Exists(filepath.Join(dm.InputDir(), filename))
}

// MoveToEnqueued relocates filePath into an __enqueued__ subdirectory
// alongside it, renaming on collision, and returns the final path.
func (dm *DocumentManager) MoveToEnqueued(ctx context.Context, filePath string) (string, error) {
	parent := filepath.Dir(filePath)
	if parent == "." && !strings.Contains(filePath, string(filepath.Separator)) {
		return "", fmt.Errorf("file has no parent directory: %s", filePath)
	}

	enqueuedDir := filepath.Join(parent, "__enqueued__")
	if err := dm.repo.CreateDirAll(ctx, enqueuedDir); err != nil {
		return "", fmt.Errorf("failed to create enqueued dir at %s: %w", enqueuedDir, err)
	}

	uniqueName, err := dm.uniqueFilename(enqueuedDir, filePath)
	if err != nil {
		return "", err
	}

	target := filepath.Join(enqueuedDir, uniqueName)
	if err := dm.repo.Rename(ctx, filePath, target); err != nil {
		return "", err
	}
	return target, nil
}

// Repository exposes the underlying FileRepository for callers that need
// direct read access to staged files.
func (dm *DocumentManager) Repository() FileRepository {
	return dm.repo
}

// uniqueFilename returns filePath's base name if it's not already taken in
// dir, or a "<stem>_<n>.<ext>" variant with the smallest n that is free.
func (dm *DocumentManager) uniqueFilename(dir, filePath string) (string, error) {
	original := filepath.Base(filePath)
	if original == "." || original == string(filepath.Separator) {
		return "", fmt.Errorf("file name is missing for %s", filePath)
	}

	if !dm.repo.Exists(filepath.Join(dir, original)) {
		return original, nil
	}

	ext := filepath.Ext(original)
	stem := strings.TrimSuffix(original, ext)
	ext = strings.TrimPrefix(ext, ".")

	for counter := 1; ; counter++ {
		var candidateName string
		if ext == "" {
			candidateName = stem + "_" + strconv.Itoa(counter)
		} else {
			candidateName = stem + "_" + strconv.Itoa(counter) + "." + ext
		}
		if !dm.repo.Exists(filepath.Join(dir, candidateName)) {
			return candidateName, nil
		}
	}
}

// normalizeExtension lowercases ext and strips a leading dot.
func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
