package service

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ankitkr9911/vendor-processing/config"
	"github.com/ankitkr9911/vendor-processing/model"
)

// WorkspaceManager owns the on-disk layout: a temporary area per chat
// session and a permanent, isolated workspace per vendor
// ({root}/{vendorId}/documents and /extracted).
type WorkspaceManager struct {
	vendorsRoot string
	tempRoot    string
}

// NewWorkspaceManager creates a manager and ensures both roots exist
func NewWorkspaceManager(cfg *config.StorageConfig) (*WorkspaceManager, error) {
	if err := os.MkdirAll(cfg.VendorsRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vendors root: %w", err)
	}
	if err := os.MkdirAll(cfg.TempRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp root: %w", err)
	}
	return &WorkspaceManager{
		vendorsRoot: cfg.VendorsRoot,
		tempRoot:    cfg.TempRoot,
	}, nil
}

// TempSessionDir returns (and creates) the temporary directory for a
// chat session's uploads
func (w *WorkspaceManager) TempSessionDir(sessionID string) (string, error) {
	dir := filepath.Join(w.tempRoot, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp session dir: %w", err)
	}
	return dir, nil
}

// RemoveTempSession deletes a session's temporary area
func (w *WorkspaceManager) RemoveTempSession(sessionID string) error {
	return os.RemoveAll(filepath.Join(w.tempRoot, sessionID))
}

// CreateVendorWorkspace allocates the permanent directory structure
// for a vendor and returns its base path
func (w *WorkspaceManager) CreateVendorWorkspace(vendorID string) (string, error) {
	base := filepath.Join(w.vendorsRoot, vendorID)
	for _, sub := range []string{"documents", "extracted"} {
		if err := os.MkdirAll(filepath.Join(base, sub), 0755); err != nil {
			return "", fmt.Errorf("failed to create workspace dir: %w", err)
		}
	}
	return base, nil
}

// MoveIntoWorkspace moves temporary files into the workspace's
// documents directory under canonical names: {kind}{ext} for a
// single-page kind, {kind}_page_{n}{ext} when the kind has multiple
// pages. Returns the permanent document descriptors.
func (w *WorkspaceManager) MoveIntoWorkspace(workspace string, files []model.TempFile) ([]model.Document, error) {
	docsDir := filepath.Join(workspace, "documents")

	kindCounts := make(map[string]int)
	for _, f := range files {
		kindCounts[f.Kind]++
	}
	kindSeen := make(map[string]int)

	docs := make([]model.Document, 0, len(files))
	for _, f := range files {
		kindSeen[f.Kind]++
		ext := filepath.Ext(f.Filename)

		var finalName string
		if kindCounts[f.Kind] > 1 {
			page := f.PageNumber
			if page == 0 {
				page = kindSeen[f.Kind]
			}
			finalName = fmt.Sprintf("%s_page_%d%s", f.Kind, page, ext)
		} else {
			finalName = f.Kind + ext
		}

		finalPath := filepath.Join(docsDir, finalName)
		if err := moveFile(f.Path, finalPath); err != nil {
			return nil, fmt.Errorf("failed to move %s: %w", f.Filename, err)
		}

		size := int64(0)
		if info, err := os.Stat(finalPath); err == nil {
			size = info.Size()
		}
		docs = append(docs, model.Document{
			Kind:       f.Kind,
			Filename:   finalName,
			Path:       finalPath,
			Size:       size,
			Converted:  f.Converted,
			PageNumber: f.PageNumber,
			UploadedAt: f.UploadedAt,
		})
	}
	return docs, nil
}

// WriteMetadata persists metadata.json at the workspace root
func (w *WorkspaceManager) WriteMetadata(workspace string, v any) error {
	return writeJSON(filepath.Join(workspace, "metadata.json"), v)
}

// WriteSnapshot persists a raw snapshot (session_raw.json for the chat
// path, email_raw.json for the webhook path) at the workspace root
func (w *WorkspaceManager) WriteSnapshot(workspace, name string, v any) error {
	return writeJSON(filepath.Join(workspace, name), v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal json: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// moveFile renames the file, falling back to copy+remove across
// filesystems
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
