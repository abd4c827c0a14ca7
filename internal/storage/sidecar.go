package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WriteSidecar writes the document's metadata.json to
// {basePath}/tenant_{tenant}/documents/{document}/metadata.json and returns
// the file path. Callers treat failure as best-effort: a successful ingest is
// not rolled back over a sidecar write.
func WriteSidecar(basePath string, tenantID, documentID uuid.UUID, metadata map[string]interface{}) (string, error) {
	dir := filepath.Join(basePath, fmt.Sprintf("tenant_%s", tenantID), "documents", documentID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create sidecar dir: %w", err)
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	path := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}
	return path, nil
}
