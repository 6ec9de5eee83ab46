package job

import (
	"path"
	"strings"
)

// ExportBlobKey resolves a gltf.convert result's exportPath into the
// blob key downstream consumers use: {tenantId}/{projectId}/{path}.
// The export path is normalized to a safe relative form; traversal
// segments and absolute prefixes are stripped.
func ExportBlobKey(tenantID, projectID, exportPath string) string {
	return tenantID + "/" + projectID + "/" + SanitizeExportPath(exportPath)
}

// SanitizeExportPath cleans a result exportPath into a relative slash
// path with no empty, ".", or ".." segments.
func SanitizeExportPath(p string) string {
	cleaned := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	parts := strings.Split(cleaned, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "/")
}
