package content

import (
	"path/filepath"
	"strings"
)

// MIME types with dedicated extractors.
const (
	MIMEPlain = "text/plain"
	MIMEPDF   = "application/pdf"
	MIMEXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEXLSM  = "application/vnd.ms-excel.sheet.macroEnabled.12"
)

// mimeTypes maps file extensions to MIME types.
var mimeTypes = map[string]string{
	// Documents
	".txt":      MIMEPlain,
	".text":     MIMEPlain,
	".log":      MIMEPlain,
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".rst":      "text/x-rst",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
	".pdf":      MIMEPDF,
	".xlsx":     MIMEXLSX,
	".xlsm":     MIMEXLSM,

	// Web and data
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".json": "application/json",
	".xml":  "text/xml",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
	".toml": "text/x-toml",
	".ini":  MIMEPlain,
	".conf": MIMEPlain,

	// Source
	".go":    "text/x-go",
	".py":    "text/x-python",
	".js":    "text/javascript",
	".ts":    "text/typescript",
	".java":  "text/x-java",
	".c":     "text/x-c",
	".h":     "text/x-c",
	".cpp":   "text/x-c++",
	".m":     "text/x-objcsrc",
	".swift": "text/x-swift",
	".rs":    "text/x-rust",
	".rb":    "text/x-ruby",
	".sh":    "text/x-sh",
	".sql":   "text/x-sql",

	// Known binaries without an extractor
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".zip":   "application/zip",
	".gz":    "application/gzip",
	".tar":   "application/x-tar",
	".exe":   "application/octet-stream",
	".bin":   "application/octet-stream",
	".so":    "application/octet-stream",
	".dylib": "application/octet-stream",
	".doc":   "application/msword",
	".xls":   "application/vnd.ms-excel",
}

// specialFilenames maps specific filenames to MIME types.
var specialFilenames = map[string]string{
	"Dockerfile": "text/x-dockerfile",
	"Makefile":   "text/x-makefile",
	"README":     MIMEPlain,
	"LICENSE":    MIMEPlain,
}

// DetectMIME returns the MIME type for a file path.
// It checks special filenames first, then the extension.
// Returns "text/plain" for unknown types.
func DetectMIME(path string) string {
	base := filepath.Base(path)
	if mime, ok := specialFilenames[base]; ok {
		return mime
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		if mime, ok := mimeTypes[ext]; ok {
			return mime
		}
	}

	return MIMEPlain
}

// isTextual reports whether a MIME type is decoded as plain text.
func isTextual(mime string) bool {
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	switch mime {
	case "application/json", "application/xml", "application/x-yaml":
		return true
	}
	return false
}
