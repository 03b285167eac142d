package lsp

import (
	"net/url"
	"path/filepath"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// FileName returns the workspace file name for a document URI. File URIs
// map to their local path; other URIs are used unchanged.
func FileName(uri protocol.DocumentUri) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(u.Path)))
}

// URI returns the document URI for a workspace file name.
func URI(fileName string) protocol.DocumentUri {
	if strings.Contains(fileName, "://") {
		return fileName
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(fileName)}
	return u.String()
}
