package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/searchkit/internal/content"
	"github.com/Aman-CERP/searchkit/internal/index"
)

const (
	uriScheme = "searchkit://"

	documentsURI = uriScheme + "documents"
	documentURI  = uriScheme + "document"
)

// MaxResourceSize is the maximum document text served as a resource (1MB).
const MaxResourceSize = 1024 * 1024

// MaxListedDocuments caps the documents resource.
const MaxListedDocuments = 10000

// documentEntry is one row of the documents resource.
type documentEntry struct {
	URI       string `json:"uri"`
	TermCount int    `json:"term_count"`
	MIMEType  string `json:"mime_type"`
	Read      string `json:"read"`
}

// registerResources registers the documents listing and the per-document
// template.
func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         documentsURI,
		Name:        "documents",
		Description: "Documents in the index with their term counts",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: documentURI + "{?uri}",
		Name:        "document-text",
		Description: "Indexed text of one document",
		MIMEType:    "text/plain",
	}, s.handleDocumentResource)
}

// DocumentResourceURI returns the resource URI serving the text of uri.
func DocumentResourceURI(uri string) string {
	return documentURI + "?" + url.Values{"uri": {uri}}.Encode()
}

// handleDocumentsResource lists the committed documents.
func (s *Server) handleDocumentsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uris := s.index.Documents(ctx, index.FilterAll)
	if err := ctx.Err(); err != nil {
		return nil, MapError(err)
	}
	if len(uris) > MaxListedDocuments {
		uris = uris[:MaxListedDocuments]
	}

	entries := make([]documentEntry, len(uris))
	for i, uri := range uris {
		entries[i] = documentEntry{
			URI:       uri,
			TermCount: s.index.TermCount(uri),
			MIMEType:  mimeTypeForURI(uri),
			Read:      DocumentResourceURI(uri),
		}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling documents: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleDocumentResource serves the stored text of one document.
func (s *Server) handleDocumentResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := extractDocumentURI(req.Params.URI)
	if uri == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	text, ok := s.index.DocumentText(uri)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if len(text) > MaxResourceSize {
		return nil, NewInvalidParamsError(fmt.Sprintf("document too large: %d bytes (max %d)", len(text), MaxResourceSize))
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     text,
		}},
	}, nil
}

// extractDocumentURI returns the document URI of a searchkit://document
// resource URI, or "".
func extractDocumentURI(resourceURI string) string {
	rest, ok := strings.CutPrefix(resourceURI, documentURI)
	if !ok || !strings.HasPrefix(rest, "?") {
		return ""
	}
	values, err := url.ParseQuery(rest[1:])
	if err != nil {
		return ""
	}
	return values.Get("uri")
}

// mimeTypeForURI guesses the original MIME type of a document. Non-file
// documents are plain text.
func mimeTypeForURI(uri string) string {
	if path, ok := content.PathFromURI(uri); ok {
		return content.DetectMIME(path)
	}
	return content.MIMEPlain
}
