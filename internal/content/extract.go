// Package content turns files into indexable text: MIME detection, charset
// decoding and extraction from PDF and XLSX documents.
package content

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
)

// Extractor returns the text of a document.
type Extractor func(data []byte) (string, error)

var extractors = map[string]Extractor{
	MIMEPDF:  extractPDF,
	MIMEXLSX: extractXLSX,
	MIMEXLSM: extractXLSX,
}

// Supported reports whether a MIME type has an extractor.
func Supported(mime string) bool {
	_, ok := extractors[mime]
	return ok || isTextual(mime)
}

// Extract reads path and returns its text. An empty mime is detected from
// the path. Errors are *errors.SearchKitError with codes for missing files,
// unsupported types and unreadable content.
func Extract(path, mime string) (string, error) {
	if mime == "" {
		mime = DetectMIME(path)
	}
	if !Supported(mime) {
		return "", skerrors.UnsupportedMIME(path, mime)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", skerrors.New(skerrors.ErrCodeFileNotFound, fmt.Sprintf("cannot stat %s", path), err).
			WithDetail("path", path)
	}
	if !info.Mode().IsRegular() {
		return "", skerrors.New(skerrors.ErrCodeInvalidPath, fmt.Sprintf("%s is not a regular file", path), nil).
			WithDetail("path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", skerrors.New(skerrors.ErrCodeFilePermission, fmt.Sprintf("cannot read %s", path), err).
			WithDetail("path", path)
	}

	text, err := ExtractBytes(data, mime)
	if err != nil {
		return "", skerrors.ContentUnreadable(path, err)
	}
	return text, nil
}

// ExtractBytes returns the text of in-memory document data.
func ExtractBytes(data []byte, mime string) (string, error) {
	if extract, ok := extractors[mime]; ok {
		return extract(data)
	}
	if !isTextual(mime) {
		return "", fmt.Errorf("no extractor for %s", mime)
	}
	text, ok := Decode(data)
	if !ok {
		return "", fmt.Errorf("binary content")
	}
	return text, nil
}

func extractPDF(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf text: %w", err)
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(out), nil
}

// extractXLSX renders each sheet as a name line followed by tab-separated rows.
func extractXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		sb.WriteString(sheet)
		sb.WriteByte('\n')
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}
