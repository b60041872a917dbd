package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
)

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"notes.txt", MIMEPlain},
		{"README.MD", "text/markdown"},
		{"report.pdf", MIMEPDF},
		{"book.xlsx", MIMEXLSX},
		{"Makefile", "text/x-makefile"},
		{"photo.PNG", "image/png"},
		{"no_extension", MIMEPlain},
		{"weird.xyz", MIMEPlain},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMIME(tt.path))
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(MIMEPlain))
	assert.True(t, Supported("application/json"))
	assert.True(t, Supported(MIMEPDF))
	assert.True(t, Supported(MIMEXLSX))
	assert.False(t, Supported("image/png"))
	assert.False(t, Supported("application/zip"))
}

func TestDecode(t *testing.T) {
	t.Run("utf8 passes through", func(t *testing.T) {
		text, ok := Decode([]byte("naïve café"))
		require.True(t, ok)
		assert.Equal(t, "naïve café", text)
	})

	t.Run("utf8 bom is stripped", func(t *testing.T) {
		text, ok := Decode(append([]byte{0xEF, 0xBB, 0xBF}, "hello"...))
		require.True(t, ok)
		assert.Equal(t, "hello", text)
	})

	t.Run("utf16 little endian", func(t *testing.T) {
		data := []byte{0xFF, 0xFE, 'h', 0, 'i', 0}
		text, ok := Decode(data)
		require.True(t, ok)
		assert.Equal(t, "hi", text)
	})

	t.Run("utf16 big endian", func(t *testing.T) {
		data := []byte{0xFE, 0xFF, 0, 'o', 0, 'k'}
		text, ok := Decode(data)
		require.True(t, ok)
		assert.Equal(t, "ok", text)
	})

	t.Run("latin1 fallback", func(t *testing.T) {
		text, ok := Decode([]byte{'c', 'a', 'f', 0xE9})
		require.True(t, ok)
		assert.Equal(t, "café", text)
	})

	t.Run("binary rejected", func(t *testing.T) {
		_, ok := Decode([]byte{0x7F, 'E', 'L', 'F', 0, 0, 1})
		assert.False(t, ok)
	})
}

func TestExtract_TextFile(t *testing.T) {
	// Given: a plain text file
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("School of Apache\nline two"), 0644))

	// When: extracting with a detected MIME type
	text, err := Extract(path, "")

	// Then: the text comes back unchanged
	require.NoError(t, err)
	assert.Equal(t, "School of Apache\nline two", text)
}

func TestExtract_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Extract(filepath.Join(dir, "missing.txt"), "")
		assert.Equal(t, skerrors.ErrCodeFileNotFound, skerrors.GetCode(err))
	})

	t.Run("unsupported type", func(t *testing.T) {
		path := filepath.Join(dir, "a.png")
		require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0644))
		_, err := Extract(path, "")
		assert.Equal(t, skerrors.ErrCodeUnsupportedMIME, skerrors.GetCode(err))
	})

	t.Run("directory", func(t *testing.T) {
		_, err := Extract(dir, MIMEPlain)
		assert.Equal(t, skerrors.ErrCodeInvalidPath, skerrors.GetCode(err))
	})

	t.Run("binary text", func(t *testing.T) {
		path := filepath.Join(dir, "b.txt")
		require.NoError(t, os.WriteFile(path, []byte{'a', 0, 'b'}, 0644))
		_, err := Extract(path, "")
		assert.Equal(t, skerrors.ErrCodeContentUnreadable, skerrors.GetCode(err))
	})

	t.Run("corrupt pdf", func(t *testing.T) {
		path := filepath.Join(dir, "c.pdf")
		require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0644))
		_, err := Extract(path, "")
		assert.Equal(t, skerrors.ErrCodeContentUnreadable, skerrors.GetCode(err))
	})
}

func TestExtract_XLSX(t *testing.T) {
	// Given: a workbook with one populated sheet
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "city"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Ada"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "London"))

	path := filepath.Join(t.TempDir(), "people.xlsx")
	require.NoError(t, f.SaveAs(path))

	// When: extracting
	text, err := Extract(path, "")

	// Then: the sheet renders as tab-separated rows
	require.NoError(t, err)
	assert.Equal(t, "Sheet1\nname\tcity\nAda\tLondon\n", text)
}

func TestFileURI_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my notes.txt")

	uri := FileURI(path)
	assert.True(t, strings.HasPrefix(uri, "file:///"), uri)
	assert.Contains(t, uri, "my%20notes.txt")

	back, ok := PathFromURI(uri)
	require.True(t, ok)
	assert.Equal(t, path, back)
}

func TestPathFromURI_NotAFileURI(t *testing.T) {
	_, ok := PathFromURI("doc:1")
	assert.False(t, ok)
	_, ok = PathFromURI("https://example.com/a")
	assert.False(t, ok)
}
