package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
)

// Files inside a file-backed index directory.
const (
	metaFileName  = "meta.json"
	bleveDirName  = "bleve"
	sqliteDBName  = "fts.db"
	metaVersion   = 1
	metaFileModes = 0644
)

// indexMeta records how an index was created.
type indexMeta struct {
	Version    int        `json:"version"`
	Properties Properties `json:"properties"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Exists reports whether dir holds a file-backed index.
func Exists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, metaFileName))
	return err == nil && info.Mode().IsRegular()
}

// Stat returns the properties and creation time of the index in dir
// without opening it.
func Stat(dir string) (Properties, time.Time, error) {
	meta, err := readMeta(dir)
	if err != nil {
		return Properties{}, time.Time{}, err
	}
	return meta.Properties, meta.CreatedAt, nil
}

// NewMemory creates an empty in-memory engine.
func NewMemory(props Properties) (Engine, error) {
	props, err := props.normalized()
	if err != nil {
		return nil, skerrors.New(skerrors.ErrCodeInvalidInput, err.Error(), err)
	}

	var s store
	switch props.Backend {
	case BackendSQLite:
		s, err = openSQLiteStore("", props, false)
	default:
		s, err = newBleveMemStore(props)
	}
	if err != nil {
		return nil, skerrors.Wrap(skerrors.ErrCodeEngineUnavailable, err)
	}
	e, err := newTextEngine(props, s, "", false)
	if err != nil {
		_ = s.close()
		return nil, err
	}
	return e, nil
}

// Create creates a file-backed index in dir. It fails if dir already holds
// an index or another process holds its lock.
func Create(dir string, props Properties) (Engine, error) {
	props, err := props.normalized()
	if err != nil {
		return nil, skerrors.New(skerrors.ErrCodeInvalidInput, err.Error(), err)
	}
	if Exists(dir) {
		return nil, skerrors.New(skerrors.ErrCodeInvalidPath, "an index already exists at "+dir, nil).
			WithDetail("path", dir).
			WithSuggestion("open it instead, or remove the directory first")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, skerrors.New(skerrors.ErrCodeFilePermission, fmt.Sprintf("failed to create directory %s", dir), err)
	}

	lock, err := acquireLock(dir, true)
	if err != nil {
		return nil, err
	}

	e, err := createEngine(dir, props)
	if err != nil {
		_ = lock.release()
		return nil, err
	}
	e.lock = lock

	slog.Info("index_created",
		slog.String("path", dir),
		slog.String("backend", props.Backend),
		slog.String("type", string(props.Type)))
	return e, nil
}

func createEngine(dir string, props Properties) (*textEngine, error) {
	var (
		s   store
		err error
	)
	switch props.Backend {
	case BackendSQLite:
		s, err = openSQLiteStore(filepath.Join(dir, sqliteDBName), props, false)
	default:
		s, err = createBleveStore(filepath.Join(dir, bleveDirName), props)
	}
	if err != nil {
		return nil, skerrors.Wrap(skerrors.ErrCodeEngineUnavailable, err)
	}
	if err := writeMeta(dir, props); err != nil {
		_ = s.close()
		return nil, err
	}
	e, err := newTextEngine(props, s, dir, false)
	if err != nil {
		_ = s.close()
		return nil, err
	}
	return e, nil
}

// Open opens the file-backed index in dir. A writable open takes the
// exclusive lock; read-only opens share it.
func Open(dir string, writable bool) (Engine, error) {
	meta, err := readMeta(dir)
	if err != nil {
		return nil, err
	}
	props, err := meta.Properties.normalized()
	if err != nil {
		return nil, skerrors.New(skerrors.ErrCodeCorruptIndex, "index metadata is invalid", err).
			WithDetail("path", dir)
	}

	lock, err := acquireLock(dir, writable)
	if err != nil {
		return nil, err
	}

	var s store
	switch props.Backend {
	case BackendSQLite:
		s, err = openSQLiteStore(filepath.Join(dir, sqliteDBName), props, !writable)
	default:
		s, err = openBleveStore(filepath.Join(dir, bleveDirName), props, writable)
	}
	if err != nil {
		_ = lock.release()
		return nil, skerrors.New(skerrors.ErrCodeCorruptIndex, "failed to open index at "+dir, err).
			WithDetail("path", dir).
			WithSuggestion("recreate the index")
	}

	e, err := newTextEngine(props, s, dir, !writable)
	if err != nil {
		_ = s.close()
		_ = lock.release()
		return nil, skerrors.Wrap(skerrors.ErrCodeCorruptIndex, err)
	}
	e.lock = lock

	slog.Debug("index_opened",
		slog.String("path", dir),
		slog.String("backend", props.Backend),
		slog.Bool("writable", writable))
	return e, nil
}

// Load creates an in-memory engine holding the documents of a snapshot.
func Load(data []byte) (Engine, error) {
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	e, err := NewMemory(snap.Properties)
	if err != nil {
		return nil, err
	}
	for _, doc := range snap.Docs {
		if err := e.AddText(doc.URI, doc.Text, true); err != nil {
			_ = e.Close()
			return nil, err
		}
	}
	if err := e.Flush(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func writeMeta(dir string, props Properties) error {
	data, err := json.MarshalIndent(indexMeta{
		Version:    metaVersion,
		Properties: props,
		CreatedAt:  time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return skerrors.Wrap(skerrors.ErrCodeInternal, err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFileName), data, metaFileModes); err != nil {
		return skerrors.New(skerrors.ErrCodeFilePermission, "failed to write index metadata", err).
			WithDetail("path", dir)
	}
	return nil
}

func readMeta(dir string) (indexMeta, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if os.IsNotExist(err) {
		return indexMeta{}, skerrors.New(skerrors.ErrCodeFileNotFound, "no index at "+dir, err).
			WithDetail("path", dir).
			WithSuggestion("create one with 'searchkit index'")
	}
	if err != nil {
		return indexMeta{}, skerrors.New(skerrors.ErrCodeFilePermission, "failed to read index metadata", err).
			WithDetail("path", dir)
	}
	var meta indexMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return indexMeta{}, skerrors.New(skerrors.ErrCodeCorruptIndex, "index metadata is corrupt", err).
			WithDetail("path", dir)
	}
	if meta.Version != metaVersion {
		return indexMeta{}, skerrors.New(skerrors.ErrCodeCorruptIndex,
			fmt.Sprintf("unsupported index version %d", meta.Version), nil).
			WithDetail("path", dir)
	}
	return meta, nil
}
