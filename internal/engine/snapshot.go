package engine

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"

	skerrors "github.com/Aman-CERP/searchkit/internal/errors"
)

const snapshotVersion = 1

// snapshot is the serialized form of an in-memory index. It carries the
// documents and properties, not backend files, so it loads into either
// backend.
type snapshot struct {
	Version    int                `json:"version"`
	Properties Properties         `json:"properties"`
	Docs       []snapshotDocument `json:"docs"`
}

type snapshotDocument struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
}

// Snapshot implements Engine. Pending mutations are not included.
func (e *textEngine) Snapshot() ([]byte, error) {
	if e.closed {
		return nil, skerrors.EngineUnavailable("snapshot")
	}
	if e.path != "" {
		return nil, skerrors.New(skerrors.ErrCodeInvalidInput, "snapshots are only available for in-memory indexes", nil).
			WithSuggestion("file-backed indexes are saved in place")
	}

	snap := snapshot{Version: snapshotVersion, Properties: e.props}
	var uris []string
	err := e.store.walk(context.Background(), func(info DocumentInfo) bool {
		uris = append(uris, info.URI)
		return true
	})
	if err != nil {
		return nil, skerrors.Wrap(skerrors.ErrCodeInternal, err)
	}
	for _, uri := range uris {
		text, _, found, err := e.store.lookup(uri)
		if err != nil {
			return nil, skerrors.Wrap(skerrors.ErrCodeInternal, err)
		}
		if found {
			snap.Docs = append(snap.Docs, snapshotDocument{URI: uri, Text: text})
		}
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (snapshot, error) {
	corrupt := func(err error) error {
		return skerrors.New(skerrors.ErrCodeSnapshotCorrupt, "index snapshot is not readable", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, corrupt(err)
	}
	defer func() { _ = zr.Close() }()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return snapshot{}, corrupt(err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snapshot{}, corrupt(err)
	}
	if snap.Version != snapshotVersion {
		return snapshot{}, corrupt(fmt.Errorf("unsupported snapshot version %d", snap.Version))
	}
	return snap, nil
}
