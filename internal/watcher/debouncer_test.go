package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with a short window
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// When: one event is added
	d.Add(FileEvent{Path: "a.txt", Operation: OpCreate})

	// Then: it is emitted unchanged
	batch := receiveBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "a.txt", batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_MergeRules(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want []Operation // empty means no event for the path
	}{
		{"create then modify", []Operation{OpCreate, OpModify, OpModify}, []Operation{OpCreate}},
		{"create then delete", []Operation{OpCreate, OpDelete}, nil},
		{"modify then delete", []Operation{OpModify, OpDelete}, []Operation{OpDelete}},
		{"delete then create", []Operation{OpDelete, OpCreate}, []Operation{OpModify}},
		{"modify twice", []Operation{OpModify, OpModify}, []Operation{OpModify}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a debouncer and a sentinel event on another path
			d := NewDebouncer(20 * time.Millisecond)
			defer d.Stop()
			d.Add(FileEvent{Path: "z.txt", Operation: OpModify})

			// When: the operations arrive for one path within the window
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "a.txt", Operation: op})
			}

			// Then: the merged operation is emitted once
			var got []Operation
			for _, e := range receiveBatch(t, d) {
				if e.Path == "a.txt" {
					got = append(got, e.Operation)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDebouncer_DifferentPaths_SortedBatch(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// When: events for several paths arrive together
	d.Add(FileEvent{Path: "c.txt", Operation: OpModify})
	d.Add(FileEvent{Path: "a.txt", Operation: OpCreate})
	d.Add(FileEvent{Path: "b.txt", Operation: OpDelete})

	// Then: one batch holds all of them, ordered by path
	batch := receiveBatch(t, d)
	require.Len(t, batch, 3)
	assert.Equal(t, "a.txt", batch[0].Path)
	assert.Equal(t, "b.txt", batch[1].Path)
	assert.Equal(t, "c.txt", batch[2].Path)
}

func TestDebouncer_Stop_ClosesOutput(t *testing.T) {
	// Given: a debouncer with a pending event
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "a.txt", Operation: OpCreate})

	// When: stopped twice
	d.Stop()
	d.Stop()

	// Then: the output is closed and pending events are dropped
	_, ok := <-d.Output()
	assert.False(t, ok)

	// And: later adds are ignored
	d.Add(FileEvent{Path: "b.txt", Operation: OpCreate})
}
