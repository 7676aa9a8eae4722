package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_MarshalJSON_Flattens(t *testing.T) {
	start, end := 0, 42
	m := Metadata{
		Source:     "docs/handbook.md",
		Filename:   "handbook.md",
		Type:       "md",
		ChunkStart: &start,
		ChunkEnd:   &end,
		Extra:      map[string]any{"author": "ops"},
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "docs/handbook.md", flat["source"])
	assert.Equal(t, "handbook.md", flat["filename"])
	assert.Equal(t, "md", flat["type"])
	assert.Equal(t, float64(0), flat["chunk_start"])
	assert.Equal(t, float64(42), flat["chunk_end"])
	assert.Equal(t, "ops", flat["author"])
}

func TestMetadata_MarshalJSON_OmitsEmpty(t *testing.T) {
	data, err := json.Marshal(Metadata{Source: "a.txt"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"source":"a.txt"}`, string(data))
}

func TestMetadata_UnmarshalJSON(t *testing.T) {
	var m Metadata
	err := json.Unmarshal([]byte(`{"source":"a.txt","type":"txt","chunk_start":5,"chunk_end":9,"lang":"en"}`), &m)
	require.NoError(t, err)

	assert.Equal(t, "a.txt", m.Source)
	assert.Equal(t, "txt", m.Type)
	require.NotNil(t, m.ChunkStart)
	require.NotNil(t, m.ChunkEnd)
	assert.Equal(t, 5, *m.ChunkStart)
	assert.Equal(t, 9, *m.ChunkEnd)
	assert.Equal(t, map[string]any{"lang": "en"}, m.Extra)
}

func TestMetadata_UnmarshalJSON_BadField(t *testing.T) {
	var m Metadata
	err := json.Unmarshal([]byte(`{"chunk_start":"five"}`), &m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_start")
}

func TestMetadata_WithChunk(t *testing.T) {
	base := Metadata{Source: "a.txt", Extra: map[string]any{"k": "v"}}
	got := base.WithChunk(Chunk{Text: "abc", StartOffset: 10, EndOffset: 13})

	require.NotNil(t, got.ChunkStart)
	assert.Equal(t, 10, *got.ChunkStart)
	assert.Equal(t, 13, *got.ChunkEnd)
	assert.Nil(t, base.ChunkStart, "original must not be modified")

	got.Extra["k"] = "changed"
	assert.Equal(t, "v", base.Extra["k"], "extra map must be copied")
}

func TestChunk_Len(t *testing.T) {
	assert.Equal(t, 7, Chunk{StartOffset: 3, EndOffset: 10}.Len())
}

func TestChunkParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  ChunkParams
		wantErr bool
	}{
		{"defaults", ChunkParams{Size: 500, Overlap: 50}, false},
		{"zero overlap", ChunkParams{Size: 10, Overlap: 0}, false},
		{"overlap equals size", ChunkParams{Size: 50, Overlap: 50}, true},
		{"overlap exceeds size", ChunkParams{Size: 50, Overlap: 80}, true},
		{"zero size", ChunkParams{Size: 0, Overlap: 0}, true},
		{"negative overlap", ChunkParams{Size: 10, Overlap: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadFailure(t *testing.T) {
	cause := errors.New("permission denied")
	f := LoadFailure{Path: "/tmp/x.pdf", Err: cause}

	assert.Equal(t, "load /tmp/x.pdf: permission denied", f.Error())
	assert.ErrorIs(t, f, ErrLoad)
	assert.ErrorIs(t, f, cause)
}
