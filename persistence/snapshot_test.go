package persistence

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/balltree"
)

func buildTestTree(t *testing.T, n, dim int, p float64) *balltree.Tree {
	t.Helper()

	rng := rand.New(rand.NewSource(int64(n)))
	data := make([]float64, n*dim)
	for i := range data {
		data[i] = rng.NormFloat64()
	}

	tree, err := balltree.New(data, dim, balltree.WithLeafSize(7), balltree.WithP(p))
	require.NoError(t, err)
	return tree
}

func assertSameTree(t *testing.T, want, got *balltree.Tree) {
	t.Helper()

	assert.Equal(t, want.Len(), got.Len())
	assert.Equal(t, want.Dim(), got.Dim())
	assert.Equal(t, want.LeafSize(), got.LeafSize())
	assert.Equal(t, want.P(), got.P())
	assert.Equal(t, want.Data(), got.Data())
	assert.Equal(t, want.IndexArray(), got.IndexArray())
	assert.Equal(t, want.Centroids(), got.Centroids())
	assert.Equal(t, want.Nodes(), got.Nodes())

	q := make([]float64, want.Dim())
	k := min(3, want.Len())
	wantRes, err := want.KNN(q, k)
	require.NoError(t, err)
	gotRes, err := got.KNN(q, k)
	require.NoError(t, err)
	assert.Equal(t, wantRes, gotRes)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec
		p     float64
	}{
		{"None", CodecNone, 2},
		{"Zstd", CodecZstd, 2},
		{"LZ4", CodecLZ4, 1},
		{"Chebyshev", CodecZstd, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := buildTestTree(t, 123, 4, tt.p)

			var buf bytes.Buffer
			require.NoError(t, Save(&buf, tree, WithCodec(tt.codec)))

			restored, err := Load(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assertSameTree(t, tree, restored)
		})
	}
}

func TestSaveLoadSinglePoint(t *testing.T) {
	tree := buildTestTree(t, 1, 2, 2)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, tree))

	restored, err := Load(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assertSameTree(t, tree, restored)
}

func TestLoadInvalidMagic(t *testing.T) {
	tree := buildTestTree(t, 10, 2, 2)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, tree))

	raw := buf.Bytes()
	raw[0] ^= 0xFF

	_, err := Load(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestLoadInvalidVersion(t *testing.T) {
	tree := buildTestTree(t, 10, 2, 2)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, tree))

	raw := buf.Bytes()
	raw[4] ^= 0xFF // version field

	_, err := Load(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestLoadChecksumMismatch(t *testing.T) {
	tree := buildTestTree(t, 50, 3, 2)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, tree, WithCodec(CodecNone)))

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0x01 // flip a payload bit

	_, err := Load(bytes.NewReader(raw))
	var cm *ChecksumMismatchError
	assert.ErrorAs(t, err, &cm)
}

func TestLoadTruncated(t *testing.T) {
	tree := buildTestTree(t, 50, 3, 2)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, tree))

	raw := buf.Bytes()
	_, err := Load(bytes.NewReader(raw[:len(raw)-10]))
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestCompressionShrinksPayload(t *testing.T) {
	// Normally-distributed points don't compress much, but the all-zero
	// centroid padding of dead nodes and the structured records do.
	tree := buildTestTree(t, 500, 8, 2)

	var plain, compressed bytes.Buffer
	require.NoError(t, Save(&plain, tree, WithCodec(CodecNone)))
	require.NoError(t, Save(&compressed, tree, WithCodec(CodecZstd)))

	assert.Less(t, compressed.Len(), plain.Len())
}

func TestSaveToFileLoadFromFile(t *testing.T) {
	tree := buildTestTree(t, 77, 3, 2)

	path := t.TempDir() + "/index.balt"
	require.NoError(t, SaveToFile(path, tree))

	restored, err := LoadFromFile(path)
	require.NoError(t, err)
	assertSameTree(t, tree, restored)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(t.TempDir() + "/nope.balt")
	assert.Error(t, err)
}

func TestCodecString(t *testing.T) {
	assert.Equal(t, "none", CodecNone.String())
	assert.Equal(t, "zstd", CodecZstd.String())
	assert.Equal(t, "lz4", CodecLZ4.String())
	assert.Equal(t, "unknown", Codec(9).String())
}
