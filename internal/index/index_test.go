package index_test

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/tbs/internal/index"
	"github.com/NamanBalaji/tbs/internal/testutil"
	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

func parse(t *testing.T, spec testutil.Spec) *metainfo.Torrent {
	t.Helper()
	tor, err := metainfo.Parse(spec.Bytes(t))
	require.NoError(t, err)
	return tor
}

func TestIndex_SharedHashAcrossTorrents(t *testing.T) {
	shared := testutil.RandomBytes(1, 32)

	a := parse(t, testutil.Spec{
		Name: "a", PieceLength: 16, Single: true,
		Files: []testutil.File{{Data: shared}},
	})
	// Same bytes re-packaged after a 16-byte prefix file.
	b := parse(t, testutil.Spec{
		Name: "b", PieceLength: 16,
		Files: []testutil.File{
			{Path: []string{"intro"}, Data: testutil.RandomBytes(2, 16)},
			{Path: []string{"main"}, Data: shared},
		},
	})

	idx := index.New([]*metainfo.Torrent{a, b})

	h := metainfo.Hash(sha1.Sum(shared[:16]))
	assert.ElementsMatch(t, []index.Location{
		{Torrent: 0, Piece: 0, Length: 16},
		{Torrent: 1, Piece: 1, Length: 16},
	}, idx.LookupLength(h, 16))

	assert.Len(t, idx.Torrents(), 2)
	assert.Equal(t, 3, idx.Len())
}

func TestIndex_LastPieceLength(t *testing.T) {
	data := testutil.RandomBytes(3, 40)
	tor := parse(t, testutil.Spec{
		Name: "x", PieceLength: 16, Single: true,
		Files: []testutil.File{{Data: data}},
	})

	idx := index.New([]*metainfo.Torrent{tor})

	last := metainfo.Hash(sha1.Sum(data[32:]))
	assert.Equal(t, []index.Location{{Torrent: 0, Piece: 2, Length: 8}}, idx.LookupLength(last, 8))
	assert.Empty(t, idx.LookupLength(last, 16))
}

func TestIndex_Missing(t *testing.T) {
	idx := index.New(nil)
	assert.Empty(t, idx.LookupLength(metainfo.Hash{}, 16))
	assert.Equal(t, 0, idx.Len())
}
