package muxer

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// riffChunk is one node of a parsed RIFF tree: either a LIST (tag ==
// "RIFF" or "LIST", with a 4-byte listType and nested children) or a
// plain data chunk. start is the offset of the chunk's own FourCC.
type riffChunk struct {
	tag      string
	listType string
	size     uint32
	start    int64
	children []riffChunk
}

// riffparse walks data[offset:end] as a sequence of RIFF chunks,
// recursing into LIST/RIFF bodies using each chunk's own declared size
// to find the next sibling — exactly how a real RIFF-conformant reader
// would. A chunk whose declared size disagrees with its actual layout
// either overruns its parent's bounds (caught by the require below) or
// leaves the next sibling's FourCC misaligned, which then fails to
// parse as a plausible tag. This is what would have caught the
// moviSize off-by-4 regression: a movi LIST declared 4 bytes short
// leaves idx1's FourCC sitting 4 bytes later than the parser expects.
func riffparse(t *testing.T, data []byte, offset, end int) []riffChunk {
	t.Helper()
	var nodes []riffChunk
	for offset < end {
		require.LessOrEqualf(t, offset+8, end, "chunk header at %d overruns parent end %d", offset, end)

		tag := string(data[offset : offset+4])
		size := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		contentStart := offset + 8
		require.LessOrEqualf(t, int64(contentStart)+int64(size), int64(end),
			"chunk %q at %d declares size %d, overruns parent end %d", tag, offset, size, end)

		node := riffChunk{tag: tag, size: size, start: int64(offset)}

		next := contentStart + int(size)
		if size%2 == 1 {
			next++ // RIFF pads odd-sized chunks to a word boundary
		}

		if tag == "RIFF" || tag == "LIST" {
			require.GreaterOrEqualf(t, size, uint32(4), "%q chunk too small to hold a list type", tag)
			node.listType = string(data[contentStart : contentStart+4])
			node.children = riffparse(t, data, contentStart+4, contentStart+int(size))
		}

		nodes = append(nodes, node)
		offset = next
	}
	return nodes
}

// TestAVIWriterRIFFTreeRoundTrips recursively parses the writer's own
// output and checks invariants 3-6 (well-formed RIFF, correct LIST
// sizes, an idx1 whose declared size exactly matches its entry count,
// and movi's declared size exactly bounding its media chunks) rather
// than only spot-checking the top-level RIFF size.
func TestAVIWriterRIFFTreeRoundTrips(t *testing.T) {
	w, path := openTestWriter(t, &AudioParams{SampleRate: 48000, Channels: 2, BlockAlign: 4, BitsPerSample: 16})

	for i := 0; i < 4; i++ {
		require.NoError(t, w.WriteVideo([]byte{0xFF, 0xD8, 0xFF, byte(i), 0xD9}))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, w.WriteAudio([]byte{1, 2, 3, 4, 5}))
	}
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	top := riffparse(t, data, 0, len(data))
	require.Len(t, top, 1)
	riff := top[0]
	require.Equal(t, "RIFF", riff.tag)
	require.Equal(t, "AVI ", riff.listType)
	require.EqualValues(t, len(data)-8, riff.size)
	require.EqualValues(t, len(data), riff.start+8+int64(riff.size))

	require.Len(t, riff.children, 3, "expected hdrl LIST, movi LIST, idx1 chunk directly under RIFF")
	hdrl, movi, idx1 := riff.children[0], riff.children[1], riff.children[2]

	require.Equal(t, "LIST", hdrl.tag)
	require.Equal(t, "hdrl", hdrl.listType)
	require.NotEmpty(t, hdrl.children)

	require.Equal(t, "LIST", movi.tag)
	require.Equal(t, "movi", movi.listType)
	require.Len(t, movi.children, 7, "4 video + 3 audio media chunks")

	require.Equal(t, "idx1", idx1.tag)
	require.EqualValues(t, len(movi.children)*16, idx1.size)

	// movi's declared size must exactly bound its children: the 4-byte
	// "movi" list type plus every child chunk header+payload+pad, with
	// nothing left over before idx1 begins.
	var moviBodyBytes int64 = 4
	for _, c := range movi.children {
		moviBodyBytes += 8 + int64(c.size)
		if c.size%2 == 1 {
			moviBodyBytes++
		}
	}
	require.EqualValues(t, moviBodyBytes, movi.size)
}
