package triematch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var dictionary = []Entry{
	{Key: "he", ID: 1},
	{Key: "hell", ID: 2},
	{Key: "hello", ID: 3},
	{Key: "help", ID: 4},
	{Key: "world", ID: 5},
	{Key: "w", ID: 6},
}

func buildTestTrie(t *testing.T) *Trie {
	t.Helper()
	trie, err := Build(dictionary, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return trie
}

// Every stored key must be found, with its id and exact length, on any input
// that begins with it.
func TestBuildRoundTrip(t *testing.T) {
	trie := buildTestTrie(t)

	for _, entry := range dictionary {
		matches, err := trie.FindAllPrefixMatches(entry.Key + " trailing text")
		require.NoError(t, err)
		assert.Contains(t, matches, Match{ID: entry.ID, Length: len(entry.Key)}, "key %q", entry.Key)
	}
}

func TestFindAllPrefixMatches(t *testing.T) {
	trie := buildTestTrie(t)

	matches, err := trie.FindAllPrefixMatches("hello there")
	require.NoError(t, err)
	require.Equal(t, []Match{
		{ID: 1, Length: 2},
		{ID: 2, Length: 4},
		{ID: 3, Length: 5},
	}, matches, "matches must arrive in increasing length order")

	matches, err = trie.FindAllPrefixMatches("xyz")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestLongestPrefixMatch(t *testing.T) {
	trie := buildTestTrie(t)

	match, found, err := trie.LongestPrefixMatch("helping hand")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Match{ID: 4, Length: 4}, match)

	_, found, err = trie.LongestPrefixMatch("nothing here")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEmptyTrie(t *testing.T) {
	trie := New(nil)

	matches, err := trie.FindAllPrefixMatches("anything")
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, found, err := trie.LongestPrefixMatch("anything")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNulByteTerminatesInput(t *testing.T) {
	trie := buildTestTrie(t)

	matches, err := trie.FindAllPrefixMatches("he\x00llo")
	require.NoError(t, err)
	assert.Equal(t, []Match{{ID: 1, Length: 2}}, matches)
}

func TestCorruptTrieFailsCall(t *testing.T) {
	// A single-transition trie whose slot offset points far outside the array:
	// root base 1, slot for 'a' at 1^'a'.
	slot := uint32(1) ^ uint32('a')
	units := make([]uint32, slot+1)
	units[0] = 1 << offsetShift
	units[slot] = uint32('a') | leafBit | (1<<20)<<offsetShift

	trie := New(units)
	_, err := trie.FindAllPrefixMatches("a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestUnknownTransitionIsNotAnError(t *testing.T) {
	trie := buildTestTrie(t)

	// Walking off the trie is expected termination, not corruption.
	matches, err := trie.FindAllPrefixMatches("hezzz")
	require.NoError(t, err)
	assert.Equal(t, []Match{{ID: 1, Length: 2}}, matches)
}

func TestBuildRejectsBadEntries(t *testing.T) {
	_, err := Build([]Entry{{Key: "", ID: 1}})
	assert.ErrorIs(t, err, ErrBadEntry)

	_, err = Build([]Entry{{Key: "a\x00b", ID: 1}})
	assert.ErrorIs(t, err, ErrBadEntry)

	_, err = Build([]Entry{{Key: "a", ID: -1}})
	assert.ErrorIs(t, err, ErrBadEntry)

	_, err = Build([]Entry{{Key: "a", ID: 1}, {Key: "a", ID: 2}})
	assert.ErrorIs(t, err, ErrBadEntry)
}

func TestBlobRoundTrip(t *testing.T) {
	trie := buildTestTrie(t)

	blob := trie.Bytes()
	restored, err := FromBytes(blob)
	require.NoError(t, err)

	want, err := trie.FindAllPrefixMatches("hello world")
	require.NoError(t, err)
	got, err := restored.FindAllPrefixMatches("hello world")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFromBytesRejectsGarbage(t *testing.T) {
	_, err := FromBytes([]byte("x"))
	assert.ErrorIs(t, err, ErrBadBlob)

	_, err = FromBytes([]byte("NOPE\x00\x00\x00\x00"))
	assert.ErrorIs(t, err, ErrBadBlob)

	trie := buildTestTrie(t)
	blob := trie.Bytes()
	_, err = FromBytes(blob[:len(blob)-2])
	assert.ErrorIs(t, err, ErrBadBlob)
}
