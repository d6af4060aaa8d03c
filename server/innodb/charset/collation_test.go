package charset

import (
	"testing"

	"github.com/piex/transcode"
	"github.com/stretchr/testify/assert"
)

func TestBinary(t *testing.T) {
	assert.Equal(t, -1, Binary.Compare([]byte("a"), []byte("b")))
	assert.Equal(t, 1, Binary.Compare([]byte("a "), []byte("a")))
	assert.False(t, Binary.PadSpace())
	assert.Equal(t, 2, Binary.WellFormedPrefix([]byte("abc"), 2))
}

func TestLatin1CaseInsensitivePadSpace(t *testing.T) {
	assert.Equal(t, 0, Latin1.Compare([]byte("abc"), []byte("ABC  ")))
	assert.Equal(t, -1, Latin1.Compare([]byte("abc"), []byte("abd")))
	assert.Equal(t, 1, Latin1.Compare([]byte("abcd"), []byte("ABC")))
	assert.True(t, Latin1.PadSpace())
}

func TestUnicode(t *testing.T) {
	assert.Equal(t, 0, Utf8mb4.Compare([]byte("Résumé"), []byte("resume")))
	assert.Equal(t, -1, Utf8mb4.Compare([]byte("apple"), []byte("banana")))
	assert.Equal(t, 1, Utf8mb4.Compare([]byte("Zebra"), []byte("apple")))

	s := []byte("中文ab")
	assert.Equal(t, 3, Utf8mb4.WellFormedPrefix(s, 5))
	assert.Equal(t, 6, Utf8mb4.WellFormedPrefix(s, 6))
	assert.Equal(t, len(s), Utf8mb4.WellFormedPrefix(s, 100))
}

func TestGBK(t *testing.T) {
	zhong := []byte(transcode.FromString("中").Encode("GBK").ToString())
	assert.Len(t, zhong, 2)
	assert.Equal(t, 0, GBK.Compare(zhong, append(append([]byte{}, zhong...), ' ')))
	assert.Equal(t, 0, GBK.Compare([]byte("abc"), []byte("ABC")))
	assert.Equal(t, 2, GBK.WellFormedPrefix(append(zhong, zhong...), 3))
}

func TestLookup(t *testing.T) {
	c, ok := Lookup("UTF8MB4_0900_AI_CI")
	assert.True(t, ok)
	assert.Equal(t, Utf8mb4Name, c.Name())
	_, ok = Lookup("nope")
	assert.False(t, ok)
}
