package util

import (
	"testing"

	"github.com/smartystreets/assertions"
	"github.com/stretchr/testify/assert"
)

func TestHash(t *testing.T) {
	a := HashCode([]byte("788788"))
	b := HashCode([]byte("788788"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, HashCode([]byte("788789")))
}

func TestIntCodec(t *testing.T) {
	buf := make([]byte, 8)
	WriteUintN(buf, 0xfffe, 2)
	assert.Empty(t, assertions.ShouldEqual(ReadIntN(buf, 2), int64(-2)))
	assert.Empty(t, assertions.ShouldEqual(ReadUintN(buf, 2), uint64(0xfffe)))

	WriteUintN(buf, uint64(0x7fffff), 3)
	assert.Equal(t, int64(0x7fffff), ReadIntN(buf, 3))

	WriteUB2At(buf, 513)
	assert.Equal(t, uint16(513), ReadUB2(buf))

	Fill(buf, ' ')
	assert.True(t, AllBytesAre(buf, ' '))
	buf[3] = 'x'
	assert.False(t, AllBytesAre(buf, ' '))
}
