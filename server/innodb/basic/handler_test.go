package basic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHAError(t *testing.T) {
	assert.Equal(t, "HA_ERR_END_OF_FILE", HaErrEndOfFile.Error())
	assert.Equal(t, "handler error 999", HAError(999).Error())

	var err error = HaErrKeyNotFound
	assert.True(t, IsEndOfScan(err))
	assert.True(t, IsEndOfScan(HaErrEndOfFile))
	assert.False(t, IsEndOfScan(HaErrWrongIndex))
	assert.False(t, IsEndOfScan(errors.New("io")))
	assert.False(t, IsEndOfScan(nil))
}

func TestKeypartMaps(t *testing.T) {
	assert.Equal(t, KeyPartMap(1), MakeKeypartMap(0))
	assert.Equal(t, KeyPartMap(7), MakeKeypartMap(2))
	assert.Equal(t, KeyPartMap(0), MakePrevKeypartMap(0))
	assert.Equal(t, KeyPartMap(3), MakePrevKeypartMap(2))
}

func TestRangeFlags(t *testing.T) {
	assert.Equal(t, RangeFlag(1), NoMinRange)
	assert.Equal(t, RangeFlag(2), NoMaxRange)
	assert.Equal(t, RangeFlag(4), NearMin)
	assert.Equal(t, RangeFlag(8), NearMax)
	assert.Equal(t, RangeFlag(16), UniqueRange)
	assert.Equal(t, RangeFlag(32), EqRange)
	assert.Equal(t, RangeFlag(64), NullRange)
}

func TestFindFlagString(t *testing.T) {
	assert.Equal(t, "HA_READ_KEY_EXACT", HaReadKeyExact.String())
	assert.Equal(t, "HA_READ_PREFIX_LAST_OR_PREV", HaReadPrefixLastOrPrev.String())
	assert.Equal(t, "HA_READ_UNKNOWN", FindFlag(42).String())
}
