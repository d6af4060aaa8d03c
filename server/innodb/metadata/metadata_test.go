package metadata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/charset"
)

func testShare(t *testing.T) *TableShare {
	s, err := NewTableShare("t1",
		ColumnDef{Name: "id", Type: TypeInt},
		ColumnDef{Name: "a", Type: TypeTinyInt, Nullable: true},
		ColumnDef{Name: "price", Type: TypeDecimal, Precision: 6, Scale: 2, Nullable: true},
		ColumnDef{Name: "name", Type: TypeVarchar, Length: 10, Collation: charset.Latin1},
		ColumnDef{Name: "code", Type: TypeChar, Length: 4, Collation: charset.Latin1, Nullable: true},
		ColumnDef{Name: "body", Type: TypeBlob, Length: 300},
		ColumnDef{Name: "score", Type: TypeDouble},
	)
	require.NoError(t, err)
	return s
}

func TestLayout(t *testing.T) {
	s := testShare(t)
	assert.Equal(t, 1, s.NullBytes)
	assert.Equal(t, 1, s.Field("id").Offset)
	assert.Equal(t, 4, s.Field("id").PackLength)
	assert.Equal(t, byte(1), s.Field("a").NullBit)
	assert.Equal(t, byte(2), s.Field("price").NullBit)
	assert.Equal(t, byte(4), s.Field("code").NullBit)
	assert.Equal(t, 11, s.Field("NAME").PackLength)
	assert.Equal(t, 302, s.Field("body").PackLength)
	assert.Nil(t, s.Field("missing"))
}

func TestStoreAndVal(t *testing.T) {
	s := testShare(t)
	rec := s.NewRecord()

	assert.Equal(t, StoreOK, s.Field("id").Store(rec, NewIntDatum(-42)))
	assert.Equal(t, int64(-42), s.Field("id").Val(rec).GetInt64())

	assert.Equal(t, StoreOverflow, s.Field("a").Store(rec, NewIntDatum(1000)))
	assert.Equal(t, int64(127), s.Field("a").Val(rec).GetInt64())
	assert.Equal(t, StoreUnderflow, s.Field("a").Store(rec, NewFloatDatum(-500.5)))
	assert.Equal(t, int64(-128), s.Field("a").Val(rec).GetInt64())
	assert.Equal(t, StoreTruncated, s.Field("a").Store(rec, NewFloatDatum(2.6)))
	assert.Equal(t, int64(3), s.Field("a").Val(rec).GetInt64())
	assert.Equal(t, StoreOK, s.Field("a").Store(rec, NewStringDatum("17")))
	assert.Equal(t, int64(17), s.Field("a").Val(rec).GetInt64())

	assert.Equal(t, StoreOK, s.Field("a").Store(rec, NullDatum()))
	assert.True(t, s.Field("a").IsNull(rec))
	assert.True(t, s.Field("a").Val(rec).IsNull())
	assert.Equal(t, StoreNullRejected, s.Field("id").Store(rec, NullDatum()))

	assert.Equal(t, StoreTruncated, s.Field("price").Store(rec, NewStringDatum("12.345")))
	assert.True(t, decimal.New(1235, -2).Equal(s.Field("price").Val(rec).GetDecimal()))
	assert.Equal(t, StoreOverflow, s.Field("price").Store(rec, NewIntDatum(100000)))
	assert.Equal(t, "9999.99", s.Field("price").Val(rec).GetDecimal().String())

	assert.Equal(t, StoreOK, s.Field("name").Store(rec, NewStringDatum("bob")))
	assert.Equal(t, "bob", string(s.Field("name").Val(rec).GetBytes()))
	assert.Equal(t, StoreTruncated, s.Field("name").Store(rec, NewStringDatum("abcdefghijkl")))
	assert.Equal(t, "abcdefghij", string(s.Field("name").Val(rec).GetBytes()))
	assert.Equal(t, StoreOK, s.Field("name").Store(rec, NewStringDatum("abcdefghij   ")))

	assert.Equal(t, StoreOK, s.Field("code").Store(rec, NewStringDatum("xy")))
	assert.Equal(t, "xy", string(s.Field("code").Val(rec).GetBytes()))

	assert.Equal(t, StoreOK, s.Field("score").Store(rec, NewFloatDatum(1.5)))
	assert.Equal(t, 1.5, s.Field("score").Val(rec).GetFloat64())
}

func TestFieldCompare(t *testing.T) {
	s := testShare(t)
	r1, r2 := s.NewRecord(), s.NewRecord()
	id := s.Field("id")
	id.Store(r1, NewIntDatum(-1))
	id.Store(r2, NewIntDatum(1))
	assert.Equal(t, -1, id.Compare(r1[id.Offset:], r2[id.Offset:]))

	price := s.Field("price")
	price.Store(r1, NewStringDatum("-3.5"))
	price.Store(r2, NewStringDatum("2"))
	assert.Equal(t, -1, price.Compare(r1[price.Offset:], r2[price.Offset:]))

	code := s.Field("code")
	code.Store(r1, NewStringDatum("ab"))
	code.Store(r2, NewStringDatum("AB"))
	assert.Equal(t, 0, code.Compare(r1[code.Offset:code.Offset+4], r2[code.Offset:code.Offset+4]))
}

func TestAddIndex(t *testing.T) {
	s := testShare(t)
	pk, err := s.AddIndex(IndexDef{Name: "PRIMARY", Primary: true, Parts: []IndexPartDef{{Column: "id"}}})
	require.NoError(t, err)
	assert.True(t, pk.Unique())
	assert.Equal(t, 4, pk.KeyLength)
	assert.Equal(t, 0, s.PrimaryKey)

	k, err := s.AddIndex(IndexDef{Name: "k_a_name", Parts: []IndexPartDef{{Column: "a"}, {Column: "name", Length: 3}}})
	require.NoError(t, err)
	assert.Equal(t, 2, k.Parts[0].StoreLength)
	assert.True(t, k.Parts[1].IsPrefix())
	assert.True(t, k.Parts[1].IsVarLength())
	assert.Equal(t, 5, k.Parts[1].StoreLength)
	assert.Equal(t, 7, k.KeyLength)
	assert.Equal(t, 2, k.PrefixLength(1))
	assert.NotZero(t, k.Flags&HaNullPartKey)

	_, err = s.AddIndex(IndexDef{Name: "bad", Primary: true, Parts: []IndexPartDef{{Column: "a"}}})
	assert.Error(t, err)
	_, err = s.AddIndex(IndexDef{Name: "bad", Parts: []IndexPartDef{{Column: "id", Length: 2}}})
	assert.Error(t, err)
	_, err = s.AddIndex(IndexDef{Name: "bad", Parts: []IndexPartDef{{Column: "zzz"}}})
	assert.Error(t, err)
}

func TestMakeRecord(t *testing.T) {
	s := testShare(t)
	_, err := s.MakeRecord(NewIntDatum(1))
	assert.Error(t, err)
	rec, err := s.MakeRecord(NewIntDatum(1), NullDatum(), NullDatum(), NewStringDatum("n"), NullDatum(), NewStringDatum("b"), NewFloatDatum(0))
	require.NoError(t, err)
	assert.True(t, s.Field("code").IsNull(rec))
	assert.Equal(t, "b", string(s.Field("body").Val(rec).GetBytes()))
}

func TestStoreBigIntLimits(t *testing.T) {
	s, err := NewTableShare("t2",
		ColumnDef{Name: "big", Type: TypeBigInt},
		ColumnDef{Name: "ubig", Type: TypeBigInt, Unsigned: true},
	)
	require.NoError(t, err)
	rec := s.NewRecord()
	big, ubig := s.Field("big"), s.Field("ubig")

	two63, err := decimal.NewFromString("9223372036854775808")
	require.NoError(t, err)
	max63, err := decimal.NewFromString("9223372036854775807")
	require.NoError(t, err)
	two64, err := decimal.NewFromString("18446744073709551616")
	require.NoError(t, err)

	assert.Equal(t, StoreOverflow, big.Store(rec, NewDecimalDatum(two63)))
	assert.Equal(t, int64(9223372036854775807), big.Val(rec).GetInt64())
	assert.Equal(t, StoreOverflow, big.Store(rec, NewFloatDatum(9223372036854775808.0)))
	assert.Equal(t, int64(9223372036854775807), big.Val(rec).GetInt64())
	assert.Equal(t, StoreOK, big.Store(rec, NewDecimalDatum(max63)))
	assert.Equal(t, int64(9223372036854775807), big.Val(rec).GetInt64())
	assert.Equal(t, StoreOK, big.Store(rec, NewDecimalDatum(two63.Neg())))
	assert.Equal(t, int64(-9223372036854775808), big.Val(rec).GetInt64())
	assert.Equal(t, StoreUnderflow, big.Store(rec, NewFloatDatum(-1e19)))
	assert.Equal(t, int64(-9223372036854775808), big.Val(rec).GetInt64())
	assert.Equal(t, StoreOverflow, big.Store(rec, NewStringDatum("9223372036854775808")))

	assert.Equal(t, StoreOverflow, ubig.Store(rec, NewDecimalDatum(two64)))
	assert.Equal(t, uint64(18446744073709551615), ubig.Val(rec).GetUint64())
	assert.Equal(t, StoreOverflow, ubig.Store(rec, NewFloatDatum(18446744073709551616.0)))
	assert.Equal(t, uint64(18446744073709551615), ubig.Val(rec).GetUint64())
	assert.Equal(t, StoreOK, ubig.Store(rec, NewDecimalDatum(two63)))
	assert.Equal(t, uint64(9223372036854775808), ubig.Val(rec).GetUint64())
	assert.Equal(t, StoreUnderflow, ubig.Store(rec, NewIntDatum(-1)))
	assert.Equal(t, uint64(0), ubig.Val(rec).GetUint64())
	assert.Equal(t, StoreUnderflow, ubig.Store(rec, NewFloatDatum(-0.6)))

	// 超过 2^53 的小数仍然按精确值判断
	assert.Equal(t, StoreTruncated, big.Store(rec, NewDecimalDatum(max63.Sub(decimal.New(5, -1)))))
	assert.Equal(t, int64(9223372036854775807), big.Val(rec).GetInt64())
}
