package metadata

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/charset"
	"github.com/zhukovaskychina/xmysql-optimizer/util"
)

// DataType 列的 SQL 类型
type DataType string

const (
	TypeTinyInt   DataType = "TINYINT"
	TypeSmallInt  DataType = "SMALLINT"
	TypeMediumInt DataType = "MEDIUMINT"
	TypeInt       DataType = "INT"
	TypeBigInt    DataType = "BIGINT"
	TypeDouble    DataType = "DOUBLE"
	TypeDecimal   DataType = "DECIMAL"
	TypeChar      DataType = "CHAR"
	TypeVarchar   DataType = "VARCHAR"
	TypeBlob      DataType = "BLOB"
)

// StoreStatus 把值写入列时的结果
type StoreStatus int

const (
	StoreOK StoreStatus = iota
	// StoreTruncated 值被截断或舍入
	StoreTruncated
	// StoreUnderflow 小于列的最小值，已截取为最小值
	StoreUnderflow
	// StoreOverflow 大于列的最大值，已截取为最大值
	StoreOverflow
	// StoreNullRejected 非空列写入 NULL
	StoreNullRejected
)

const maxDecimalPrecision = 18

// ColumnDef 建表时的列定义
type ColumnDef struct {
	Name      string
	Type      DataType
	Unsigned  bool
	Nullable  bool
	Length    int // 字符串类型的最大字节数
	Precision int
	Scale     int
	Collation charset.Collation
}

// Field 列在记录缓冲区中的布局及编解码
type Field struct {
	Name       string
	Nr         int
	Type       DataType
	Unsigned   bool
	Nullable   bool
	NullOffset int
	NullBit    byte
	Offset     int
	PackLength int
	// Length 字符串为最大数据字节数，数值为存储字节数
	Length      int
	LengthBytes int
	Precision   int
	Scale       int
	Collation   charset.Collation
}

func intPackLength(t DataType) int {
	switch t {
	case TypeTinyInt:
		return 1
	case TypeSmallInt:
		return 2
	case TypeMediumInt:
		return 3
	case TypeInt:
		return 4
	case TypeBigInt:
		return 8
	}
	return 0
}

func (f *Field) IsInteger() bool { return intPackLength(f.Type) > 0 }

func (f *Field) IsString() bool {
	return f.Type == TypeChar || f.Type == TypeVarchar || f.Type == TypeBlob
}

func (f *Field) IsVarLength() bool { return f.Type == TypeVarchar || f.Type == TypeBlob }

func (f *Field) IsBlob() bool { return f.Type == TypeBlob }

func (f *Field) value(rec Record) []byte {
	return rec[f.Offset : f.Offset+f.PackLength]
}

func (f *Field) IsNull(rec Record) bool {
	return f.Nullable && rec[f.NullOffset]&f.NullBit != 0
}

func (f *Field) SetNull(rec Record, null bool) {
	if !f.Nullable {
		return
	}
	if null {
		rec[f.NullOffset] |= f.NullBit
	} else {
		rec[f.NullOffset] &^= f.NullBit
	}
}

// IntRange 整型列的取值范围
func (f *Field) IntRange() (int64, uint64) {
	bits := uint(8 * intPackLength(f.Type))
	if f.Unsigned {
		if bits == 64 {
			return 0, math.MaxUint64
		}
		return 0, 1<<bits - 1
	}
	return -(int64(1) << (bits - 1)), uint64(1)<<(bits-1) - 1
}

// Store 写入一个值并返回写入状态，越界值截取到边界
func (f *Field) Store(rec Record, d Datum) StoreStatus {
	if d.IsNull() {
		if !f.Nullable {
			return StoreNullRejected
		}
		f.SetNull(rec, true)
		util.Fill(f.value(rec), 0)
		return StoreOK
	}
	f.SetNull(rec, false)
	switch {
	case f.IsInteger():
		return f.storeInt(rec, d)
	case f.Type == TypeDouble:
		v, ok := d.ToFloat64()
		binary.LittleEndian.PutUint64(f.value(rec), math.Float64bits(v))
		if !ok {
			return StoreTruncated
		}
		return StoreOK
	case f.Type == TypeDecimal:
		return f.storeDecimal(rec, d)
	default:
		return f.storeString(rec, datumBytes(d))
	}
}

func datumBytes(d Datum) []byte {
	if d.Kind() == KindBytes {
		return d.GetBytes()
	}
	switch d.Kind() {
	case KindInt64:
		return []byte(strconv.FormatInt(d.GetInt64(), 10))
	case KindUint64:
		return []byte(strconv.FormatUint(d.GetUint64(), 10))
	case KindFloat64:
		return []byte(strconv.FormatFloat(d.GetFloat64(), 'g', -1, 64))
	case KindDecimal:
		return []byte(d.GetDecimal().String())
	}
	return nil
}

func (f *Field) putInt(rec Record, v uint64) {
	util.WriteUintN(f.value(rec), v, f.PackLength)
}

func (f *Field) storeInt(rec Record, d Datum) StoreStatus {
	lo, hi := f.IntRange()
	switch d.Kind() {
	case KindInt64:
		v := d.GetInt64()
		if v < lo {
			f.putInt(rec, uint64(lo))
			return StoreUnderflow
		}
		if v > 0 && uint64(v) > hi {
			f.putInt(rec, hi)
			return StoreOverflow
		}
		f.putInt(rec, uint64(v))
		return StoreOK
	case KindUint64:
		v := d.GetUint64()
		if v > hi {
			f.putInt(rec, hi)
			return StoreOverflow
		}
		f.putInt(rec, v)
		return StoreOK
	case KindBytes:
		s := string(d.GetBytes())
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return f.storeInt(rec, NewIntDatum(v))
		}
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			return f.storeInt(rec, NewUintDatum(v))
		}
	}

	if d.Kind() == KindDecimal {
		return f.storeIntDecimal(rec, d.GetDecimal(), lo, hi)
	}
	v, ok := d.ToFloat64()
	if !ok {
		f.putInt(rec, 0)
		return StoreTruncated
	}
	r := math.Round(v)
	// float64(hi) 在 64 位时会进位到 2^63 或 2^64，用不可达的上界比较
	bits := 8 * intPackLength(f.Type)
	if !f.Unsigned {
		bits--
	}
	switch {
	case r < float64(lo):
		f.putInt(rec, uint64(lo))
		return StoreUnderflow
	case r >= math.Ldexp(1, bits):
		f.putInt(rec, hi)
		return StoreOverflow
	}
	if r < 0 {
		f.putInt(rec, uint64(int64(r)))
	} else {
		f.putInt(rec, uint64(r))
	}
	if r != v {
		return StoreTruncated
	}
	return StoreOK
}

func (f *Field) storeIntDecimal(rec Record, v decimal.Decimal, lo int64, hi uint64) StoreStatus {
	r := v.Round(0)
	switch {
	case r.LessThan(decimal.New(lo, 0)):
		f.putInt(rec, uint64(lo))
		return StoreUnderflow
	case r.GreaterThan(decimal.NewFromBigInt(new(big.Int).SetUint64(hi), 0)):
		f.putInt(rec, hi)
		return StoreOverflow
	}
	if r.Sign() < 0 {
		n, _ := strconv.ParseInt(r.String(), 10, 64)
		f.putInt(rec, uint64(n))
	} else {
		n, _ := strconv.ParseUint(r.String(), 10, 64)
		f.putInt(rec, n)
	}
	if !r.Equal(v) {
		return StoreTruncated
	}
	return StoreOK
}

// decimalBound 精度 p 下缩放后整数的最大绝对值
func decimalBound(p int) int64 {
	v := int64(1)
	for i := 0; i < p; i++ {
		v *= 10
	}
	return v - 1
}

func (f *Field) putDecimal(rec Record, scaled int64) {
	binary.BigEndian.PutUint64(f.value(rec), uint64(scaled)^(1<<63))
}

func (f *Field) storeDecimal(rec Record, d Datum) StoreStatus {
	v, ok := d.ToDecimal()
	if !ok {
		f.putDecimal(rec, 0)
		return StoreTruncated
	}
	status := StoreOK
	r := v.Round(int32(f.Scale))
	if !r.Equal(v) {
		status = StoreTruncated
	}
	bound := decimal.New(decimalBound(f.Precision), -int32(f.Scale))
	switch {
	case r.GreaterThan(bound):
		r, status = bound, StoreOverflow
	case r.LessThan(bound.Neg()):
		r, status = bound.Neg(), StoreUnderflow
	}
	f.putDecimal(rec, r.Shift(int32(f.Scale)).IntPart())
	return status
}

func (f *Field) storeString(rec Record, b []byte) StoreStatus {
	status := StoreOK
	if len(b) > f.Length {
		n := f.Collation.WellFormedPrefix(b, f.Length)
		if !(f.Collation.PadSpace() && util.AllBytesAre(b[n:], ' ')) {
			status = StoreTruncated
		}
		b = b[:n]
	}
	dst := f.value(rec)
	switch f.Type {
	case TypeChar:
		copy(dst, b)
		util.Fill(dst[len(b):], ' ')
	default:
		f.SetVarBytes(rec, b)
	}
	return status
}

// VarBytes 变长列的数据部分，直接引用记录缓冲区
func (f *Field) VarBytes(rec Record) []byte {
	v := f.value(rec)
	n := int(util.ReadUintN(v, f.LengthBytes))
	return v[f.LengthBytes : f.LengthBytes+n]
}

// SetVarBytes 写入变长列的长度前缀和数据
func (f *Field) SetVarBytes(rec Record, b []byte) {
	v := f.value(rec)
	util.WriteUintN(v, uint64(len(b)), f.LengthBytes)
	n := copy(v[f.LengthBytes:], b)
	util.Fill(v[f.LengthBytes+n:], 0)
}

// Val 读出列值
func (f *Field) Val(rec Record) Datum {
	if f.IsNull(rec) {
		return NullDatum()
	}
	if f.IsVarLength() {
		return NewBytesDatum(append([]byte(nil), f.VarBytes(rec)...))
	}
	return f.DecodeImage(f.value(rec))
}

// KeyLength 整列作为键时值部分的字节数
func (f *Field) KeyLength() int {
	if f.IsString() {
		return f.Length
	}
	return f.PackLength
}

// DecodeImage 把定长的键映像还原为值，CHAR 去掉尾部空格
func (f *Field) DecodeImage(img []byte) Datum {
	switch {
	case f.IsInteger():
		if f.Unsigned {
			return NewUintDatum(util.ReadUintN(img, f.PackLength))
		}
		return NewIntDatum(util.ReadIntN(img, f.PackLength))
	case f.Type == TypeDouble:
		return NewFloatDatum(math.Float64frombits(binary.LittleEndian.Uint64(img)))
	case f.Type == TypeDecimal:
		scaled := int64(binary.BigEndian.Uint64(img) ^ (1 << 63))
		return NewDecimalDatum(decimal.New(scaled, -int32(f.Scale)))
	}
	return NewBytesDatum(bytes.TrimRight(append([]byte(nil), img...), " "))
}

// Compare 比较两个值映像，字符串走排序规则
func (f *Field) Compare(a, b []byte) int {
	switch {
	case f.IsInteger():
		if f.Unsigned {
			return cmpUint(util.ReadUintN(a, f.PackLength), util.ReadUintN(b, f.PackLength))
		}
		return cmpInt(util.ReadIntN(a, f.PackLength), util.ReadIntN(b, f.PackLength))
	case f.Type == TypeDouble:
		x := math.Float64frombits(binary.LittleEndian.Uint64(a))
		y := math.Float64frombits(binary.LittleEndian.Uint64(b))
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case f.Type == TypeDecimal:
		return bytes.Compare(a[:8], b[:8])
	}
	return f.Collation.Compare(a, b)
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
