package metadata

import (
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// DatumKind 常量值的类型
type DatumKind uint8

const (
	KindNull DatumKind = iota
	KindInt64
	KindUint64
	KindFloat64
	KindDecimal
	KindBytes
)

// Datum 谓词里的字面量以及从记录中读出的列值
type Datum struct {
	kind DatumKind
	i    int64
	u    uint64
	f    float64
	d    decimal.Decimal
	b    []byte
}

func NullDatum() Datum { return Datum{kind: KindNull} }

func NewIntDatum(v int64) Datum { return Datum{kind: KindInt64, i: v} }

func NewUintDatum(v uint64) Datum { return Datum{kind: KindUint64, u: v} }

func NewFloatDatum(v float64) Datum { return Datum{kind: KindFloat64, f: v} }

func NewDecimalDatum(v decimal.Decimal) Datum { return Datum{kind: KindDecimal, d: v} }

func NewStringDatum(s string) Datum { return Datum{kind: KindBytes, b: []byte(s)} }

func NewBytesDatum(b []byte) Datum { return Datum{kind: KindBytes, b: b} }

func (d Datum) Kind() DatumKind { return d.kind }

func (d Datum) IsNull() bool { return d.kind == KindNull }

func (d Datum) GetInt64() int64 { return d.i }

func (d Datum) GetUint64() uint64 { return d.u }

func (d Datum) GetFloat64() float64 { return d.f }

func (d Datum) GetDecimal() decimal.Decimal { return d.d }

func (d Datum) GetBytes() []byte { return d.b }

// ToFloat64 数值类转换为浮点，字符串按数字解析，解析失败返回 false
func (d Datum) ToFloat64() (float64, bool) {
	switch d.kind {
	case KindInt64:
		return float64(d.i), true
	case KindUint64:
		return float64(d.u), true
	case KindFloat64:
		return d.f, true
	case KindDecimal:
		f, _ := d.d.Float64()
		return f, true
	case KindBytes:
		f, err := strconv.ParseFloat(string(d.b), 64)
		return f, err == nil
	}
	return 0, false
}

// ToDecimal 转换为定点数
func (d Datum) ToDecimal() (decimal.Decimal, bool) {
	switch d.kind {
	case KindInt64:
		return decimal.New(d.i, 0), true
	case KindUint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(d.u), 0), true
	case KindFloat64:
		if math.IsNaN(d.f) || math.IsInf(d.f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(d.f), true
	case KindDecimal:
		return d.d, true
	case KindBytes:
		v, err := decimal.NewFromString(string(d.b))
		return v, err == nil
	}
	return decimal.Zero, false
}

// String 以 SQL 字面量的形式打印
func (d Datum) String() string {
	switch d.kind {
	case KindNull:
		return "NULL"
	case KindInt64:
		return strconv.FormatInt(d.i, 10)
	case KindUint64:
		return strconv.FormatUint(d.u, 10)
	case KindFloat64:
		return strconv.FormatFloat(d.f, 'g', -1, 64)
	case KindDecimal:
		return d.d.String()
	case KindBytes:
		return fmt.Sprintf("'%s'", d.b)
	}
	return "?"
}

// Equal 同类型值的相等比较，测试与调试用
func (d Datum) Equal(o Datum) bool {
	if d.kind != o.kind {
		return false
	}
	switch d.kind {
	case KindNull:
		return true
	case KindInt64:
		return d.i == o.i
	case KindUint64:
		return d.u == o.u
	case KindFloat64:
		return d.f == o.f
	case KindDecimal:
		return d.d.Equal(o.d)
	case KindBytes:
		return string(d.b) == string(o.b)
	}
	return false
}
