package rangeopt

import (
	"fmt"
	"strings"

	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
)

// CmpOp 比较运算符
type CmpOp uint8

const (
	OpEQ CmpOp = iota
	// OpNullSafeEQ <=>，NULL <=> NULL 为真
	OpNullSafeEQ
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
)

var cmpOpNames = [...]string{"=", "<=>", "<>", "<", "<=", ">", ">="}

func (op CmpOp) String() string {
	if int(op) < len(cmpOpNames) {
		return cmpOpNames[op]
	}
	return "?"
}

// Value 比较的右值：常量，或者执行时才绑定的占位符
type Value struct {
	Datum       metadata.Datum
	Placeholder bool
	Name        string
}

// Lit 常量
func Lit(d metadata.Datum) Value { return Value{Datum: d} }

// Int 整数常量
func Int(v int64) Value { return Lit(metadata.NewIntDatum(v)) }

// Str 字符串常量
func Str(s string) Value { return Lit(metadata.NewStringDatum(s)) }

// Null NULL 常量
func Null() Value { return Lit(metadata.NullDatum()) }

// Marker 占位符，name 只用于打印
func Marker(name string) Value { return Value{Placeholder: true, Name: name} }

func (v Value) String() string {
	if v.Placeholder {
		if v.Name != "" {
			return ":" + v.Name
		}
		return "?"
	}
	return v.Datum.String()
}

// Cond 单表上的 WHERE 条件
type Cond interface {
	// Eval 对一行求值。无法判断的部分（占位符、不透明条件）按真处理，
	// 所以返回 false 时该行一定不满足条件
	Eval(share *metadata.TableShare, rec metadata.Record) bool
	String() string
	// Children 子条件
	Children() []Cond
}

// CondAnd 合取
type CondAnd struct {
	Args []Cond
}

// CondOr 析取
type CondOr struct {
	Args []Cond
}

// CondCmp column op value
type CondCmp struct {
	Op     CmpOp
	Column string
	Value  Value
}

// CondBetween column [NOT] BETWEEN Low AND High
type CondBetween struct {
	Column    string
	Low, High Value
	Not       bool
}

// CondIn column [NOT] IN (...)
type CondIn struct {
	Column string
	Values []Value
	Not    bool
}

// CondIsNull column IS [NOT] NULL
type CondIsNull struct {
	Column string
	Not    bool
}

// CondOpaque 无法用于范围分析的条件，比如函数调用
type CondOpaque struct {
	Text string
	// Columns 条件引用的列，用于判断能否只读索引
	Columns []string
}

func And(args ...Cond) Cond { return &CondAnd{Args: args} }

func Or(args ...Cond) Cond { return &CondOr{Args: args} }

// Cmp column op value
func Cmp(column string, op CmpOp, v Value) Cond {
	return &CondCmp{Op: op, Column: column, Value: v}
}

func Between(column string, low, high Value) Cond {
	return &CondBetween{Column: column, Low: low, High: high}
}

func NotBetween(column string, low, high Value) Cond {
	return &CondBetween{Column: column, Low: low, High: high, Not: true}
}

func In(column string, vals ...Value) Cond { return &CondIn{Column: column, Values: vals} }

func NotIn(column string, vals ...Value) Cond {
	return &CondIn{Column: column, Values: vals, Not: true}
}

func IsNull(column string) Cond { return &CondIsNull{Column: column} }

func IsNotNull(column string) Cond { return &CondIsNull{Column: column, Not: true} }

func (c *CondAnd) Children() []Cond     { return c.Args }
func (c *CondOr) Children() []Cond      { return c.Args }
func (c *CondCmp) Children() []Cond     { return nil }
func (c *CondBetween) Children() []Cond { return nil }
func (c *CondIn) Children() []Cond      { return nil }
func (c *CondIsNull) Children() []Cond  { return nil }
func (c *CondOpaque) Children() []Cond  { return nil }

func joinConds(args []Cond, sep string) string {
	items := make([]string, 0, len(args))
	for _, a := range args {
		items = append(items, a.String())
	}
	return "(" + strings.Join(items, sep) + ")"
}

func (c *CondAnd) String() string { return joinConds(c.Args, " AND ") }
func (c *CondOr) String() string  { return joinConds(c.Args, " OR ") }

func (c *CondCmp) String() string {
	return fmt.Sprintf("%s %s %s", c.Column, c.Op, c.Value)
}

func (c *CondBetween) String() string {
	not := ""
	if c.Not {
		not = "NOT "
	}
	return fmt.Sprintf("%s %sBETWEEN %s AND %s", c.Column, not, c.Low, c.High)
}

func (c *CondIn) String() string {
	items := make([]string, 0, len(c.Values))
	for _, v := range c.Values {
		items = append(items, v.String())
	}
	not := ""
	if c.Not {
		not = "NOT "
	}
	return fmt.Sprintf("%s %sIN (%s)", c.Column, not, strings.Join(items, ", "))
}

func (c *CondIsNull) String() string {
	if c.Not {
		return c.Column + " IS NOT NULL"
	}
	return c.Column + " IS NULL"
}

func (c *CondOpaque) String() string { return c.Text }

// 三值逻辑里的 UNKNOWN 与 false 在 WHERE 中效果相同，这里只区分
// 确定为真、确定为假和无法判断
type evalResult uint8

const (
	evalFalse evalResult = iota
	evalTrue
	evalUnknown
)

func (c *CondAnd) Eval(share *metadata.TableShare, rec metadata.Record) bool {
	for _, a := range c.Args {
		if !a.Eval(share, rec) {
			return false
		}
	}
	return true
}

func (c *CondOr) Eval(share *metadata.TableShare, rec metadata.Record) bool {
	for _, a := range c.Args {
		if a.Eval(share, rec) {
			return true
		}
	}
	return len(c.Args) == 0
}

func (c *CondCmp) Eval(share *metadata.TableShare, rec metadata.Record) bool {
	return evalCmp(share.Field(c.Column), rec, c.Op, c.Value) != evalFalse
}

func (c *CondBetween) Eval(share *metadata.TableShare, rec metadata.Record) bool {
	f := share.Field(c.Column)
	if c.Not {
		return evalCmp(f, rec, OpLT, c.Low) != evalFalse || evalCmp(f, rec, OpGT, c.High) != evalFalse
	}
	return evalCmp(f, rec, OpGE, c.Low) != evalFalse && evalCmp(f, rec, OpLE, c.High) != evalFalse
}

func (c *CondIn) Eval(share *metadata.TableShare, rec metadata.Record) bool {
	f := share.Field(c.Column)
	if c.Not {
		// NOT IN 中出现 NULL 时结果不可能为真
		for _, v := range c.Values {
			if !v.Placeholder && v.Datum.IsNull() {
				return false
			}
		}
		for _, v := range c.Values {
			if evalCmp(f, rec, OpNE, v) == evalFalse {
				return false
			}
		}
		return true
	}
	for _, v := range c.Values {
		if evalCmp(f, rec, OpEQ, v) != evalFalse {
			return true
		}
	}
	return false
}

func (c *CondIsNull) Eval(share *metadata.TableShare, rec metadata.Record) bool {
	f := share.Field(c.Column)
	if f == nil {
		return true
	}
	return f.IsNull(rec) != c.Not
}

func (c *CondOpaque) Eval(*metadata.TableShare, metadata.Record) bool { return true }

func evalCmp(f *metadata.Field, rec metadata.Record, op CmpOp, v Value) evalResult {
	if f == nil || v.Placeholder {
		return evalUnknown
	}
	colNull, litNull := f.IsNull(rec), v.Datum.IsNull()
	if op == OpNullSafeEQ {
		if colNull || litNull {
			return boolResult(colNull && litNull)
		}
	} else if colNull || litNull {
		return evalFalse
	}
	c, ok := compareColumn(f, f.Val(rec), v.Datum)
	if !ok {
		return evalUnknown
	}
	switch op {
	case OpEQ, OpNullSafeEQ:
		return boolResult(c == 0)
	case OpNE:
		return boolResult(c != 0)
	case OpLT:
		return boolResult(c < 0)
	case OpLE:
		return boolResult(c <= 0)
	case OpGT:
		return boolResult(c > 0)
	case OpGE:
		return boolResult(c >= 0)
	}
	return evalUnknown
}

func boolResult(b bool) evalResult {
	if b {
		return evalTrue
	}
	return evalFalse
}

// compareColumn 列值与常量比较。字符列按排序规则比较字符串常量，
// 数值列按定点数比较；类型不匹配时返回 false
func compareColumn(f *metadata.Field, col, lit metadata.Datum) (int, bool) {
	if f.IsString() {
		if lit.Kind() != metadata.KindBytes {
			return 0, false
		}
		return f.Collation.Compare(col.GetBytes(), lit.GetBytes()), true
	}
	a, ok := col.ToDecimal()
	if !ok {
		return 0, false
	}
	b, ok := lit.ToDecimal()
	if !ok {
		return 0, false
	}
	return a.Cmp(b), true
}

// condColumns 条件引用的全部列名，按出现顺序，可能重复
func condColumns(c Cond, fn func(name string)) {
	switch x := c.(type) {
	case *CondCmp:
		fn(x.Column)
	case *CondBetween:
		fn(x.Column)
	case *CondIn:
		fn(x.Column)
	case *CondIsNull:
		fn(x.Column)
	case *CondOpaque:
		for _, name := range x.Columns {
			fn(name)
		}
	}
	for _, child := range c.Children() {
		condColumns(child, fn)
	}
}

// leafColumn 单列谓词引用的列，复合条件返回空串
func leafColumn(c Cond) string {
	switch x := c.(type) {
	case *CondCmp:
		return x.Column
	case *CondBetween:
		return x.Column
	case *CondIn:
		return x.Column
	case *CondIsNull:
		return x.Column
	case *CondOpaque:
		if len(x.Columns) == 1 {
			return x.Columns[0]
		}
	}
	return ""
}

// conjuncts 把顶层 AND 展开
func conjuncts(c Cond) []Cond {
	if c == nil {
		return nil
	}
	if and, ok := c.(*CondAnd); ok {
		var out []Cond
		for _, a := range and.Args {
			out = append(out, conjuncts(a)...)
		}
		return out
	}
	return []Cond{c}
}
