package quick

import (
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
)

// MaxKey 不绑定单个索引的读取方式使用的索引号
const MaxKey = -1

// Select 按选定的方式读取表中的行。
//
// 调用顺序为 Init、Reset，然后反复 GetNext 直到返回 basic.HaErrEndOfFile；
// Reset 之后可以从头再读一遍。读出的行在 Record() 中，下一次 GetNext 前有效。
// 返回的错误是存储引擎的错误码，调用方用 == 比较
type Select interface {
	Init() error
	Reset() error
	GetNext() error
	Record() metadata.Record
	// Index 使用的索引，MaxKey 表示多个或没有
	Index() int
	// Sorted 返回的行是否按索引顺序
	Sorted() bool
	Close() error
	Describe() string
}

// RowidSelect 能判断当前行是否落在自己的区间内的读取方式
type RowidSelect interface {
	Select
	RowInRanges() bool
}

// endOfScan 把没有匹配键的错误归一为 EOF
func endOfScan(err error) error {
	if err == basic.HaErrKeyNotFound {
		return basic.HaErrEndOfFile
	}
	return err
}

// TableScan 全表扫描
type TableScan struct {
	h basic.Handler
}

func NewTableScan(h basic.Handler) *TableScan {
	return &TableScan{h: h}
}

func (t *TableScan) Init() error {
	if t.h.Inited() {
		return t.h.IndexEnd()
	}
	return nil
}

func (t *TableScan) Reset() error {
	t.h.SetKeyRead(false)
	return t.h.RndInit()
}

func (t *TableScan) GetNext() error {
	return t.h.RndNext(t.h.Record())
}

func (t *TableScan) Record() metadata.Record { return t.h.Record() }
func (t *TableScan) Index() int { return MaxKey }
func (t *TableScan) Sorted() bool { return false }
func (t *TableScan) Close() error { return nil }
func (t *TableScan) Describe() string { return "table scan" }

// Empty 条件恒假时的读取方式，不返回任何行
type Empty struct {
	h basic.Handler
}

func NewEmpty(h basic.Handler) *Empty {
	return &Empty{h: h}
}

func (e *Empty) Init() error { return nil }
func (e *Empty) Reset() error { return nil }
func (e *Empty) GetNext() error { return basic.HaErrEndOfFile }
func (e *Empty) Record() metadata.Record { return e.h.Record() }
func (e *Empty) Index() int { return MaxKey }
func (e *Empty) Sorted() bool { return true }
func (e *Empty) Close() error { return nil }
func (e *Empty) Describe() string { return "impossible where" }
