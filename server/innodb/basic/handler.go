package basic

import (
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
)

// FindFlag 按键定位时的查找方式
type FindFlag int

const (
	// HaReadKeyExact 第一个与键相等的记录
	HaReadKeyExact FindFlag = iota
	// HaReadKeyOrNext 第一个大于等于键的记录
	HaReadKeyOrNext
	// HaReadKeyOrPrev 最后一个小于等于键的记录
	HaReadKeyOrPrev
	// HaReadAfterKey 第一个大于键的记录
	HaReadAfterKey
	// HaReadBeforeKey 最后一个小于键的记录
	HaReadBeforeKey
	// HaReadPrefix 第一个以键为前缀的记录
	HaReadPrefix
	// HaReadPrefixLast 最后一个以键为前缀的记录
	HaReadPrefixLast
	// HaReadPrefixLastOrPrev 最后一个以键为前缀的记录，没有则取之前的最后一个
	HaReadPrefixLastOrPrev
)

var findFlagNames = [...]string{
	"HA_READ_KEY_EXACT",
	"HA_READ_KEY_OR_NEXT",
	"HA_READ_KEY_OR_PREV",
	"HA_READ_AFTER_KEY",
	"HA_READ_BEFORE_KEY",
	"HA_READ_PREFIX",
	"HA_READ_PREFIX_LAST",
	"HA_READ_PREFIX_LAST_OR_PREV",
}

func (f FindFlag) String() string {
	if f >= 0 && int(f) < len(findFlagNames) {
		return findFlagNames[f]
	}
	return "HA_READ_UNKNOWN"
}

// KeyPartMap 键列位图，第 i 位表示第 i 个键列出现在键里；只支持连续前缀
type KeyPartMap uint64

// HaWholeKey 整个索引键
const HaWholeKey = ^KeyPartMap(0)

// MakeKeypartMap 第 0..n 个键列
func MakeKeypartMap(n int) KeyPartMap { return KeyPartMap(2<<uint(n)) - 1 }

// MakePrevKeypartMap 前 n 个键列
func MakePrevKeypartMap(n int) KeyPartMap { return KeyPartMap(1<<uint(n)) - 1 }

// RangeFlag 区间标志
type RangeFlag uint16

const (
	NoMinRange RangeFlag = 1 << iota
	NoMaxRange
	NearMin
	NearMax
	// UniqueRange 唯一索引上的整键等值，至多一行
	UniqueRange
	// EqRange 整个区间是一个点
	EqRange
	// NullRange 点区间里含 NULL，唯一索引上也可能多行
	NullRange
)

// KeyRange 一个区间端点
type KeyRange struct {
	Key     []byte
	Length  int
	Keypart KeyPartMap
	Flag    FindFlag
}

// KeyMultiRange 多范围读里的一个区间，Ptr 由区间序列的提供者使用
type KeyMultiRange struct {
	StartKey  KeyRange
	EndKey    KeyRange
	Ptr       interface{}
	RangeFlag RangeFlag
}

// RangeSeq 为多范围读提供区间，Next 返回 false 表示没有更多区间
type RangeSeq interface {
	Init(nRanges int, mode MrrMode)
	Next(r *KeyMultiRange) bool
}

// MrrMode 多范围读模式
type MrrMode uint32

const (
	// MrrNoAssociation 调用方不需要区间与行的对应关系
	MrrNoAssociation MrrMode = 1 << iota
	// MrrSorted 要求按索引顺序返回
	MrrSorted
	// MrrIndexOnly 只读索引列
	MrrIndexOnly
	// MrrUseDefaultImpl 不使用缓冲实现
	MrrUseDefaultImpl
)

// IndexCursor 存储引擎提供的索引游标，读出的记录写入 buf
type IndexCursor interface {
	Share() *metadata.TableShare
	IndexInit(idx int, sorted bool) error
	IndexEnd() error
	ActiveIndex() int
	// Inited 是否有已打开的索引扫描
	Inited() bool

	IndexReadMap(buf metadata.Record, key []byte, keypart KeyPartMap, flag FindFlag) error
	IndexReadLastMap(buf metadata.Record, key []byte, keypart KeyPartMap) error
	IndexNext(buf metadata.Record) error
	IndexPrev(buf metadata.Record) error
	IndexFirst(buf metadata.Record) error
	IndexLast(buf metadata.Record) error
	IndexNextSame(buf metadata.Record, key []byte, keyLength int) error

	// RndInit/RndNext 全表扫描
	RndInit() error
	RndNext(buf metadata.Record) error

	// Position 当前行的定位引用，之后可以通过 RndPos 读回
	Position(rec metadata.Record) []byte
	RndPos(buf metadata.Record, pos []byte) error
	RefLength() int

	RecordsInRange(idx int, min, max *KeyRange) (int64, error)
	Records() int64
	// SetKeyRead 打开后只还原索引列
	SetKeyRead(on bool)
	PrimaryKeyIsClustered() bool
}

// Handler 执行层使用的表句柄：索引游标加上区间读与多范围读
type Handler interface {
	IndexCursor
	// Record 读取操作默认使用的记录缓冲区
	Record() metadata.Record

	ReadRangeFirst(start, end *KeyRange, eqRange, sorted bool) error
	ReadRangeNext() error
	CompareKey(r *KeyRange) int

	MultiRangeReadInit(seq RangeSeq, nRanges int, mode MrrMode, bufSize int) error
	MultiRangeReadNext() (interface{}, error)
}
