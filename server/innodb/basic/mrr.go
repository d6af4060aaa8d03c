package basic

import (
	"bytes"

	"github.com/google/btree"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/keycodec"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
)

// HandlerBase 基于 IndexCursor 的区间读与多范围读实现，存储引擎嵌入它即可得到 Handler
type HandlerBase struct {
	cursor IndexCursor
	record metadata.Record

	// 区间读
	endRange                *KeyRange
	saveEndRange            KeyRange
	rangeKeyParts           []metadata.KeyPartInfo
	keyCompareResultOnEqual int
	eqRange                 bool

	// 多范围读
	mrrSeq       RangeSeq
	mrrCurRange  KeyMultiRange
	mrrHaveRange bool
	mrrSeqDone   bool
	mrrSorted    bool

	// 缓冲模式下按行引用排序后再回表
	buffered   bool
	bufSize    int
	rowids     *btree.BTree
	bufferDone bool
}

func NewHandlerBase(cursor IndexCursor) *HandlerBase {
	return &HandlerBase{cursor: cursor, record: cursor.Share().NewRecord()}
}

func (h *HandlerBase) Record() metadata.Record {
	return h.record
}

func (h *HandlerBase) setEndRange(end *KeyRange) {
	if end == nil {
		h.endRange = nil
		return
	}
	h.saveEndRange = *end
	h.endRange = &h.saveEndRange
	switch end.Flag {
	case HaReadBeforeKey:
		h.keyCompareResultOnEqual = 1
	case HaReadAfterKey:
		h.keyCompareResultOnEqual = -1
	default:
		h.keyCompareResultOnEqual = 0
	}
}

// CompareKey 当前记录与区间终点比较：<= 0 表示仍在区间内
func (h *HandlerBase) CompareKey(r *KeyRange) int {
	if r == nil {
		return 0
	}
	cmp := keycodec.CompareToRecord(h.rangeKeyParts, r.Key, h.record, r.Length)
	if cmp == 0 {
		cmp = h.keyCompareResultOnEqual
	}
	return cmp
}

// ReadRangeFirst 定位到区间的第一行，start 为 nil 时从索引头开始
func (h *HandlerBase) ReadRangeFirst(start, end *KeyRange, eqRange, sorted bool) error {
	h.eqRange = eqRange
	h.setEndRange(end)
	h.rangeKeyParts = h.cursor.Share().Keys[h.cursor.ActiveIndex()].Parts

	var err error
	if start == nil {
		err = h.cursor.IndexFirst(h.record)
	} else {
		err = h.cursor.IndexReadMap(h.record, start.Key, start.Keypart, start.Flag)
	}
	if err != nil {
		if err == HaErrKeyNotFound {
			return HaErrEndOfFile
		}
		return err
	}
	if h.CompareKey(h.endRange) <= 0 {
		return nil
	}
	return HaErrEndOfFile
}

// ReadRangeNext 区间内的下一行
func (h *HandlerBase) ReadRangeNext() error {
	if h.eqRange {
		// 点区间上 IndexNextSame 返回的行一定在区间内
		return h.cursor.IndexNextSame(h.record, h.endRange.Key, h.endRange.Length)
	}
	if err := h.cursor.IndexNext(h.record); err != nil {
		return err
	}
	if h.CompareKey(h.endRange) <= 0 {
		return nil
	}
	return HaErrEndOfFile
}

// MultiRangeReadInit 开始一次多范围读；无序且需要回表时按 bufSize 缓冲行引用
func (h *HandlerBase) MultiRangeReadInit(seq RangeSeq, nRanges int, mode MrrMode, bufSize int) error {
	seq.Init(nRanges, mode)
	h.mrrSeq = seq
	h.mrrHaveRange = false
	h.mrrSeqDone = false
	h.mrrSorted = mode&MrrSorted != 0
	h.buffered = mode&(MrrSorted|MrrIndexOnly|MrrUseDefaultImpl) == 0 &&
		mode&MrrNoAssociation != 0 && bufSize > 0
	h.bufSize = bufSize
	h.bufferDone = false
	if h.buffered {
		if h.rowids == nil {
			h.rowids = btree.New(16)
		} else {
			h.rowids.Clear(false)
		}
	}
	return nil
}

// MultiRangeReadNext 返回下一行所属区间的 Ptr
func (h *HandlerBase) MultiRangeReadNext() (interface{}, error) {
	if h.buffered {
		return nil, h.bufferedNext()
	}
	return h.defaultNext()
}

func (h *HandlerBase) defaultNext() (interface{}, error) {
	if h.mrrSeqDone {
		return nil, HaErrEndOfFile
	}
	err := error(HaErrEndOfFile)
	if h.mrrHaveRange {
		// 唯一索引上的整键等值区间至多一行，不必再读
		if h.mrrCurRange.RangeFlag != UniqueRange|EqRange {
			err = h.ReadRangeNext()
			if err != HaErrEndOfFile {
				return h.mrrCurRange.Ptr, err
			}
		}
	}
	h.mrrHaveRange = true
	for h.mrrSeq.Next(&h.mrrCurRange) {
		r := &h.mrrCurRange
		var start, end *KeyRange
		if r.StartKey.Keypart != 0 {
			start = &r.StartKey
		}
		if r.EndKey.Keypart != 0 {
			end = &r.EndKey
		}
		err = h.ReadRangeFirst(start, end, r.RangeFlag&EqRange != 0, h.mrrSorted)
		if err != HaErrEndOfFile {
			return r.Ptr, err
		}
	}
	h.mrrSeqDone = true
	return nil, err
}

type rowidItem []byte

func (a rowidItem) Less(than btree.Item) bool {
	return bytes.Compare(a, than.(rowidItem)) < 0
}

func (h *HandlerBase) fillRowidBuffer() error {
	size := 0
	for size < h.bufSize {
		_, err := h.defaultNext()
		if err == HaErrEndOfFile {
			h.bufferDone = true
			return nil
		}
		if err != nil {
			return err
		}
		ref := append([]byte(nil), h.cursor.Position(h.record)...)
		if h.rowids.ReplaceOrInsert(rowidItem(ref)) == nil {
			size += len(ref)
		}
	}
	return nil
}

func (h *HandlerBase) bufferedNext() error {
	for {
		if h.rowids.Len() == 0 {
			if h.bufferDone {
				return HaErrEndOfFile
			}
			if err := h.fillRowidBuffer(); err != nil {
				return err
			}
			if h.rowids.Len() == 0 {
				return HaErrEndOfFile
			}
		}
		ref := h.rowids.DeleteMin().(rowidItem)
		err := h.cursor.RndPos(h.record, ref)
		if err == HaErrRecordDeleted {
			continue
		}
		return err
	}
}
