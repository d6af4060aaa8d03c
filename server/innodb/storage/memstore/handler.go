package memstore

import (
	"encoding/binary"

	"github.com/google/btree"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/keycodec"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
)

const refLength = 8

// Handler 内存表上的游标。RndPos 不改变索引扫描的位置，
// 缓冲多范围读可以在同一个句柄上交替定位与回表
type Handler struct {
	*basic.HandlerBase
	table   *Table
	active  int
	sorted  bool
	cur     *entry
	keyRead bool
	// lastRowid 最近一次读出的行
	lastRowid uint64
	ref       [refLength]byte
	rndPos    uint64
}

var _ basic.Handler = (*Handler)(nil)

func (h *Handler) Share() *metadata.TableShare {
	return h.table.share
}

func (h *Handler) IndexInit(idx int, sorted bool) error {
	if idx < 0 || idx >= len(h.table.indexes) {
		return basic.HaErrWrongIndex
	}
	h.active = idx
	h.sorted = sorted
	h.cur = nil
	return nil
}

func (h *Handler) IndexEnd() error {
	h.active = -1
	h.cur = nil
	return nil
}

func (h *Handler) ActiveIndex() int {
	return h.active
}

func (h *Handler) Inited() bool {
	return h.active >= 0
}

func (h *Handler) SetKeyRead(on bool) {
	h.keyRead = on
}

func (h *Handler) PrimaryKeyIsClustered() bool {
	return h.table.clustered
}

func (h *Handler) index() *index {
	return h.table.indexes[h.active]
}

// fill 把 e 对应的行写入 buf；只读索引时只还原键列（聚簇表还包括主键列）
func (h *Handler) fill(buf metadata.Record, e *entry) error {
	row := h.table.row(e.rowid)
	if row == nil {
		return basic.HaErrRecordDeleted
	}
	h.cur = e
	h.lastRowid = e.rowid
	if !h.keyRead {
		copy(buf, row)
		return nil
	}
	keycodec.Restore(buf, e.key, e.idx.info, 0)
	share := h.table.share
	if h.table.clustered && share.PrimaryKey >= 0 && share.PrimaryKey != h.active {
		pk := share.Keys[share.PrimaryKey]
		key := make([]byte, pk.KeyLength)
		keycodec.Copy(key, row, pk, 0)
		keycodec.Restore(buf, key, pk, 0)
	}
	return nil
}

func (h *Handler) keyLength(keypart basic.KeyPartMap) int {
	info := h.index().info
	if keypart == basic.HaWholeKey {
		return info.KeyLength
	}
	return keycodec.KeyPartMapLength(info, uint64(keypart))
}

func (h *Handler) first(pivot *entry) *entry {
	var found *entry
	h.index().bt.AscendGreaterOrEqual(pivot, func(i btree.Item) bool {
		found = i.(*entry)
		return false
	})
	return found
}

func (h *Handler) last(pivot *entry) *entry {
	var found *entry
	h.index().bt.DescendLessOrEqual(pivot, func(i btree.Item) bool {
		found = i.(*entry)
		return false
	})
	return found
}

func (h *Handler) prefixMatches(e *entry, key []byte, keyLen int) bool {
	return e != nil && keycodec.Compare(e.idx.info.Parts, e.key, key, keyLen) == 0
}

// IndexReadMap 按 flag 定位到 keypart 描述的键前缀
func (h *Handler) IndexReadMap(buf metadata.Record, key []byte, keypart basic.KeyPartMap, flag basic.FindFlag) error {
	if h.active < 0 {
		return basic.HaErrWrongCommand
	}
	ix := h.index()
	keyLen := h.keyLength(keypart)
	low, high := ix.probe(key, keyLen, -1), ix.probe(key, keyLen, 1)

	var e *entry
	switch flag {
	case basic.HaReadKeyExact, basic.HaReadPrefix:
		e = h.first(low)
		if !h.prefixMatches(e, key, keyLen) {
			e = nil
		}
	case basic.HaReadKeyOrNext:
		e = h.first(low)
	case basic.HaReadAfterKey:
		e = h.first(high)
	case basic.HaReadBeforeKey:
		e = h.last(low)
	case basic.HaReadKeyOrPrev, basic.HaReadPrefixLastOrPrev:
		e = h.last(high)
	case basic.HaReadPrefixLast:
		e = h.last(high)
		if !h.prefixMatches(e, key, keyLen) {
			e = nil
		}
	default:
		return basic.HaErrWrongCommand
	}
	if e == nil {
		h.cur = nil
		return basic.HaErrKeyNotFound
	}
	return h.fill(buf, e)
}

func (h *Handler) IndexReadLastMap(buf metadata.Record, key []byte, keypart basic.KeyPartMap) error {
	return h.IndexReadMap(buf, key, keypart, basic.HaReadPrefixLast)
}

func (h *Handler) IndexFirst(buf metadata.Record) error {
	if h.active < 0 {
		return basic.HaErrWrongCommand
	}
	item := h.index().bt.Min()
	if item == nil {
		h.cur = nil
		return basic.HaErrEndOfFile
	}
	return h.fill(buf, item.(*entry))
}

func (h *Handler) IndexLast(buf metadata.Record) error {
	if h.active < 0 {
		return basic.HaErrWrongCommand
	}
	item := h.index().bt.Max()
	if item == nil {
		h.cur = nil
		return basic.HaErrEndOfFile
	}
	return h.fill(buf, item.(*entry))
}

func (h *Handler) IndexNext(buf metadata.Record) error {
	if h.cur == nil {
		return basic.HaErrEndOfFile
	}
	cur := h.cur
	var next *entry
	h.index().bt.AscendGreaterOrEqual(cur, func(i btree.Item) bool {
		if e := i.(*entry); e != cur {
			next = e
			return false
		}
		return true
	})
	if next == nil {
		return basic.HaErrEndOfFile
	}
	return h.fill(buf, next)
}

func (h *Handler) IndexPrev(buf metadata.Record) error {
	if h.cur == nil {
		return basic.HaErrEndOfFile
	}
	cur := h.cur
	var prev *entry
	h.index().bt.DescendLessOrEqual(cur, func(i btree.Item) bool {
		if e := i.(*entry); e != cur {
			prev = e
			return false
		}
		return true
	})
	if prev == nil {
		return basic.HaErrEndOfFile
	}
	return h.fill(buf, prev)
}

// IndexNextSame 下一行的键前缀与 key 不同时返回 EOF
func (h *Handler) IndexNextSame(buf metadata.Record, key []byte, keyLength int) error {
	if h.cur == nil {
		return basic.HaErrEndOfFile
	}
	cur := h.cur
	var next *entry
	h.index().bt.AscendGreaterOrEqual(cur, func(i btree.Item) bool {
		if e := i.(*entry); e != cur {
			next = e
			return false
		}
		return true
	})
	if !h.prefixMatches(next, key, keyLength) {
		return basic.HaErrEndOfFile
	}
	return h.fill(buf, next)
}

func (h *Handler) RndInit() error {
	h.rndPos = 0
	return nil
}

func (h *Handler) RndNext(buf metadata.Record) error {
	for h.rndPos < uint64(len(h.table.rows)) {
		h.rndPos++
		if row := h.table.row(h.rndPos); row != nil {
			copy(buf, row)
			h.lastRowid = h.rndPos
			return nil
		}
	}
	return basic.HaErrEndOfFile
}

// Position 最近一次读出的行的引用：8 字节大端行号
func (h *Handler) Position(rec metadata.Record) []byte {
	binary.BigEndian.PutUint64(h.ref[:], h.lastRowid)
	return h.ref[:]
}

func (h *Handler) RndPos(buf metadata.Record, pos []byte) error {
	if len(pos) != refLength {
		return basic.HaErrWrongCommand
	}
	rowid := binary.BigEndian.Uint64(pos)
	row := h.table.row(rowid)
	if row == nil {
		return basic.HaErrRecordDeleted
	}
	copy(buf, row)
	h.lastRowid = rowid
	return nil
}

func (h *Handler) RefLength() int {
	return refLength
}

func (h *Handler) Records() int64 {
	return h.table.live
}

// RecordsInRange 区间内的索引项个数，min 或 max 为 nil 表示不设该端
func (h *Handler) RecordsInRange(idx int, min, max *basic.KeyRange) (int64, error) {
	if idx < 0 || idx >= len(h.table.indexes) {
		return 0, basic.HaErrWrongIndex
	}
	ix := h.table.indexes[idx]
	parts := ix.info.Parts

	var n int64
	visit := func(i btree.Item) bool {
		e := i.(*entry)
		if max != nil {
			c := keycodec.Compare(parts, e.key, max.Key, max.Length)
			if c > 0 || (c == 0 && max.Flag == basic.HaReadBeforeKey) {
				return false
			}
		}
		n++
		return true
	}
	if min == nil {
		ix.bt.Ascend(visit)
		return n, nil
	}
	side := int8(-1)
	if min.Flag == basic.HaReadAfterKey {
		side = 1
	}
	ix.bt.AscendGreaterOrEqual(ix.probe(min.Key, min.Length, side), visit)
	return n, nil
}
