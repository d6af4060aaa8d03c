package memstore

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/google/btree"
	"github.com/juju/errors"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/keycodec"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/tree"
)

// entry 索引项：打包键加行号。side 非 0 的 entry 只用作查找的定位点，
// side=-1 排在等于 key 前缀的所有项之前，side=1 排在它们之后
type entry struct {
	key    []byte
	keyLen int
	rowid  uint64
	side   int8
	idx    *index
}

func (e *entry) Less(than btree.Item) bool {
	o := than.(*entry)
	l := e.idx.info.KeyLength
	if e.side != 0 {
		l = e.keyLen
	} else if o.side != 0 {
		l = o.keyLen
	}
	if c := keycodec.Compare(e.idx.info.Parts, e.key, o.key, l); c != 0 {
		return c < 0
	}
	if e.side != o.side {
		return e.side < o.side
	}
	return e.rowid < o.rowid
}

type index struct {
	info *metadata.KeyInfo
	bt   *btree.BTree
}

func (ix *index) probe(key []byte, keyLen int, side int8) *entry {
	return &entry{key: key, keyLen: keyLen, side: side, idx: ix}
}

// Option 表选项
type Option func(t *Table)

// WithClusteredPrimaryKey 二级索引中隐含主键列，只读索引时也能还原主键
func WithClusteredPrimaryKey() Option {
	return func(t *Table) { t.clustered = true }
}

// Table 内存表：行按插入顺序编号，每个索引一棵 btree
type Table struct {
	share     *metadata.TableShare
	rows      []metadata.Record
	live      int64
	indexes   []*index
	clustered bool
}

func NewTable(share *metadata.TableShare, opts ...Option) *Table {
	t := &Table{share: share}
	for _, info := range share.Keys {
		t.indexes = append(t.indexes, &index{info: info, bt: btree.New(32)})
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Table) Share() *metadata.TableShare {
	return t.share
}

// Rows 现存行数
func (t *Table) Rows() int64 {
	return t.live
}

func (t *Table) makeEntry(ix *index, rec metadata.Record, rowid uint64) *entry {
	key := make([]byte, ix.info.KeyLength)
	keycodec.Copy(key, rec, ix.info, 0)
	return &entry{key: key, rowid: rowid, idx: ix}
}

// hasNullPart 键里有 NULL 列时不做唯一性检查
func hasNullPart(info *metadata.KeyInfo, key []byte) bool {
	pos := 0
	for i := range info.Parts {
		kp := &info.Parts[i]
		if kp.MaybeNull() && key[pos] != 0 {
			return true
		}
		pos += kp.StoreLength
	}
	return false
}

func (t *Table) checkUnique(ix *index, e *entry) error {
	if !ix.info.Unique() || hasNullPart(ix.info, e.key) {
		return nil
	}
	var dup *entry
	ix.bt.AscendGreaterOrEqual(ix.probe(e.key, ix.info.KeyLength, -1), func(i btree.Item) bool {
		o := i.(*entry)
		if o.rowid != e.rowid && keycodec.Compare(ix.info.Parts, o.key, e.key, ix.info.KeyLength) == 0 {
			dup = o
		}
		return false
	})
	if dup != nil {
		return errors.Annotatef(basic.ErrDuplicateKey, "'%s' for key '%s'",
			keycodec.Unpack(ix.info.Parts, e.key, ix.info.KeyLength), ix.info.Name)
	}
	return nil
}

// Insert 插入一行，返回行号
func (t *Table) Insert(rec metadata.Record) (uint64, error) {
	if len(rec) != t.share.RecLength {
		return 0, errors.NotValidf("record length %d for table %s", len(rec), t.share.Name)
	}
	rowid := uint64(len(t.rows) + 1)
	entries := make([]*entry, len(t.indexes))
	for i, ix := range t.indexes {
		entries[i] = t.makeEntry(ix, rec, rowid)
		if err := t.checkUnique(ix, entries[i]); err != nil {
			return 0, err
		}
	}
	t.rows = append(t.rows, rec.Clone())
	for i, ix := range t.indexes {
		ix.bt.ReplaceOrInsert(entries[i])
	}
	t.live++
	return rowid, nil
}

// InsertValues 按列顺序插入一行
func (t *Table) InsertValues(vals ...metadata.Datum) (uint64, error) {
	rec, err := t.share.MakeRecord(vals...)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return t.Insert(rec)
}

func (t *Table) row(rowid uint64) metadata.Record {
	if rowid == 0 || rowid > uint64(len(t.rows)) {
		return nil
	}
	return t.rows[rowid-1]
}

// changedFields 新旧记录中值不同的列
func (t *Table) changedFields(old, rec metadata.Record) *roaring.Bitmap {
	changed := roaring.New()
	for _, f := range t.share.Fields {
		if f.IsNull(old) != f.IsNull(rec) || !f.Val(old).Equal(f.Val(rec)) {
			changed.Add(uint32(f.Nr))
		}
	}
	return changed
}

// Update 用 rec 替换一行，只重建键值确实变化了的索引项
func (t *Table) Update(rowid uint64, rec metadata.Record) error {
	old := t.row(rowid)
	if old == nil {
		return basic.HaErrKeyNotFound
	}
	changed := t.changedFields(old, rec)
	type rekey struct {
		ix       *index
		from, to *entry
	}
	var work []rekey
	for i, ix := range t.indexes {
		if !keycodec.IsKeyUsed(t.share, i, changed, t.clustered) {
			continue
		}
		oldEntry := t.makeEntry(ix, old, rowid)
		if !keycodec.Changed(rec, oldEntry.key, ix.info, 0) {
			continue
		}
		e := t.makeEntry(ix, rec, rowid)
		if err := t.checkUnique(ix, e); err != nil {
			return err
		}
		work = append(work, rekey{ix: ix, from: oldEntry, to: e})
	}
	for _, w := range work {
		w.ix.bt.Delete(w.from)
		w.ix.bt.ReplaceOrInsert(w.to)
	}
	t.rows[rowid-1] = rec.Clone()
	return nil
}

// Delete 删除一行，行号不再复用
func (t *Table) Delete(rowid uint64) error {
	old := t.row(rowid)
	if old == nil {
		return basic.HaErrKeyNotFound
	}
	for _, ix := range t.indexes {
		ix.bt.Delete(t.makeEntry(ix, old, rowid))
	}
	t.rows[rowid-1] = nil
	t.live--
	return nil
}

// Cardinality 索引前 parts 列的不同值个数
func (t *Table) Cardinality(idx, parts int) int64 {
	ix := t.indexes[idx]
	l := ix.info.PrefixLength(parts)
	d := tree.NewDistinctCounter(func(a, b []byte) int {
		return keycodec.Compare(ix.info.Parts, a, b, l)
	}, 0)
	ix.bt.Ascend(func(i btree.Item) bool {
		d.Add(i.(*entry).key[:l])
		return true
	})
	return d.Count()
}

// Open 打开一个新的表句柄
func (t *Table) Open() *Handler {
	h := &Handler{table: t, active: -1}
	h.HandlerBase = basic.NewHandlerBase(h)
	return h
}
