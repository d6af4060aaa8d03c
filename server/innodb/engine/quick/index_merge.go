package quick

import (
	"bytes"
	"strings"

	"github.com/zhukovaskychina/xmysql-optimizer/logger"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/tree"
)

// IndexMergeSelect 多个索引区间扫描的并。
// 各扫描只读索引，收集行引用去重排序后按行号回表；
// 聚簇主键上的扫描最后直接读，其余扫描跳过落在主键区间内的行
type IndexMergeSelect struct {
	h        basic.Handler
	scans    []*RangeSelect
	pk       *RangeSelect
	memLimit int64

	unique  *tree.Tree
	rowids  [][]byte
	pos     int
	doingPK bool
}

// NewIndexMergeSelect memLimit 为行引用集合的内存上限，0 表示不限
func NewIndexMergeSelect(h basic.Handler, scans []*RangeSelect, memLimit int64) *IndexMergeSelect {
	q := &IndexMergeSelect{h: h, memLimit: memLimit}
	share := h.Share()
	for _, s := range scans {
		if h.PrimaryKeyIsClustered() && s.index == share.PrimaryKey && q.pk == nil {
			q.pk = s
			continue
		}
		q.scans = append(q.scans, s)
	}
	return q
}

func (q *IndexMergeSelect) Init() error {
	if q.h.Inited() {
		return q.h.IndexEnd()
	}
	return nil
}

// Reset 读完所有二级索引扫描，准备按行号回表
func (q *IndexMergeSelect) Reset() error {
	q.doingPK = false
	q.rowids = q.rowids[:0]
	q.pos = 0
	if err := q.readKeysAndMerge(); err != nil {
		return err
	}
	q.h.SetKeyRead(false)
	return q.h.RndInit()
}

func (q *IndexMergeSelect) readKeysAndMerge() error {
	if q.unique == nil {
		q.unique = tree.NewTree(bytes.Compare, q.memLimit, tree.NoDups)
	} else {
		q.unique.Reset()
	}
	for _, s := range q.scans {
		if err := s.Init(); err != nil {
			return err
		}
		if err := s.Reset(); err != nil {
			return err
		}
		for {
			err := s.GetNext()
			if err == basic.HaErrEndOfFile {
				break
			}
			if err != nil {
				return err
			}
			if q.pk != nil && q.pk.RowInRanges() {
				continue
			}
			ref := q.h.Position(q.h.Record())
			if q.unique.Search(ref) != nil {
				continue
			}
			if q.unique.Full(len(ref)) {
				return basic.HaErrOutOfMem
			}
			q.unique.Insert(ref)
		}
		if err := s.Close(); err != nil {
			return err
		}
	}
	q.unique.Walk(func(e *tree.Element) int {
		q.rowids = append(q.rowids, e.Key)
		return 0
	}, tree.LeftRootRight)
	logger.Debugf("index merge collected %d row references from %d scans", len(q.rowids), len(q.scans))
	return nil
}

func (q *IndexMergeSelect) GetNext() error {
	if q.doingPK {
		return q.pk.GetNext()
	}
	for q.pos < len(q.rowids) {
		ref := q.rowids[q.pos]
		q.pos++
		err := q.h.RndPos(q.h.Record(), ref)
		if err == basic.HaErrRecordDeleted {
			continue
		}
		return err
	}
	if q.pk == nil {
		return basic.HaErrEndOfFile
	}
	q.doingPK = true
	if err := q.pk.Init(); err != nil {
		return err
	}
	if err := q.pk.Reset(); err != nil {
		return err
	}
	return q.pk.GetNext()
}

func (q *IndexMergeSelect) Record() metadata.Record { return q.h.Record() }
func (q *IndexMergeSelect) Index() int { return MaxKey }
func (q *IndexMergeSelect) Sorted() bool { return false }

func (q *IndexMergeSelect) Close() error {
	if q.h.Inited() {
		return q.h.IndexEnd()
	}
	return nil
}

func (q *IndexMergeSelect) Describe() string {
	items := make([]string, 0, len(q.scans)+1)
	for _, s := range q.scans {
		items = append(items, s.key.Name)
	}
	if q.pk != nil {
		items = append(items, q.pk.key.Name)
	}
	return "sort_union(" + strings.Join(items, ",") + ")"
}
