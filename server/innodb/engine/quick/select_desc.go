package quick

import (
	"fmt"

	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/plan/rangeopt"
)

// SelectDesc 按索引逆序读取区间。
// 区间从最后一个开始，每个区间从终点向起点读
type SelectDesc struct {
	*RangeSelect
	usedKeyParts int
	// rev 下一个要读的区间，从 len(ranges)-1 递减
	rev       int
	lastRange *rangeopt.QuickRange
}

// NewSelectDesc 接管 q 的区间，q 之后不再可用
func NewSelectDesc(q *RangeSelect, usedKeyParts int) *SelectDesc {
	ranges := make([]*rangeopt.QuickRange, len(q.ranges))
	for i, r := range q.ranges {
		c := *r
		// 不覆盖整个键的点区间不能用 IndexNextSame 逆序读
		if c.Flag&basic.EqRange != 0 && c.MaxLength != q.key.KeyLength {
			c.Flag &^= basic.EqRange
		}
		ranges[i] = &c
	}
	stolen := *q
	stolen.ranges = ranges
	stolen.seq.ranges = ranges
	// 逆序读不能使用缓冲的多范围读
	stolen.mrrMode |= basic.MrrUseDefaultImpl | basic.MrrSorted
	stolen.mrrBufSize = 0
	q.ranges = nil
	q.seq.ranges = nil
	return &SelectDesc{RangeSelect: &stolen, usedKeyParts: usedKeyParts, rev: len(ranges) - 1}
}

func (d *SelectDesc) Reset() error {
	d.rev = len(d.ranges) - 1
	d.lastRange = nil
	return d.RangeSelect.Reset()
}

// readSame 点区间上可以顺序读完相同的键
func (d *SelectDesc) readSame(r *rangeopt.QuickRange) bool {
	return r.Flag&basic.EqRange != 0 && d.usedKeyParts <= len(d.key.Parts)
}

func (d *SelectDesc) GetNext() error {
	rec := d.h.Record()
	for {
		if d.lastRange != nil {
			var err error
			if d.readSame(d.lastRange) {
				err = d.h.IndexNextSame(rec, d.lastRange.MinKey, d.lastRange.MinLength)
			} else {
				err = d.h.IndexPrev(rec)
			}
			if err == nil {
				if !d.cmpPrev(d.lastRange) {
					return nil
				}
			} else if err != basic.HaErrEndOfFile {
				return err
			}
		}
		if d.rev < 0 {
			d.lastRange = nil
			return basic.HaErrEndOfFile
		}
		r := d.ranges[d.rev]
		d.rev--
		d.lastRange = r

		if r.Flag&basic.NoMaxRange != 0 {
			// 从索引末尾向前读
			if err := d.h.IndexLast(rec); err != nil {
				if err != basic.HaErrEndOfFile {
					return err
				}
				d.lastRange = nil
				continue
			}
			if !d.cmpPrev(r) {
				return nil
			}
			d.lastRange = nil
			continue
		}

		var err error
		switch {
		case d.readSame(r):
			err = d.h.IndexReadMap(rec, r.MaxKey, r.MaxKeypartMap, basic.HaReadKeyExact)
		case r.Flag&basic.NearMax != 0:
			err = d.h.IndexReadMap(rec, r.MaxKey, r.MaxKeypartMap, basic.HaReadBeforeKey)
		default:
			err = d.h.IndexReadMap(rec, r.MaxKey, r.MaxKeypartMap, basic.HaReadPrefixLastOrPrev)
		}
		if err != nil {
			if !basic.IsEndOfScan(err) {
				return err
			}
			d.lastRange = nil
			continue
		}
		if !d.cmpPrev(r) {
			if r.Flag == basic.UniqueRange|basic.EqRange {
				d.lastRange = nil
			}
			return nil
		}
		d.lastRange = nil
	}
}

func (d *SelectDesc) Sorted() bool { return true }

func (d *SelectDesc) Describe() string {
	return fmt.Sprintf("range %s(%s) desc", d.key.Name, describeRanges(d.key.Parts, d.ranges))
}
