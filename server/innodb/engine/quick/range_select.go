package quick

import (
	"fmt"
	"strings"

	"github.com/zhukovaskychina/xmysql-optimizer/logger"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/keycodec"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/plan/rangeopt"
	"golang.org/x/exp/slices"
)

// RangeOptions 区间扫描的读取选项
type RangeOptions struct {
	// Sorted 要求按索引顺序返回
	Sorted bool
	// KeyRead 只读索引列，不回表
	KeyRead bool
	// MRR 允许缓冲行引用后按行号回表
	MRR           bool
	MRRBufferSize int
}

// rangeSeq 把区间列表交给多范围读
type rangeSeq struct {
	ranges []*rangeopt.QuickRange
	cur    int
}

func (s *rangeSeq) Init(nRanges int, mode basic.MrrMode) {
	s.cur = 0
}

func (s *rangeSeq) Next(r *basic.KeyMultiRange) bool {
	if s.cur >= len(s.ranges) {
		return false
	}
	qr := s.ranges[s.cur]
	s.cur++
	r.StartKey = qr.MinEndpoint()
	r.EndKey = qr.MaxEndpoint()
	r.RangeFlag = qr.Flag
	r.Ptr = qr
	return true
}

// RangeSelect 在一个索引上依次读取各区间内的行
type RangeSelect struct {
	h          basic.Handler
	index      int
	key        *metadata.KeyInfo
	ranges     []*rangeopt.QuickRange
	keyRead    bool
	mrrMode    basic.MrrMode
	mrrBufSize int
	seq        rangeSeq

	// GetNextPrefix 的位置
	curRange  int
	lastRange *rangeopt.QuickRange
}

var _ RowidSelect = (*RangeSelect)(nil)

// NewRangeSelect ranges 必须按索引顺序排列且互不相交
func NewRangeSelect(h basic.Handler, idx int, ranges []*rangeopt.QuickRange, opt RangeOptions) (*RangeSelect, error) {
	share := h.Share()
	if idx < 0 || idx >= len(share.Keys) {
		return nil, basic.HaErrWrongIndex
	}
	mode := basic.MrrNoAssociation
	if opt.Sorted {
		mode |= basic.MrrSorted
	}
	if opt.KeyRead {
		mode |= basic.MrrIndexOnly
	}
	if !opt.MRR {
		mode |= basic.MrrUseDefaultImpl
	}
	q := &RangeSelect{
		h:          h,
		index:      idx,
		key:        share.Keys[idx],
		ranges:     ranges,
		keyRead:    opt.KeyRead,
		mrrMode:    mode,
		mrrBufSize: opt.MRRBufferSize,
	}
	q.seq.ranges = ranges
	return q, nil
}

func (q *RangeSelect) Init() error {
	logger.Debugf("range select init on %s", q.key.Name)
	if q.h.Inited() {
		return q.h.IndexEnd()
	}
	return nil
}

// Reset 打开索引并重新开始多范围读，可以重复调用
func (q *RangeSelect) Reset() error {
	q.lastRange = nil
	q.curRange = 0
	if !q.h.Inited() || q.h.ActiveIndex() != q.index {
		if q.h.Inited() {
			if err := q.h.IndexEnd(); err != nil {
				return err
			}
		}
		if err := q.h.IndexInit(q.index, q.mrrMode&basic.MrrSorted != 0); err != nil {
			return err
		}
	}
	q.h.SetKeyRead(q.keyRead)
	q.seq.ranges = q.ranges
	if logger.DebugEnabled() {
		logger.Debugf("range select reset: %s, %d ranges, mrr mode %d", q.Describe(), len(q.ranges), q.mrrMode)
	}
	return q.h.MultiRangeReadInit(&q.seq, len(q.ranges), q.mrrMode, q.mrrBufSize)
}

func (q *RangeSelect) GetNext() error {
	_, err := q.h.MultiRangeReadNext()
	return endOfScan(err)
}

// GetNextPrefix 读取下一个不同的 groupKeyParts 列前缀的第一行。
// curPrefix 是上一次读到的前缀，第一次调用传 nil
func (q *RangeSelect) GetNextPrefix(prefixLength, groupKeyParts int, curPrefix []byte) error {
	keypart := basic.MakePrevKeypartMap(groupKeyParts)
	for {
		if q.lastRange != nil {
			// 同一区间内前缀大于 curPrefix 的第一行
			err := q.h.IndexReadMap(q.h.Record(), curPrefix, keypart, basic.HaReadAfterKey)
			if err != nil {
				return endOfScan(err)
			}
			if q.lastRange.MaxKeypartMap == 0 {
				return nil
			}
			prev := q.lastRange.MakeMaxEndpoint(prefixLength, keypart)
			if q.h.CompareKey(&prev) <= 0 {
				return nil
			}
		}
		if q.curRange >= len(q.ranges) {
			q.lastRange = nil
			return basic.HaErrEndOfFile
		}
		r := q.ranges[q.curRange]
		q.curRange++
		q.lastRange = r

		var start, end *basic.KeyRange
		if r.MinKeypartMap != 0 {
			kr := r.MakeMinEndpoint(prefixLength, keypart)
			start = &kr
		}
		if r.MaxKeypartMap != 0 {
			kr := r.MakeMaxEndpoint(prefixLength, keypart)
			end = &kr
		}
		err := q.h.ReadRangeFirst(start, end, r.Flag&basic.EqRange != 0, q.mrrMode&basic.MrrSorted != 0)
		if r.Flag == basic.UniqueRange|basic.EqRange {
			q.lastRange = nil
		}
		if err != basic.HaErrEndOfFile {
			return err
		}
		q.lastRange = nil
	}
}

// cmpNext 当前行在区间终点之后
func (q *RangeSelect) cmpNext(r *rangeopt.QuickRange) bool {
	if r.Flag&basic.NoMaxRange != 0 {
		return false
	}
	c := keycodec.CompareToRecord(q.key.Parts, r.MaxKey, q.h.Record(), r.MaxLength)
	if c != 0 {
		return c > 0
	}
	return r.Flag&basic.NearMax != 0
}

// cmpPrev 当前行在区间起点之前
func (q *RangeSelect) cmpPrev(r *rangeopt.QuickRange) bool {
	if r.Flag&basic.NoMinRange != 0 {
		return false
	}
	c := keycodec.CompareToRecord(q.key.Parts, r.MinKey, q.h.Record(), r.MinLength)
	return c < 0 || (c == 0 && r.Flag&basic.NearMin != 0)
}

// RowInRanges 句柄记录缓冲区中的行是否落在某个区间内，需要该行的键列已读出
func (q *RangeSelect) RowInRanges() bool {
	// 第一个终点不小于当前行的区间
	i, _ := slices.BinarySearchFunc(q.ranges, (*rangeopt.QuickRange)(nil), func(r, _ *rangeopt.QuickRange) int {
		if q.cmpNext(r) {
			return -1
		}
		return 1
	})
	if i == len(q.ranges) {
		return false
	}
	return !q.cmpPrev(q.ranges[i])
}

func (q *RangeSelect) Record() metadata.Record { return q.h.Record() }
func (q *RangeSelect) Index() int { return q.index }
func (q *RangeSelect) Sorted() bool { return q.mrrMode&basic.MrrSorted != 0 }

// Ranges 扫描的区间
func (q *RangeSelect) Ranges() []*rangeopt.QuickRange { return q.ranges }

func (q *RangeSelect) Close() error {
	if q.h.Inited() && q.h.ActiveIndex() == q.index {
		return q.h.IndexEnd()
	}
	return nil
}

func (q *RangeSelect) Describe() string {
	return fmt.Sprintf("range %s(%s)", q.key.Name, describeRanges(q.key.Parts, q.ranges))
}

func describeRanges(parts []metadata.KeyPartInfo, ranges []*rangeopt.QuickRange) string {
	items := make([]string, 0, len(ranges))
	for _, r := range ranges {
		items = append(items, r.String(parts))
	}
	return strings.Join(items, " OR ")
}
