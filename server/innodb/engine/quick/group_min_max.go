package quick

import (
	"github.com/zhukovaskychina/xmysql-optimizer/logger"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/keycodec"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/plan/rangeopt"
)

// GroupMinMaxSelect 按分组前缀在索引上跳跃，每组只读 MIN/MAX 所在的一两行
type GroupMinMaxSelect struct {
	h    basic.Handler
	plan *rangeopt.GroupMinMaxPlan
	key  *metadata.KeyInfo

	// prefix 分组列上的区间扫描，没有分组条件时为 nil
	prefix *RangeSelect

	realPrefixLen int
	realKeyParts  int
	argPart       []metadata.KeyPartInfo
	maxUsedKeyLen int
	groupPrefix   []byte
	lastPrefix    []byte
	keyBuf        []byte
	tmpRecord     metadata.Record
	seenFirstKey  bool
	empty         bool
	minValue      metadata.Datum
	maxValue      metadata.Datum
}

func NewGroupMinMaxSelect(h basic.Handler, plan *rangeopt.GroupMinMaxPlan) (*GroupMinMaxSelect, error) {
	share := h.Share()
	if plan.Index < 0 || plan.Index >= len(share.Keys) {
		return nil, basic.HaErrWrongIndex
	}
	q := &GroupMinMaxSelect{
		h:             h,
		plan:          plan,
		key:           share.Keys[plan.Index],
		realPrefixLen: plan.RealPrefixLen(),
		realKeyParts:  plan.RealKeyParts(),
		tmpRecord:     share.NewRecord(),
	}
	q.maxUsedKeyLen = q.realPrefixLen + plan.MinMaxArgLen
	if plan.MinMaxArgPart >= 0 {
		q.argPart = q.key.Parts[plan.MinMaxArgPart : plan.MinMaxArgPart+1]
	}
	q.groupPrefix = make([]byte, q.maxUsedKeyLen)
	q.lastPrefix = make([]byte, plan.GroupPrefixLen)
	q.keyBuf = make([]byte, q.key.KeyLength)
	if len(plan.PrefixRanges) > 0 {
		prefix, err := NewRangeSelect(h, plan.Index, plan.PrefixRanges, RangeOptions{Sorted: true, KeyRead: true})
		if err != nil {
			return nil, err
		}
		q.prefix = prefix
	}
	return q, nil
}

func (q *GroupMinMaxSelect) Init() error {
	logger.Debugf("group min/max select init on %s", q.key.Name)
	if q.h.Inited() {
		return q.h.IndexEnd()
	}
	return nil
}

// Reset 打开索引并记下最后一组的前缀
func (q *GroupMinMaxSelect) Reset() error {
	q.seenFirstKey = false
	q.empty = false
	q.h.SetKeyRead(true)
	if !q.h.Inited() || q.h.ActiveIndex() != q.plan.Index {
		if q.h.Inited() {
			if err := q.h.IndexEnd(); err != nil {
				return err
			}
		}
		if err := q.h.IndexInit(q.plan.Index, true); err != nil {
			return err
		}
	}
	if q.prefix != nil {
		if err := q.prefix.Reset(); err != nil {
			return err
		}
	}
	rec := q.h.Record()
	err := q.h.IndexLast(rec)
	if err == basic.HaErrEndOfFile {
		logger.Debugf("group min/max select reset: %s is empty", q.key.Name)
		q.empty = true
		return nil
	}
	if err != nil {
		return err
	}
	keycodec.Copy(q.lastPrefix, rec, q.key, q.plan.GroupPrefixLen)
	if logger.DebugEnabled() {
		logger.Debugf("group min/max select reset: %s", q.Describe())
	}
	return nil
}

// GetNext 读取下一个满足条件的组；Min/Max 返回该组的聚合值
func (q *GroupMinMaxSelect) GetNext() error {
	if q.empty {
		return basic.HaErrEndOfFile
	}
	rec := q.h.Record()
	var err error
	isLastPrefix := 0
	for {
		err = q.nextPrefix()
		if err != nil {
			if err == basic.HaErrKeyNotFound && isLastPrefix != 0 {
				continue
			}
			break
		}
		isLastPrefix = keycodec.CompareToRecord(q.key.Parts, q.lastPrefix, rec, q.plan.GroupPrefixLen)

		if q.plan.PrefixFilter != nil && !q.plan.PrefixFilter.Eval(q.h.Share(), rec) {
			err = basic.HaErrKeyNotFound
		} else {
			err = q.readGroup()
		}
		if (err == basic.HaErrKeyNotFound || err == basic.HaErrEndOfFile) && isLastPrefix != 0 {
			continue
		}
		break
	}
	if err == basic.HaErrKeyNotFound {
		err = basic.HaErrEndOfFile
	}
	return err
}

// readGroup 在当前组内找 MIN 和 MAX
func (q *GroupMinMaxSelect) readGroup() error {
	rec := q.h.Record()
	var minErr, maxErr error
	if q.plan.HaveMin {
		if minErr = q.nextMin(); minErr == nil {
			q.minValue = q.argPart[0].Field.Val(rec)
		}
	}
	// 没有 MIN 的组也没有 MAX
	if q.plan.HaveMax && (!q.plan.HaveMin || minErr == nil) {
		if maxErr = q.nextMax(); maxErr == nil {
			q.maxValue = q.argPart[0].Field.Val(rec)
		}
	}
	switch {
	case q.plan.HaveMin:
		return minErr
	case q.plan.HaveMax:
		return maxErr
	}
	if q.plan.KeyInfixParts > 0 {
		// 只有 GROUP BY 与等值条件时，定位到扩展前缀的第一行
		return q.h.IndexReadMap(rec, q.groupPrefix, basic.MakePrevKeypartMap(q.realKeyParts), basic.HaReadKeyExact)
	}
	return nil
}

// nextPrefix 定位到下一组的第一行并记下分组前缀
func (q *GroupMinMaxSelect) nextPrefix() error {
	rec := q.h.Record()
	if q.prefix != nil {
		var cur []byte
		if q.seenFirstKey {
			cur = q.groupPrefix
		}
		if err := q.prefix.GetNextPrefix(q.plan.GroupPrefixLen, q.plan.GroupKeyParts, cur); err != nil {
			return err
		}
		q.seenFirstKey = true
	} else if !q.seenFirstKey {
		if err := q.h.IndexFirst(rec); err != nil {
			return err
		}
		q.seenFirstKey = true
	} else {
		err := q.h.IndexReadMap(rec, q.groupPrefix, basic.MakePrevKeypartMap(q.plan.GroupKeyParts), basic.HaReadAfterKey)
		if err != nil {
			return err
		}
	}
	keycodec.Copy(q.groupPrefix, rec, q.key, q.plan.GroupPrefixLen)
	copy(q.groupPrefix[q.plan.GroupPrefixLen:], q.plan.KeyInfix)
	return nil
}

func (q *GroupMinMaxSelect) inGroup() bool {
	return keycodec.CompareToRecord(q.key.Parts, q.groupPrefix, q.h.Record(), q.realPrefixLen) == 0
}

func (q *GroupMinMaxSelect) nextMin() error {
	if len(q.plan.MinMaxRanges) > 0 {
		return q.nextMinInRange()
	}
	rec := q.h.Record()
	if q.plan.KeyInfixParts > 0 {
		err := q.h.IndexReadMap(rec, q.groupPrefix, basic.MakePrevKeypartMap(q.realKeyParts), basic.HaReadKeyExact)
		if err != nil {
			return err
		}
	}
	// 组内 NULL 排在最前，跳过参数为 NULL 的行
	arg := q.argPart[0].Field
	if arg.Nullable && arg.IsNull(rec) {
		keycodec.Copy(q.keyBuf, rec, q.key, q.maxUsedKeyLen)
		err := q.h.IndexReadMap(rec, q.keyBuf, basic.MakeKeypartMap(q.realKeyParts), basic.HaReadAfterKey)
		switch {
		case err == nil:
			// 整组都是 NULL 时仍以组的第一行为结果
			if !q.inGroup() {
				keycodec.Restore(rec, q.keyBuf, q.key, q.maxUsedKeyLen)
			}
		case basic.IsEndOfScan(err):
			keycodec.Restore(rec, q.keyBuf, q.key, q.maxUsedKeyLen)
		default:
			return err
		}
	}
	return nil
}

func (q *GroupMinMaxSelect) nextMax() error {
	if len(q.plan.MinMaxRanges) > 0 {
		return q.nextMaxInRange()
	}
	return q.h.IndexReadLastMap(q.h.Record(), q.groupPrefix, basic.MakePrevKeypartMap(q.realKeyParts))
}

// withArg 组前缀后接参数列的区间端点
func (q *GroupMinMaxSelect) withArg(img []byte) []byte {
	key := make([]byte, q.maxUsedKeyLen)
	copy(key, q.groupPrefix[:q.realPrefixLen])
	copy(key[q.realPrefixLen:], img[:q.plan.MinMaxArgLen])
	return key
}

// nextMinInRange 从左到右在参数列的区间里找组内最小值
func (q *GroupMinMaxSelect) nextMinInRange() error {
	rec := q.h.Record()
	ranges := q.plan.MinMaxRanges
	foundNull := false
	var err error = basic.HaErrKeyNotFound
	for i, r := range ranges {
		// 上一次读到的值已经超过本区间的终点
		if i != 0 && r.Flag&basic.NoMaxRange == 0 &&
			keycodec.CompareToRecord(q.argPart, r.MaxKey, rec, q.plan.MinMaxArgLen) > 0 {
			continue
		}

		var keypart basic.KeyPartMap
		var flag basic.FindFlag
		if r.Flag&basic.NoMinRange != 0 {
			keypart = basic.MakePrevKeypartMap(q.realKeyParts)
			flag = basic.HaReadKeyExact
		} else {
			copy(q.groupPrefix[q.realPrefixLen:], r.MinKey[:r.MinLength])
			keypart = basic.MakeKeypartMap(q.realKeyParts)
			switch {
			case r.Flag&(basic.EqRange|basic.NullRange) != 0:
				flag = basic.HaReadKeyExact
			case r.Flag&basic.NearMin != 0:
				flag = basic.HaReadAfterKey
			default:
				flag = basic.HaReadKeyOrNext
			}
		}

		err = q.h.IndexReadMap(rec, q.groupPrefix, keypart, flag)
		if err != nil {
			if basic.IsEndOfScan(err) && r.Flag&(basic.EqRange|basic.NullRange) != 0 {
				continue
			}
			// 本区间找不到，后面的区间更不可能
			break
		}
		if r.Flag&basic.EqRange != 0 {
			break
		}
		if r.Flag&basic.NullRange != 0 {
			// 记下 NULL 行，继续找其他区间里的非 NULL 值
			copy(q.tmpRecord, rec)
			foundNull = true
			continue
		}
		if !q.inGroup() {
			err = basic.HaErrKeyNotFound
			continue
		}
		if r.Flag&basic.NoMaxRange == 0 {
			c := keycodec.CompareToRecord(q.key.Parts, q.withArg(r.MaxKey), rec, q.maxUsedKeyLen)
			if c > 0 || (c == 0 && r.Flag&basic.NearMax != 0) {
				err = basic.HaErrKeyNotFound
				continue
			}
		}
		break
	}
	if foundNull && err != nil {
		copy(rec, q.tmpRecord)
		err = nil
	}
	return err
}

// nextMaxInRange 从右到左在参数列的区间里找组内最大值
func (q *GroupMinMaxSelect) nextMaxInRange() error {
	rec := q.h.Record()
	ranges := q.plan.MinMaxRanges
	for i := len(ranges) - 1; i >= 0; i-- {
		r := ranges[i]
		// 上一次读到的值已经小于本区间的起点
		if i != len(ranges)-1 && r.Flag&basic.NoMinRange == 0 &&
			keycodec.CompareToRecord(q.argPart, r.MinKey, rec, q.plan.MinMaxArgLen) < 0 {
			continue
		}

		var keypart basic.KeyPartMap
		var flag basic.FindFlag
		if r.Flag&basic.NoMaxRange != 0 {
			keypart = basic.MakePrevKeypartMap(q.realKeyParts)
			flag = basic.HaReadPrefixLast
		} else {
			copy(q.groupPrefix[q.realPrefixLen:], r.MaxKey[:r.MaxLength])
			keypart = basic.MakeKeypartMap(q.realKeyParts)
			switch {
			case r.Flag&basic.EqRange != 0:
				flag = basic.HaReadKeyExact
			case r.Flag&basic.NearMax != 0:
				flag = basic.HaReadBeforeKey
			default:
				flag = basic.HaReadPrefixLastOrPrev
			}
		}

		err := q.h.IndexReadMap(rec, q.groupPrefix, keypart, flag)
		if err != nil {
			if basic.IsEndOfScan(err) && r.Flag&basic.EqRange != 0 {
				continue
			}
			return err
		}
		if r.Flag&basic.EqRange != 0 {
			return nil
		}
		if !q.inGroup() {
			continue
		}
		if r.Flag&basic.NoMinRange == 0 {
			c := keycodec.CompareToRecord(q.key.Parts, q.withArg(r.MinKey), rec, q.maxUsedKeyLen)
			if c < 0 || (c == 0 && r.Flag&basic.NearMin != 0) {
				continue
			}
		}
		return nil
	}
	return basic.HaErrKeyNotFound
}

// Min 当前组的 MIN 值
func (q *GroupMinMaxSelect) Min() metadata.Datum { return q.minValue }

// Max 当前组的 MAX 值
func (q *GroupMinMaxSelect) Max() metadata.Datum { return q.maxValue }

func (q *GroupMinMaxSelect) Record() metadata.Record { return q.h.Record() }
func (q *GroupMinMaxSelect) Index() int { return q.plan.Index }
func (q *GroupMinMaxSelect) Sorted() bool { return true }

func (q *GroupMinMaxSelect) Close() error {
	q.h.SetKeyRead(false)
	if q.h.Inited() {
		return q.h.IndexEnd()
	}
	return nil
}

func (q *GroupMinMaxSelect) Describe() string {
	return "group min/max " + q.plan.String(q.h.Share())
}
