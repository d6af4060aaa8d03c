package rangeopt

import (
	"strings"

	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/basic"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/keycodec"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
)

// QuickRange 索引上的一个扫描区间，端点是打包键的前缀
type QuickRange struct {
	MinKey        []byte
	MinLength     int
	MinKeypartMap basic.KeyPartMap
	MaxKey        []byte
	MaxLength     int
	MaxKeypartMap basic.KeyPartMap
	Flag          basic.RangeFlag
}

// MinEndpoint 区间起点
func (r *QuickRange) MinEndpoint() basic.KeyRange {
	kr := basic.KeyRange{Key: r.MinKey, Length: r.MinLength, Keypart: r.MinKeypartMap}
	switch {
	case r.Flag&basic.NearMin != 0:
		kr.Flag = basic.HaReadAfterKey
	case r.Flag&basic.EqRange != 0:
		kr.Flag = basic.HaReadKeyExact
	default:
		kr.Flag = basic.HaReadKeyOrNext
	}
	return kr
}

// MaxEndpoint 区间终点
func (r *QuickRange) MaxEndpoint() basic.KeyRange {
	kr := basic.KeyRange{Key: r.MaxKey, Length: r.MaxLength, Keypart: r.MaxKeypartMap}
	if r.Flag&basic.NearMax != 0 {
		kr.Flag = basic.HaReadBeforeKey
	} else {
		kr.Flag = basic.HaReadAfterKey
	}
	return kr
}

// MakeMinEndpoint 只保留前 prefixLength 字节和 keypart 中的键列
func (r *QuickRange) MakeMinEndpoint(prefixLength int, keypart basic.KeyPartMap) basic.KeyRange {
	kr := r.MinEndpoint()
	if prefixLength < kr.Length {
		kr.Length = prefixLength
	}
	kr.Keypart &= keypart
	return kr
}

// MakeMaxEndpoint 同 MakeMinEndpoint
func (r *QuickRange) MakeMaxEndpoint(prefixLength int, keypart basic.KeyPartMap) basic.KeyRange {
	kr := r.MaxEndpoint()
	if prefixLength < kr.Length {
		kr.Length = prefixLength
	}
	kr.Keypart &= keypart
	return kr
}

// tuple 打包键前缀里各键列的值
func tuple(parts []metadata.KeyPartInfo, key []byte, length int) (names, values []string) {
	pos, n := 0, keycodec.PartsForLength(parts, length)
	for i := 0; i < n; i++ {
		names = append(names, parts[i].Field.Name)
		values = append(values, keycodec.FormatPart(&parts[i], key[pos:]))
		pos += parts[i].StoreLength
	}
	return names, values
}

func wrap(items []string) string {
	if len(items) == 1 {
		return items[0]
	}
	return "(" + strings.Join(items, ",") + ")"
}

// String 区间的可读形式，如 "a = 1 AND b = 3" 或 "(1,3) <= (a,b) < (5,3)"
func (r *QuickRange) String(parts []metadata.KeyPartInfo) string {
	if r.Flag&basic.EqRange != 0 {
		names, values := tuple(parts, r.MinKey, r.MinLength)
		items := make([]string, len(names))
		for i := range names {
			if values[i] == "NULL" {
				items[i] = names[i] + " IS NULL"
			} else {
				items[i] = names[i] + " = " + values[i]
			}
		}
		return strings.Join(items, " AND ")
	}
	var sb strings.Builder
	var names []string
	if r.Flag&basic.NoMinRange == 0 {
		n, values := tuple(parts, r.MinKey, r.MinLength)
		names = n
		sb.WriteString(wrap(values))
		if r.Flag&basic.NearMin != 0 {
			sb.WriteString(" < ")
		} else {
			sb.WriteString(" <= ")
		}
	}
	var maxValues []string
	if r.Flag&basic.NoMaxRange == 0 {
		n, values := tuple(parts, r.MaxKey, r.MaxLength)
		if len(n) > len(names) {
			names = n
		}
		maxValues = values
	}
	if len(names) == 0 {
		names = []string{parts[0].Field.Name}
	}
	sb.WriteString(wrap(names))
	if r.Flag&basic.NoMaxRange == 0 {
		if r.Flag&basic.NearMax != 0 {
			sb.WriteString(" < ")
		} else {
			sb.WriteString(" <= ")
		}
		sb.WriteString(wrap(maxValues))
	}
	return sb.String()
}

// storeMin 写入区间起点值。前面键列的起点是开区间或无下界时不写，返回写入的键列数
func (a *SelArg) storeMin(buf []byte, pos *int, rangeFlag basic.RangeFlag) int {
	if a.MinFlag&basic.NoMinRange != 0 || rangeFlag&(basic.NoMinRange|basic.NearMin) != 0 {
		return 0
	}
	*pos += copy(buf[*pos:*pos+a.KeyPart.StoreLength], a.MinValue)
	return 1
}

func (a *SelArg) storeMax(buf []byte, pos *int, rangeFlag basic.RangeFlag) int {
	if a.MaxFlag&basic.NoMaxRange != 0 || rangeFlag&(basic.NoMaxRange|basic.NearMax) != 0 {
		return 0
	}
	*pos += copy(buf[*pos:*pos+a.KeyPart.StoreLength], a.MaxValue)
	return 1
}

func nextPartUsable(a *SelArg, lastPart int) bool {
	next := a.NextKeyPart
	return next != nil && next.Type == SelArgKeyRange && a.Part < lastPart && next.Part == a.Part+1
}

// storeMinKey 沿最左区间写入后续键列的起点
func (a *SelArg) storeMinKey(buf []byte, pos *int, flag *basic.RangeFlag, lastPart int) int {
	t := a.first()
	res := t.storeMin(buf, pos, *flag)
	*flag |= t.MinFlag
	if nextPartUsable(t, lastPart) && *flag&(basic.NoMinRange|basic.NearMin) == 0 {
		res += t.NextKeyPart.storeMinKey(buf, pos, flag, lastPart)
	}
	return res
}

func (a *SelArg) storeMaxKey(buf []byte, pos *int, flag *basic.RangeFlag, lastPart int) int {
	t := a.last()
	res := t.storeMax(buf, pos, *flag)
	*flag |= t.MaxFlag
	if nextPartUsable(t, lastPart) && *flag&(basic.NoMaxRange|basic.NearMax) == 0 {
		res += t.NextKeyPart.storeMaxKey(buf, pos, flag, lastPart)
	}
	return res
}

type rangeBuilder struct {
	key            *metadata.KeyInfo
	lastPart       int
	minKey, maxKey []byte
	ranges         []*QuickRange
	usedKeyParts   int
}

// nullPartInKey 键前缀中是否有 NULL 键列
func nullPartInKey(parts []metadata.KeyPartInfo, key []byte, length int) bool {
	pos := 0
	for i := range parts {
		if pos >= length {
			break
		}
		if parts[i].MaybeNull() && key[pos] != 0 {
			return true
		}
		pos += parts[i].StoreLength
	}
	return false
}

func (b *rangeBuilder) walk(t *SelArg, minPos int, minKeyFlag basic.RangeFlag, maxPos int, maxKeyFlag basic.RangeFlag) {
	if t.Left != nil {
		b.walk(t.Left, minPos, minKeyFlag, maxPos, maxKeyFlag)
	}
	b.emit(t, minPos, minKeyFlag, maxPos, maxKeyFlag)
	if t.Right != nil {
		b.walk(t.Right, minPos, minKeyFlag, maxPos, maxKeyFlag)
	}
}

func (b *rangeBuilder) emit(t *SelArg, minPos int, minKeyFlag basic.RangeFlag, maxPos int, maxKeyFlag basic.RangeFlag) {
	minPart, maxPart := t.Part-1, t.Part-1
	tmpMin, tmpMax := minPos, maxPos
	minPart += t.storeMin(b.minKey, &tmpMin, minKeyFlag)
	maxPart += t.storeMax(b.maxKey, &tmpMax, maxKeyFlag)

	var flag basic.RangeFlag
	if nextPartUsable(t, b.lastPart) {
		// 本键列是一个点：后续键列的每个区间都以它为前缀
		if tmpMin-minPos == tmpMax-maxPos && t.MinFlag == 0 && t.MaxFlag == 0 &&
			string(b.minKey[minPos:tmpMin]) == string(b.maxKey[maxPos:tmpMax]) {
			b.walk(t.NextKeyPart, tmpMin, minKeyFlag|t.MinFlag, tmpMax, maxKeyFlag|t.MaxFlag)
			return
		}
		tmpMinFlag, tmpMaxFlag := t.MinFlag, t.MaxFlag
		if tmpMinFlag == 0 {
			minPart += t.NextKeyPart.storeMinKey(b.minKey, &tmpMin, &tmpMinFlag, b.lastPart)
		}
		if tmpMaxFlag == 0 {
			maxPart += t.NextKeyPart.storeMaxKey(b.maxKey, &tmpMax, &tmpMaxFlag, b.lastPart)
		}
		flag = tmpMinFlag | tmpMaxFlag
	} else {
		flag = t.MinFlag | t.MaxFlag
	}

	// 一个字节都没写的一端视为无界
	if tmpMin != 0 {
		flag &^= basic.NoMinRange
	} else {
		flag |= basic.NoMinRange
	}
	if tmpMax != 0 {
		flag &^= basic.NoMaxRange
	} else {
		flag |= basic.NoMaxRange
	}
	if flag == 0 && tmpMin == tmpMax && string(b.minKey[:tmpMin]) == string(b.maxKey[:tmpMax]) {
		flag = basic.EqRange
		if b.key.Unique() && t.Part == len(b.key.Parts)-1 {
			if b.key.Flags&metadata.HaNullPartKey == 0 || !nullPartInKey(b.key.Parts, b.minKey, tmpMin) {
				flag |= basic.UniqueRange
			} else {
				flag |= basic.NullRange
			}
		}
	}

	r := &QuickRange{
		MinKey:    append([]byte(nil), b.minKey[:tmpMin]...),
		MinLength: tmpMin,
		MaxKey:    append([]byte(nil), b.maxKey[:tmpMax]...),
		MaxLength: tmpMax,
		Flag:      flag,
	}
	if minPart >= 0 {
		r.MinKeypartMap = basic.MakeKeypartMap(minPart)
	}
	if maxPart >= 0 {
		r.MaxKeypartMap = basic.MakeKeypartMap(maxPart)
	}
	if t.Part+1 > b.usedKeyParts {
		b.usedKeyParts = t.Part + 1
	}
	b.ranges = append(b.ranges, r)
}

// GetQuickKeys 把区间树展开为按索引顺序排列、互不相交的扫描区间。
// lastPart 之后的键列不参与，传负数表示不限；返回区间与用到的键列数
func GetQuickKeys(key *metadata.KeyInfo, tree *SelArg, lastPart int) ([]*QuickRange, int) {
	if tree == nil || tree.Type != SelArgKeyRange || tree.Part != 0 {
		return nil, 0
	}
	if lastPart < 0 || lastPart >= len(key.Parts) {
		lastPart = len(key.Parts) - 1
	}
	b := &rangeBuilder{
		key:      key,
		lastPart: lastPart,
		minKey:   make([]byte, key.KeyLength),
		maxKey:   make([]byte, key.KeyLength),
	}
	b.walk(tree, 0, 0, 0, 0)
	return b.ranges, b.usedKeyParts
}
