package keycodec

import (
	"bytes"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/metadata"
	"github.com/zhukovaskychina/xmysql-optimizer/util"
)

// 打包键的格式，按键列顺序拼接：
//
//	[null 字节，可空列才有][2 字节长度，变长列才有][值]
//
// 每列恰好占 StoreLength 字节，前缀读取可以直接按长度截断。

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// valueLength 键列去掉 null 字节后的长度
func valueLength(kp *metadata.KeyPartInfo) int {
	if kp.MaybeNull() {
		return kp.StoreLength - 1
	}
	return kp.StoreLength
}

// varPrefix 变长列在键里能放下的数据，不截断多字节字符
func varPrefix(kp *metadata.KeyPartInfo, data []byte) []byte {
	if len(data) > kp.Length {
		data = data[:kp.Collation.WellFormedPrefix(data, kp.Length)]
	}
	return data
}

// fixedPrefix CHAR 前缀索引按字符边界截断
func fixedPrefix(kp *metadata.KeyPartInfo, rec metadata.Record) []byte {
	img := rec[kp.Offset : kp.Offset+kp.Length]
	if kp.IsPrefix() && kp.Collation != nil {
		img = img[:kp.Collation.WellFormedPrefix(img, kp.Length)]
	}
	return img
}

// writeValue 写入一个键列的值映像，dst 至少 valueLength 字节
func writeValue(dst []byte, rec metadata.Record, kp *metadata.KeyPartInfo) {
	n := valueLength(kp)
	if kp.IsVarLength() {
		data := varPrefix(kp, kp.Field.VarBytes(rec))
		util.WriteUB2At(dst, uint16(len(data)))
		copy(dst[metadata.HaKeyBlobLength:], data)
		util.Fill(dst[metadata.HaKeyBlobLength+len(data):n], ' ')
		return
	}
	img := fixedPrefix(kp, rec)
	copy(dst, img)
	util.Fill(dst[len(img):n], ' ')
}

// StorePart 把一个键列写成 StoreLength 字节的映像
func StorePart(dst []byte, rec metadata.Record, kp *metadata.KeyPartInfo) {
	if kp.MaybeNull() {
		if kp.Field.IsNull(rec) {
			dst[0] = 1
			util.Fill(dst[1:kp.StoreLength], 0)
			return
		}
		dst[0] = 0
		dst = dst[1:]
	}
	writeValue(dst, rec, kp)
}

// Copy 把记录的键列打包进 key，keyLength 为 0 时打包整个索引，返回写入字节数
func Copy(key []byte, rec metadata.Record, info *metadata.KeyInfo, keyLength int) int {
	if keyLength == 0 {
		keyLength = info.KeyLength
	}
	var scratch [256]byte
	pos := 0
	for i := range info.Parts {
		if keyLength <= 0 {
			break
		}
		kp := &info.Parts[i]
		n := minInt(keyLength, kp.StoreLength)
		if n == kp.StoreLength {
			StorePart(key[pos:], rec, kp)
		} else {
			var buf []byte
			if kp.StoreLength > len(scratch) {
				buf = make([]byte, kp.StoreLength)
			} else {
				buf = scratch[:kp.StoreLength]
			}
			StorePart(buf, rec, kp)
			copy(key[pos:pos+n], buf)
		}
		pos += n
		keyLength -= n
	}
	return pos
}

// Restore Copy 的逆操作，keyLength 小于整键长度时只还原前面的列
func Restore(rec metadata.Record, key []byte, info *metadata.KeyInfo, keyLength int) {
	if keyLength == 0 {
		keyLength = info.KeyLength
	}
	pos := 0
	for i := range info.Parts {
		if keyLength <= 0 {
			break
		}
		kp := &info.Parts[i]
		if kp.MaybeNull() {
			null := key[pos] != 0
			kp.Field.SetNull(rec, null)
			pos++
			keyLength--
			if null {
				skip := minInt(keyLength, kp.StoreLength-1)
				pos += skip
				keyLength -= skip
				continue
			}
		}
		n := minInt(keyLength, valueLength(kp))
		if kp.IsVarLength() {
			if n >= metadata.HaKeyBlobLength {
				l := int(util.ReadUB2(key[pos:]))
				l = minInt(l, n-metadata.HaKeyBlobLength)
				kp.Field.SetVarBytes(rec, key[pos+metadata.HaKeyBlobLength:pos+metadata.HaKeyBlobLength+l])
			}
		} else {
			dst := rec[kp.Offset : kp.Offset+kp.Field.PackLength]
			copy(dst, key[pos:pos+n])
			if kp.Field.IsString() {
				util.Fill(dst[n:], ' ')
			}
		}
		pos += n
		keyLength -= n
	}
}

// ComparePart 比较同一键列的两个值映像，映像不含 null 字节
func ComparePart(kp *metadata.KeyPartInfo, a, b []byte) int {
	if kp.IsVarLength() {
		la := int(util.ReadUB2(a))
		lb := int(util.ReadUB2(b))
		return kp.Collation.Compare(a[metadata.HaKeyBlobLength:metadata.HaKeyBlobLength+la],
			b[metadata.HaKeyBlobLength:metadata.HaKeyBlobLength+lb])
	}
	if kp.Field.IsString() {
		return kp.Collation.Compare(a[:kp.Length], b[:kp.Length])
	}
	return kp.Field.Compare(a, b)
}

// Compare 三路比较两个打包键的前 keyLength 字节，NULL 小于任何非 NULL 值
func Compare(parts []metadata.KeyPartInfo, a, b []byte, keyLength int) int {
	pos := 0
	for i := range parts {
		if pos >= keyLength {
			break
		}
		kp := &parts[i]
		if kp.MaybeNull() {
			if a[pos] != b[pos] {
				if a[pos] != 0 {
					return -1
				}
				return 1
			}
			if a[pos] != 0 {
				pos += kp.StoreLength
				continue
			}
			pos++
		}
		if c := ComparePart(kp, a[pos:], b[pos:]); c != 0 {
			return c
		}
		pos += valueLength(kp)
	}
	return 0
}

// comparePartToRecord 记录中的列值与键映像比较，返回 sign(record - key)
func comparePartToRecord(kp *metadata.KeyPartInfo, rec metadata.Record, img []byte) int {
	if kp.IsVarLength() {
		l := int(util.ReadUB2(img))
		data := varPrefix(kp, kp.Field.VarBytes(rec))
		return kp.Collation.Compare(data, img[metadata.HaKeyBlobLength:metadata.HaKeyBlobLength+l])
	}
	if kp.Field.IsString() {
		return kp.Collation.Compare(fixedPrefix(kp, rec), img[:kp.Length])
	}
	return kp.Field.Compare(rec[kp.Offset:kp.Offset+kp.Length], img)
}

// CompareToRecord 比较记录与打包键的前 keyLength 字节，返回 sign(record - key)
func CompareToRecord(parts []metadata.KeyPartInfo, key []byte, rec metadata.Record, keyLength int) int {
	pos := 0
	for i := range parts {
		if pos >= keyLength {
			break
		}
		kp := &parts[i]
		if kp.MaybeNull() {
			recNull := kp.Field.IsNull(rec)
			if key[pos] != 0 {
				if !recNull {
					return 1
				}
				pos += kp.StoreLength
				continue
			}
			if recNull {
				return -1
			}
			pos++
		}
		if c := comparePartToRecord(kp, rec, key[pos:]); c != 0 {
			return c
		}
		pos += valueLength(kp)
	}
	return 0
}

// Changed 判断记录当前的键列是否与先前取得的 key 不同
// 定长数值列直接按字节比较，字符列和变长列才走排序规则
func Changed(rec metadata.Record, key []byte, info *metadata.KeyInfo, keyLength int) bool {
	if keyLength == 0 {
		keyLength = info.KeyLength
	}
	pos := 0
	for i := range info.Parts {
		if pos >= keyLength {
			break
		}
		kp := &info.Parts[i]
		if kp.MaybeNull() {
			recNull := kp.Field.IsNull(rec)
			if (key[pos] != 0) != recNull {
				return true
			}
			if recNull {
				pos += kp.StoreLength
				continue
			}
			pos++
		}
		n := minInt(keyLength-pos, valueLength(kp))
		switch {
		case kp.IsVarLength() || kp.Field.IsString():
			if comparePartToRecord(kp, rec, key[pos:]) != 0 {
				return true
			}
		default:
			if !bytes.Equal(key[pos:pos+n], rec[kp.Offset:kp.Offset+n]) {
				return true
			}
		}
		pos += valueLength(kp)
	}
	return false
}

// IsKeyUsed 判断列集合 fields 是否与索引 idx 的键列相交；
// 聚簇主键表的二级索引隐含主键列，pkInIndex 为 true 时一并检查
func IsKeyUsed(share *metadata.TableShare, idx int, fields *roaring.Bitmap, pkInIndex bool) bool {
	for _, kp := range share.Keys[idx].Parts {
		if fields.Contains(uint32(kp.FieldNr)) {
			return true
		}
	}
	if pkInIndex && share.PrimaryKey >= 0 && idx != share.PrimaryKey {
		return IsKeyUsed(share, share.PrimaryKey, fields, false)
	}
	return false
}

// DecodePart 把一个键列的值映像解码为值，映像不含 null 字节
func DecodePart(kp *metadata.KeyPartInfo, img []byte) metadata.Datum {
	if kp.IsVarLength() {
		l := int(util.ReadUB2(img))
		return metadata.NewBytesDatum(append([]byte(nil), img[metadata.HaKeyBlobLength:metadata.HaKeyBlobLength+l]...))
	}
	if kp.Field.IsString() {
		return metadata.NewBytesDatum(bytes.TrimRight(append([]byte(nil), img[:kp.Length]...), " "))
	}
	return kp.Field.DecodeImage(img)
}

// FormatPart 键列映像的可读形式，img 含 null 字节（若有）
func FormatPart(kp *metadata.KeyPartInfo, img []byte) string {
	if kp.MaybeNull() {
		if img[0] != 0 {
			return "NULL"
		}
		img = img[1:]
	}
	d := DecodePart(kp, img)
	if d.Kind() == metadata.KindBytes {
		return string(d.GetBytes())
	}
	return d.String()
}

// Unpack 把打包键转成 "v1-v2" 形式的字符串，用于日志和错误信息
func Unpack(parts []metadata.KeyPartInfo, key []byte, keyLength int) string {
	var items []string
	pos := 0
	for i := range parts {
		if pos+parts[i].StoreLength > keyLength {
			break
		}
		items = append(items, FormatPart(&parts[i], key[pos:]))
		pos += parts[i].StoreLength
	}
	return strings.Join(items, "-")
}

// KeyPartMapLength 连续键列位图对应的键长度
func KeyPartMapLength(info *metadata.KeyInfo, keypartMap uint64) int {
	l := 0
	for i := range info.Parts {
		if keypartMap&(1<<uint(i)) == 0 {
			break
		}
		l += info.Parts[i].StoreLength
	}
	return l
}

// PartsForLength 键长度覆盖的完整键列数
func PartsForLength(parts []metadata.KeyPartInfo, keyLength int) int {
	n, l := 0, 0
	for i := range parts {
		l += parts[i].StoreLength
		if l > keyLength {
			break
		}
		n++
	}
	return n
}
