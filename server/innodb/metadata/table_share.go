package metadata

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/zhukovaskychina/xmysql-optimizer/server/innodb/charset"
)

// 键列标志
const (
	HaPartKeySeg    uint16 = 4
	HaVarLengthPart uint16 = 8
	HaBlobPart      uint16 = 32
	HaNullPart      uint16 = 64
)

// 索引标志
const (
	HaNoSame      uint32 = 1
	HaNullPartKey uint32 = 64
)

// MaxKeyParts 单个索引允许的最大列数
const MaxKeyParts = 16

// HaKeyBlobLength 键中变长列的长度前缀字节数
const HaKeyBlobLength = 2

// Record 一行记录的缓冲区：空值位图之后是各列的定长槽位
type Record []byte

func (r Record) Clone() Record {
	return append(Record(nil), r...)
}

// KeyPartInfo 索引中的一列，加载后只读
type KeyPartInfo struct {
	Field       *Field
	FieldNr     int
	Offset      int
	Length      int
	StoreLength int
	NullBit     byte
	NullOffset  int
	KeyPartFlag uint16
	Collation   charset.Collation
}

func (kp *KeyPartInfo) MaybeNull() bool { return kp.NullBit != 0 }

func (kp *KeyPartInfo) IsVarLength() bool {
	return kp.KeyPartFlag&(HaVarLengthPart|HaBlobPart) != 0
}

// IsPrefix 是否只索引了列的前缀
func (kp *KeyPartInfo) IsPrefix() bool { return kp.KeyPartFlag&HaPartKeySeg != 0 }

// KeyInfo 索引定义
type KeyInfo struct {
	Name      string
	Nr        int
	Parts     []KeyPartInfo
	KeyLength int
	Flags     uint32
	Primary   bool
}

func (k *KeyInfo) Unique() bool { return k.Flags&HaNoSame != 0 }

// PrefixLength 前 n 个键列的存储长度之和
func (k *KeyInfo) PrefixLength(n int) int {
	l := 0
	for i := 0; i < n && i < len(k.Parts); i++ {
		l += k.Parts[i].StoreLength
	}
	return l
}

// IndexPartDef 索引列定义，Length 为前缀字节数，0 表示整列
type IndexPartDef struct {
	Column string
	Length int
}

// IndexDef 索引定义
type IndexDef struct {
	Name    string
	Unique  bool
	Primary bool
	Parts   []IndexPartDef
}

// TableShare 表结构：列布局与全部索引
type TableShare struct {
	Name       string
	Fields     []*Field
	Keys       []*KeyInfo
	RecLength  int
	NullBytes  int
	PrimaryKey int

	fieldByName map[string]*Field
}

// NewTableShare 根据列定义计算记录布局
func NewTableShare(name string, cols ...ColumnDef) (*TableShare, error) {
	if len(cols) == 0 {
		return nil, errors.Errorf("table %s: no columns", name)
	}
	s := &TableShare{Name: name, PrimaryKey: -1, fieldByName: make(map[string]*Field)}

	nullable := 0
	for _, c := range cols {
		if c.Nullable {
			nullable++
		}
	}
	s.NullBytes = (nullable + 7) / 8

	offset, nullIdx := s.NullBytes, 0
	for i, c := range cols {
		f, err := newField(c, i)
		if err != nil {
			return nil, errors.Wrapf(err, "table %s", name)
		}
		key := strings.ToLower(c.Name)
		if _, dup := s.fieldByName[key]; dup {
			return nil, errors.Errorf("table %s: duplicate column %s", name, c.Name)
		}
		if c.Nullable {
			f.NullOffset = nullIdx / 8
			f.NullBit = 1 << uint(nullIdx%8)
			nullIdx++
		}
		f.Offset = offset
		offset += f.PackLength
		s.Fields = append(s.Fields, f)
		s.fieldByName[key] = f
	}
	s.RecLength = offset
	return s, nil
}

func newField(c ColumnDef, nr int) (*Field, error) {
	f := &Field{
		Name:      c.Name,
		Nr:        nr,
		Type:      c.Type,
		Unsigned:  c.Unsigned,
		Nullable:  c.Nullable,
		Precision: c.Precision,
		Scale:     c.Scale,
		Collation: c.Collation,
	}
	switch c.Type {
	case TypeTinyInt, TypeSmallInt, TypeMediumInt, TypeInt, TypeBigInt:
		f.PackLength = intPackLength(c.Type)
	case TypeDouble:
		f.PackLength = 8
	case TypeDecimal:
		if c.Precision <= 0 || c.Precision > maxDecimalPrecision || c.Scale < 0 || c.Scale > c.Precision {
			return nil, errors.Errorf("column %s: bad decimal(%d,%d)", c.Name, c.Precision, c.Scale)
		}
		f.PackLength = 8
	case TypeChar, TypeVarchar, TypeBlob:
		if c.Length <= 0 {
			return nil, errors.Errorf("column %s: length must be positive for type %s", c.Name, c.Type)
		}
		if f.Collation == nil {
			f.Collation = charset.Binary
		}
		switch c.Type {
		case TypeChar:
			if c.Length > 255 {
				return nil, errors.Errorf("column %s: char length %d too large", c.Name, c.Length)
			}
		case TypeVarchar:
			f.LengthBytes = 1
			if c.Length > 255 {
				f.LengthBytes = 2
			}
		case TypeBlob:
			f.LengthBytes = HaKeyBlobLength
		}
		if c.Length > 65535 {
			return nil, errors.Errorf("column %s: length %d too large", c.Name, c.Length)
		}
		f.PackLength = f.LengthBytes + c.Length
	default:
		return nil, errors.Errorf("column %s: unsupported type %s", c.Name, c.Type)
	}
	if !f.IsString() {
		f.Length = f.PackLength
	} else {
		f.Length = c.Length
	}
	return f, nil
}

// Field 按名称查找列，不存在时返回 nil
func (s *TableShare) Field(name string) *Field {
	return s.fieldByName[strings.ToLower(name)]
}

// AddIndex 追加一个索引；主键只能有一个且各列不能为空
func (s *TableShare) AddIndex(def IndexDef) (*KeyInfo, error) {
	if len(def.Parts) == 0 || len(def.Parts) > MaxKeyParts {
		return nil, errors.Errorf("index %s: %d key parts", def.Name, len(def.Parts))
	}
	if def.Primary && s.PrimaryKey >= 0 {
		return nil, errors.Errorf("index %s: table %s already has a primary key", def.Name, s.Name)
	}
	k := &KeyInfo{Name: def.Name, Nr: len(s.Keys), Primary: def.Primary}
	if def.Unique || def.Primary {
		k.Flags |= HaNoSame
	}
	for _, pd := range def.Parts {
		f := s.Field(pd.Column)
		if f == nil {
			return nil, errors.Errorf("index %s: unknown column %s", def.Name, pd.Column)
		}
		if def.Primary && f.Nullable {
			return nil, errors.Errorf("index %s: primary key column %s is nullable", def.Name, f.Name)
		}
		kp := KeyPartInfo{
			Field:      f,
			FieldNr:    f.Nr,
			Offset:     f.Offset,
			Length:     f.KeyLength(),
			NullBit:    f.NullBit,
			NullOffset: f.NullOffset,
			Collation:  f.Collation,
		}
		if pd.Length > 0 && pd.Length < f.KeyLength() {
			if !f.IsString() {
				return nil, errors.Errorf("index %s: prefix on non-string column %s", def.Name, f.Name)
			}
			kp.Length = pd.Length
			kp.KeyPartFlag |= HaPartKeySeg
		}
		kp.StoreLength = kp.Length
		if f.Nullable {
			kp.KeyPartFlag |= HaNullPart
			kp.StoreLength++
			k.Flags |= HaNullPartKey
		}
		if f.IsVarLength() {
			if f.IsBlob() {
				kp.KeyPartFlag |= HaBlobPart
			} else {
				kp.KeyPartFlag |= HaVarLengthPart
			}
			kp.StoreLength += HaKeyBlobLength
		}
		k.Parts = append(k.Parts, kp)
		k.KeyLength += kp.StoreLength
	}
	if def.Primary {
		s.PrimaryKey = k.Nr
	}
	s.Keys = append(s.Keys, k)
	return k, nil
}

// NewRecord 分配一条空记录
func (s *TableShare) NewRecord() Record {
	return make(Record, s.RecLength)
}

// MakeRecord 按列顺序写入各值，截断不算错误
func (s *TableShare) MakeRecord(vals ...Datum) (Record, error) {
	if len(vals) != len(s.Fields) {
		return nil, errors.Errorf("table %s: %d values for %d columns", s.Name, len(vals), len(s.Fields))
	}
	rec := s.NewRecord()
	for i, v := range vals {
		if st := s.Fields[i].Store(rec, v); st == StoreNullRejected {
			return nil, errors.Errorf("table %s: column %s cannot be null", s.Name, s.Fields[i].Name)
		}
	}
	return rec, nil
}
