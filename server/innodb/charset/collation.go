package charset

import (
	"bytes"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/piex/transcode"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collation 字符集比较规则，键比较与存储层排序共用同一个实例
type Collation interface {
	Name() string
	// Compare 三路比较两个字符串值
	Compare(a, b []byte) int
	// PadSpace 为 true 时尾部空格不参与比较
	PadSpace() bool
	// MbMaxLen 单个字符最多占用的字节数
	MbMaxLen() int
	// WellFormedPrefix 返回不超过 maxBytes 且不截断字符的最长前缀字节数
	WellFormedPrefix(b []byte, maxBytes int) int
}

const (
	BinaryName   = "binary"
	Latin1CIName = "latin1_general_ci"
	Utf8mb4Name  = "utf8mb4_0900_ai_ci"
	GBKName      = "gbk_chinese_ci"
)

var (
	Binary  Collation = binaryCollation{}
	Latin1  Collation = latin1Collation{}
	Utf8mb4 Collation = newUnicodeCollation()
	GBK     Collation = gbkCollation{}
)

var registry = map[string]Collation{
	BinaryName:   Binary,
	Latin1CIName: Latin1,
	Utf8mb4Name:  Utf8mb4,
	GBKName:      GBK,
}

// Lookup 按名称查找比较规则
func Lookup(name string) (Collation, bool) {
	c, ok := registry[strings.ToLower(name)]
	return c, ok
}

func sign(c int) int {
	switch {
	case c < 0:
		return -1
	case c > 0:
		return 1
	}
	return 0
}

func trimTrailingSpaces(b []byte) []byte {
	return bytes.TrimRight(b, " ")
}

type binaryCollation struct{}

func (binaryCollation) Name() string            { return BinaryName }
func (binaryCollation) Compare(a, b []byte) int { return bytes.Compare(a, b) }
func (binaryCollation) PadSpace() bool          { return false }
func (binaryCollation) MbMaxLen() int           { return 1 }
func (binaryCollation) WellFormedPrefix(b []byte, maxBytes int) int {
	if maxBytes > len(b) {
		return len(b)
	}
	return maxBytes
}

// latin1Collation 单字节，大小写不敏感
type latin1Collation struct{}

func latin1Fold(c byte) byte {
	switch {
	case c >= 'a' && c <= 'z':
		return c - 'a' + 'A'
	case c >= 0xe0 && c <= 0xfe && c != 0xf7:
		return c - 0x20
	}
	return c
}

func (latin1Collation) Name() string   { return Latin1CIName }
func (latin1Collation) PadSpace() bool { return true }
func (latin1Collation) MbMaxLen() int  { return 1 }

func (latin1Collation) Compare(a, b []byte) int {
	a, b = trimTrailingSpaces(a), trimTrailingSpaces(b)
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ca, cb := latin1Fold(a[i]), latin1Fold(b[i])
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	return sign(len(a) - len(b))
}

func (latin1Collation) WellFormedPrefix(b []byte, maxBytes int) int {
	if maxBytes > len(b) {
		return len(b)
	}
	return maxBytes
}

// unicodeCollation 基于 x/text 的 UCA 比较，忽略大小写与重音，NO PAD
type unicodeCollation struct {
	pool sync.Pool
}

func newUnicodeCollation() *unicodeCollation {
	c := &unicodeCollation{}
	c.pool.New = func() interface{} {
		return collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics, collate.IgnoreWidth)
	}
	return c
}

func (c *unicodeCollation) Name() string   { return Utf8mb4Name }
func (c *unicodeCollation) PadSpace() bool { return false }
func (c *unicodeCollation) MbMaxLen() int  { return 4 }

func (c *unicodeCollation) Compare(a, b []byte) int {
	col := c.pool.Get().(*collate.Collator)
	defer c.pool.Put(col)
	return col.Compare(a, b)
}

func (c *unicodeCollation) WellFormedPrefix(b []byte, maxBytes int) int {
	if maxBytes > len(b) {
		maxBytes = len(b)
	}
	n := 0
	for n < maxBytes {
		_, size := utf8.DecodeRune(b[n:])
		if n+size > maxBytes {
			break
		}
		n += size
	}
	return n
}

// gbkCollation 先按 GBK 解码，再以大写形式逐字符比较，PAD SPACE
type gbkCollation struct{}

func (gbkCollation) Name() string   { return GBKName }
func (gbkCollation) PadSpace() bool { return true }
func (gbkCollation) MbMaxLen() int  { return 2 }

func decodeGBK(b []byte) string {
	if isASCII(b) {
		return string(b)
	}
	return transcode.FromByteArray(b).Decode("GBK").ToString()
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

func (gbkCollation) Compare(a, b []byte) int {
	sa := strings.ToUpper(decodeGBK(trimTrailingSpaces(a)))
	sb := strings.ToUpper(decodeGBK(trimTrailingSpaces(b)))
	return strings.Compare(sa, sb)
}

// WellFormedPrefix GBK 首字节 0x81-0xFE 表示双字节字符
func (gbkCollation) WellFormedPrefix(b []byte, maxBytes int) int {
	if maxBytes > len(b) {
		maxBytes = len(b)
	}
	n := 0
	for n < maxBytes {
		size := 1
		if b[n] >= 0x81 && b[n] <= 0xfe {
			size = 2
		}
		if n+size > maxBytes {
			break
		}
		n += size
	}
	return n
}
