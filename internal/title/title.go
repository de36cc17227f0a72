package title

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultReservedPrefix 标记目录根下的特殊/系统条目（例如 "$RECYCLE.BIN"）。
const DefaultReservedPrefix = "$"

// 缩略图文件名中不允许出现的字符（与历史缓存目录保持一致）。
var unsafeRE = regexp.MustCompile(`[?/\\:]`)

// Valid 判断目录名是否是合法的 title：非空且不以保留前缀开头。
// 以 "." 开头的目录也是 title；需要排除时把保留前缀配置为 "."。
func Valid(name, reservedPrefix string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	if reservedPrefix != "" && strings.HasPrefix(name, reservedPrefix) {
		return false
	}
	return true
}

// FileName 把 title 转为缩略图文件名：去掉 ? / \ : 后追加 .jpg。
func FileName(title string) string {
	return unsafeRE.ReplaceAllString(title, "") + ".jpg"
}

// Normalize 用于搜索结果比对：NFKC + case fold，去掉标点，合并空白。
//
// 例如 "Ｋｉｌｌ Bill: Vol. 1" 与 "kill bill vol 1" 规范化后相同。
func Normalize(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			space = true
		}
	}
	return b.String()
}
