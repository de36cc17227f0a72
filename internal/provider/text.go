package provider

import (
	"regexp"
	"slices"
	"strings"

	"github.com/John-Robertt/MMC/internal/domain"
)

func NormSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

// NormHeader 去掉分类标题末尾的冒号并合并空白（"Type:" -> "Type"）。
func NormHeader(s string) string {
	s = NormSpace(s)
	s = strings.TrimSuffix(s, ":")
	return strings.TrimSpace(s)
}

// NormList 去空白、去空串、去重（保持首次出现的顺序）。
func NormList(in []string) []string {
	m := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = NormSpace(s)
		if s == "" {
			continue
		}
		if _, ok := m[s]; ok {
			continue
		}
		m[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// SplitFirst 取逗号分隔列表中的第一项（"Sunrise, Bandai" -> "Sunrise"）。
func SplitFirst(s string) string {
	first, _, _ := strings.Cut(s, ",")
	return strings.TrimSpace(first)
}

var (
	yearMDY  = regexp.MustCompile(`[A-Za-z]+ [0-9]{1,2}, ([0-9]{4})`)
	yearMDY2 = regexp.MustCompile(`[A-Za-z]+ [0-9]{1,2} ([0-9]{4})`)
	yearDMY  = regexp.MustCompile(`[0-9]{1,2} [A-Za-z]+ ([0-9]{4})`)
	yearBare = regexp.MustCompile(`\b((?:19|20)[0-9]{2})\b`)
)

// ExtractYear 从日期文本中取出第一个年份。
//
// 依次尝试 "April 3, 1998"、"April 3 1998"、"3 April 1998"，最后退回到独立的四位年份。
func ExtractYear(text string) string {
	text = NormSpace(strings.ReplaceAll(text, "\u00a0", " "))
	for _, re := range []*regexp.Regexp{yearMDY, yearMDY2, yearDMY, yearBare} {
		if m := re.FindStringSubmatch(text); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

// HalveDoubled 处理页面把同一文本渲染两次的情况（"ActionAction" -> "Action"）。
func HalveDoubled(s string) string {
	n := len(s)
	if n == 0 || n%2 != 0 {
		return s
	}
	if s[:n/2] == s[n/2:] {
		return s[:n/2]
	}
	return s
}

// FirstOfRepeated 在 s 恰好由同一段文本重复 n 次组成时返回该段，否则原样返回。
func FirstOfRepeated(s string, n int) string {
	if n < 2 || len(s) == 0 || len(s)%n != 0 {
		return s
	}
	part := s[:len(s)/n]
	if strings.Repeat(part, n) == s {
		return part
	}
	return s
}

var (
	titleJPRE = regexp.MustCompile(`^[一-龠ぁ-ゔァ-ヴーａ-ｚＡ-Ｚ０-９々〆〤]`)
	tagRE     = regexp.MustCompile(`^[\w ,\-]+`)
)

// Accept 做字段级的格式检查：空串永远拒绝，title-jp 必须以日文字符开头，tags 每项以单词字符开头。
func Accept(f domain.Field, v domain.Value) bool {
	switch v.Kind() {
	case domain.KindString:
		s, _ := v.Str()
		if strings.TrimSpace(s) == "" {
			return false
		}
		if f == domain.FieldTitleJP {
			return titleJPRE.MatchString(s)
		}
		return true
	case domain.KindList:
		xs, _ := v.List()
		if len(xs) == 0 {
			return false
		}
		for _, x := range xs {
			if !tagRE.MatchString(x) {
				return false
			}
		}
		return true
	default:
		return v.Kind() == f.Kind()
	}
}

// NSFW 判断标签中是否含有成人向分类。
func NSFW(tags []string) bool {
	return slices.Contains(tags, "Hentai") || slices.Contains(tags, "Ecchi")
}

// Builder 收集 provider 输出：只保留通过 Accept 的值，同一字段先写者胜。
type Builder struct {
	fields domain.Fields
}

func NewBuilder() *Builder { return &Builder{fields: domain.Fields{}} }

func (b *Builder) Set(f domain.Field, v domain.Value) {
	if _, ok := b.fields[f]; ok {
		return
	}
	if !Accept(f, v) {
		return
	}
	b.fields[f] = v
}

func (b *Builder) String(f domain.Field, s string) { b.Set(f, domain.String(NormSpace(s))) }

func (b *Builder) List(f domain.Field, xs []string) { b.Set(f, domain.List(NormList(xs)...)) }

func (b *Builder) Bool(f domain.Field, v bool) { b.Set(f, domain.Bool(v)) }

// Tags 写入标签，并据此设置 nsfw。
func (b *Builder) Tags(xs []string) {
	tags := NormList(xs)
	b.List(domain.FieldTags, tags)
	b.Bool(domain.FieldNSFW, NSFW(tags))
}

func (b *Builder) Fields() domain.Fields { return b.fields.Clone() }
