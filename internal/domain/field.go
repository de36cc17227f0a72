package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Field 是可识别的字段名（闭集合）。未知字段在 provider 边界会被视为契约错误。
type Field string

const (
	FieldDescription    Field = "description"
	FieldTags           Field = "tags"
	FieldStudio         Field = "studio"
	FieldYearStart      Field = "yearstart"
	FieldDirector       Field = "director"
	FieldProducer       Field = "producer"
	FieldDataType       Field = "datatype"
	FieldBookType       Field = "booktype"
	FieldTitleJP        Field = "title-jp"
	FieldNSFW           Field = "nsfw"
	FieldEnglishLicense Field = "englishlicense"
	FieldAuthor         Field = "author"
	FieldArtist         Field = "artist"
	FieldPublisher      Field = "publisher"
	FieldMagazine       Field = "magazine"

	// FieldTitle 与 FieldDateAdded 由引擎直接维护，不经过 merge。
	FieldTitle     Field = "title"
	FieldDateAdded Field = "dateAdded"
)

var fieldKinds = map[Field]Kind{
	FieldDescription:    KindString,
	FieldTags:           KindList,
	FieldStudio:         KindString,
	FieldYearStart:      KindString,
	FieldDirector:       KindString,
	FieldProducer:       KindString,
	FieldDataType:       KindString,
	FieldBookType:       KindString,
	FieldTitleJP:        KindString,
	FieldNSFW:           KindBool,
	FieldEnglishLicense: KindBool,
	FieldAuthor:         KindString,
	FieldArtist:         KindString,
	FieldPublisher:      KindString,
	FieldMagazine:       KindString,
	FieldTitle:          KindString,
	FieldDateAdded:      KindTime,
}

// Kind 返回字段声明的值类型；未知字段返回 KindInvalid。
func (f Field) Kind() Kind { return fieldKinds[f] }

func (f Field) Known() bool {
	_, ok := fieldKinds[f]
	return ok
}

// Reserved 表示该字段只能由引擎写入（provider 不得返回）。
func (f Field) Reserved() bool {
	return f == FieldTitle || f == FieldDateAdded
}

// ParseField 解析配置中的字段名（大小写与首尾空白不敏感，dateAdded 按原样匹配）。
func ParseField(s string) (Field, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("字段名不能为空")
	}
	if f := Field(s); f.Known() {
		return f, nil
	}
	low := strings.ToLower(s)
	for f := range fieldKinds {
		if strings.ToLower(string(f)) == low {
			return f, nil
		}
	}
	return "", fmt.Errorf("未知字段：%q", s)
}

// ParseFields 解析逗号分隔的字段列表，保持顺序并去重。
func ParseFields(raw string) ([]Field, error) {
	out := make([]Field, 0, 8)
	seen := make(map[Field]bool, 8)
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseField(part)
		if err != nil {
			return nil, err
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out, nil
}

// KnownFields 返回所有可识别字段（排序后）。
func KnownFields() []Field {
	out := make([]Field, 0, len(fieldKinds))
	for f := range fieldKinds {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ContractError 表示 provider 返回了未知字段、保留字段或类型不符的值。
type ContractError struct {
	Field Field
	Want  Kind
	Got   Kind
}

func (e *ContractError) Error() string {
	switch {
	case !e.Field.Known():
		return fmt.Sprintf("未知字段 %q", e.Field)
	case e.Field.Reserved():
		return fmt.Sprintf("保留字段 %q 不允许由 provider 写入", e.Field)
	default:
		return fmt.Sprintf("字段 %q 类型不符：期望 %s，实际 %s", e.Field, e.Want, e.Got)
	}
}
