package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Kind 是 Value 的标签。零值 KindInvalid 表示“未赋值”，不会出现在合法的 Fields 里。
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindBool
	KindList
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindTime:
		return "time"
	default:
		return "invalid"
	}
}

// Value 是字段值的 tagged union：string | bool | []string | time.Time。
//
// 约束：
// - 只能通过 String/Bool/List/Time 构造
// - List 构造时会复制切片，Value 本身视为不可变
type Value struct {
	kind Kind
	s    string
	b    bool
	l    []string
	t    time.Time
}

func String(s string) Value { return Value{kind: KindString, s: s} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func List(xs ...string) Value {
	return Value{kind: KindList, l: append([]string{}, xs...)}
}

func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) List() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return append([]string{}, v.l...), true
}

func (v Value) Time() (time.Time, bool) { return v.t, v.kind == KindTime }

// IsEmpty 只把空字符串视为“空”：false、空列表、零时间都不算缺失。
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindInvalid:
		return true
	case KindString:
		return v.s == ""
	default:
		return false
	}
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindBool:
		return v.b == o.b
	case KindList:
		return slices.Equal(v.l, o.l)
	case KindTime:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

// Any 返回存储层使用的原生值（string / bool / []string / time.Time）。
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindBool:
		return v.b
	case KindList:
		return append([]string{}, v.l...)
	case KindTime:
		return v.t
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindList:
		return strings.Join(v.l, ", ")
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}
