package provider

import (
	"context"
	"errors"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/MMC/internal/domain"
)

// Site 描述“站内搜索 -> 选定详情页 -> 解析”的通用流程，各站点只提供选择器相关的部分。
type Site struct {
	Name   string
	Client *Client

	// SearchURL 是已拼好查询参数的搜索地址。
	SearchURL string
	// Guard 匹配详情页 URL；搜索直接跳转到详情页时不再挑选候选。
	Guard *regexp.Regexp

	Candidates func(doc *goquery.Document, pageURL string) []Candidate
	// Parse 必须是纯函数：返回字段与缩略图地址（可为空）。
	Parse func(doc *goquery.Document, pageURL string) (domain.Fields, string, error)
}

func (s Site) Fetch(ctx context.Context, title, thumbnailTarget string) (domain.Fields, error) {
	if s.Client == nil {
		return nil, &Error{Provider: s.Name, Stage: "search", Err: errors.New("client 不能为空")}
	}

	doc, final, err := s.Client.Document(ctx, s.Name, s.SearchURL)
	if err != nil {
		return nil, &Error{Provider: s.Name, Stage: "search", Err: err}
	}
	if s.Guard == nil || !s.Guard.MatchString(final) {
		cand, err := PickCandidate(title, s.Candidates(doc, final), s.Guard)
		if err != nil {
			return nil, &Error{Provider: s.Name, Stage: "search", Err: err}
		}
		doc, final, err = s.Client.Document(ctx, s.Name, cand.URL)
		if err != nil {
			return nil, &Error{Provider: s.Name, Stage: "fetch", Err: err}
		}
	}

	fields, imgURL, err := s.Parse(doc, final)
	if err != nil {
		return nil, &Error{Provider: s.Name, Stage: "parse", Err: err}
	}
	if err := fields.Validate(); err != nil {
		return nil, &Error{Provider: s.Name, Stage: "parse", Err: err}
	}

	if imgURL != "" {
		s.Client.Thumbnail(ctx, s.Name, imgURL, thumbnailTarget)
	}
	return fields, nil
}

// DetailGuard 生成“base 下某个路径前缀”的详情页匹配规则。
func DetailGuard(base, prefix string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(base+prefix) + ".+")
}
