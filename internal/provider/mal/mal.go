package mal

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/MMC/internal/domain"
	"github.com/John-Robertt/MMC/internal/provider"
)

const (
	Name           = "mal"
	DefaultBaseURL = "https://myanimelist.net"
)

// licensorsNone 是 MAL 在没有授权方时显示的占位文本。
const licensorsNone = "None found, add some"

// Provider 实现 MyAnimeList 的搜索与详情页解析（video）。
type Provider struct {
	Client *provider.Client
	// BaseURL 为空时使用 DefaultBaseURL（测试中指向 httptest）。
	BaseURL string
}

func (Provider) Name() string { return Name }

func (p Provider) baseURL() string {
	if s := strings.TrimRight(strings.TrimSpace(p.BaseURL), "/"); s != "" {
		return s
	}
	return DefaultBaseURL
}

func (p Provider) Fetch(ctx context.Context, title, thumbnailTarget string) (domain.Fields, error) {
	base := p.baseURL()
	q := url.Values{"q": {title}, "cat": {"anime"}}
	return provider.Site{
		Name:       Name,
		Client:     p.Client,
		SearchURL:  base + "/anime.php?" + q.Encode(),
		Guard:      provider.DetailGuard(base, "/anime/"),
		Candidates: Candidates,
		Parse:      Parse,
	}.Fetch(ctx, title, thumbnailTarget)
}

// Candidates 提取搜索结果中的条目链接。
func Candidates(doc *goquery.Document, pageURL string) []provider.Candidate {
	var out []provider.Candidate
	doc.Find("a.hoverinfo_trigger.fw-b").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		out = append(out, provider.Candidate{
			Title: provider.NormSpace(s.Text()),
			URL:   provider.ResolveURL(pageURL, href),
		})
	})
	return out
}

var errStructure = errors.New("未找到 div.leftside（页面结构变化或非详情页）")

var writtenByRE = regexp.MustCompile(`\s*\[Written by [^\]]*\]\s*$`)

// Parse 解析 MAL 详情页。缺少 div.leftside 视为页面结构变化。
func Parse(doc *goquery.Document, pageURL string) (domain.Fields, string, error) {
	side := doc.Find("div.leftside").First()
	if side.Length() == 0 {
		return nil, "", errStructure
	}

	info := map[string]*goquery.Selection{}
	side.Find("div.spaceit_pad").Each(func(_ int, s *goquery.Selection) {
		key := provider.NormHeader(s.Find("span").First().Text())
		if key == "" {
			return
		}
		if _, ok := info[key]; !ok {
			info[key] = s
		}
	})

	b := provider.NewBuilder()

	if p := doc.Find(`p[itemprop="description"]`).First(); p.Length() > 0 {
		b.String(domain.FieldDescription, writtenByRE.ReplaceAllString(strings.TrimSpace(p.Text()), ""))
	}
	if s, ok := info["Type"]; ok {
		b.String(domain.FieldDataType, value(s))
	}
	if s, ok := info["Japanese"]; ok {
		b.String(domain.FieldTitleJP, value(s))
	}

	var tags []string
	for _, key := range []string{"Genres", "Genre"} {
		if s, ok := info[key]; ok {
			tags = genres(s)
			break
		}
	}
	b.Tags(tags)

	if s, ok := info["Studios"]; ok {
		b.String(domain.FieldStudio, provider.SplitFirst(value(s)))
	}
	if s, ok := info["Producers"]; ok {
		b.String(domain.FieldProducer, provider.SplitFirst(value(s)))
	}
	if s, ok := info["Aired"]; ok {
		b.String(domain.FieldYearStart, provider.ExtractYear(value(s)))
	}
	if s, ok := info["Licensors"]; ok {
		b.Bool(domain.FieldEnglishLicense, value(s) != licensorsNone)
	}

	imgURL := ""
	if img := side.Find("img").First(); img.Length() > 0 {
		src, _ := img.Attr("data-src")
		if strings.TrimSpace(src) == "" {
			src, _ = img.Attr("src")
		}
		imgURL = provider.ResolveURL(pageURL, src)
	}
	return b.Fields(), imgURL, nil
}

// value 返回 "<span>Key:</span> Value" 中 span 之后的文本。
func value(s *goquery.Selection) string {
	all := provider.NormSpace(s.Text())
	key := provider.NormSpace(s.Find("span").First().Text())
	return strings.TrimSpace(strings.TrimPrefix(all, key))
}

// genres 优先取链接文本；没有链接时按逗号拆分，并去掉 MAL 重复渲染的文本。
func genres(s *goquery.Selection) []string {
	var out []string
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		out = append(out, a.Text())
	})
	if len(out) > 0 {
		return provider.NormList(out)
	}
	for _, g := range strings.Split(value(s), ",") {
		out = append(out, provider.HalveDoubled(strings.ReplaceAll(g, " ", "")))
	}
	return provider.NormList(out)
}
