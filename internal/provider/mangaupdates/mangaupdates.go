package mangaupdates

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
	Name           = "mangaupdates"
	DefaultBaseURL = "https://www.mangaupdates.com"
)

// Provider 解析 MangaUpdates 的系列页（manga）。
type Provider struct {
	Client  *provider.Client
	BaseURL string
}

func (Provider) Name() string { return Name }

func (p Provider) baseURL() string {
	if s := strings.TrimRight(strings.TrimSpace(p.BaseURL), "/"); s != "" {
		return s
	}
	return DefaultBaseURL
}

// guard 同时接受新版 /series/<id>/<slug> 与旧版 series.html?id=<n>，但不接受搜索页。
func guard(base string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(base) + `/series(/|\.html\?id=).+`)
}

func (p Provider) Fetch(ctx context.Context, title, thumbnailTarget string) (domain.Fields, error) {
	base := p.baseURL()
	q := url.Values{"search": {title}}
	return provider.Site{
		Name:       Name,
		Client:     p.Client,
		SearchURL:  base + "/series.html?" + q.Encode(),
		Guard:      guard(base),
		Candidates: Candidates,
		Parse:      Parse,
	}.Fetch(ctx, title, thumbnailTarget)
}

func Candidates(doc *goquery.Document, pageURL string) []provider.Candidate {
	var out []provider.Candidate
	doc.Find(`a[alt="Series Info"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		out = append(out, provider.Candidate{
			Title: provider.NormSpace(s.Text()),
			URL:   provider.ResolveURL(pageURL, href),
		})
	})
	return out
}

var errStructure = errors.New("未找到 div.sCat 分类（页面结构变化或非系列页）")

// Parse 按 "div.sCat（分类名）+ 紧随其后的 div（内容）" 收集字段。
func Parse(doc *goquery.Document, pageURL string) (domain.Fields, string, error) {
	data := map[string]*goquery.Selection{}
	doc.Find("div.sCat").Each(func(_ int, s *goquery.Selection) {
		key, _, _ := strings.Cut(s.Text(), "\u00a0")
		key = provider.NormSpace(key)
		val := s.NextAllFiltered("div").First()
		if key == "" || val.Length() == 0 {
			return
		}
		if _, ok := data[key]; !ok {
			data[key] = val
		}
	})
	if len(data) == 0 {
		return nil, "", errStructure
	}

	b := provider.NewBuilder()

	if v, ok := data["Description"]; ok {
		desc := v
		if more := v.Find("#div_desc_more").First(); more.Length() > 0 {
			desc = more
		}
		desc = desc.Clone()
		desc.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
			return strings.Contains(a.Text(), "Less...") || strings.Contains(a.Text(), "More...")
		}).Remove()
		b.String(domain.FieldDescription, strings.TrimSpace(desc.Text()))
	}
	if v, ok := data["Type"]; ok {
		b.String(domain.FieldBookType, text(v))
	}
	if v, ok := data["Associated Names"]; ok {
		for _, name := range lines(v) {
			if provider.Accept(domain.FieldTitleJP, domain.String(name)) {
				b.String(domain.FieldTitleJP, name)
				break
			}
		}
	}

	// 最后一个链接是“按相同类型搜索”，不是分类本身。
	var tags []string
	if v, ok := data["Genre"]; ok {
		links := v.Find("a")
		links.Each(func(i int, a *goquery.Selection) {
			if i < links.Length()-1 {
				tags = append(tags, a.Text())
			}
		})
	}
	b.Tags(tags)

	if v, ok := data["Author(s)"]; ok {
		b.String(domain.FieldAuthor, strings.Join(lines(v), ", "))
	}
	if v, ok := data["Artist(s)"]; ok {
		b.String(domain.FieldArtist, strings.Join(lines(v), ", "))
	}
	if v, ok := data["Year"]; ok {
		b.String(domain.FieldYearStart, text(v))
	}
	if v, ok := data["Original Publisher"]; ok {
		b.String(domain.FieldPublisher, text(v))
	}
	if v, ok := data["Serialized In (magazine)"]; ok {
		b.String(domain.FieldMagazine, text(v))
	}
	if v, ok := data["Licensed (in English)"]; ok {
		switch strings.ToLower(text(v)) {
		case "yes":
			b.Bool(domain.FieldEnglishLicense, true)
		case "no":
			b.Bool(domain.FieldEnglishLicense, false)
		}
	}

	imgURL := ""
	if v, ok := data["Image"]; ok {
		if src, ok := v.Find("img").First().Attr("src"); ok {
			imgURL = provider.ResolveURL(pageURL, src)
		}
	}
	return b.Fields(), imgURL, nil
}

// text 返回单值分类的文本；站点用 "N/A" 表示缺失。
func text(s *goquery.Selection) string {
	t := provider.NormSpace(s.Text())
	if t == "N/A" {
		return ""
	}
	return t
}

// lines 按 <br> 拆分多值分类，去掉 "[Add]" 之类的编辑链接。
func lines(s *goquery.Selection) []string {
	s = s.Clone()
	s.Find("br").ReplaceWithHtml("\n")
	var out []string
	for _, l := range strings.Split(s.Text(), "\n") {
		l = provider.NormSpace(l)
		if l == "" || l == "N/A" || strings.HasPrefix(l, "[") {
			continue
		}
		out = append(out, l)
	}
	return provider.NormList(out)
}
