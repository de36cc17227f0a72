package wikipedia

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/MMC/internal/domain"
	"github.com/John-Robertt/MMC/internal/provider"
)

const (
	Name           = "wikipedia"
	DefaultBaseURL = "https://en.wikipedia.org"
)

// Provider 读取英文维基百科条目的 infobox（video）。不提供缩略图。
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

// Fetch 使用 "go" 搜索：标题完全命中时站点直接跳转到条目页。
func (p Provider) Fetch(ctx context.Context, title, thumbnailTarget string) (domain.Fields, error) {
	base := p.baseURL()
	q := url.Values{"search": {title}, "title": {"Special:Search"}, "go": {"Go"}, "ns0": {"1"}}
	return provider.Site{
		Name:       Name,
		Client:     p.Client,
		SearchURL:  base + "/w/index.php?" + q.Encode(),
		Guard:      provider.DetailGuard(base, "/wiki/"),
		Candidates: Candidates,
		Parse:      Parse,
	}.Fetch(ctx, title, thumbnailTarget)
}

var disambigRE = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// Candidates 提取全文搜索结果；"Akira (1988 film)" 这类消歧后缀不参与标题比对。
func Candidates(doc *goquery.Document, pageURL string) []provider.Candidate {
	var out []provider.Candidate
	doc.Find("div.mw-search-result-heading a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		name, ok := s.Attr("title")
		if !ok || strings.TrimSpace(name) == "" {
			name = s.Text()
		}
		out = append(out, provider.Candidate{
			Title: disambigRE.ReplaceAllString(provider.NormSpace(name), ""),
			URL:   provider.ResolveURL(pageURL, href),
		})
	})
	return out
}

var footnoteRE = regexp.MustCompile(`\[[0-9]+\]$`)

// Parse 解析条目页的 infobox。没有 infobox（例如消歧义页）时返回空字段。
func Parse(doc *goquery.Document, pageURL string) (domain.Fields, string, error) {
	box := doc.Find("table.infobox").First()
	b := provider.NewBuilder()
	if box.Length() == 0 {
		return b.Fields(), "", nil
	}

	data := map[string]string{}
	box.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		th := tr.Find("th").First()
		td := tr.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		key := strings.ToLower(strings.NewReplacer(" ", "", "\n", "", "\u00a0", "").Replace(strings.TrimSpace(th.Text())))
		data[key] = footnoteRE.ReplaceAllString(strings.TrimSpace(cellText(td)), "")
	})

	if v, ok := data["directedby"]; ok {
		b.String(domain.FieldDirector, firstLine(v))
	}
	for _, key := range []string{"productioncompany", "productioncompanies"} {
		if v, ok := data[key]; ok {
			b.String(domain.FieldStudio, footnoteRE.ReplaceAllString(firstLine(v), ""))
		}
	}
	for _, key := range []string{"releasedate", "releasedates", "originalrelease"} {
		if v, ok := data[key]; ok {
			b.String(domain.FieldYearStart, provider.ExtractYear(strings.ReplaceAll(v, "\n", " ")))
		}
	}
	return b.Fields(), "", nil
}

// cellText 把 <br> 与列表项转为换行，保留“第一行”语义。
func cellText(td *goquery.Selection) string {
	td = td.Clone()
	td.Find("br").ReplaceWithHtml("\n")
	td.Find("li").Each(func(_ int, li *goquery.Selection) {
		li.AppendHtml("\n")
	})
	td.Find("sup, style").Remove()
	return td.Text()
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
