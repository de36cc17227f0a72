package imdb

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/MMC/internal/domain"
	"github.com/John-Robertt/MMC/internal/provider"
)

const (
	Name           = "imdb"
	DefaultBaseURL = "https://www.imdb.com"
)

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

func (p Provider) Fetch(ctx context.Context, title, thumbnailTarget string) (domain.Fields, error) {
	base := p.baseURL()
	q := url.Values{"q": {title}, "s": {"tt"}}
	return provider.Site{
		Name:       Name,
		Client:     p.Client,
		SearchURL:  base + "/find/?" + q.Encode(),
		Guard:      provider.DetailGuard(base, "/title/"),
		Candidates: Candidates,
		Parse:      Parse,
	}.Fetch(ctx, title, thumbnailTarget)
}

func Candidates(doc *goquery.Document, pageURL string) []provider.Candidate {
	var out []provider.Candidate
	doc.Find("a.ipc-metadata-list-summary-item__t").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		out = append(out, provider.Candidate{
			Title: provider.NormSpace(s.Text()),
			URL:   stripQuery(provider.ResolveURL(pageURL, href)),
		})
	})
	return out
}

// stripQuery 去掉 "?ref_=..." 跟踪参数，同一条目的不同入口视为同一候选。
func stripQuery(u string) string {
	before, _, _ := strings.Cut(u, "?")
	return before
}

// Parse 解析 IMDb 标题页。plot 在页面中按不同断点渲染了三份，只保留一份。
func Parse(doc *goquery.Document, pageURL string) (domain.Fields, string, error) {
	b := provider.NewBuilder()

	if plot := doc.Find(`p[data-testid="plot"]`).First(); plot.Length() > 0 {
		if span := plot.Find(`span[data-testid="plot-xl"]`).First(); span.Length() > 0 {
			b.String(domain.FieldDescription, span.Text())
		} else {
			b.String(domain.FieldDescription, firstThird(strings.TrimSpace(plot.Text())))
		}
	}

	if box := doc.Find(`div[data-testid="genres"]`).First(); box.Length() > 0 {
		var tags []string
		box.Find("span").Each(func(_ int, s *goquery.Selection) {
			tags = append(tags, s.Text())
		})
		b.Tags(tags)
	}

	imgURL := ""
	if src, ok := doc.Find("img.ipc-image").First().Attr("src"); ok {
		imgURL = provider.ResolveURL(pageURL, src)
	}
	return b.Fields(), imgURL, nil
}

func firstThird(s string) string {
	if part := provider.FirstOfRepeated(s, 3); part != s {
		return part
	}
	r := []rune(s)
	return string(r[:len(r)/3])
}
