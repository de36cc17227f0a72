package provider

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/John-Robertt/MMC/internal/title"
)

const (
	// MinSimilarity 是候选标题被接受的最低 Jaro-Winkler 相似度。
	MinSimilarity = 0.88
	// MinLead 是最佳候选相对第二名的最小领先幅度，不足则视为歧义。
	MinLead = 0.03
)

// Candidate 是搜索结果页中的一个条目。
type Candidate struct {
	Title string
	URL   string
}

// PickCandidate 从搜索结果中选出唯一可信的详情页。
//
// 规则（宁可跳过，不写错）：
// 1) URL 必须匹配 guard（站点详情页形态）
// 2) 规范化后标题完全相同的候选唯一时直接采用；多于一个视为歧义
// 3) 否则按相似度排序：最佳低于 MinSimilarity 为 ErrNoMatch，领先不足 MinLead 为歧义
func PickCandidate(query string, cands []Candidate, guard *regexp.Regexp) (Candidate, error) {
	q := title.Normalize(query)

	type scored struct {
		c     Candidate
		norm  string
		score float32
	}
	var pool []scored
	seen := make(map[string]bool, len(cands))
	for _, c := range cands {
		c.URL = strings.TrimSpace(c.URL)
		c.Title = strings.TrimSpace(c.Title)
		if c.URL == "" || c.Title == "" || seen[c.URL] {
			continue
		}
		if guard != nil && !guard.MatchString(c.URL) {
			continue
		}
		seen[c.URL] = true
		pool = append(pool, scored{c: c, norm: title.Normalize(c.Title)})
	}
	if len(pool) == 0 || q == "" {
		return Candidate{}, ErrNoMatch
	}

	var exact []Candidate
	for _, s := range pool {
		if s.norm == q {
			exact = append(exact, s.c)
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		return Candidate{}, ambiguous(query, exact)
	}

	for i := range pool {
		pool[i].score = edlib.JaroWinklerSimilarity(q, pool[i].norm)
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].score > pool[j].score })

	best := pool[0]
	if best.score < MinSimilarity {
		return Candidate{}, ErrNoMatch
	}
	if len(pool) > 1 && best.score-pool[1].score < MinLead {
		return Candidate{}, ambiguous(query, []Candidate{best.c, pool[1].c})
	}
	return best.c, nil
}

func ambiguous(query string, cs []Candidate) error {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Title+" <"+c.URL+">")
	}
	return &AmbiguousError{Query: query, Candidates: names}
}
