package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/MMC/internal/domain"
)

func TestEncode_VisitedFlagsAndReservedKeys(t *testing.T) {
	r := domain.NewRecord("Akira")
	r.ID = "Akira"
	r.DateAdded = time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	r.Fields[domain.FieldTags] = domain.List("Action")
	r.Visited.Add("MAL")

	doc := Encode(r)
	assert.Equal(t, "Akira", doc[KeyID])
	assert.Equal(t, "Akira", doc[KeyTitle])
	assert.Equal(t, true, doc["visited_mal"])
	assert.Equal(t, []string{"Action"}, doc["tags"])
	assert.Equal(t, time.UTC, doc[KeyDateAdded].(time.Time).Location())
}

func TestDecode_LegacyDocument(t *testing.T) {
	doc := Document{
		"_id":               "Cowboy Bebop",
		"title":             "Cowboy Bebop",
		"description":       "Space.",
		"tags":              "Action, Sci-Fi",
		"nsfw":              "False",
		"englishlicense":    true,
		"visited_mal":       true,
		"visited_wikipedia": false,
		"dateAdded":         "2023-04-05T06:07:08Z",
		"iconaddr":          "/cache/Cowboy Bebop.jpg",
		"yearstart":         1998,
		"studio":            []any{"unexpected"},
	}

	r := Decode("Cowboy Bebop", doc)
	assert.Equal(t, "Cowboy Bebop", r.ID)
	assert.Equal(t, []string{"mal"}, r.Visited.Sorted())
	assert.Equal(t, time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC), r.DateAdded)

	tags, _ := r.Fields[domain.FieldTags].List()
	assert.Equal(t, []string{"Action", "Sci-Fi"}, tags)
	nsfw, ok := r.Fields[domain.FieldNSFW].Bool()
	assert.True(t, ok)
	assert.False(t, nsfw)
	year, _ := r.Fields[domain.FieldYearStart].Str()
	assert.Equal(t, "1998", year)

	_, ok = r.Fields[domain.Field("iconaddr")]
	assert.False(t, ok, "未知字段不进入记录")
	_, ok = r.Fields[domain.FieldStudio]
	assert.False(t, ok, "类型无法转换的字段应被丢弃")
	require.NoError(t, r.Fields.Validate())

	assert.Equal(t, map[string]bool{"studio": true}, Undecoded(doc, r))
}

func TestDecode_TitleOnlyFromDocument(t *testing.T) {
	r := Decode("Akira", Document{"_id": "Akira", "description": "x"})
	assert.Equal(t, "Akira", r.ID)
	assert.Equal(t, "", r.Title)

	r = Decode("Akira", Document{"_id": "Akira", "title": "AKIRA"})
	assert.Equal(t, "AKIRA", r.Title)
}

func TestUndecoded_NullIsAbsent(t *testing.T) {
	doc := Document{"_id": "x", "dateAdded": nil, "nsfw": nil}
	assert.Empty(t, Undecoded(doc, Decode("x", doc)))
}

func TestDecode_EmptyStringIsKeptAsPresent(t *testing.T) {
	r := Decode("x", Document{"description": ""})
	v, ok := r.Fields[domain.FieldDescription]
	require.True(t, ok)
	assert.True(t, v.IsEmpty())
	assert.Equal(t, []domain.Field{domain.FieldDescription}, domain.MissingFields(r, []domain.Field{domain.FieldDescription}))
}

func TestDiff(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := Document{"a": "1", "tags": []string{"x"}, "dateAdded": ts, "gone": "kept"}
	next := Document{"a": "1", "tags": []string{"x", "y"}, "dateAdded": ts.In(time.FixedZone("X", 7200)), "b": true}

	got := Diff(prev, next)
	assert.Equal(t, Document{"tags": []string{"x", "y"}, "b": true}, got)
}
