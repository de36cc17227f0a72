package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/John-Robertt/MMC/internal/config"
	"github.com/John-Robertt/MMC/internal/domain"
	"github.com/John-Robertt/MMC/internal/provider"
	"github.com/John-Robertt/MMC/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubProvider struct {
	name   string
	fields map[string]domain.Fields // title -> fields；缺省返回空
	err    error

	mu      sync.Mutex
	calls   []string
	targets []string
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Fetch(_ context.Context, title, target string) (domain.Fields, error) {
	p.mu.Lock()
	p.calls = append(p.calls, title)
	p.targets = append(p.targets, target)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.fields[title].Clone(), nil
}

func (p *stubProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]string(nil), p.calls...)
	sort.Strings(out)
	return out
}

type recordObserver struct {
	mu     sync.Mutex
	starts int
	phases []string
	items  []string
}

func (o *recordObserver) OnStart(config.EffectiveConfig, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
}

func (o *recordObserver) OnPhaseDone(name string, _ map[string]any, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnItemDone(_, _ int, res domain.ItemResult, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, res.Title)
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	fs    afero.Fs
	store *store.Memory
	clock *clockwork.FakeClock
	eff   config.EffectiveConfig
}

func newFixture(t *testing.T, titles ...string) *fixture {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for _, title := range titles {
		require.NoError(t, fsys.MkdirAll(filepath.Join("/video", title), 0o755))
	}
	require.NoError(t, fsys.MkdirAll("/thumbs", 0o755))
	return &fixture{
		fs:    fsys,
		store: store.NewMemory(),
		clock: clockwork.NewFakeClockAt(epoch),
		eff: config.EffectiveConfig{
			Kind:            config.KindVideo,
			CatalogRoot:     "/video",
			ThumbnailDir:    "/thumbs",
			Required:        []domain.Field{domain.FieldDescription, domain.FieldStudio},
			Providers:       []string{"mal", "wikipedia"},
			Concurrency:     1,
			ProviderTimeout: time.Second,
			ReservedPrefix:  "$",
		},
	}
}

func (f *fixture) deps(t *testing.T, ps ...provider.Provider) Deps {
	t.Helper()
	reg, err := provider.NewRegistry(ps...)
	require.NoError(t, err)
	return Deps{FS: f.fs, Store: f.store, Registry: reg, Clock: f.clock}
}

func TestExecute_NewRecordIsInsertedWithID(t *testing.T) {
	f := newFixture(t, "Akira")
	mal := &stubProvider{name: "mal", fields: map[string]domain.Fields{
		"Akira": {domain.FieldDescription: domain.String("Neo-Tokyo.")},
	}}
	wiki := &stubProvider{name: "wikipedia", fields: map[string]domain.Fields{
		"Akira": {domain.FieldStudio: domain.String("TMS"), domain.FieldDescription: domain.String("other")},
	}}

	rr, err := Execute(context.Background(), f.eff, f.deps(t, mal, wiki))
	require.NoError(t, err)

	require.Len(t, rr.Items, 1)
	it := rr.Items[0]
	assert.Equal(t, domain.StatusComplete, it.Status)
	assert.True(t, it.Created)
	assert.Empty(t, it.Missing)
	assert.Equal(t, []string{"insert:Akira"}, f.store.Writes())

	doc, ok := f.store.Get("Akira")
	require.True(t, ok)
	assert.Equal(t, "Akira", doc[store.KeyID])
	assert.Equal(t, "Akira", doc[store.KeyTitle])
	assert.Equal(t, "Neo-Tokyo.", doc["description"])
	assert.Equal(t, "TMS", doc["studio"])
	assert.Equal(t, true, doc["visited_mal"])
	assert.Equal(t, true, doc["visited_wikipedia"])
	assert.Equal(t, epoch, doc[store.KeyDateAdded])
	assert.Equal(t, []string{"/thumbs/Akira.jpg"}, mal.targets)
}

func TestExecute_CompleteRecordIsSkippedWithoutWrites(t *testing.T) {
	f := newFixture(t, "Perfect Blue")
	f.store.Put(store.Document{
		store.KeyID:   "Perfect Blue",
		"title":       "Perfect Blue",
		"description": "A pop idol.",
		"studio":      "Madhouse",
	})
	mal := &stubProvider{name: "mal"}
	wiki := &stubProvider{name: "wikipedia"}

	rr, err := Execute(context.Background(), f.eff, f.deps(t, mal, wiki))
	require.NoError(t, err)

	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.StatusSkipped, rr.Items[0].Status)
	assert.Empty(t, mal.Calls())
	assert.Empty(t, wiki.Calls())
	assert.Empty(t, f.store.Writes())
}

func TestExecute_ThumbnailCheckFailureIsLogged(t *testing.T) {
	f := newFixture(t, "Perfect Blue")
	f.store.Put(store.Document{
		store.KeyID:   "Perfect Blue",
		"title":       "Perfect Blue",
		"description": "A pop idol.",
		"studio":      "Madhouse",
	})
	// 缩略图路径被目录占用：Exists 返回错误。
	require.NoError(t, f.fs.MkdirAll("/thumbs/Perfect Blue.jpg", 0o755))

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	rr, err := Execute(context.Background(), f.eff, f.deps(t, &stubProvider{name: "mal"}, &stubProvider{name: "wikipedia"}))
	require.NoError(t, err)

	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.StatusSkipped, rr.Items[0].Status)
	assert.False(t, rr.Items[0].ThumbnailPresent)
	assert.Contains(t, buf.String(), "检查缩略图失败")
	assert.Contains(t, buf.String(), "Perfect Blue")
}

func TestExecute_VisitedProviderSkippedAndOnlyDiffWritten(t *testing.T) {
	f := newFixture(t, "Paprika")
	added := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	f.store.Put(store.Document{
		store.KeyID:   "Paprika",
		"title":       "Paprika",
		"description": "",
		"visited_mal": true,
		"dateAdded":   added,
		"rating":      "9/10",
	})
	mal := &stubProvider{name: "mal"}
	wiki := &stubProvider{name: "wikipedia", fields: map[string]domain.Fields{
		"Paprika": {domain.FieldStudio: domain.String("Madhouse"), domain.FieldDescription: domain.String("Dreams.")},
	}}

	rr, err := Execute(context.Background(), f.eff, f.deps(t, mal, wiki))
	require.NoError(t, err)

	assert.Empty(t, mal.Calls())
	assert.Equal(t, []string{"Paprika"}, wiki.Calls())

	it := rr.Items[0]
	assert.Equal(t, domain.StatusIncomplete, it.Status)
	assert.Equal(t, []string{"description"}, it.Missing)
	assert.False(t, it.Created)
	assert.Equal(t, []string{"studio", "visited_wikipedia"}, it.Changed)
	assert.Equal(t, []string{"update:Paprika"}, f.store.Writes())

	doc, _ := f.store.Get("Paprika")
	assert.Equal(t, "", doc["description"])
	assert.Equal(t, "9/10", doc["rating"])
	assert.Equal(t, added, doc["dateAdded"])
}

func TestExecute_UndecodableStoredValuesAreNeverOverwritten(t *testing.T) {
	f := newFixture(t, "Nausicaa")
	f.eff.Required = []domain.Field{domain.FieldDescription, domain.FieldStudio, domain.FieldNSFW}
	f.store.Put(store.Document{
		store.KeyID:   "Nausicaa",
		"title":       "Nausicaa",
		"description": "Wind.",
		"nsfw":        "yes",
		"dateAdded":   "last spring",
	})
	mal := &stubProvider{name: "mal"}
	wiki := &stubProvider{name: "wikipedia", fields: map[string]domain.Fields{
		"Nausicaa": {domain.FieldStudio: domain.String("Topcraft"), domain.FieldNSFW: domain.Bool(false)},
	}}

	rr, err := Execute(context.Background(), f.eff, f.deps(t, mal, wiki))
	require.NoError(t, err)

	it := rr.Items[0]
	assert.Equal(t, domain.StatusComplete, it.Status)
	assert.Equal(t, []string{"studio", "visited_mal", "visited_wikipedia"}, it.Changed)

	doc, _ := f.store.Get("Nausicaa")
	assert.Equal(t, "yes", doc["nsfw"])
	assert.Equal(t, "last spring", doc["dateAdded"])
	assert.Equal(t, "Topcraft", doc["studio"])
}

func TestExecute_LegacyDocumentGetsTitle(t *testing.T) {
	f := newFixture(t, "Ghost in the Shell")
	added := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	f.store.Put(store.Document{
		store.KeyID:   "Ghost in the Shell",
		"description": "Cyborgs.",
		"dateAdded":   added,
	})
	wiki := &stubProvider{name: "wikipedia", fields: map[string]domain.Fields{
		"Ghost in the Shell": {domain.FieldStudio: domain.String("Production I.G")},
	}}

	rr, err := Execute(context.Background(), f.eff, f.deps(t, &stubProvider{name: "mal"}, wiki))
	require.NoError(t, err)

	assert.Equal(t, []string{"studio", "title", "visited_mal", "visited_wikipedia"}, rr.Items[0].Changed)
	doc, _ := f.store.Get("Ghost in the Shell")
	assert.Equal(t, "Ghost in the Shell", doc[store.KeyTitle])
}

func TestExecute_SecondRunIsQuiet(t *testing.T) {
	f := newFixture(t, "Akira")
	mal := &stubProvider{name: "mal", fields: map[string]domain.Fields{
		"Akira": {domain.FieldDescription: domain.String("Neo-Tokyo.")},
	}}
	wiki := &stubProvider{name: "wikipedia", err: errors.New("HTTP 503")}
	deps := f.deps(t, mal, wiki)

	_, err := Execute(context.Background(), f.eff, deps)
	require.NoError(t, err)
	rr, err := Execute(context.Background(), f.eff, deps)
	require.NoError(t, err)

	assert.Equal(t, []string{"Akira"}, mal.Calls())
	assert.Equal(t, []string{"Akira"}, wiki.Calls())
	assert.Equal(t, []string{"insert:Akira"}, f.store.Writes())
	assert.Equal(t, domain.StatusIncomplete, rr.Items[0].Status)
	assert.Equal(t, []string{"studio"}, rr.Items[0].Missing)
}

func TestExecute_UnreachableProviderIsRetriedNextRun(t *testing.T) {
	f := newFixture(t, "Akira", "Berserk", "Cowboy Bebop")
	down := &stubProvider{name: "mal", err: &provider.UnreachableError{URL: "https://myanimelist.net", Err: errors.New("no such host")}}
	wiki := &stubProvider{name: "wikipedia"}

	rr, err := Execute(context.Background(), f.eff, f.deps(t, down, wiki))
	require.NoError(t, err)

	assert.Len(t, down.Calls(), 1)
	assert.Len(t, wiki.Calls(), 3)
	for _, it := range rr.Items {
		doc, _ := f.store.Get(it.Title)
		_, visited := doc["visited_mal"]
		assert.False(t, visited, it.Title)
		assert.Equal(t, true, doc["visited_wikipedia"], it.Title)
	}

	// 新的 run 有新的熔断器。
	down.err = nil
	_, err = Execute(context.Background(), f.eff, f.deps(t, down, wiki))
	require.NoError(t, err)
	assert.Len(t, down.Calls(), 4)
	assert.Len(t, wiki.Calls(), 3)
}

type failingStore struct {
	*store.Memory
}

func (failingStore) Insert(context.Context, store.Document) error {
	return errors.New("disk full")
}

func TestExecute_PersistenceFailureAbortsRun(t *testing.T) {
	f := newFixture(t, "Akira", "Berserk", "Cowboy Bebop")
	deps := f.deps(t, &stubProvider{name: "mal"}, &stubProvider{name: "wikipedia"})
	deps.Store = failingStore{Memory: f.store}

	rr, err := Execute(context.Background(), f.eff, deps)
	require.Error(t, err)

	var se *store.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "insert", se.Op)
	assert.Equal(t, "Akira", se.Key)
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.StatusFailed, rr.Items[0].Status)
	assert.Equal(t, 1, rr.Summary.Failed)
}

func TestExecute_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t, "Akira")
	f.eff.DryRun = true
	mal := &stubProvider{name: "mal", fields: map[string]domain.Fields{
		"Akira": {domain.FieldDescription: domain.String("Neo-Tokyo.")},
	}}

	rr, err := Execute(context.Background(), f.eff, f.deps(t, mal, &stubProvider{name: "wikipedia"}))
	require.NoError(t, err)

	assert.True(t, rr.DryRun)
	assert.Empty(t, f.store.Writes())
	assert.Equal(t, []string{""}, mal.targets)
	assert.Equal(t, []string{"studio"}, rr.Items[0].Missing)
}

func TestExecute_ParallelRecordsAreAllProcessed(t *testing.T) {
	var titles []string
	for i := 0; i < 12; i++ {
		titles = append(titles, fmt.Sprintf("Title %02d", i))
	}
	f := newFixture(t, titles...)
	f.eff.Concurrency = 4
	fields := map[string]domain.Fields{}
	for _, title := range titles {
		fields[title] = domain.Fields{
			domain.FieldDescription: domain.String("d " + title),
			domain.FieldStudio:      domain.String("s"),
		}
	}
	mal := &stubProvider{name: "mal", fields: fields}
	wiki := &stubProvider{name: "wikipedia"}
	obs := &recordObserver{}
	deps := f.deps(t, mal, wiki)
	deps.Observer = obs

	rr, err := Execute(context.Background(), f.eff, deps)
	require.NoError(t, err)

	require.Len(t, rr.Items, len(titles))
	for i, it := range rr.Items {
		assert.Equal(t, titles[i], it.Title)
		assert.Equal(t, domain.StatusComplete, it.Status)
	}
	assert.Equal(t, titles, mal.Calls())
	assert.Equal(t, titles, wiki.Calls())
	assert.Equal(t, len(titles), rr.Summary.Complete)
	assert.Equal(t, 1, obs.starts)
	assert.Equal(t, []string{"exec", "done"}, obs.phases)
	assert.Len(t, obs.items, len(titles))
	assert.NotEmpty(t, rr.RunID)
}

func TestExecuteTitles_OnlyGivenTitles(t *testing.T) {
	f := newFixture(t, "Akira", "Berserk")
	mal := &stubProvider{name: "mal"}

	rr, err := ExecuteTitles(context.Background(), f.eff, f.deps(t, mal, &stubProvider{name: "wikipedia"}), []string{"Berserk"})
	require.NoError(t, err)

	require.Len(t, rr.Items, 1)
	assert.Equal(t, "Berserk", rr.Items[0].Title)
	assert.Equal(t, []string{"Berserk"}, mal.Calls())
}

func TestExecute_UnknownProviderIsError(t *testing.T) {
	f := newFixture(t, "Akira")
	f.eff.Providers = []string{"mal", "anidb"}

	_, err := Execute(context.Background(), f.eff, f.deps(t, &stubProvider{name: "mal"}))
	require.Error(t, err)
	assert.Empty(t, f.store.Writes())
}

func TestExecute_CanceledContext(t *testing.T) {
	f := newFixture(t, "Akira")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, f.eff, f.deps(t, &stubProvider{name: "mal"}, &stubProvider{name: "wikipedia"}))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.store.Writes())
}

func TestLock_SecondHolderFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thumbs", ".mmc.lock")

	unlock, err := Lock(path)
	require.NoError(t, err)

	_, err = Lock(path)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, unlock())
	unlock, err = Lock(path)
	require.NoError(t, err)
	require.NoError(t, unlock())
}

func TestExecute_MangaLocalCoverBeforeProviders(t *testing.T) {
	f := newFixture(t)
	f.eff.Kind = config.KindManga
	f.eff.CatalogRoot = "/manga"
	f.eff.Providers = []string{"mangaupdates"}
	f.eff.LocalCover = true

	var page bytes.Buffer
	require.NoError(t, png.Encode(&page, image.NewRGBA(image.Rect(0, 0, 8, 12))))
	require.NoError(t, f.fs.MkdirAll("/manga/Berserk/Vol 01", 0o755))
	require.NoError(t, afero.WriteFile(f.fs, "/manga/Berserk/Vol 01/001.png", page.Bytes(), 0o644))

	mu := &stubProvider{name: "mangaupdates"}
	rr, err := Execute(context.Background(), f.eff, f.deps(t, mu))
	require.NoError(t, err)

	ok, err := afero.Exists(f.fs, "/thumbs/Berserk.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
	// 封面已就位，provider 不会拿到写入路径。
	assert.Equal(t, []string{""}, mu.targets)
	assert.True(t, rr.Items[0].ThumbnailPresent)
}
