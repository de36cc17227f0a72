package enrich

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/John-Robertt/MMC/internal/domain"
	"github.com/John-Robertt/MMC/internal/provider"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProvider struct {
	name  string
	calls atomic.Int32
	fetch func(ctx context.Context, title, target string) (domain.Fields, error)
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Fetch(ctx context.Context, title, target string) (domain.Fields, error) {
	p.calls.Add(1)
	return p.fetch(ctx, title, target)
}

func returns(name string, fs domain.Fields, err error) *fakeProvider {
	return &fakeProvider{name: name, fetch: func(context.Context, string, string) (domain.Fields, error) {
		return fs, err
	}}
}

type fakeThumbs struct {
	present bool
	targets []string
}

func (t *fakeThumbs) Target(title string) (string, error) {
	if t.present {
		return "", nil
	}
	target := "/thumbs/" + title + ".jpg"
	t.targets = append(t.targets, target)
	return target, nil
}

func (t *fakeThumbs) Exists(string) (bool, error) { return t.present, nil }

var required = []domain.Field{domain.FieldDescription, domain.FieldTags, domain.FieldStudio}

func newOrchestrator(ps ...provider.Provider) *Orchestrator {
	return &Orchestrator{
		Providers: ps,
		Required:  required,
		Thumbs:    &fakeThumbs{},
		Timeout:   time.Second,
		Breaker:   NewBreaker(),
	}
}

func outcomes(as []domain.ProviderAttempt) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Provider+"="+a.Outcome)
	}
	return out
}

func TestEnrich_FirstProviderWinsOnOverlap(t *testing.T) {
	mal := returns("mal", domain.Fields{
		domain.FieldDescription: domain.String("A biker gang."),
		domain.FieldTags:        domain.List("Action"),
	}, nil)
	wiki := returns("wikipedia", domain.Fields{
		domain.FieldDescription: domain.String("other"),
		domain.FieldStudio:      domain.String("TMS"),
	}, nil)

	res, err := newOrchestrator(mal, wiki).Enrich(context.Background(), domain.NewRecord("Akira"))
	require.NoError(t, err)

	desc, _ := res.Record.Fields[domain.FieldDescription].Str()
	assert.Equal(t, "A biker gang.", desc)
	studio, _ := res.Record.Fields[domain.FieldStudio].Str()
	assert.Equal(t, "TMS", studio)
	assert.Empty(t, res.Missing)
	assert.Equal(t, []string{"mal", "wikipedia"}, res.Record.Visited.Sorted())
	assert.Equal(t, []string{"mal=ok", "wikipedia=ok"}, outcomes(res.Attempts))
	assert.Equal(t, []string{"description", "tags"}, res.Attempts[0].Fields)
}

func TestEnrich_VisitedProviderIsNotCalled(t *testing.T) {
	mal := returns("mal", domain.Fields{domain.FieldStudio: domain.String("Madhouse")}, nil)
	wiki := returns("wikipedia", nil, nil)

	rec := domain.NewRecord("Perfect Blue")
	rec.Visited.Add("mal")

	res, err := newOrchestrator(mal, wiki).Enrich(context.Background(), rec)
	require.NoError(t, err)

	assert.Zero(t, mal.calls.Load())
	assert.Equal(t, int32(1), wiki.calls.Load())
	assert.Equal(t, []string{"mal=skipped_visited", "wikipedia=empty"}, outcomes(res.Attempts))
	assert.Equal(t, []string{"mal", "wikipedia"}, res.Record.Visited.Sorted())
	assert.Equal(t, []domain.Field{domain.FieldDescription, domain.FieldTags, domain.FieldStudio}, res.Missing)
}

func TestEnrich_EmptyStringIsKeptButStillMissing(t *testing.T) {
	rec := domain.NewRecord("Paprika")
	rec.Fields[domain.FieldDescription] = domain.String("")

	mal := returns("mal", domain.Fields{domain.FieldDescription: domain.String("Dream detective.")}, nil)

	res, err := newOrchestrator(mal).Enrich(context.Background(), rec)
	require.NoError(t, err)

	desc, _ := res.Record.Fields[domain.FieldDescription].Str()
	assert.Equal(t, "", desc)
	assert.Contains(t, res.Missing, domain.FieldDescription)
	assert.True(t, res.Record.Visited.Has("mal"))
}

func TestEnrich_UnreachableTripsBreakerWithoutMarking(t *testing.T) {
	down := returns("mal", nil, &provider.UnreachableError{URL: "https://myanimelist.net", Err: errors.New("dial tcp: refused")})
	wiki := returns("wikipedia", domain.Fields{domain.FieldStudio: domain.String("Sunrise")}, nil)
	o := newOrchestrator(down, wiki)

	res, err := o.Enrich(context.Background(), domain.NewRecord("Cowboy Bebop"))
	require.NoError(t, err)
	assert.Equal(t, []string{"mal=unreachable", "wikipedia=ok"}, outcomes(res.Attempts))
	assert.False(t, res.Record.Visited.Has("mal"))
	assert.True(t, o.Breaker.Tripped("mal"))

	res, err = o.Enrich(context.Background(), domain.NewRecord("Trigun"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), down.calls.Load())
	assert.Equal(t, []string{"mal=skipped_unreachable", "wikipedia=ok"}, outcomes(res.Attempts))
	assert.False(t, res.Record.Visited.Has("mal"))
}

func TestEnrich_TimeoutMarksVisited(t *testing.T) {
	slow := &fakeProvider{name: "imdb", fetch: func(ctx context.Context, _, _ string) (domain.Fields, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := newOrchestrator(slow)
	o.Timeout = 20 * time.Millisecond

	res, err := o.Enrich(context.Background(), domain.NewRecord("Akira"))
	require.NoError(t, err)
	assert.Equal(t, []string{"imdb=timeout"}, outcomes(res.Attempts))
	assert.True(t, res.Record.Visited.Has("imdb"))
	assert.False(t, o.Breaker.Tripped("imdb"))
}

func TestEnrich_ContractViolationIsFailure(t *testing.T) {
	bad := returns("mal", domain.Fields{domain.FieldTags: domain.String("Action, Drama")}, nil)

	res, err := newOrchestrator(bad).Enrich(context.Background(), domain.NewRecord("Akira"))
	require.NoError(t, err)
	assert.Equal(t, []string{"mal=failed"}, outcomes(res.Attempts))
	_, ok := res.Record.Fields[domain.FieldTags]
	assert.False(t, ok)
	assert.True(t, res.Record.Visited.Has("mal"))
}

func TestEnrich_BlockedPageIsFailure(t *testing.T) {
	blocked := returns("mal", nil, &provider.BlockedError{URL: "https://myanimelist.net/", Reason: "cloudflare-challenge"})
	o := newOrchestrator(blocked)

	res, err := o.Enrich(context.Background(), domain.NewRecord("Akira"))
	require.NoError(t, err)
	assert.Equal(t, []string{"mal=failed"}, outcomes(res.Attempts))
	assert.True(t, res.Record.Visited.Has("mal"))
	assert.Empty(t, o.Breaker.Names())
}

func TestEnrich_PanicIsFailure(t *testing.T) {
	boom := &fakeProvider{name: "mal", fetch: func(context.Context, string, string) (domain.Fields, error) {
		panic("selector changed")
	}}

	res, err := newOrchestrator(boom).Enrich(context.Background(), domain.NewRecord("Akira"))
	require.NoError(t, err)
	assert.Equal(t, []string{"mal=failed"}, outcomes(res.Attempts))
	assert.Contains(t, res.Attempts[0].ErrorMsg, "selector changed")
}

func TestEnrich_SecondPassIsIdempotent(t *testing.T) {
	mal := returns("mal", domain.Fields{domain.FieldDescription: domain.String("x")}, nil)
	wiki := returns("wikipedia", nil, errors.New("http 503"))
	o := newOrchestrator(mal, wiki)

	first, err := o.Enrich(context.Background(), domain.NewRecord("Akira"))
	require.NoError(t, err)
	second, err := o.Enrich(context.Background(), first.Record)
	require.NoError(t, err)

	assert.Equal(t, int32(1), mal.calls.Load())
	assert.Equal(t, int32(1), wiki.calls.Load())
	assert.Equal(t, first.Record.Fields, second.Record.Fields)
	assert.Equal(t, first.Record.Visited, second.Record.Visited)
	assert.Equal(t, first.Missing, second.Missing)
}

func TestEnrich_ThumbnailTargetOnlyWhenAbsent(t *testing.T) {
	var got []string
	p := &fakeProvider{name: "mal", fetch: func(_ context.Context, _ string, target string) (domain.Fields, error) {
		got = append(got, target)
		return nil, nil
	}}
	o := newOrchestrator(p)

	_, err := o.Enrich(context.Background(), domain.NewRecord("Akira"))
	require.NoError(t, err)

	o.Thumbs = &fakeThumbs{present: true}
	res, err := o.Enrich(context.Background(), domain.NewRecord("Akira"))
	require.NoError(t, err)

	assert.Equal(t, []string{"/thumbs/Akira.jpg", ""}, got)
	assert.True(t, res.ThumbnailPresent)
}

func TestEnrich_ParentCancelAbortsRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{name: "mal", fetch: func(ctx context.Context, _, _ string) (domain.Fields, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	_, err := newOrchestrator(p).Enrich(ctx, domain.NewRecord("Akira"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestEnrich_DoesNotMutateInput(t *testing.T) {
	rec := domain.NewRecord("Akira")
	mal := returns("mal", domain.Fields{domain.FieldStudio: domain.String("TMS")}, nil)

	_, err := newOrchestrator(mal).Enrich(context.Background(), rec)
	require.NoError(t, err)
	assert.Empty(t, rec.Fields)
	assert.Empty(t, rec.Visited)
}
