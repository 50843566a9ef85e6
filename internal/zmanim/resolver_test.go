package zmanim

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
	"github.com/McdWebs/whatsapp-bot/internal/store"
)

const hebcalSample = `{
  "items": [
    {"title": "Fast begins", "date": "2025-06-10", "category": "zmanim"},
    {"title": "Sunset", "date": "2025-06-10T19:45:00+03:00", "category": "astronomy", "subcat": "sunset"},
    {"title": "Candle lighting: 19:25", "date": "2025-06-10T19:25:00+03:00", "category": "candles", "subcat": "candles"},
    {"title": "Mincha Gedola", "date": "2025-06-10T13:30:00+03:00", "category": "prayer", "subcat": "mincha"}
  ]
}`

func TestHebcalClient_FetchAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("city"); got != "Jerusalem" {
			t.Errorf("city = %q, want Jerusalem", got)
		}
		if got := r.URL.Query().Get("cfg"); got != "json" {
			t.Errorf("cfg = %q, want json", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(hebcalSample))
	}))
	defer srv.Close()

	c := NewHebcalClient(srv.URL, zap.NewNop())
	date := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)

	z, err := c.Fetch(context.Background(), "Jerusalem", date)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if z.Sunset == nil || z.Sunset.Hour() != 19 || z.Sunset.Minute() != 45 {
		t.Fatalf("sunset = %v, want 19:45", z.Sunset)
	}
	if z.CandleLighting == nil || z.CandleLighting.Minute() != 25 {
		t.Fatalf("candle lighting = %v, want 19:25", z.CandleLighting)
	}
	if z.Mincha == nil || z.Mincha.Hour() != 13 {
		t.Fatalf("mincha = %v, want 13:30", z.Mincha)
	}
	// The all-day item has no usable time point.
	if z.Shacharit != nil || z.Maariv != nil {
		t.Fatalf("unexpected prayer times: %v %v", z.Shacharit, z.Maariv)
	}
}

func TestHebcalClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHebcalClient(srv.URL, zap.NewNop())
	if _, err := c.Fetch(context.Background(), "Jerusalem", time.Now()); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

type fakeCache struct {
	data map[string]*domain.Zmanim
	puts int
}

func (f *fakeCache) GetZmanim(_ context.Context, location, date string) (*domain.Zmanim, error) {
	if z, ok := f.data[location+"|"+date]; ok {
		return z, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeCache) PutZmanim(_ context.Context, z *domain.Zmanim) error {
	f.puts++
	f.data[z.Location+"|"+z.Date] = z
	return nil
}

type fakeUpstream struct {
	calls int
	z     *domain.Zmanim
	err   error
}

func (f *fakeUpstream) Fetch(_ context.Context, location string, date time.Time) (*domain.Zmanim, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.z, nil
}

func TestResolver_CacheFirst(t *testing.T) {
	sunset := time.Date(2025, time.June, 10, 16, 45, 0, 0, time.UTC)
	up := &fakeUpstream{z: &domain.Zmanim{Location: "Jerusalem", Date: "2025-06-10", Sunset: &sunset}}
	cache := &fakeCache{data: map[string]*domain.Zmanim{}}
	r := New(cache, up, zap.NewNop())

	date := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

	// Miss: upstream is called, result is cached.
	z, err := r.Resolve(context.Background(), "Jerusalem", date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if z.Sunset == nil || up.calls != 1 || cache.puts != 1 {
		t.Fatalf("miss path: calls=%d puts=%d", up.calls, cache.puts)
	}

	// Hit: upstream is not called again.
	if _, err := r.Resolve(context.Background(), "Jerusalem", date); err != nil {
		t.Fatalf("resolve hit: %v", err)
	}
	if up.calls != 1 {
		t.Fatalf("cache hit must not refetch, calls=%d", up.calls)
	}
}

func TestResolver_UpstreamFailurePropagates(t *testing.T) {
	up := &fakeUpstream{err: errors.New("hebcal down")}
	cache := &fakeCache{data: map[string]*domain.Zmanim{}}
	r := New(cache, up, zap.NewNop())

	if _, err := r.Resolve(context.Background(), "Jerusalem", time.Now()); err == nil {
		t.Fatal("upstream failure must propagate, not default")
	}
	if cache.puts != 0 {
		t.Fatal("nothing may be cached on failure")
	}
}
