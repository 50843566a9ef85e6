package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

type recordingBot struct {
	mu     sync.Mutex
	inbound []string
	done    chan struct{}
}

func newRecordingBot() *recordingBot {
	return &recordingBot{done: make(chan struct{}, 8)}
}

func (b *recordingBot) HandleInbound(_ context.Context, from, body string) {
	b.mu.Lock()
	b.inbound = append(b.inbound, from+"|"+body)
	b.mu.Unlock()
	b.done <- struct{}{}
}

func (b *recordingBot) waitOne(t *testing.T) string {
	t.Helper()
	select {
	case <-b.done:
	case <-time.After(2 * time.Second):
		t.Fatal("bot was never invoked")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inbound[len(b.inbound)-1]
}

type rejectAllValidator struct{}

func (rejectAllValidator) ValidateSignature(string, map[string]string, string) bool { return false }

type fakeAdminStore struct {
	userCount int64
	users     []domain.User
	stats     domain.DeliveryStats
}

func (f *fakeAdminStore) CountUsers(context.Context) (int64, error) { return f.userCount, nil }
func (f *fakeAdminStore) ListUsers(_ context.Context, limit, offset int) ([]domain.User, error) {
	if offset >= len(f.users) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.users) {
		end = len(f.users)
	}
	return f.users[offset:end], nil
}
func (f *fakeAdminStore) ListRemindersByUser(context.Context, string) ([]domain.Reminder, error) {
	return nil, nil
}
func (f *fakeAdminStore) HistoryStats(context.Context, *time.Time, *time.Time) (domain.DeliveryStats, error) {
	return f.stats, nil
}

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = &fakeAdminStore{}
	}
	return NewServer(cfg, zap.NewNop()).http.Handler
}

func TestWebhookAcknowledgesAndDispatches(t *testing.T) {
	bot := newRecordingBot()
	h := newTestServer(t, Config{Bot: bot})

	form := url.Values{
		"From":       {"whatsapp:+972501234567"},
		"Body":       {"hello"},
		"MessageSid": {"SM1"},
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := bot.waitOne(t); got != "whatsapp:+972501234567|hello" {
		t.Fatalf("inbound = %q", got)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	bot := newRecordingBot()
	h := newTestServer(t, Config{
		Bot:           bot,
		Validator:     rejectAllValidator{},
		PublicBaseURL: "https://bot.example.com",
	})

	form := url.Values{"From": {"whatsapp:+972501234567"}, "Body": {"hi"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(bot.inbound) != 0 {
		t.Fatal("rejected webhook must not reach the bot")
	}
}

func TestWebhookVerifyEchoesChallenge(t *testing.T) {
	h := newTestServer(t, Config{Bot: newRecordingBot()})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp/?hub.challenge=abc123", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "abc123" {
		t.Fatalf("verify = %d %q", rec.Code, rec.Body.String())
	}
}

func TestAdminRequiresAPIKey(t *testing.T) {
	h := newTestServer(t, Config{Bot: newRecordingBot(), AdminAPIKey: "sekrit"})

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("right key: status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestAdminStats(t *testing.T) {
	store := &fakeAdminStore{
		userCount: 7,
		stats:     domain.DeliveryStats{Total: 12, Sent: 10, Failed: 2},
	}
	h := newTestServer(t, Config{Bot: newRecordingBot(), AdminAPIKey: "k", Store: store})

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("X-API-Key", "k")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`"users":7`, `"total":12`, `"sent":10`, `"failed":2`} {
		if !strings.Contains(body, want) {
			t.Errorf("stats missing %s: %s", want, body)
		}
	}
}

func TestAdminExportNotConfigured(t *testing.T) {
	h := newTestServer(t, Config{Bot: newRecordingBot(), AdminAPIKey: "k"})

	req := httptest.NewRequest(http.MethodPost, "/admin/export", nil)
	req.Header.Set("X-API-Key", "k")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, Config{Bot: newRecordingBot()})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
