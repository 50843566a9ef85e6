package web

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// requireAPIKey guards the admin routes with an X-API-Key header. An
// empty configured key disables the whole admin surface rather than
// leaving it open.
func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				writeError(w, http.StatusServiceUnavailable, "admin api disabled")
				return
			}
			got := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type adminHandler struct {
	store    AdminStore
	exporter Exporter
	log      *zap.Logger
}

// stats returns user and delivery counts, optionally bounded by
// from/to RFC 3339 query parameters.
func (h *adminHandler) stats(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}

	users, err := h.store.CountUsers(r.Context())
	if err != nil {
		h.log.Error("count users failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	deliveries, err := h.store.HistoryStats(r.Context(), from, to)
	if err != nil {
		h.log.Error("history stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users":      users,
		"deliveries": deliveries,
	})
}

func (h *adminHandler) users(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	offset := intParam(r, "offset", 0)

	users, err := h.store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		h.log.Error("list users failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	type userOut struct {
		ID        string `json:"id"`
		Phone     string `json:"phone"`
		State     string `json:"state"`
		Reminders int    `json:"reminders"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]userOut, len(users))
	for i, u := range users {
		rems, err := h.store.ListRemindersByUser(r.Context(), u.ID)
		if err != nil {
			h.log.Error("list reminders failed", zap.String("user_id", u.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		out[i] = userOut{
			ID:        u.ID,
			Phone:     u.Phone,
			State:     string(u.State),
			Reminders: len(rems),
			CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *adminHandler) export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export not configured")
		return
	}
	url, err := h.exporter.ExportAll(r.Context())
	if err != nil {
		h.log.Error("export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
