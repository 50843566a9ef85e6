// Package export dumps users, reminder definitions and delivery
// history to a Google Spreadsheet for ad-hoc reporting.
package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

// Store is the slice of the repository the exporter reads.
type Store interface {
	ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error)
	ListRemindersByUser(ctx context.Context, userID string) ([]domain.Reminder, error)
	ListHistoryByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryRecord, error)
}

const (
	userPageSize   = 500
	historyPerUser = 100
)

// SheetsExporter rewrites three tabs (Users, Reminders, History) of a
// spreadsheet on every export. Each tab is cleared and rebuilt; the
// export is a snapshot, not a log.
type SheetsExporter struct {
	repo          Store
	svc           *sheets.Service
	spreadsheetID string
	log           *zap.Logger
}

// NewSheetsExporter authenticates with a service account and returns an
// exporter bound to one spreadsheet.
func NewSheetsExporter(ctx context.Context, repo Store, clientEmail, privateKey, spreadsheetID string, log *zap.Logger) (*SheetsExporter, error) {
	conf := &jwt.Config{
		Email:      clientEmail,
		PrivateKey: []byte(privateKey),
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   google.JWTTokenURL,
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &SheetsExporter{
		repo:          repo,
		svc:           svc,
		spreadsheetID: spreadsheetID,
		log:           log,
	}, nil
}

// ExportAll rebuilds all three tabs and returns the spreadsheet URL.
func (e *SheetsExporter) ExportAll(ctx context.Context) (string, error) {
	users, err := e.allUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("load users: %w", err)
	}

	userRows := [][]interface{}{{"ID", "Phone", "State", "Created At"}}
	reminderRows := [][]interface{}{{"User Phone", "Type", "Time", "Location", "Offset (min)", "Enabled", "Updated At"}}
	historyRows := [][]interface{}{{"User Phone", "Type", "Status", "Error", "Remind At", "Attempted At"}}

	for i := range users {
		u := &users[i]
		userRows = append(userRows, []interface{}{
			u.ID, u.Phone, string(u.State), formatTime(&u.CreatedAt),
		})

		rems, err := e.repo.ListRemindersByUser(ctx, u.ID)
		if err != nil {
			return "", fmt.Errorf("load reminders for %s: %w", u.ID, err)
		}
		for j := range rems {
			r := &rems[j]
			reminderRows = append(reminderRows, []interface{}{
				u.Phone, string(r.Type), r.Time, r.Location, r.OffsetMinutes, r.Enabled, formatTime(&r.UpdatedAt),
			})
		}

		hist, err := e.repo.ListHistoryByUser(ctx, u.ID, historyPerUser)
		if err != nil {
			return "", fmt.Errorf("load history for %s: %w", u.ID, err)
		}
		for j := range hist {
			h := &hist[j]
			historyRows = append(historyRows, []interface{}{
				u.Phone, string(h.Type), h.Status, h.Error, formatTime(h.RemindAt), formatTime(&h.AttemptedAt),
			})
		}
	}

	for _, tab := range []struct {
		name string
		rows [][]interface{}
	}{
		{"Users", userRows},
		{"Reminders", reminderRows},
		{"History", historyRows},
	} {
		if err := e.writeTab(ctx, tab.name, tab.rows); err != nil {
			return "", fmt.Errorf("write %s tab: %w", tab.name, err)
		}
	}

	e.log.Info("export complete",
		zap.Int("users", len(userRows)-1),
		zap.Int("reminders", len(reminderRows)-1),
		zap.Int("history", len(historyRows)-1),
	)
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s", e.spreadsheetID), nil
}

func (e *SheetsExporter) allUsers(ctx context.Context) ([]domain.User, error) {
	var all []domain.User
	for offset := 0; ; offset += userPageSize {
		page, err := e.repo.ListUsers(ctx, userPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < userPageSize {
			return all, nil
		}
	}
}

func (e *SheetsExporter) writeTab(ctx context.Context, name string, rows [][]interface{}) error {
	_, err := e.svc.Spreadsheets.Values.
		Clear(e.spreadsheetID, name+"!A:Z", &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return err
	}
	_, err = e.svc.Spreadsheets.Values.
		Update(e.spreadsheetID, name+"!A1", &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	return err
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
