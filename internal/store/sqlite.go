package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

var _ Repo = (*SQLiteRepo)(nil)

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// --- Users ---

// CreateUser inserts a new user in the INITIAL state.
func (r *SQLiteRepo) CreateUser(ctx context.Context, phone string) (*domain.User, error) {
	now := time.Now().UTC()
	u := &domain.User{
		ID:        uuid.NewString(),
		Phone:     phone,
		State:     domain.StateInitial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, phone_number, current_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Phone, string(u.State), now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByPhone returns the user with the given normalized phone number.
func (r *SQLiteRepo) GetUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE phone_number = ?`, phone)
}

// GetUserByID returns the user with the given id.
func (r *SQLiteRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE id = ?`, id)
}

func (r *SQLiteRepo) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, phone_number, current_state, created_at, updated_at
		FROM users `+where, arg)

	var (
		u          domain.User
		state      string
		created    int64
		updated    int64
	)
	if err := row.Scan(&u.ID, &u.Phone, &state, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.State = domain.State(state)
	u.CreatedAt = time.Unix(created, 0).UTC()
	u.UpdatedAt = time.Unix(updated, 0).UTC()
	return &u, nil
}

// UpdateUserState persists the user's conversation state.
func (r *SQLiteRepo) UpdateUserState(ctx context.Context, id string, state domain.State) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET current_state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns users ordered by creation time, newest first.
func (r *SQLiteRepo) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, phone_number, current_state, created_at, updated_at
		FROM users
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		var (
			u       domain.User
			state   string
			created int64
			updated int64
		)
		if err := rows.Scan(&u.ID, &u.Phone, &state, &created, &updated); err != nil {
			return nil, err
		}
		u.State = domain.State(state)
		u.CreatedAt = time.Unix(created, 0).UTC()
		u.UpdatedAt = time.Unix(updated, 0).UTC()
		res = append(res, u)
	}
	return res, rows.Err()
}

// CountUsers returns the total number of users.
func (r *SQLiteRepo) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// --- Reminders ---

const reminderColumns = `id, user_id, type, time, location, enabled,
	offset_minutes, sunset_at, remind_at, created_at, updated_at`

// UpsertReminder inserts or updates the user's reminder of the given
// type. The UNIQUE (user_id, type) constraint guarantees at most one
// definition per pair.
func (r *SQLiteRepo) UpsertReminder(ctx context.Context, rem *domain.Reminder) error {
	if rem == nil {
		return errors.New("nil reminder")
	}
	now := time.Now().UTC()
	if rem.ID == "" {
		rem.ID = uuid.NewString()
	}
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = now
	}
	rem.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reminders (
			id, user_id, type, time, location, enabled,
			offset_minutes, sunset_at, remind_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, type) DO UPDATE SET
			time           = excluded.time,
			location       = excluded.location,
			enabled        = excluded.enabled,
			offset_minutes = excluded.offset_minutes,
			sunset_at      = excluded.sunset_at,
			remind_at      = excluded.remind_at,
			updated_at     = excluded.updated_at`,
		rem.ID, rem.UserID, string(rem.Type), rem.Time, rem.Location,
		boolToInt(rem.Enabled), rem.OffsetMinutes,
		toNullUnix(rem.SunsetAt), toNullUnix(rem.RemindAt),
		rem.CreatedAt.Unix(), rem.UpdatedAt.Unix(),
	)
	return err
}

// GetReminder returns the user's reminder of the given type.
func (r *SQLiteRepo) GetReminder(ctx context.Context, userID string, t domain.ReminderType) (*domain.Reminder, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE user_id = ? AND type = ?`, userID, string(t))
	rem, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rem, nil
}

// ListRemindersByUser returns all of the user's reminders ordered by type.
func (r *SQLiteRepo) ListRemindersByUser(ctx context.Context, userID string) ([]domain.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE user_id = ?
		ORDER BY type ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

// ListEnabledReminders returns every enabled reminder across all users.
func (r *SQLiteRepo) ListEnabledReminders(ctx context.Context) ([]domain.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE enabled = 1
		ORDER BY user_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

// DeleteReminder removes the user's reminder of the given type.
func (r *SQLiteRepo) DeleteReminder(ctx context.Context, userID string, t domain.ReminderType) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM reminders WHERE user_id = ? AND type = ?`,
		userID, string(t))
	return err
}

// DisableAllForUser disables every reminder the user has. Definitions
// stay in place so a later flow can re-enable or list them.
func (r *SQLiteRepo) DisableAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reminders SET enabled = 0, updated_at = ? WHERE user_id = ?`,
		time.Now().UTC().Unix(), userID)
	return err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanReminder(row rowScanner) (*domain.Reminder, error) {
	var (
		rem      domain.Reminder
		typ      string
		enabled  int
		sunset   sql.NullInt64
		remind   sql.NullInt64
		created  int64
		updated  int64
	)
	if err := row.Scan(
		&rem.ID, &rem.UserID, &typ, &rem.Time, &rem.Location, &enabled,
		&rem.OffsetMinutes, &sunset, &remind, &created, &updated,
	); err != nil {
		return nil, err
	}
	rem.Type = domain.ReminderType(typ)
	rem.Enabled = enabled != 0
	rem.SunsetAt = fromNullUnix(sunset)
	rem.RemindAt = fromNullUnix(remind)
	rem.CreatedAt = time.Unix(created, 0).UTC()
	rem.UpdatedAt = time.Unix(updated, 0).UTC()
	return &rem, nil
}

func collectReminders(rows *sql.Rows) ([]domain.Reminder, error) {
	var res []domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rem)
	}
	return res, rows.Err()
}

// --- Zmanim cache ---

// GetZmanim returns the cached zmanim for (location, date), or
// ErrNotFound on a cache miss.
func (r *SQLiteRepo) GetZmanim(ctx context.Context, location, date string) (*domain.Zmanim, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT location, date, sunset_at, candle_lighting_at,
		       shacharit_at, mincha_at, maariv_at
		FROM zmanim_cache
		WHERE location = ? AND date = ?`, location, date)

	var (
		z                                        domain.Zmanim
		sunset, candle, shacharit, mincha, maariv sql.NullInt64
	)
	if err := row.Scan(&z.Location, &z.Date, &sunset, &candle, &shacharit, &mincha, &maariv); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	z.Sunset = fromNullUnix(sunset)
	z.CandleLighting = fromNullUnix(candle)
	z.Shacharit = fromNullUnix(shacharit)
	z.Mincha = fromNullUnix(mincha)
	z.Maariv = fromNullUnix(maariv)
	return &z, nil
}

// PutZmanim stores (or refreshes) the parsed zmanim for one day and location.
func (r *SQLiteRepo) PutZmanim(ctx context.Context, z *domain.Zmanim) error {
	if z == nil {
		return errors.New("nil zmanim")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO zmanim_cache (
			location, date, sunset_at, candle_lighting_at,
			shacharit_at, mincha_at, maariv_at, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location, date) DO UPDATE SET
			sunset_at          = excluded.sunset_at,
			candle_lighting_at = excluded.candle_lighting_at,
			shacharit_at       = excluded.shacharit_at,
			mincha_at          = excluded.mincha_at,
			maariv_at          = excluded.maariv_at,
			fetched_at         = excluded.fetched_at`,
		z.Location, z.Date,
		toNullUnix(z.Sunset), toNullUnix(z.CandleLighting),
		toNullUnix(z.Shacharit), toNullUnix(z.Mincha), toNullUnix(z.Maariv),
		time.Now().UTC().Unix(),
	)
	return err
}

// --- Delivery history ---

// CreateHistory appends a delivery attempt record. A missing id or
// attempt timestamp is filled in.
func (r *SQLiteRepo) CreateHistory(ctx context.Context, h *domain.HistoryRecord) error {
	if h == nil {
		return errors.New("nil history record")
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.AttemptedAt.IsZero() {
		h.AttemptedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_history (
			id, user_id, type, status, error_message, remind_at, attempted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.UserID, string(h.Type), h.Status, h.Error,
		toNullUnix(h.RemindAt), h.AttemptedAt.Unix(),
	)
	return err
}

// UpdateHistoryStatus records the outcome of a delivery attempt.
func (r *SQLiteRepo) UpdateHistoryStatus(ctx context.Context, id, status, errDetail string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_history SET status = ?, error_message = ? WHERE id = ?`,
		status, errDetail, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListHistoryByUser returns the user's most recent delivery attempts.
func (r *SQLiteRepo) ListHistoryByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, status, error_message, remind_at, attempted_at
		FROM delivery_history
		WHERE user_id = ?
		ORDER BY attempted_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.HistoryRecord
	for rows.Next() {
		var (
			h         domain.HistoryRecord
			typ       string
			remind    sql.NullInt64
			attempted int64
		)
		if err := rows.Scan(&h.ID, &h.UserID, &typ, &h.Status, &h.Error, &remind, &attempted); err != nil {
			return nil, err
		}
		h.Type = domain.ReminderType(typ)
		h.RemindAt = fromNullUnix(remind)
		h.AttemptedAt = time.Unix(attempted, 0).UTC()
		res = append(res, h)
	}
	return res, rows.Err()
}

// HistoryStats aggregates delivery outcomes, optionally within [from, to].
func (r *SQLiteRepo) HistoryStats(ctx context.Context, from, to *time.Time) (domain.DeliveryStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'delivered' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0)
		FROM delivery_history
		WHERE 1 = 1`
	args := []any{}
	if from != nil {
		query += ` AND attempted_at >= ?`
		args = append(args, from.UTC().Unix())
	}
	if to != nil {
		query += ` AND attempted_at <= ?`
		args = append(args, to.UTC().Unix())
	}

	var s domain.DeliveryStats
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&s.Total, &s.Sent, &s.Delivered, &s.Failed, &s.Pending)
	return s, err
}

// boolToInt converts a boolean to 1/0 for SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
