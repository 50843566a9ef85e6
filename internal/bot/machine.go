// Package bot drives the conversation: every inbound WhatsApp message
// is fed through a per-user state machine that walks the user from the
// type menu to a persisted reminder definition.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
	"github.com/McdWebs/whatsapp-bot/internal/store"
	"github.com/McdWebs/whatsapp-bot/internal/whatsapp"
)

// Store is the slice of the repository the state machine needs.
type Store interface {
	GetUserByPhone(ctx context.Context, phone string) (*domain.User, error)
	CreateUser(ctx context.Context, phone string) (*domain.User, error)
	UpdateUserState(ctx context.Context, userID string, state domain.State) error
	UpsertReminder(ctx context.Context, r *domain.Reminder) error
	ListRemindersByUser(ctx context.Context, userID string) ([]domain.Reminder, error)
	DeleteReminder(ctx context.Context, userID string, t domain.ReminderType) error
	DisableAllForUser(ctx context.Context, userID string) error
}

// Sender delivers replies back to the user.
type Sender interface {
	SendResponse(ctx context.Context, to, body string) (whatsapp.SendResult, error)
	SendMenu(ctx context.Context, to, title string, options []string) (whatsapp.SendResult, error)
}

// Resolver looks up halachic times for a location and date.
type Resolver interface {
	Resolve(ctx context.Context, location string, date time.Time) (*domain.Zmanim, error)
}

// pending holds the short-lived conversational context that does not
// belong in the users table: the event type carried from the menu into
// the location prompt, and whether the delete menu was already shown.
type pending struct {
	eventType    domain.ReminderType
	deleteMenuUp bool
}

// Machine is the conversation state machine. It is safe for concurrent
// use; messages from the same user are serialized so a rapid double
// message cannot race two transitions.
type Machine struct {
	repo            Store
	messages        Sender
	resolver        Resolver
	defaultLocation string
	tz              *time.Location
	log             *zap.Logger

	now func() time.Time

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	pending map[string]pending
}

// New builds a Machine. tz is the timezone confirmations are rendered
// in and defaultLocation backs the location prompt's default.
func New(repo Store, messages Sender, resolver Resolver, defaultLocation string, tz *time.Location, log *zap.Logger) *Machine {
	return &Machine{
		repo:            repo,
		messages:        messages,
		resolver:        resolver,
		defaultLocation: defaultLocation,
		tz:              tz,
		log:             log,
		now:             time.Now,
		locks:           make(map[string]*sync.Mutex),
		pending:         make(map[string]pending),
	}
}

// HandleInbound processes one inbound message end to end: load or
// create the user, run the transition for their current state, persist
// the new state. If persisting fails the state is left unchanged so the
// user can simply resend.
func (m *Machine) HandleInbound(ctx context.Context, from, body string) {
	phone := domain.NormalizePhone(from)
	if phone == "" {
		m.log.Warn("inbound message with unusable sender", zap.String("from", from))
		return
	}

	unlock := m.lockUser(phone)
	defer unlock()

	user, err := m.repo.GetUserByPhone(ctx, phone)
	if errors.Is(err, store.ErrNotFound) {
		user, err = m.repo.CreateUser(ctx, phone)
		if err == nil {
			m.log.Info("new user", zap.String("user_id", user.ID))
		}
	}
	if err != nil {
		m.log.Error("load user failed", zap.String("phone", phone), zap.Error(err))
		m.send(ctx, phone, storeErrorNotice)
		return
	}

	next := m.transition(ctx, user, strings.TrimSpace(body))
	if next == user.State {
		return
	}
	if err := m.repo.UpdateUserState(ctx, user.ID, next); err != nil {
		m.log.Error("persist state failed",
			zap.String("user_id", user.ID),
			zap.String("state", string(next)),
			zap.Error(err),
		)
		m.send(ctx, user.Phone, storeErrorNotice)
		return
	}
	m.log.Debug("state transition",
		zap.String("user_id", user.ID),
		zap.String("from", string(user.State)),
		zap.String("to", string(next)),
	)
}

// transition dispatches on the user's current state and returns the
// state to persist. Commands are handled before the state switch and
// never depend on it.
func (m *Machine) transition(ctx context.Context, u *domain.User, text string) domain.State {
	if domain.IsHelp(text) {
		m.send(ctx, u.Phone, helpText)
		return u.State
	}
	if domain.IsStop(text) {
		return m.handleStop(ctx, u)
	}

	switch u.State {
	case domain.StateInitial, domain.StateConfirmed:
		m.sendMenu(ctx, u.Phone, typeMenuTitle, typeMenuOptions)
		return domain.StateSelectingReminder
	case domain.StateSelectingReminder:
		return m.handleTypeSelection(ctx, u, text)
	case domain.StateSelectingTefillin:
		return m.handleTefillinTime(ctx, u, text)
	case domain.StateSelectingTime:
		return m.handleCustomTime(ctx, u, text)
	case domain.StateSelectingLocation:
		return m.handleLocation(ctx, u, text)
	case domain.StateSelectingToDelete:
		return m.handleDelete(ctx, u, text)
	default:
		// Unknown persisted state, likely from an older schema. Restart.
		m.clearPending(u.ID)
		m.sendMenu(ctx, u.Phone, typeMenuTitle, typeMenuOptions)
		return domain.StateSelectingReminder
	}
}

func (m *Machine) handleStop(ctx context.Context, u *domain.User) domain.State {
	if err := m.repo.DisableAllForUser(ctx, u.ID); err != nil {
		m.log.Error("disable reminders failed", zap.String("user_id", u.ID), zap.Error(err))
		m.send(ctx, u.Phone, storeErrorNotice)
		return u.State
	}
	m.clearPending(u.ID)
	m.send(ctx, u.Phone, stopConfirmation)
	return domain.StateConfirmed
}

// Menu choices for the reminder type menu. Numbers, emoji digits and a
// few keywords are all accepted; candle and prayer reminders are
// keyword-only.
func (m *Machine) handleTypeSelection(ctx context.Context, u *domain.User, text string) domain.State {
	switch classifyTypeChoice(text) {
	case choiceTefillin:
		m.sendMenu(ctx, u.Phone, offsetMenuTitle, offsetMenuOptions)
		return domain.StateSelectingTefillin
	case choiceCustom:
		m.send(ctx, u.Phone, timePrompt)
		return domain.StateSelectingTime
	case choiceSunset:
		m.setEventType(u.ID, domain.ReminderSunset)
		m.send(ctx, u.Phone, locationPrompt(m.defaultLocation))
		return domain.StateSelectingLocation
	case choiceCandle:
		m.setEventType(u.ID, domain.ReminderCandle)
		m.send(ctx, u.Phone, locationPrompt(m.defaultLocation))
		return domain.StateSelectingLocation
	case choicePrayer:
		m.setEventType(u.ID, domain.ReminderPrayer)
		m.send(ctx, u.Phone, locationPrompt(m.defaultLocation))
		return domain.StateSelectingLocation
	case choiceDelete:
		return m.handleDelete(ctx, u, "")
	default:
		m.sendMenu(ctx, u.Phone, typeMenuTitle, typeMenuOptions)
		return domain.StateSelectingReminder
	}
}

type typeChoice int

const (
	choiceUnknown typeChoice = iota
	choiceTefillin
	choiceCustom
	choiceSunset
	choiceCandle
	choicePrayer
	choiceDelete
)

func classifyTypeChoice(text string) typeChoice {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "1", "1️⃣", "tefillin", "תפילין":
		return choiceTefillin
	case "2", "2️⃣", "custom":
		return choiceCustom
	case "3", "3️⃣", "sunset", "שקיעה":
		return choiceSunset
	case "candle", "candles", "נרות":
		return choiceCandle
	case "prayer", "תפילה":
		return choicePrayer
	case "4", "4️⃣", "delete", "מחק", "מחיקה":
		return choiceDelete
	default:
		return choiceUnknown
	}
}

var tefillinOffsets = map[string]int{
	"1": 20, "1️⃣": 20,
	"2": 30, "2️⃣": 30,
	"3": 60, "3️⃣": 60,
}

// handleTefillinTime accepts either an offset menu choice or an
// explicit HH:MM override. The offset path resolves today's sunset and
// rolls to tomorrow's when the computed fire time has already passed.
func (m *Machine) handleTefillinTime(ctx context.Context, u *domain.User, text string) domain.State {
	if hour, minute, err := domain.ParseClockTime(text); err == nil {
		clock := domain.FormatClockTime(hour, minute)
		rem := &domain.Reminder{
			UserID:   u.ID,
			Type:     domain.ReminderTefillin,
			Time:     clock,
			Location: m.defaultLocation,
			Enabled:  true,
		}
		if err := m.repo.UpsertReminder(ctx, rem); err != nil {
			m.log.Error("upsert reminder failed", zap.String("user_id", u.ID), zap.Error(err))
			m.send(ctx, u.Phone, storeErrorNotice)
			return u.State
		}
		m.send(ctx, u.Phone, fixedTimeConfirmation(domain.ReminderTefillin, clock))
		return domain.StateConfirmed
	}

	offset, ok := tefillinOffsets[strings.TrimSpace(text)]
	if !ok {
		m.sendMenu(ctx, u.Phone, invalidOffsetTitle, offsetMenuOptions)
		return u.State
	}

	now := m.now()
	sunset, err := m.sunsetAt(ctx, m.defaultLocation, now)
	if err != nil {
		m.log.Warn("sunset lookup failed", zap.String("user_id", u.ID), zap.Error(err))
		m.send(ctx, u.Phone, zmanimErrorNotice)
		return u.State
	}
	fire := domain.OffsetFireTime(sunset, offset)
	if !fire.After(now) {
		sunset, err = m.sunsetAt(ctx, m.defaultLocation, now.AddDate(0, 0, 1))
		if err != nil {
			m.log.Warn("sunset lookup failed", zap.String("user_id", u.ID), zap.Error(err))
			m.send(ctx, u.Phone, zmanimErrorNotice)
			return u.State
		}
		fire = domain.OffsetFireTime(sunset, offset)
	}

	rem := &domain.Reminder{
		UserID:        u.ID,
		Type:          domain.ReminderTefillin,
		Location:      m.defaultLocation,
		Enabled:       true,
		OffsetMinutes: offset,
		SunsetAt:      &sunset,
		RemindAt:      &fire,
	}
	if err := m.repo.UpsertReminder(ctx, rem); err != nil {
		m.log.Error("upsert reminder failed", zap.String("user_id", u.ID), zap.Error(err))
		m.send(ctx, u.Phone, storeErrorNotice)
		return u.State
	}
	m.send(ctx, u.Phone, tefillinConfirmation(offset, fire, m.tz))
	return domain.StateConfirmed
}

func (m *Machine) sunsetAt(ctx context.Context, location string, date time.Time) (time.Time, error) {
	z, err := m.resolver.Resolve(ctx, location, date)
	if err != nil {
		return time.Time{}, err
	}
	if z.Sunset == nil {
		return time.Time{}, errors.New("no sunset in zmanim data")
	}
	return *z.Sunset, nil
}

func (m *Machine) handleCustomTime(ctx context.Context, u *domain.User, text string) domain.State {
	hour, minute, err := domain.ParseClockTime(text)
	if err != nil {
		m.send(ctx, u.Phone, invalidTimePrompt)
		return u.State
	}
	clock := domain.FormatClockTime(hour, minute)
	rem := &domain.Reminder{
		UserID:  u.ID,
		Type:    domain.ReminderCustom,
		Time:    clock,
		Enabled: true,
	}
	if err := m.repo.UpsertReminder(ctx, rem); err != nil {
		m.log.Error("upsert reminder failed", zap.String("user_id", u.ID), zap.Error(err))
		m.send(ctx, u.Phone, storeErrorNotice)
		return u.State
	}
	m.send(ctx, u.Phone, fixedTimeConfirmation(domain.ReminderCustom, clock))
	return domain.StateConfirmed
}

func (m *Machine) handleLocation(ctx context.Context, u *domain.User, text string) domain.State {
	location := strings.TrimSpace(text)
	if location == "" {
		location = m.defaultLocation
	}
	eventType := m.takeEventType(u.ID)

	rem := &domain.Reminder{
		UserID:   u.ID,
		Type:     eventType,
		Location: location,
		Enabled:  true,
	}
	if err := m.repo.UpsertReminder(ctx, rem); err != nil {
		m.log.Error("upsert reminder failed", zap.String("user_id", u.ID), zap.Error(err))
		m.send(ctx, u.Phone, storeErrorNotice)
		m.setEventType(u.ID, eventType)
		return u.State
	}
	m.send(ctx, u.Phone, eventConfirmation(eventType, location))
	return domain.StateConfirmed
}

// handleDelete is a two-phase sub-state: first entry lists the user's
// definitions as a menu, the next message picks one by number.
func (m *Machine) handleDelete(ctx context.Context, u *domain.User, text string) domain.State {
	rems, err := m.repo.ListRemindersByUser(ctx, u.ID)
	if err != nil {
		m.log.Error("list reminders failed", zap.String("user_id", u.ID), zap.Error(err))
		m.send(ctx, u.Phone, storeErrorNotice)
		return u.State
	}
	if len(rems) == 0 {
		m.clearPending(u.ID)
		m.send(ctx, u.Phone, noRemindersToDelete)
		return domain.StateInitial
	}

	options := make([]string, len(rems))
	for i := range rems {
		options[i] = deleteMenuOption(&rems[i])
	}

	m.mu.Lock()
	p := m.pending[u.ID]
	menuUp := p.deleteMenuUp
	if !menuUp {
		p.deleteMenuUp = true
		m.pending[u.ID] = p
	}
	m.mu.Unlock()

	if !menuUp {
		m.sendMenu(ctx, u.Phone, deleteMenuTitle, options)
		return domain.StateSelectingToDelete
	}

	idx, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || idx < 1 || idx > len(rems) {
		m.sendMenu(ctx, u.Phone, deleteMenuTitle, options)
		return domain.StateSelectingToDelete
	}

	target := rems[idx-1]
	if err := m.repo.DeleteReminder(ctx, u.ID, target.Type); err != nil {
		m.log.Error("delete reminder failed",
			zap.String("user_id", u.ID),
			zap.String("type", string(target.Type)),
			zap.Error(err),
		)
		m.send(ctx, u.Phone, storeErrorNotice)
		return u.State
	}
	m.clearPending(u.ID)
	m.send(ctx, u.Phone, deleteConfirmation(target.Type))
	return domain.StateInitial
}

func (m *Machine) send(ctx context.Context, to, body string) {
	if _, err := m.messages.SendResponse(ctx, to, body); err != nil {
		m.log.Warn("reply send failed", zap.String("to", to), zap.Error(err))
	}
}

func (m *Machine) sendMenu(ctx context.Context, to, title string, options []string) {
	if _, err := m.messages.SendMenu(ctx, to, title, options); err != nil {
		m.log.Warn("menu send failed", zap.String("to", to), zap.Error(err))
	}
}

func (m *Machine) lockUser(phone string) func() {
	m.mu.Lock()
	l, ok := m.locks[phone]
	if !ok {
		l = &sync.Mutex{}
		m.locks[phone] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (m *Machine) setEventType(userID string, t domain.ReminderType) {
	m.mu.Lock()
	p := m.pending[userID]
	p.eventType = t
	m.pending[userID] = p
	m.mu.Unlock()
}

// takeEventType pops the carried event type, defaulting to sunset when
// nothing was carried (e.g. after a restart mid-conversation).
func (m *Machine) takeEventType(userID string) domain.ReminderType {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[userID]
	if !ok || p.eventType == "" {
		return domain.ReminderSunset
	}
	t := p.eventType
	p.eventType = ""
	m.pending[userID] = p
	return t
}

func (m *Machine) clearPending(userID string) {
	m.mu.Lock()
	delete(m.pending, userID)
	m.mu.Unlock()
}
