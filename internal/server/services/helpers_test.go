package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dkravets/bankvault/internal/common"
	"github.com/dkravets/bankvault/internal/cryptox"
	"github.com/dkravets/bankvault/internal/dbx"
	"github.com/dkravets/bankvault/internal/logging"
	"github.com/dkravets/bankvault/internal/server/models"
	"github.com/dkravets/bankvault/internal/server/repositories/audit"
	"github.com/dkravets/bankvault/internal/server/repositories/cards"
	"github.com/dkravets/bankvault/internal/server/repositories/devices"
	"github.com/dkravets/bankvault/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestEngine(t *testing.T) *cryptox.Engine {
	t.Helper()
	key := make([]byte, cryptox.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	engine, err := cryptox.NewEngine(key)
	require.NoError(t, err)
	return engine
}

// In-memory repositories. They ignore the handle the manager is given, so
// services can run against a nil *sql.DB unless they open transactions.

type memUsers struct {
	byID      map[string]*models.User
	createErr error
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]*models.User{}}
}

func (m *memUsers) Create(_ context.Context, user *models.User) (*models.User, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	stored := *user
	stored.CreatedAt = time.Now()
	m.byID[user.ID] = &stored
	return &stored, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("db error: %w", common.ErrNotFound)
}

func (m *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("db error: %w", common.ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

type memCards struct {
	byID      map[string]*models.Card
	createErr error
	updateErr error
}

func newMemCards() *memCards {
	return &memCards{byID: map[string]*models.Card{}}
}

func (m *memCards) Create(_ context.Context, card *models.Card) (*models.Card, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	stored := *card
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.byID[card.ID] = &stored
	copied := stored
	return &copied, nil
}

func (m *memCards) GetByID(_ context.Context, id string) (*models.Card, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("db error: %w", common.ErrNotFound)
	}
	copied := *c
	return &copied, nil
}

func (m *memCards) ListByUser(_ context.Context, userID string) ([]*models.Card, error) {
	var result []*models.Card
	for _, c := range m.byID {
		if c.UserID == userID {
			copied := *c
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *memCards) UpdateStatus(_ context.Context, card *models.Card) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.byID[card.ID]
	if !ok {
		return fmt.Errorf("db error: %w", common.ErrNotFound)
	}
	stored.IsActive = card.IsActive
	stored.IsBlocked = card.IsBlocked
	stored.DailyLimit = card.DailyLimit
	stored.UpdatedAt = time.Now()
	return nil
}

type memDevices struct {
	byID map[string]*models.Device
}

func newMemDevices() *memDevices {
	return &memDevices{byID: map[string]*models.Device{}}
}

func (m *memDevices) Upsert(_ context.Context, device *models.Device) (*models.Device, error) {
	for _, d := range m.byID {
		if d.UserID == device.UserID && d.IPAddress == device.IPAddress && d.UserAgent == device.UserAgent {
			d.LastLogin = time.Now()
			copied := *d
			return &copied, nil
		}
	}
	stored := *device
	stored.LastLogin = time.Now()
	m.byID[device.ID] = &stored
	copied := stored
	return &copied, nil
}

func (m *memDevices) MarkTrusted(_ context.Context, id string) error {
	d, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("db error: %w", common.ErrNotFound)
	}
	d.IsTrusted = true
	return nil
}

func (m *memDevices) GetByID(_ context.Context, id string) (*models.Device, error) {
	d, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("db error: %w", common.ErrNotFound)
	}
	copied := *d
	return &copied, nil
}

func (m *memDevices) ListByUser(_ context.Context, userID string) ([]*models.Device, error) {
	var result []*models.Device
	for _, d := range m.byID {
		if d.UserID == userID {
			copied := *d
			result = append(result, &copied)
		}
	}
	return result, nil
}

type memAudit struct {
	entries   []*models.AuditEntry
	appendErr error
	countErr  error
}

func (m *memAudit) Append(_ context.Context, entry *models.AuditEntry) (*models.AuditEntry, error) {
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	stored := *entry
	stored.CreatedAt = time.Now()
	m.entries = append(m.entries, &stored)
	copied := stored
	return &copied, nil
}

func (m *memAudit) ListByUser(_ context.Context, userID string, filter audit.Filter) ([]*models.AuditEntry, error) {
	var result []*models.AuditEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.UserID == nil || *e.UserID != userID {
			continue
		}
		if len(filter.Actions) > 0 && !containsAction(filter.Actions, e.Action) {
			continue
		}
		if !filter.Since.IsZero() && e.CreatedAt.Before(filter.Since) {
			continue
		}
		copied := *e
		result = append(result, &copied)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func (m *memAudit) CountConsecutiveFailures(_ context.Context, ip string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	count := 0
	for _, e := range m.entries {
		if e.IPAddress != ip {
			continue
		}
		switch e.Action {
		case models.ActionLogin:
			count = 0
		case models.ActionFailedLogin:
			count++
		}
	}
	return count, nil
}

func containsAction(actions []models.ActionKind, action models.ActionKind) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// lastEntry returns the most recently appended ledger entry.
func (m *memAudit) lastEntry(t *testing.T) *models.AuditEntry {
	t.Helper()
	require.NotEmpty(t, m.entries)
	return m.entries[len(m.entries)-1]
}

type fakeRepoManager struct {
	users   *memUsers
	cards   *memCards
	devices *memDevices
	audit   *memAudit
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:   newMemUsers(),
		cards:   newMemCards(),
		devices: newMemDevices(),
		audit:   &memAudit{},
	}
}

func (f *fakeRepoManager) Users(_ dbx.DBTX) users.Repository     { return f.users }
func (f *fakeRepoManager) Cards(_ dbx.DBTX) cards.Repository     { return f.cards }
func (f *fakeRepoManager) Devices(_ dbx.DBTX) devices.Repository { return f.devices }
func (f *fakeRepoManager) Audit(_ dbx.DBTX) audit.Repository     { return f.audit }

func (f *fakeRepoManager) RunMigrations(_ context.Context, _ *sql.DB) error { return nil }
