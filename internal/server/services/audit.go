package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dkravets/bankvault/internal/common"
	"github.com/dkravets/bankvault/internal/logging"
	"github.com/dkravets/bankvault/internal/riskscore"
	"github.com/dkravets/bankvault/internal/server/models"
	"github.com/dkravets/bankvault/internal/server/repositories/audit"
	"github.com/dkravets/bankvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// AuditService is the append-only ledger of security-relevant actions. Every
// entry carries a risk score computed at append time; nothing here updates
// or deletes.
//
// An append failure is always surfaced to the caller: the ledger is the
// accountability guarantee, so an action that could not be recorded must not
// look like it succeeded.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewAuditService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *AuditService {
	return &AuditService{
		db:          db,
		repomanager: m,
		log:         log.With("component", "audit"),
	}
}

// Record appends one entry. userID is nil for unauthenticated attempts.
// Callers pass the signals they observed (device trust, first sighting);
// the consecutive-failure count is derived here from the ledger itself so a
// caller cannot understate it. The timestamp is server-assigned.
func (s *AuditService) Record(ctx context.Context, userID *string, action models.ActionKind, ip string, details map[string]string, signals riskscore.Signals) (*models.AuditEntry, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action kind %q", common.ErrValidation, action)
	}
	if ip == "" {
		return nil, fmt.Errorf("%w: ip address is required", common.ErrValidation)
	}

	repo := s.repomanager.Audit(s.db)

	if action == models.ActionFailedLogin {
		failures, err := repo.CountConsecutiveFailures(ctx, ip)
		if err != nil {
			return nil, fmt.Errorf("counting consecutive failures: %w", err)
		}
		signals.ConsecutiveFailures = failures
	}

	entry := &models.AuditEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		IPAddress: ip,
		Details:   details,
		RiskScore: riskscore.Score(action, signals),
	}

	appended, err := repo.Append(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("appending audit entry: %w", err)
	}

	if appended.RiskScore >= 70 {
		s.log.Warn(ctx, "high-risk action recorded",
			"action", string(action), "ip", ip, "risk_score", appended.RiskScore)
	}

	return appended, nil
}

// History returns a user's entries in non-increasing timestamp order. The
// query is side-effect-free and restartable.
func (s *AuditService) History(ctx context.Context, userID string, filter audit.Filter) ([]*models.AuditEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", common.ErrValidation)
	}
	return s.repomanager.Audit(s.db).ListByUser(ctx, userID, filter)
}
