package audit

import (
	"context"
	"time"

	"github.com/dkravets/bankvault/internal/server/models"
)

// Filter narrows a history query. Zero values mean "no restriction".
type Filter struct {
	Actions []models.ActionKind
	Since   time.Time
	Limit   int
}

// Repository is the append-only audit store. The interface deliberately has
// no update or delete operation; removal is an out-of-band administrative
// concern outside this core.
type Repository interface {
	Append(ctx context.Context, entry *models.AuditEntry) (*models.AuditEntry, error)
	ListByUser(ctx context.Context, userID string, filter Filter) ([]*models.AuditEntry, error)
	// CountConsecutiveFailures returns how many FAILED_LOGIN entries were
	// recorded for ip since its most recent successful LOGIN.
	CountConsecutiveFailures(ctx context.Context, ip string) (int, error)
}
