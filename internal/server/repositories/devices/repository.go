package devices

import (
	"context"

	"github.com/dkravets/bankvault/internal/server/models"
)

type Repository interface {
	// Upsert records a sighting of (user, ip, user-agent) as a single atomic
	// statement: it creates the device on first sight and bumps last_login
	// on every later one. Concurrent calls for the same triple never produce
	// duplicate rows.
	Upsert(ctx context.Context, device *models.Device) (*models.Device, error)
	MarkTrusted(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Device, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Device, error)
}
