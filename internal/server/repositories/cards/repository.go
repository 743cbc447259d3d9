package cards

import (
	"context"

	"github.com/dkravets/bankvault/internal/server/models"
)

// Repository persists cards. Note there is no way to update the encrypted
// number/CVV columns: UpdateStatus touches flags and the limit only, and the
// instrument itself changes exclusively through Create + Retire.
type Repository interface {
	Create(ctx context.Context, card *models.Card) (*models.Card, error)
	GetByID(ctx context.Context, id string) (*models.Card, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Card, error)
	UpdateStatus(ctx context.Context, card *models.Card) error
}
