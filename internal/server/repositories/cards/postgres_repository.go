package cards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkravets/bankvault/internal/common"
	"github.com/dkravets/bankvault/internal/cryptox"
	"github.com/dkravets/bankvault/internal/dbx"
	"github.com/dkravets/bankvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const cardColumns = `id, user_id, holder_name, scheme,
		encrypted_number, number_nonce, encrypted_cvv, cvv_nonce,
		expiry_month, expiry_year, is_active, is_blocked, daily_limit,
		created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, card *models.Card) (*models.Card, error) {

	query :=
		`INSERT INTO cards (id, user_id, holder_name, scheme,
			encrypted_number, number_nonce, encrypted_cvv, cvv_nonce,
			expiry_month, expiry_year, is_active, is_blocked, daily_limit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		card.ID, card.UserID, card.HolderName, card.EncryptedNumber.Scheme,
		card.EncryptedNumber.Ciphertext, card.EncryptedNumber.Nonce,
		card.EncryptedCVV.Ciphertext, card.EncryptedCVV.Nonce,
		card.ExpiryMonth, card.ExpiryYear, card.IsActive, card.IsBlocked, card.DailyLimit).
		Scan(&card.CreatedAt, &card.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return card, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1`

	card, err := scanCard(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return card, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

// UpdateStatus persists the mutable part of a card: active/blocked flags and
// the daily limit. Encrypted columns are deliberately absent from the query.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, card *models.Card) error {
	query :=
		`UPDATE cards
		 SET is_active = $2, is_blocked = $3, daily_limit = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		card.ID, card.IsActive, card.IsBlocked, card.DailyLimit).Scan(&card.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	card := &models.Card{
		EncryptedNumber: &cryptox.EncryptedSecret{},
		EncryptedCVV:    &cryptox.EncryptedSecret{},
	}
	var scheme string

	err := row.Scan(
		&card.ID, &card.UserID, &card.HolderName, &scheme,
		&card.EncryptedNumber.Ciphertext, &card.EncryptedNumber.Nonce,
		&card.EncryptedCVV.Ciphertext, &card.EncryptedCVV.Nonce,
		&card.ExpiryMonth, &card.ExpiryYear, &card.IsActive, &card.IsBlocked, &card.DailyLimit,
		&card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return nil, err
	}

	card.EncryptedNumber.Scheme = scheme
	card.EncryptedCVV.Scheme = scheme
	return card, nil
}
