// Package services contains the business logic of the security core: the
// card vault, device trust tracking, the audit ledger, and authentication
// orchestration. The surrounding application layer calls these services
// directly; transport and request marshalling live outside this module.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dkravets/bankvault/internal/common"
	"github.com/dkravets/bankvault/internal/cryptox"
	"github.com/dkravets/bankvault/internal/dbx"
	"github.com/dkravets/bankvault/internal/logging"
	"github.com/dkravets/bankvault/internal/server/models"
	"github.com/dkravets/bankvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// VaultService owns card records. Number and CVV are encrypted before the
// card ever reaches a repository and can only leave through RevealLastFour;
// the full plaintext number has no accessor at all.
type VaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	engine      *cryptox.Engine
	log         logging.Logger
}

func NewVaultService(db *sql.DB, m repomanager.RepositoryManager, engine *cryptox.Engine, log logging.Logger) *VaultService {
	return &VaultService{
		db:          db,
		repomanager: m,
		engine:      engine,
		log:         log.With("component", "vault"),
	}
}

// CreateCard validates, encrypts, and persists a new card. The plaintext
// number and CVV are not retained past this call.
func (s *VaultService) CreateCard(ctx context.Context, userID, holderName, number, cvv string, expiryMonth, expiryYear int, dailyLimit float64) (*models.Card, error) {
	if err := validateCardInput(holderName, number, cvv, expiryMonth, expiryYear, dailyLimit); err != nil {
		return nil, err
	}

	encryptedNumber, err := s.engine.Encrypt(number)
	if err != nil {
		return nil, fmt.Errorf("encrypting number: %w", err)
	}
	encryptedCVV, err := s.engine.Encrypt(cvv)
	if err != nil {
		return nil, fmt.Errorf("encrypting cvv: %w", err)
	}

	card := &models.Card{
		ID:              uuid.NewString(),
		UserID:          userID,
		HolderName:      holderName,
		EncryptedNumber: encryptedNumber,
		EncryptedCVV:    encryptedCVV,
		ExpiryMonth:     expiryMonth,
		ExpiryYear:      expiryYear,
		IsActive:        true,
		DailyLimit:      dailyLimit,
	}

	repo := s.repomanager.Cards(s.db)
	created, err := repo.Create(ctx, card)
	if err != nil {
		return nil, fmt.Errorf("creating card: %w", err)
	}

	return created, nil
}

func (s *VaultService) GetCard(ctx context.Context, id string) (*models.Card, error) {
	return s.repomanager.Cards(s.db).GetByID(ctx, id)
}

func (s *VaultService) ListCards(ctx context.Context, userID string) ([]*models.Card, error) {
	return s.repomanager.Cards(s.db).ListByUser(ctx, userID)
}

// RevealLastFour decrypts the number solely to derive its trailing four
// characters. The full number never leaves this method.
func (s *VaultService) RevealLastFour(card *models.Card) (string, error) {
	number, err := s.engine.Decrypt(card.EncryptedNumber)
	if err != nil {
		return "", err
	}
	runes := []rune(number)
	if len(runes) < 4 {
		return "", fmt.Errorf("%w: stored number too short", common.ErrValidation)
	}
	return string(runes[len(runes)-4:]), nil
}

// MaskedNumber is the display form: every digit hidden except the last four.
func (s *VaultService) MaskedNumber(card *models.Card) (string, error) {
	lastFour, err := s.RevealLastFour(card)
	if err != nil {
		return "", err
	}
	return "**** **** **** " + lastFour, nil
}

// Block sets is_blocked. Blocking an already-blocked card is a no-op that
// still succeeds.
func (s *VaultService) Block(ctx context.Context, id string) (*models.Card, error) {
	return s.setBlocked(ctx, id, true)
}

// Unblock clears is_blocked; idempotent like Block.
func (s *VaultService) Unblock(ctx context.Context, id string) (*models.Card, error) {
	return s.setBlocked(ctx, id, false)
}

func (s *VaultService) setBlocked(ctx context.Context, id string, blocked bool) (*models.Card, error) {
	repo := s.repomanager.Cards(s.db)

	card, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if card.IsBlocked == blocked {
		return card, nil
	}

	card.IsBlocked = blocked
	if err := repo.UpdateStatus(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

// UpdateLimit changes the daily limit. Negative limits are rejected before
// any write.
func (s *VaultService) UpdateLimit(ctx context.Context, id string, newLimit float64) (*models.Card, error) {
	if newLimit < 0 {
		return nil, fmt.Errorf("%w: daily limit must not be negative", common.ErrValidation)
	}

	repo := s.repomanager.Cards(s.db)
	card, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	card.DailyLimit = newLimit
	if err := repo.UpdateStatus(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

// Update persists flag/limit changes on a card. Any drift in the encrypted
// number or CVV against the stored row fails with ErrImmutableField: card
// replacement is the only path to change the instrument.
func (s *VaultService) Update(ctx context.Context, card *models.Card) error {
	repo := s.repomanager.Cards(s.db)

	stored, err := repo.GetByID(ctx, card.ID)
	if err != nil {
		return err
	}
	if !secretsEqual(stored.EncryptedNumber, card.EncryptedNumber) ||
		!secretsEqual(stored.EncryptedCVV, card.EncryptedCVV) {
		return common.ErrImmutableField
	}

	return repo.UpdateStatus(ctx, card)
}

// Replace creates a card with a new number/CVV and retires the old one, in
// one transaction. Holder, owner, and limit carry over.
func (s *VaultService) Replace(ctx context.Context, oldID, number, cvv string, expiryMonth, expiryYear int) (*models.Card, error) {
	old, err := s.repomanager.Cards(s.db).GetByID(ctx, oldID)
	if err != nil {
		return nil, err
	}
	if err := validateCardInput(old.HolderName, number, cvv, expiryMonth, expiryYear, old.DailyLimit); err != nil {
		return nil, err
	}

	encryptedNumber, err := s.engine.Encrypt(number)
	if err != nil {
		return nil, fmt.Errorf("encrypting number: %w", err)
	}
	encryptedCVV, err := s.engine.Encrypt(cvv)
	if err != nil {
		return nil, fmt.Errorf("encrypting cvv: %w", err)
	}

	replacement := &models.Card{
		ID:              uuid.NewString(),
		UserID:          old.UserID,
		HolderName:      old.HolderName,
		EncryptedNumber: encryptedNumber,
		EncryptedCVV:    encryptedCVV,
		ExpiryMonth:     expiryMonth,
		ExpiryYear:      expiryYear,
		IsActive:        true,
		DailyLimit:      old.DailyLimit,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Cards(tx)
		if _, err := repo.Create(ctx, replacement); err != nil {
			return fmt.Errorf("creating replacement card: %w", err)
		}
		old.IsActive = false
		if err := repo.UpdateStatus(ctx, old); err != nil {
			return fmt.Errorf("retiring card: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return replacement, nil
}

// Retire deactivates a card. Rows are never deleted; history stays intact
// for the audit trail.
func (s *VaultService) Retire(ctx context.Context, id string) error {
	repo := s.repomanager.Cards(s.db)

	card, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !card.IsActive {
		return nil
	}

	card.IsActive = false
	return repo.UpdateStatus(ctx, card)
}

func validateCardInput(holderName, number, cvv string, expiryMonth, expiryYear int, dailyLimit float64) error {
	if holderName == "" {
		return fmt.Errorf("%w: holder name is required", common.ErrValidation)
	}
	if !allDigits(number) || len(number) < 12 || len(number) > 19 {
		return fmt.Errorf("%w: card number must be 12-19 digits", common.ErrValidation)
	}
	if !allDigits(cvv) || len(cvv) < 3 || len(cvv) > 4 {
		return fmt.Errorf("%w: cvv must be 3-4 digits", common.ErrValidation)
	}
	if expiryMonth < 1 || expiryMonth > 12 {
		return fmt.Errorf("%w: expiry month out of range", common.ErrValidation)
	}
	if expiryYear < 2000 || expiryYear > time.Now().Year()+50 {
		return fmt.Errorf("%w: expiry year out of range", common.ErrValidation)
	}
	if dailyLimit < 0 {
		return fmt.Errorf("%w: daily limit must not be negative", common.ErrValidation)
	}
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func secretsEqual(a, b *cryptox.EncryptedSecret) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Scheme == b.Scheme &&
		string(a.Nonce) == string(b.Nonce) &&
		string(a.Ciphertext) == string(b.Ciphertext)
}
