package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkravets/bankvault/internal/common"
	"github.com/dkravets/bankvault/internal/cryptox"
	"github.com/dkravets/bankvault/internal/logging"
	"github.com/dkravets/bankvault/internal/riskscore"
	"github.com/dkravets/bankvault/internal/server/auth"
	"github.com/dkravets/bankvault/internal/server/config"
	"github.com/dkravets/bankvault/internal/server/models"
	"github.com/dkravets/bankvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// FaceMatcher resolves an input image against the reference gallery.
// Implemented by biometric.Matcher.
type FaceMatcher interface {
	Match(ctx context.Context, imageBytes []byte) (*models.MatchResult, error)
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthnService orchestrates authentication: credential or face login, device
// sighting, audit append, token minting. Biometric failure detail never
// reaches the caller; externally every failed attempt is the same
// ErrUnauthorized, so an attacker cannot probe which factor failed.
type AuthnService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	matcher      FaceMatcher
	devices      *DeviceService
	audit        *AuditService
	jwtSecret    []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
	matchTimeout time.Duration
	log          logging.Logger
}

func NewAuthnService(db *sql.DB, m repomanager.RepositoryManager, matcher FaceMatcher, devices *DeviceService, auditSvc *AuditService, cfg *config.Config, log logging.Logger) *AuthnService {
	return &AuthnService{
		db:           db,
		repomanager:  m,
		matcher:      matcher,
		devices:      devices,
		audit:        auditSvc,
		jwtSecret:    []byte(cfg.SecretKey),
		accessTTL:    cfg.AccessTokenValidityDuration,
		refreshTTL:   cfg.RefreshTokenValidityDuration,
		matchTimeout: cfg.MatchTimeout,
		log:          log.With("component", "authn"),
	}
}

// Register creates an account. The password is stretched into an argon2id
// verifier under a per-user salt; the plaintext is not retained.
func (s *AuthnService) Register(ctx context.Context, email, password string) (*models.User, error) {
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", common.ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", common.ErrValidation)
	}

	salt := common.GenerateRandByteArray(32)
	user := &models.User{
		ID:       uuid.NewString(),
		Email:    email,
		Salt:     salt,
		Verifier: cryptox.DeriveKey([]byte(password), salt),
	}

	created, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return created, nil
}

// LoginPassword verifies credentials and, on success, runs the shared login
// flow. Unknown accounts and wrong passwords are indistinguishable to the
// caller.
func (s *AuthnService) LoginPassword(ctx context.Context, email, password, ip, userAgent string) (*TokenPair, *models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil, s.failLogin(ctx, nil, ip, "unknown account")
		}
		return nil, nil, fmt.Errorf("looking up user: %w", err)
	}

	candidate := cryptox.DeriveKey([]byte(password), user.Salt)
	if subtle.ConstantTimeCompare(user.Verifier, candidate) != 1 {
		return nil, nil, s.failLogin(ctx, &user.ID, ip, "wrong password")
	}

	pair, err := s.finishLogin(ctx, user, ip, userAgent)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// LoginFace authenticates from a live face image. The whole attempt is
// bounded by the configured match timeout; a timed-out or failed match is a
// plain authentication failure, with detail kept in the logs only.
func (s *AuthnService) LoginFace(ctx context.Context, imageBytes []byte, ip, userAgent string) (*TokenPair, *models.User, error) {
	matchCtx := ctx
	if s.matchTimeout > 0 {
		var cancel context.CancelFunc
		matchCtx, cancel = context.WithTimeout(ctx, s.matchTimeout)
		defer cancel()
	}

	result, err := s.matcher.Match(matchCtx, imageBytes)
	if err != nil {
		if isMatchFailure(err) {
			s.log.Warn(ctx, "face match did not complete", "reason", err.Error())
			return nil, nil, s.failLogin(ctx, nil, ip, "face not recognized")
		}
		// infrastructure failure (gallery store, scratch space): not an
		// authentication verdict
		return nil, nil, fmt.Errorf("face match: %w", err)
	}

	if !result.Matched {
		s.log.Info(ctx, "face not recognized", "distance", result.Distance, "threshold", result.Threshold)
		return nil, nil, s.failLogin(ctx, nil, ip, "face not recognized")
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, result.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// gallery references an account that no longer exists
			s.log.Error(ctx, "matched gallery user missing", "user_id", result.UserID)
			return nil, nil, s.failLogin(ctx, nil, ip, "face not recognized")
		}
		return nil, nil, fmt.Errorf("looking up matched user: %w", err)
	}

	pair, err := s.finishLogin(ctx, user, ip, userAgent)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Logout records the logout in the ledger. Tokens are stateless; the client
// discards them.
func (s *AuthnService) Logout(ctx context.Context, userID, ip string) error {
	_, err := s.audit.Record(ctx, &userID, models.ActionLogout, ip, nil, riskscore.Signals{})
	return err
}

// finishLogin is the shared success path: device sighting, LOGIN audit
// entry with full context, token pair. An audit append failure fails the
// login even though the credentials were good.
func (s *AuthnService) finishLogin(ctx context.Context, user *models.User, ip, userAgent string) (*TokenPair, error) {
	device, created, err := s.devices.RecordSighting(ctx, user.ID, ip, userAgent)
	if err != nil {
		return nil, err
	}

	signals := riskscore.Signals{
		UntrustedDevice: !device.IsTrusted,
		NewDevice:       created,
	}
	details := map[string]string{
		"device_id": device.ID,
		"os":        device.OS,
		"browser":   device.Browser,
	}
	if _, err := s.audit.Record(ctx, &user.ID, models.ActionLogin, ip, details, signals); err != nil {
		return nil, err
	}

	access, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTTL)
	if err != nil {
		return nil, common.ErrInternal
	}
	refresh, err := auth.GenerateToken(user.ID, s.jwtSecret, s.refreshTTL)
	if err != nil {
		return nil, common.ErrInternal
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// failLogin records the failed attempt and returns the uniform external
// error. If the ledger itself fails, that error wins: an unrecorded failed
// attempt must not pass silently.
func (s *AuthnService) failLogin(ctx context.Context, userID *string, ip, reason string) error {
	details := map[string]string{"reason": reason}
	if _, err := s.audit.Record(ctx, userID, models.ActionFailedLogin, ip, details, riskscore.Signals{}); err != nil {
		return err
	}
	return common.ErrUnauthorized
}

// isMatchFailure reports whether err is a per-attempt verdict (bad input,
// empty gallery, extraction problem, timeout) rather than an infrastructure
// failure.
func isMatchFailure(err error) bool {
	return errors.Is(err, common.ErrInvalidImage) ||
		errors.Is(err, common.ErrNoGallery) ||
		errors.Is(err, common.ErrExtraction) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
