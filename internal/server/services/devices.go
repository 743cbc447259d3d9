package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dkravets/bankvault/internal/common"
	"github.com/dkravets/bankvault/internal/logging"
	"github.com/dkravets/bankvault/internal/server/models"
	"github.com/dkravets/bankvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/mileusna/useragent"
)

// DeviceService tracks the devices a user logs in from, keyed by the
// (user, ip, user-agent) triple.
type DeviceService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewDeviceService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *DeviceService {
	return &DeviceService{
		db:          db,
		repomanager: m,
		log:         log.With("component", "devices"),
	}
}

// RecordSighting registers that user was seen from (ip, userAgent). First
// sight creates the device untrusted with OS/browser derived from the
// user-agent string; later sightings only bump last_login. The underlying
// upsert is a single atomic statement, so concurrent sightings of the same
// triple converge on one row. The created flag reports whether this call
// inserted the row.
func (s *DeviceService) RecordSighting(ctx context.Context, userID, ip, userAgent string) (*models.Device, bool, error) {
	if userID == "" || ip == "" {
		return nil, false, fmt.Errorf("%w: user and ip are required", common.ErrValidation)
	}

	ua := useragent.Parse(userAgent)

	candidateID := uuid.NewString()
	device := &models.Device{
		ID:        candidateID,
		UserID:    userID,
		IPAddress: ip,
		UserAgent: userAgent,
		OS:        ua.OS,
		Browser:   ua.Name,
	}

	repo := s.repomanager.Devices(s.db)
	device, err := repo.Upsert(ctx, device)
	if err != nil {
		return nil, false, fmt.Errorf("recording device sighting: %w", err)
	}

	// the upsert returns the surviving row's id: ours means we inserted it
	created := device.ID == candidateID

	return device, created, nil
}

// MarkTrusted flags a device as trusted. Never called implicitly; trust is
// always an explicit decision.
func (s *DeviceService) MarkTrusted(ctx context.Context, deviceID string) error {
	return s.repomanager.Devices(s.db).MarkTrusted(ctx, deviceID)
}

func (s *DeviceService) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	return s.repomanager.Devices(s.db).GetByID(ctx, deviceID)
}

func (s *DeviceService) ListDevices(ctx context.Context, userID string) ([]*models.Device, error) {
	return s.repomanager.Devices(s.db).ListByUser(ctx, userID)
}
