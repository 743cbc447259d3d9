package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkravets/bankvault/internal/common"
	"github.com/dkravets/bankvault/internal/dbx"
	"github.com/dkravets/bankvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, device *models.Device) (*models.Device, error) {

	// Lookup-or-create in one statement. OS/browser are frozen at first
	// sight; a conflict only refreshes last_login.
	query :=
		`INSERT INTO devices (id, user_id, ip_address, user_agent, os, browser, last_login)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (user_id, ip_address, user_agent)
		 DO UPDATE SET last_login = now()
		 RETURNING id, os, browser, is_trusted, last_login
		 `

	err := r.db.QueryRowContext(ctx, query,
		device.ID, device.UserID, device.IPAddress, device.UserAgent, device.OS, device.Browser).
		Scan(&device.ID, &device.OS, &device.Browser, &device.IsTrusted, &device.LastLogin)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return device, nil
}

func (r *PostgresRepository) MarkTrusted(ctx context.Context, id string) error {
	query :=
		`UPDATE devices SET is_trusted = true
		 WHERE id = $1
		 RETURNING id
		 `

	var got string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&got)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	query :=
		`SELECT id, user_id, ip_address, user_agent, os, browser, is_trusted, last_login
		 FROM devices
		 WHERE id = $1
		 `

	device := &models.Device{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&device.ID, &device.UserID, &device.IPAddress, &device.UserAgent,
		&device.OS, &device.Browser, &device.IsTrusted, &device.LastLogin)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return device, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Device, error) {
	query :=
		`SELECT id, user_id, ip_address, user_agent, os, browser, is_trusted, last_login
		 FROM devices
		 WHERE user_id = $1
		 ORDER BY last_login DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Device
	for rows.Next() {
		device := &models.Device{}
		if err := rows.Scan(
			&device.ID, &device.UserID, &device.IPAddress, &device.UserAgent,
			&device.OS, &device.Browser, &device.IsTrusted, &device.LastLogin); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
