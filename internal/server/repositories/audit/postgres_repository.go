package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dkravets/bankvault/internal/dbx"
	"github.com/dkravets/bankvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, entry *models.AuditEntry) (*models.AuditEntry, error) {

	details := entry.Details
	if details == nil {
		details = map[string]string{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("details marshal: %w", err)
	}

	query :=
		`INSERT INTO audit_log (id, user_id, action, ip_address, details, risk_score)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		entry.ID, entry.UserID, string(entry.Action), entry.IPAddress, payload, entry.RiskScore).
		Scan(&entry.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entry, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, filter Filter) ([]*models.AuditEntry, error) {

	var sb strings.Builder
	sb.WriteString(
		`SELECT id, user_id, action, ip_address, details, risk_score, created_at
		 FROM audit_log
		 WHERE user_id = $1`)

	args := []any{userID}

	if len(filter.Actions) > 0 {
		kinds := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			kinds[i] = string(a)
		}
		args = append(args, kinds)
		sb.WriteString(" AND action = ANY($" + strconv.Itoa(len(args)) + ")")
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		sb.WriteString(" AND created_at >= $" + strconv.Itoa(len(args)))
	}

	sb.WriteString(" ORDER BY created_at DESC")

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditEntry
	for rows.Next() {
		entry := &models.AuditEntry{}
		var action string
		var payload []byte
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &action, &entry.IPAddress,
			&payload, &entry.RiskScore, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		entry.Action = models.ActionKind(action)
		if err := json.Unmarshal(payload, &entry.Details); err != nil {
			return nil, fmt.Errorf("details unmarshal: %w", err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) CountConsecutiveFailures(ctx context.Context, ip string) (int, error) {

	// Failures since the last successful login from this address. COALESCE
	// to epoch covers addresses that have never logged in successfully.
	query :=
		`SELECT count(*) FROM audit_log
		 WHERE ip_address = $1 AND action = 'FAILED_LOGIN'
		   AND created_at > COALESCE(
			(SELECT max(created_at) FROM audit_log WHERE ip_address = $1 AND action = 'LOGIN'),
			'epoch')
		 `

	var count int
	if err := r.db.QueryRowContext(ctx, query, ip).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}
