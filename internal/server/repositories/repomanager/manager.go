// Package repomanager hands out repositories bound to a database handle
// (either *sql.DB or an open transaction) and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dkravets/bankvault/internal/dbx"
	"github.com/dkravets/bankvault/internal/server/repositories/audit"
	"github.com/dkravets/bankvault/internal/server/repositories/cards"
	"github.com/dkravets/bankvault/internal/server/repositories/devices"
	"github.com/dkravets/bankvault/internal/server/repositories/users"
)

type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	Cards(db dbx.DBTX) cards.Repository
	Devices(db dbx.DBTX) devices.Repository
	Audit(db dbx.DBTX) audit.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
