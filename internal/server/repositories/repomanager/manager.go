package repomanager

import (
	"context"
	"database/sql"

	"github.com/ttm0z/stock-analyzer-sub001/internal/dbx"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/repositories/apikeys"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/repositories/preferences"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/repositories/sessions"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/repositories/users"
)

// RepositoryManager vends Identity Store repositories bound to a DBTX, so
// services can run them either on the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	APIKeys(db dbx.DBTX) apikeys.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Preferences(db dbx.DBTX) preferences.Repository
}
