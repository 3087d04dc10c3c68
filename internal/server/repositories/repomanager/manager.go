package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/crosspost/internal/dbx"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/posts"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/targets"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/teams"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// path works inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Posts(db dbx.DBTX) posts.Repository
	Targets(db dbx.DBTX) targets.Repository
	Accounts(db dbx.DBTX) accounts.Repository
	Credentials(db dbx.DBTX) credentials.Repository
	Teams(db dbx.DBTX) teams.Repository
}
