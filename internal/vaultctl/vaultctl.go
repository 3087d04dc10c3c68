// Package vaultctl implements the credential vault maintenance commands:
// reporting how many stored secrets are still plaintext and sealing them in
// place once a key has been rolled out.
package vaultctl

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/cryptox"
	"github.com/dmitrijs2005/crosspost/internal/dbx"
	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/repositories/repomanager"
)

// Report counts stored secrets by kind.
type Report struct {
	Accounts          int
	LegacyTokens      int
	Credentials       int
	LegacyCredentials int
}

func (r Report) Print(w io.Writer) {
	fmt.Fprintf(w, "accounts:    %d (%d with plaintext tokens)\n", r.Accounts, r.LegacyTokens)
	fmt.Fprintf(w, "credentials: %d (%d with plaintext secrets)\n", r.Credentials, r.LegacyCredentials)
}

type Tool struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	vault       *cryptox.Vault
	log         logging.Logger
}

func NewTool(db *sql.DB, m repomanager.RepositoryManager, vault *cryptox.Vault, log logging.Logger) *Tool {
	return &Tool{db: db, repomanager: m, vault: vault, log: log.With("module", "vaultctl")}
}

func legacyAccount(a *models.SocialAccount) bool {
	if a.AccessToken != "" && !cryptox.IsSealed(a.AccessToken) {
		return true
	}
	return a.RefreshToken != nil && *a.RefreshToken != "" && !cryptox.IsSealed(*a.RefreshToken)
}

func legacyCredential(c *models.Credential) bool {
	return !cryptox.IsSealed(c.ClientID) || !cryptox.IsSealed(c.ClientSecret)
}

// Status counts legacy plaintext secrets without changing anything.
func (t *Tool) Status(ctx context.Context) (*Report, error) {
	accounts, err := t.repomanager.Accounts(t.db).ListAll(ctx)
	if err != nil {
		return nil, err
	}
	creds, err := t.repomanager.Credentials(t.db).ListAll(ctx)
	if err != nil {
		return nil, err
	}

	r := &Report{Accounts: len(accounts), Credentials: len(creds)}
	for _, a := range accounts {
		if legacyAccount(a) {
			r.LegacyTokens++
		}
	}
	for _, c := range creds {
		if legacyCredential(c) {
			r.LegacyCredentials++
		}
	}
	return r, nil
}

// SealLegacy seals every plaintext token and credential in one transaction
// and reports how many rows it rewrote. Already sealed values are left as
// they are, so running it twice is harmless.
func (t *Tool) SealLegacy(ctx context.Context) (*Report, error) {
	if !t.vault.Enabled() {
		return nil, common.ErrVaultLocked
	}

	r := &Report{}
	err := dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accounts, err := t.repomanager.Accounts(tx).ListAll(ctx)
		if err != nil {
			return err
		}
		r.Accounts = len(accounts)
		for _, a := range accounts {
			if !legacyAccount(a) {
				continue
			}
			access, err := t.seal(a.AccessToken)
			if err != nil {
				return err
			}
			var refresh *string
			if a.RefreshToken != nil && *a.RefreshToken != "" {
				sealed, err := t.seal(*a.RefreshToken)
				if err != nil {
					return err
				}
				refresh = &sealed
			}
			if err := t.repomanager.Accounts(tx).UpdateTokens(ctx, a.ID, access, refresh, a.TokenExpiresAt); err != nil {
				return err
			}
			r.LegacyTokens++
		}

		creds, err := t.repomanager.Credentials(tx).ListAll(ctx)
		if err != nil {
			return err
		}
		r.Credentials = len(creds)
		for _, c := range creds {
			if !legacyCredential(c) {
				continue
			}
			if c.ClientID, err = t.seal(c.ClientID); err != nil {
				return err
			}
			if c.ClientSecret, err = t.seal(c.ClientSecret); err != nil {
				return err
			}
			if err := t.repomanager.Credentials(tx).Upsert(ctx, c); err != nil {
				return err
			}
			r.LegacyCredentials++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.log.Info(ctx, "legacy secrets sealed", "accounts", r.LegacyTokens, "credentials", r.LegacyCredentials)
	return r, nil
}

// seal leaves sealed values untouched.
func (t *Tool) seal(v string) (string, error) {
	if cryptox.IsSealed(v) {
		return v, nil
	}
	return t.vault.Seal(v)
}
