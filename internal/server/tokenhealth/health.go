// Package tokenhealth classifies stored access tokens by their expiry.
package tokenhealth

import (
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// Status is the health of one account's token.
type Status string

const (
	Valid        Status = "VALID"
	ExpiringSoon Status = "EXPIRING_SOON"
	Expired      Status = "EXPIRED"
)

// Horizon is how far ahead an expiry counts as "soon".
const Horizon = 7 * 24 * time.Hour

// Classify is a pure function of the expiry. A token without a known
// expiry is treated as valid.
func Classify(expiresAt *time.Time, now time.Time) Status {
	if expiresAt == nil {
		return Valid
	}
	if !expiresAt.After(now) {
		return Expired
	}
	if expiresAt.Sub(now) <= Horizon {
		return ExpiringSoon
	}
	return Valid
}

// ClassifyAccount is Classify over an account's token expiry.
func ClassifyAccount(account *models.SocialAccount, now time.Time) Status {
	return Classify(account.TokenExpiresAt, now)
}

// Publishable reports whether a publish attempt should be made at all.
func (s Status) Publishable() bool {
	return s != Expired
}

// NeedsReconnect reports whether the UI should prompt the user.
func (s Status) NeedsReconnect() bool {
	return s != Valid
}
