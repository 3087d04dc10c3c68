// Package oauthstate keeps pending OAuth authorization attempts keyed by
// their state token. A state can be taken exactly once and expires after a
// short TTL.
package oauthstate

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// Pending is what the authorize step remembers for the callback.
//
// State is the token as issued, kept so the callback can be checked against
// the record and not only against the lookup key.
type Pending struct {
	State     string          `json:"state"`
	Platform  models.Platform `json:"platform"`
	UserID    string          `json:"user_id"`
	Verifier  string          `json:"verifier,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store saves and consumes pending attempts.
type Store interface {
	Save(ctx context.Context, state string, p Pending, ttl time.Duration) error
	// Take returns and deletes the attempt. Unknown, expired or already
	// consumed states yield common.ErrInvalidState.
	Take(ctx context.Context, state string) (*Pending, error)
}

// NewState returns an unguessable state token (256 bits, hex).
func NewState() (string, error) {
	return common.MakeRandHexString(32)
}
