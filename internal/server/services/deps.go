// Package services contains the server-side business logic: post authoring,
// the review workflow, the due-post dispatcher, account and credential
// management, the OAuth connect flow and the analytics read view.
package services

import (
	"time"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
	"github.com/dmitrijs2005/crosspost/internal/server/platforms"
)

// Vault seals and reveals secrets at rest. *cryptox.Vault implements it.
type Vault interface {
	Seal(plaintext string) (string, error)
	Reveal(stored string) (string, error)
	RevealOptional(stored *string) (string, error)
}

// Adapters resolves the adapter for a platform. *platforms.Registry
// implements it.
type Adapters interface {
	Get(p models.Platform) (platforms.Adapter, error)
}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
