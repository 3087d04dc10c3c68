package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
)

// Platform identifies a destination network.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTwitter   Platform = "twitter"
)

// Platforms lists every supported destination.
var Platforms = []Platform{PlatformFacebook, PlatformInstagram, PlatformLinkedIn, PlatformTwitter}

// ParsePlatform normalizes s to a known Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnsupportedPlatform, s)
}

// AccountType distinguishes publishable pages from personal profiles.
type AccountType string

const (
	AccountPage    AccountType = "page"
	AccountProfile AccountType = "profile"
)

// SocialAccount is a user's binding to one identity on one platform.
// AccessToken and RefreshToken hold vault output, never plaintext.
type SocialAccount struct {
	ID                string
	UserID            string
	Platform          Platform
	PlatformAccountID string
	DisplayName       string
	AvatarURL         *string
	AccountType       AccountType
	AccessToken       string
	RefreshToken      *string
	TokenExpiresAt    *time.Time
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Credential is a user-supplied OAuth app for one platform, sealed at rest.
type Credential struct {
	ID           string
	UserID       string
	Platform     Platform
	ClientID     string
	ClientSecret string
	UpdatedAt    time.Time
}

// PublishedTarget is the read-only analytics view of a delivered target.
// AccessToken is sealed.
type PublishedTarget struct {
	TargetID       string
	PostID         string
	AccountID      string
	Platform       Platform
	PlatformPostID string
	AccessToken    string
	PublishedAt    time.Time
}
