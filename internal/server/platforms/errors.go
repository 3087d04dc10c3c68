package platforms

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

// Kind classifies adapter failures.
type Kind int

const (
	// KindPlatform covers transient network and platform-side failures.
	KindPlatform Kind = iota
	// KindAuthorization means the token was rejected or has expired.
	KindAuthorization
	// KindValidation means the content breaks a platform constraint; no
	// request was sent.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	default:
		return "platform"
	}
}

// Error is the typed failure returned by every adapter. Message keeps the
// platform's own wording.
type Error struct {
	Platform models.Platform
	Kind     Kind
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Platform, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

// Is lets callers match on the common sentinels.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindAuthorization:
		return target == common.ErrTokenExpired
	case KindValidation:
		return target == common.ErrValidation
	}
	return false
}

func validationError(p models.Platform, format string, args ...any) error {
	return &Error{Platform: p, Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func authorizationError(p models.Platform, status int, msg string) error {
	return &Error{Platform: p, Kind: KindAuthorization, Status: status, Message: msg}
}

func platformError(p models.Platform, status int, msg string) error {
	return &Error{Platform: p, Kind: KindPlatform, Status: status, Message: msg}
}

// KindOf returns the kind of err, KindPlatform for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindPlatform
}
