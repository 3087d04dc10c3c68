package models

import (
	"testing"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform(" LinkedIn ")
	require.NoError(t, err)
	assert.Equal(t, PlatformLinkedIn, p)

	_, err = ParsePlatform("myspace")
	assert.ErrorIs(t, err, common.ErrUnsupportedPlatform)
}

func TestTeamRole_CanReview(t *testing.T) {
	for role, want := range map[TeamRole]bool{
		RoleOwner: true, RoleAdmin: true, RoleReviewer: true,
		RoleEditor: false, RoleViewer: false, TeamRole("GUEST"): false,
	} {
		assert.Equal(t, want, role.CanReview(), role)
	}
}

func TestPostStatus_Valid(t *testing.T) {
	assert.True(t, StatusPendingReview.Valid())
	assert.False(t, PostStatus("ARCHIVED").Valid())
}
