package models

// TeamRole is a member's role within a team.
type TeamRole string

const (
	RoleOwner    TeamRole = "OWNER"
	RoleAdmin    TeamRole = "ADMIN"
	RoleReviewer TeamRole = "REVIEWER"
	RoleEditor   TeamRole = "EDITOR"
	RoleViewer   TeamRole = "VIEWER"
)

// CanReview reports whether the role may approve or reject teammates' posts.
func (r TeamRole) CanReview() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleReviewer:
		return true
	}
	return false
}
