package usecase

import "crm-hub/internal/domain"

// Shell is the dashboard variant rendered for a session.
type Shell string

const (
	ShellLoading  Shell = "loading"
	ShellLogin    Shell = "login"
	ShellInactive Shell = "inactive"
	ShellEmployee Shell = "employee"
	ShellAdmin    Shell = "admin"
)

// RouteDashboard selects the shell for state.
func RouteDashboard(state domain.SessionState) Shell {
	switch {
	case state.Loading:
		return ShellLoading
	case state.Identity == nil, state.Profile == nil:
		return ShellLogin
	case !state.Profile.IsActive:
		return ShellInactive
	case state.Profile.Role == domain.RoleAdmin:
		return ShellAdmin
	default:
		return ShellEmployee
	}
}
