package handler

import (
	"crm-hub/internal/domain"
	"crm-hub/internal/usecase"
)

// identityResponse represents the identity object in responses.
type identityResponse struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// profileResponse represents the profile object in responses.
type profileResponse struct {
	IdentityID string `json:"identityId"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Position   string `json:"position,omitempty"`
	Department string `json:"department,omitempty"`
	Location   string `json:"location,omitempty"`
	Phone      string `json:"phone,omitempty"`
	IsActive   bool   `json:"isActive"`
}

// sessionResponse is the JSON view of a controller snapshot.
type sessionResponse struct {
	OK         bool              `json:"ok"`
	Loading    bool              `json:"loading"`
	Phase      string            `json:"phase"`
	Identity   *identityResponse `json:"identity"`
	Profile    *profileResponse  `json:"profile"`
	RedirectTo string            `json:"redirectTo,omitempty"`
	Shell      string            `json:"shell"`
}

func newSessionResponse(state domain.SessionState) sessionResponse {
	resp := sessionResponse{
		OK:         state.Phase == domain.PhaseAuthenticated,
		Loading:    state.Loading,
		Phase:      string(state.Phase),
		RedirectTo: state.RedirectTo,
		Shell:      string(usecase.RouteDashboard(state)),
	}
	if state.Identity != nil {
		resp.Identity = &identityResponse{
			ID:       state.Identity.ID,
			Email:    state.Identity.Email,
			Metadata: state.Identity.Metadata,
		}
	}
	if p := state.Profile; p != nil {
		resp.Profile = &profileResponse{
			IdentityID: p.IdentityID,
			Name:       p.Name,
			Role:       string(p.Role),
			Position:   p.Position,
			Department: p.Department,
			Location:   p.Location,
			Phone:      p.Phone,
			IsActive:   p.IsActive,
		}
	}
	return resp
}
