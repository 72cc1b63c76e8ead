package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"crm-hub/internal/domain"

	"github.com/jackc/pgx/v5"
)

const (
	selectProfileQuery = `
		SELECT id, name, role,
		       COALESCE(position, ''), COALESCE(department, ''),
		       COALESCE(location, ''), COALESCE(phone, ''),
		       is_active
		FROM profiles
		WHERE id = $1`

	insertProfileQuery = `
		INSERT INTO profiles (id, name, role, position, department, location, phone, is_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
		ON CONFLICT (id) DO NOTHING`
)

// ProfileRepository reads and creates rows of the profiles table.
// Implements domain.ProfileStore.
type ProfileRepository struct {
	db     DatabaseIface
	logger *slog.Logger
}

// NewProfileRepository creates a new PostgreSQL profile repository.
func NewProfileRepository(db DatabaseIface, logger *slog.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger.With("component", "profile_repository"),
	}
}

// ProfileByIdentityID returns the profile keyed by identityID, or (nil, nil) when no row exists.
func (r *ProfileRepository) ProfileByIdentityID(ctx context.Context, identityID string) (*domain.Profile, error) {
	var (
		profile domain.Profile
		role    string
	)

	err := r.db.QueryRow(ctx, selectProfileQuery, identityID).Scan(
		&profile.IdentityID,
		&profile.Name,
		&role,
		&profile.Position,
		&profile.Department,
		&profile.Location,
		&profile.Phone,
		&profile.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	profile.Role, err = domain.ParseRole(role)
	if err != nil {
		r.logger.ErrorContext(ctx, "profile has unknown role", "identity_id", identityID, "role", role)
		return nil, err
	}
	return &profile, nil
}

// CreateProfile inserts profile. An existing row for the same identity is left untouched.
func (r *ProfileRepository) CreateProfile(ctx context.Context, profile *domain.Profile) error {
	if profile == nil || profile.IdentityID == "" {
		return domain.ErrInvalidIdentity
	}
	if _, err := domain.ParseRole(string(profile.Role)); err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, insertProfileQuery,
		profile.IdentityID,
		profile.Name,
		string(profile.Role),
		profile.Position,
		profile.Department,
		profile.Location,
		profile.Phone,
		profile.IsActive,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.InfoContext(ctx, "profile already exists", "identity_id", profile.IdentityID)
	}
	return nil
}
