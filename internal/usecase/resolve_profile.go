package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"crm-hub/internal/domain"
	"crm-hub/internal/metrics"
	"crm-hub/internal/retry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ResolveProfile looks up the profile of an identity under a retry policy.
// Implements domain.ProfileResolver.
type ResolveProfile struct {
	profiles domain.ProfileQuerier
	retrier  *retry.Retrier
	logger   *slog.Logger
}

// NewResolveProfile creates a new ResolveProfile usecase.
func NewResolveProfile(profiles domain.ProfileQuerier, policy retry.Policy, logger *slog.Logger) *ResolveProfile {
	logger = logger.With("component", "profile_resolver")
	return &ResolveProfile{
		profiles: profiles,
		retrier:  retry.NewRetrier(policy, logger),
		logger:   logger,
	}
}

// Resolve returns the profile of identityID. A nil profile with a nil error
// means the identity has no profile row. Running out of time yields
// ErrResolutionTimeout; running out of attempts yields ErrResolutionExhausted.
func (uc *ResolveProfile) Resolve(ctx context.Context, identityID string) (*domain.Profile, error) {
	if identityID == "" {
		return nil, domain.ErrInvalidIdentity
	}

	ctx, span := otel.Tracer("crm-hub").Start(ctx, "profile.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("identity.id", identityID))

	start := time.Now()
	var attempts atomic.Int32

	profile, err := retry.Value(ctx, uc.retrier, func(ctx context.Context) (*domain.Profile, error) {
		attempts.Add(1)
		p, err := uc.profiles.ProfileByIdentityID(ctx, identityID)
		if err != nil {
			metrics.RecordAttempt("error")
			return nil, err
		}
		metrics.RecordAttempt("success")
		return p, nil
	})
	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("resolve.attempts", int(attempts.Load())))

	if err != nil {
		outcome, mapped := classifyResolveError(err)
		metrics.RecordResolution(outcome, elapsed.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, mapped
	}

	if profile == nil {
		metrics.RecordResolution(metrics.OutcomeNoProfile, elapsed.Seconds())
		uc.logger.InfoContext(ctx, "no profile for identity", "identity_id", identityID)
		return nil, nil
	}

	metrics.RecordResolution(metrics.OutcomeResolved, elapsed.Seconds())
	return profile, nil
}

func classifyResolveError(err error) (string, error) {
	switch {
	case errors.Is(err, retry.ErrCeilingReached):
		return metrics.OutcomeTimeout, fmt.Errorf("%w: %w", domain.ErrResolutionTimeout, err)
	case errors.Is(err, retry.ErrExhausted):
		return metrics.OutcomeExhausted, fmt.Errorf("%w: %w", domain.ErrResolutionExhausted, err)
	default:
		return metrics.OutcomeCancelled, err
	}
}
