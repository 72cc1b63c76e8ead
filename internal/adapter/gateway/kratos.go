package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"crm-hub/internal/domain"

	kratos "github.com/ory/kratos-client-go"
)

// kratosIdentityExists is the Kratos UI message id for a duplicate identifier.
const kratosIdentityExists = "4000007"

// KratosGateway talks to the Kratos public API using native (API) flows.
// It is stateless: session tokens are handed back to the caller.
type KratosGateway struct {
	client  *kratos.APIClient
	timeout time.Duration
}

// NewKratosGateway creates a new Kratos gateway with tuned HTTP transport.
func NewKratosGateway(baseURL string, timeout time.Duration) *KratosGateway {
	configuration := kratos.NewConfiguration()
	configuration.Servers = []kratos.ServerConfiguration{
		{URL: baseURL},
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	configuration.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}

	return &KratosGateway{
		client:  kratos.NewAPIClient(configuration),
		timeout: timeout,
	}
}

// Login runs a native password login flow and returns the identity and its session token.
func (g *KratosGateway) Login(ctx context.Context, email, password string) (*domain.Identity, string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	flow, resp, err := g.client.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return nil, "", unavailable(resp, err)
	}

	body := kratos.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&kratos.UpdateLoginFlowWithPasswordMethod{
		Method:     "password",
		Identifier: email,
		Password:   password,
	})
	result, resp, err := g.client.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.GetId()).
		UpdateLoginFlowBody(body).
		Execute()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized) {
			return nil, "", domain.ErrInvalidCredentials
		}
		return nil, "", unavailable(resp, err)
	}

	session := result.GetSession()
	identity, err := identityFromSession(&session)
	if err != nil {
		return nil, "", err
	}
	return identity, result.GetSessionToken(), nil
}

// Register runs a native password registration flow. metadata is merged into
// the identity traits next to the email.
func (g *KratosGateway) Register(ctx context.Context, email, password string, metadata map[string]string) (*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	flow, resp, err := g.client.FrontendAPI.CreateNativeRegistrationFlow(ctx).Execute()
	if err != nil {
		return nil, unavailable(resp, err)
	}

	traits := map[string]interface{}{"email": email}
	for k, v := range metadata {
		if k != "email" {
			traits[k] = v
		}
	}
	body := kratos.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(&kratos.UpdateRegistrationFlowWithPasswordMethod{
		Method:   "password",
		Password: password,
		Traits:   traits,
	})
	result, resp, err := g.client.FrontendAPI.UpdateRegistrationFlow(ctx).
		Flow(flow.GetId()).
		UpdateRegistrationFlowBody(body).
		Execute()
	if err != nil {
		return nil, registrationError(resp, err)
	}

	identity := result.GetIdentity()
	return toDomainIdentity(&identity)
}

// Whoami resolves a session token to its identity. Unknown or expired tokens yield ErrNoSession.
func (g *KratosGateway) Whoami(ctx context.Context, sessionToken string) (*domain.Identity, error) {
	if sessionToken == "" {
		return nil, domain.ErrNoSession
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	session, resp, err := g.client.FrontendAPI.ToSession(ctx).XSessionToken(sessionToken).Execute()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, domain.ErrNoSession
		}
		return nil, unavailable(resp, err)
	}
	return identityFromSession(session)
}

// Logout revokes a session token. Already revoked tokens are not an error.
func (g *KratosGateway) Logout(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.FrontendAPI.PerformNativeLogout(ctx).
		PerformNativeLogoutBody(kratos.PerformNativeLogoutBody{SessionToken: sessionToken}).
		Execute()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil
		}
		return unavailable(resp, err)
	}
	return nil
}

func identityFromSession(session *kratos.Session) (*domain.Identity, error) {
	if session.Active != nil && !*session.Active {
		return nil, domain.ErrNoSession
	}
	if session.Identity == nil {
		return nil, domain.ErrInvalidIdentity
	}
	return toDomainIdentity(session.Identity)
}

// toDomainIdentity maps Kratos traits: email becomes Email, string traits become metadata.
func toDomainIdentity(identity *kratos.Identity) (*domain.Identity, error) {
	if identity.Id == "" {
		return nil, domain.ErrInvalidIdentity
	}

	result := &domain.Identity{ID: identity.Id}
	traits, ok := identity.Traits.(map[string]interface{})
	if !ok {
		return result, nil
	}
	for k, v := range traits {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if k == "email" {
			result.Email = s
			continue
		}
		if result.Metadata == nil {
			result.Metadata = make(map[string]string)
		}
		result.Metadata[k] = s
	}
	return result, nil
}

func registrationError(resp *http.Response, err error) error {
	if resp == nil {
		return unavailable(resp, err)
	}
	switch resp.StatusCode {
	case http.StatusConflict:
		return domain.ErrIdentityExists
	case http.StatusBadRequest:
		var apiErr *kratos.GenericOpenAPIError
		if errors.As(err, &apiErr) && bytes.Contains(apiErr.Body(), []byte(kratosIdentityExists)) {
			return domain.ErrIdentityExists
		}
		return domain.ErrRegistrationFailed
	}
	return unavailable(resp, err)
}

func unavailable(resp *http.Response, err error) error {
	if resp != nil {
		return fmt.Errorf("%w: kratos returned status %d", domain.ErrBackendUnavailable, resp.StatusCode)
	}
	return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
}
