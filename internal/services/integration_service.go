// Package services – IntegrationService
//
// This file implements the session-scoped OAuth handshake with external ad
// platforms. The linkage is keyed by a durable, client-generated session id
// that survives the full-page redirect: the id travels to the provider as the
// OAuth state parameter and comes back on the callback, where the connection
// row is flipped to connected. The server is the source of truth for the
// connected flag; the `{provider}_connected=true` return-URL marker is an
// optimistic client hint that the next status check reconciles (server wins).
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketlens/go-insight-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Provider holds the OAuth endpoints and client identity of one external ad
// platform.
type Provider struct {
	// Name is the URL-safe identifier, e.g. "google-ads".
	Name string
	// AuthorizeURL is the provider's OAuth authorization endpoint.
	AuthorizeURL string
	// ClientID identifies this application at the provider.
	ClientID string
	// Scopes is the space-separated OAuth scope string.
	Scopes string
}

// IntegrationService manages integration connections per session.
type IntegrationService struct {
	DB *gorm.DB

	// Providers maps provider name to its OAuth settings.
	Providers map[string]Provider

	// CallbackBase is this server's public base URL; the OAuth redirect_uri
	// is CallbackBase + /api/integrations/{provider}/callback.
	CallbackBase string

	// ReturnURL is where the browser lands after the callback; the connected
	// marker is appended to it.
	ReturnURL string
}

// NewIntegrationService constructs an IntegrationService.
func NewIntegrationService(db *gorm.DB, providers map[string]Provider, callbackBase, returnURL string) *IntegrationService {
	return &IntegrationService{
		DB:           db,
		Providers:    providers,
		CallbackBase: strings.TrimRight(callbackBase, "/"),
		ReturnURL:    returnURL,
	}
}

// AuthURL records a pending connection for (provider, sessionID) and returns
// the provider authorization URL the client must navigate to. No state flips
// to connected here; that happens only on the callback.
func (s *IntegrationService) AuthURL(ctx context.Context, provider, sessionID string) (string, error) {
	tr := otel.Tracer("services/IntegrationService")
	ctx, span := tr.Start(ctx, "AuthURL",
		trace.WithAttributes(
			attribute.String("integration.provider", provider),
		),
	)
	defer span.End()

	p, ok := s.Providers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", ErrMissingSession
	}

	if _, err := repo.EnsureConnection(ctx, s.DB, sessionID, provider); err != nil {
		return "", err
	}

	u, err := url.Parse(p.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("provider %s: bad authorize url: %w", provider, err)
	}
	q := u.Query()
	q.Set("client_id", p.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", fmt.Sprintf("%s/api/integrations/%s/callback", s.CallbackBase, provider))
	q.Set("state", sessionID)
	if p.Scopes != "" {
		q.Set("scope", p.Scopes)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// HandleCallback confirms the handshake: the state parameter carries the
// session id that began it. The connection flips to connected and the browser
// is sent back to ReturnURL with the provider's connected marker appended.
func (s *IntegrationService) HandleCallback(ctx context.Context, provider, state string) (string, error) {
	tr := otel.Tracer("services/IntegrationService")
	ctx, span := tr.Start(ctx, "HandleCallback",
		trace.WithAttributes(
			attribute.String("integration.provider", provider),
		),
	)
	defer span.End()

	if _, ok := s.Providers[provider]; !ok {
		return "", ErrUnknownProvider
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return "", ErrMissingSession
	}
	if err := repo.MarkConnected(ctx, s.DB, state, provider); err != nil {
		return "", err
	}
	return AppendMarker(s.ReturnURL, provider), nil
}

// Status answers the authoritative connection question for a session. When
// no session id exists yet, a fresh one is generated and returned with
// connected=false and no lookup is performed — there is nothing to look up.
func (s *IntegrationService) Status(ctx context.Context, provider, sessionID string) (connected bool, sid string, err error) {
	tr := otel.Tracer("services/IntegrationService")
	ctx, span := tr.Start(ctx, "Status",
		trace.WithAttributes(
			attribute.String("integration.provider", provider),
		),
	)
	defer span.End()

	if _, ok := s.Providers[provider]; !ok {
		return false, "", ErrUnknownProvider
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, uuid.NewString(), nil
	}
	connected, err = repo.IsConnected(ctx, s.DB, sessionID, provider)
	return connected, sessionID, err
}

// Disconnect clears the connection for (provider, sessionID). The confirmed
// flag carries the explicit user confirmation; declining is a no-op, not an
// error. Disconnecting a session the server never saw yields
// ErrConnectionNotFound.
func (s *IntegrationService) Disconnect(ctx context.Context, provider, sessionID string, confirmed bool) error {
	tr := otel.Tracer("services/IntegrationService")
	ctx, span := tr.Start(ctx, "Disconnect",
		trace.WithAttributes(
			attribute.String("integration.provider", provider),
		),
	)
	defer span.End()

	if _, ok := s.Providers[provider]; !ok {
		return ErrUnknownProvider
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrMissingSession
	}
	if !confirmed {
		return nil
	}
	if err := repo.Disconnect(ctx, s.DB, sessionID, provider); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConnectionNotFound
		}
		return err
	}
	return nil
}

// MarkerParam returns the query-parameter name signalling a completed
// handshake for a provider, with URL-hostile characters folded to
// underscores: "google-ads" → "google_ads_connected".
func MarkerParam(provider string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return r.Replace(provider) + "_connected"
}

// AppendMarker adds the provider's connected marker to rawURL.
func AppendMarker(rawURL, provider string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(MarkerParam(provider), "true")
	u.RawQuery = q.Encode()
	return u.String()
}

// StripMarker removes the provider's connected marker from rawURL and reports
// whether it was present with value "true". Clients use this to rewrite the
// address in place after observing the marker, leaving the rest of the URL
// byte-for-byte intact.
func StripMarker(rawURL, provider string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, false
	}
	q := u.Query()
	key := MarkerParam(provider)
	present := q.Get(key) == "true"
	if _, ok := q[key]; !ok {
		return rawURL, false
	}
	q.Del(key)
	u.RawQuery = q.Encode()
	return u.String(), present
}
