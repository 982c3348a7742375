package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketlens/go-insight-backend/internal/repo"
)

const sessionID = "4d0f3f7e-7b57-4e7c-9f33-2d6c1a9b8f10"

func newIntegrationService(t *testing.T) (*IntegrationService, *gorm.DB) {
	t.Helper()
	db := newServiceDB(t)
	svc := NewIntegrationService(db, map[string]Provider{
		"google-analytics": {
			Name:         "google-analytics",
			AuthorizeURL: "https://provider.test/o/oauth2/auth",
			ClientID:     "client-123",
			Scopes:       "analytics.readonly",
		},
	}, "https://api.test/", "https://app.test/dashboard?tab=insights")
	return svc, db
}

func TestAuthURL_BuildsConsentURLWithSessionState(t *testing.T) {
	svc, db := newIntegrationService(t)
	ctx := context.Background()

	if _, err := svc.AuthURL(ctx, "nope", sessionID); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if _, err := svc.AuthURL(ctx, "google-analytics", "  "); !errors.Is(err, ErrMissingSession) {
		t.Fatalf("expected ErrMissingSession, got %v", err)
	}

	raw, err := svc.AuthURL(ctx, "google-analytics", sessionID)
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("state") != sessionID {
		t.Fatalf("session id must ride as the state parameter, got %q", q.Get("state"))
	}
	if q.Get("client_id") != "client-123" || q.Get("response_type") != "code" {
		t.Fatalf("unexpected query: %v", q)
	}
	if q.Get("redirect_uri") != "https://api.test/api/integrations/google-analytics/callback" {
		t.Fatalf("unexpected redirect_uri: %q", q.Get("redirect_uri"))
	}

	// The pending row exists and is not yet connected.
	conn, err := repo.GetConnection(ctx, db, sessionID, "google-analytics")
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if conn.Connected {
		t.Fatal("minting the consent URL must not connect the session")
	}
}

func TestHandshake_CallbackConnectsAndServerIsAuthoritative(t *testing.T) {
	svc, _ := newIntegrationService(t)
	ctx := context.Background()

	if _, err := svc.AuthURL(ctx, "google-analytics", sessionID); err != nil {
		t.Fatalf("auth url: %v", err)
	}

	target, err := svc.HandleCallback(ctx, "google-analytics", sessionID)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	u, err := url.Parse(target)
	if err != nil {
		t.Fatalf("parse return url: %v", err)
	}
	if u.Query().Get("google_analytics_connected") != "true" {
		t.Fatalf("return url must carry the marker: %q", target)
	}
	if u.Query().Get("tab") != "insights" {
		t.Fatalf("existing return-url params must survive: %q", target)
	}

	// The connected flag is answered by the server, regardless of whether the
	// client ever observed the marker.
	connected, sid, err := svc.Status(ctx, "google-analytics", sessionID)
	if err != nil || !connected || sid != sessionID {
		t.Fatalf("status after callback: connected=%v sid=%q err=%v", connected, sid, err)
	}
}

func TestStatus_MissingSessionMintsOne(t *testing.T) {
	svc, db := newIntegrationService(t)
	ctx := context.Background()

	connected, sid, err := svc.Status(ctx, "google-analytics", "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if connected {
		t.Fatal("fresh session cannot be connected")
	}
	if _, err := uuid.Parse(sid); err != nil {
		t.Fatalf("expected a freshly minted UUID, got %q", sid)
	}

	// No lookup and no row: the id is for the client to adopt.
	var count int64
	if err := db.Table("integration_connections").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("minting a session id must not create rows, got %d", count)
	}
}

func TestDisconnect_RequiresConfirmation(t *testing.T) {
	svc, _ := newIntegrationService(t)
	ctx := context.Background()

	if _, err := svc.HandleCallback(ctx, "google-analytics", sessionID); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Declining the confirmation changes nothing.
	if err := svc.Disconnect(ctx, "google-analytics", sessionID, false); err != nil {
		t.Fatalf("unconfirmed disconnect must be a no-op, got %v", err)
	}
	connected, _, _ := svc.Status(ctx, "google-analytics", sessionID)
	if !connected {
		t.Fatal("unconfirmed disconnect must not change state")
	}

	if err := svc.Disconnect(ctx, "google-analytics", sessionID, true); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	connected, _, _ = svc.Status(ctx, "google-analytics", sessionID)
	if connected {
		t.Fatal("confirmed disconnect must clear the connection")
	}

	// A session the server never saw yields a typed error.
	if err := svc.Disconnect(ctx, "google-analytics", "ghost-session", true); !errors.Is(err, ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	svc, _ := newIntegrationService(t)
	ctx := context.Background()

	other := "22222222-2222-2222-2222-222222222222"
	if _, err := svc.HandleCallback(ctx, "google-analytics", sessionID); err != nil {
		t.Fatalf("connect: %v", err)
	}

	connected, _, err := svc.Status(ctx, "google-analytics", other)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if connected {
		t.Fatal("connection state must not leak across sessions")
	}
}

func TestStatus_ServerWinsOverObservedMarker(t *testing.T) {
	svc, _ := newIntegrationService(t)
	ctx := context.Background()

	// The client observed the marker in a return URL, but the server never
	// recorded a connection for this session (stale bookmark, replayed URL).
	target := AppendMarker("https://app.test/dashboard?tab=insights", "google-analytics")
	stripped, present := StripMarker(target, "google-analytics")
	if !present {
		t.Fatal("marker must be reported present before the status check")
	}
	if strings.Contains(stripped, "google_analytics_connected") {
		t.Fatalf("marker must be removed: %q", stripped)
	}

	// The server's answer wins: marker observed, row never connected.
	connected, sid, err := svc.Status(ctx, "google-analytics", sessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if connected {
		t.Fatal("an observed marker must not override the server's answer")
	}
	if sid != sessionID {
		t.Fatalf("status must echo the session id, got %q", sid)
	}
}

func TestMarkerHelpers(t *testing.T) {
	if got := MarkerParam("google-analytics"); got != "google_analytics_connected" {
		t.Fatalf("MarkerParam: %q", got)
	}
	if got := MarkerParam("meta.ads v2"); got != "meta_ads_v2_connected" {
		t.Fatalf("MarkerParam: %q", got)
	}

	withMarker := AppendMarker("https://app.test/x?tab=1", "google-analytics")
	if !strings.Contains(withMarker, "google_analytics_connected=true") {
		t.Fatalf("AppendMarker: %q", withMarker)
	}

	stripped, present := StripMarker(withMarker, "google-analytics")
	if !present {
		t.Fatal("marker must be reported present")
	}
	if strings.Contains(stripped, "google_analytics_connected") {
		t.Fatalf("marker must be removed: %q", stripped)
	}
	if !strings.Contains(stripped, "tab=1") {
		t.Fatalf("other params must survive the strip: %q", stripped)
	}

	if _, present := StripMarker("https://app.test/x?tab=1", "google-analytics"); present {
		t.Fatal("absent marker must read as not present")
	}
}
