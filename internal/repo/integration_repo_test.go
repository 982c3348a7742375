package repo

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/marketlens/go-insight-backend/internal/domain"
)

func TestEnsureConnection_UpsertsSingleRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c1, err := EnsureConnection(ctx, db, "s1", "google-analytics")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if c1.Connected {
		t.Fatal("new connection must start disconnected")
	}

	// Repeating the handshake reuses the row.
	c2, err := EnsureConnection(ctx, db, "s1", "google-analytics")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if c2.ID != c1.ID {
		t.Fatalf("repeat handshake must upsert, got new row %s vs %s", c2.ID, c1.ID)
	}

	var count int64
	if err := db.Model(&domain.IntegrationConnection{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestEnsureConnection_NeverDowngradesConnected(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := MarkConnected(ctx, db, "s1", "google-analytics"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	// Starting a fresh handshake for the same pair must not reset the flag.
	c, err := EnsureConnection(ctx, db, "s1", "google-analytics")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !c.Connected {
		t.Fatal("re-running the handshake downgraded an established connection")
	}
}

func TestMarkConnected_SetsFlagAndTimestamp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Works even for a session the server has never seen.
	if err := MarkConnected(ctx, db, "s-new", "google-analytics"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	c, err := GetConnection(ctx, db, "s-new", "google-analytics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !c.Connected || c.ConnectedAt == nil {
		t.Fatalf("expected connected with timestamp: %+v", c)
	}

	ok, err := IsConnected(ctx, db, "s-new", "google-analytics")
	if err != nil || !ok {
		t.Fatalf("IsConnected: ok=%v err=%v", ok, err)
	}
}

func TestIsConnected_MissingRowIsFalse(t *testing.T) {
	db := newTestDB(t)
	ok, err := IsConnected(context.Background(), db, "ghost", "google-analytics")
	if err != nil {
		t.Fatalf("missing row must not error: %v", err)
	}
	if ok {
		t.Fatal("missing row must read as disconnected")
	}
}

func TestDisconnect(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := Disconnect(ctx, db, "ghost", "google-analytics"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	if err := MarkConnected(ctx, db, "s1", "google-analytics"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := Disconnect(ctx, db, "s1", "google-analytics"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	c, err := GetConnection(ctx, db, "s1", "google-analytics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Connected || c.ConnectedAt != nil {
		t.Fatalf("disconnect must clear flag and timestamp: %+v", c)
	}

	// Sessions are independent: disconnecting one leaves others alone.
	if err := MarkConnected(ctx, db, "s2", "google-analytics"); err != nil {
		t.Fatalf("mark s2: %v", err)
	}
	if err := Disconnect(ctx, db, "s1", "google-analytics"); err != nil {
		t.Fatalf("disconnect s1 again: %v", err)
	}
	ok, err := IsConnected(ctx, db, "s2", "google-analytics")
	if err != nil || !ok {
		t.Fatalf("s2 must stay connected: ok=%v err=%v", ok, err)
	}
}
