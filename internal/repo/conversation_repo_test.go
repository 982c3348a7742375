package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/marketlens/go-insight-backend/internal/domain"
)

func TestUpsertConversation_InsertThenUpdate_PreservesCreatedAt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c := &domain.Conversation{ID: "c1", Title: "First title"}
	if err := UpsertConversation(ctx, db, c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	created := c.CreatedAt
	if created.IsZero() {
		t.Fatal("CreatedAt not set on insert")
	}

	time.Sleep(5 * time.Millisecond)
	c2 := &domain.Conversation{ID: "c1", Title: "Renamed"}
	if err := UpsertConversation(ctx, db, c2); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := GetConversation(ctx, db, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Renamed" {
		t.Fatalf("title not updated: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt changed on upsert: was %v, now %v", created, got.CreatedAt)
	}
	if !got.UpdatedAt.After(created) {
		t.Fatalf("UpdatedAt must advance on upsert: %v vs %v", got.UpdatedAt, created)
	}

	var count int64
	if err := db.Model(&domain.Conversation{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("upsert must not duplicate rows, got %d", count)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetConversation(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversations_OrderByUpdatedAtDesc(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		c := domain.Conversation{ID: id, Title: id, CreatedAt: base, UpdatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := db.Create(&c).Error; err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	list, err := ListConversations(ctx, db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != "c" || list[2].ID != "a" {
		t.Fatalf("unexpected order: %#v", list)
	}

	page, err := ListConversationsPage(ctx, db, 1, 1)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "b" {
		t.Fatalf("unexpected page: %#v", page)
	}
}

func TestConversationsStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	count, maxTS, err := ConversationsStats(ctx, db)
	if err != nil || count != 0 || maxTS != nil {
		t.Fatalf("empty index: count=%d max=%v err=%v", count, maxTS, err)
	}

	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	if err := db.Create(&domain.Conversation{ID: "c1", Title: "t", UpdatedAt: ts}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	count, maxTS, err = ConversationsStats(ctx, db)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if count != 1 || maxTS == nil || !maxTS.Equal(ts) {
		t.Fatalf("stats mismatch: count=%d max=%v", count, maxTS)
	}
}

func TestDeleteConversation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := DeleteConversation(ctx, db, "missing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for missing row, got %v", err)
	}

	if err := db.Create(&domain.Conversation{ID: "c1", Title: "t"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := DeleteConversation(ctx, db, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := GetConversation(ctx, db, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("conversation still visible after delete: %v", err)
	}
}

func TestTouchConversation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := TouchConversation(ctx, db, "missing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Create(&domain.Conversation{ID: "c1", Title: "t", UpdatedAt: old}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := TouchConversation(ctx, db, "c1"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := GetConversation(ctx, db, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.UpdatedAt.After(old) {
		t.Fatalf("UpdatedAt not refreshed: %v", got.UpdatedAt)
	}
}
