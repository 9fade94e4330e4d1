package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"resumatch/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestResolveInternalID_NumericPassthrough(t *testing.T) {
	r := NewResolver(newTestDB(t), nil)

	id, ok := r.ResolveInternalID(context.Background(), "42")
	if !ok {
		t.Fatal("expected numeric input to resolve")
	}
	if id != 42 {
		t.Fatalf("expected 42, got %d", id)
	}
}

func TestResolveInternalID_UUIDLookup(t *testing.T) {
	db := newTestDB(t)
	r := NewResolver(db, nil)

	user := database.User{
		UserUUID:     uuid.New(),
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: "x",
		Active:       true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	id, ok := r.ResolveInternalID(context.Background(), user.UserUUID.String())
	if !ok {
		t.Fatal("expected known uuid to resolve")
	}
	if id != user.ID {
		t.Fatalf("expected internal id %d, got %d", user.ID, id)
	}
}

func TestResolveInternalID_FailsClosed(t *testing.T) {
	r := NewResolver(newTestDB(t), nil)
	ctx := context.Background()

	if _, ok := r.ResolveInternalID(ctx, ""); ok {
		t.Fatal("empty input must not resolve")
	}
	if _, ok := r.ResolveInternalID(ctx, "not-an-identifier"); ok {
		t.Fatal("garbage input must not resolve")
	}
	if _, ok := r.ResolveInternalID(ctx, uuid.NewString()); ok {
		t.Fatal("unknown uuid must not resolve")
	}
}
