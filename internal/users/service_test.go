package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tabletally/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Identity{}); err != nil {
		t.Fatalf("failed to migrate identity schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1760000000, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveUserIDKeepsProviderNamespace(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	claims := auth.SessionClaims{
		UserID:          "google:12345",
		UserEmail:       "ann@example.com",
		UserDisplayName: "Ann",
	}
	userID, err := service.ResolveUserID(ctx, claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if userID != "google:12345" {
		t.Fatalf("expected provider scoped user id, got %q", userID)
	}

	again, err := service.ResolveUserID(ctx, claims)
	if err != nil || again != userID {
		t.Fatalf("expected a stable user id, got %q (%v)", again, err)
	}

	var count int64
	if err := db.Model(&Identity{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count identities: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single identity row, got %d", count)
	}
}

func TestResolveUserIDFallsBackToSubjectAndEmail(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	testCases := []struct {
		name     string
		claims   auth.SessionClaims
		expected string
		err      error
	}{
		{name: "plain user id", claims: auth.SessionClaims{UserID: "alice"}, expected: "alice"},
		{name: "email only", claims: auth.SessionClaims{UserEmail: " bob@example.com "}, expected: "bob@example.com"},
		{name: "empty", claims: auth.SessionClaims{}, err: ErrInvalidIdentity},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			userID, err := service.ResolveUserID(ctx, testCase.claims)
			if testCase.err != nil {
				if !errors.Is(err, testCase.err) {
					t.Fatalf("expected %v, got %v", testCase.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if userID != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, userID)
			}
		})
	}
}
