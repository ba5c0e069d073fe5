package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tabletally/internal/auth"
	"github.com/MarcoPoloResearchLab/tabletally/internal/tracker"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubSessions treats the bearer token as the user id.
type stubSessions struct {
	err error
}

func (s stubSessions) ValidateRequest(r *http.Request) (auth.SessionClaims, error) {
	if s.err != nil {
		return auth.SessionClaims{}, s.err
	}
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if token == "" {
		return auth.SessionClaims{}, auth.ErrMissingSessionToken
	}
	return auth.SessionClaims{UserID: token}, nil
}

type stubUsers struct {
	err error
}

func (s stubUsers) ResolveUserID(_ context.Context, claims auth.SessionClaims) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return claims.UserID, nil
}

type sequenceIDs struct {
	issued int
}

func (g *sequenceIDs) NewID() (string, error) {
	g.issued++
	return fmt.Sprintf("event-%03d", g.issued), nil
}

type testServer struct {
	handler    http.Handler
	db         *gorm.DB
	dispatcher *RealtimeDispatcher
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(tracker.Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	service, err := tracker.NewService(tracker.ServiceConfig{
		Database:   db,
		IDProvider: &sequenceIDs{},
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct tracker service: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Sessions: stubSessions{},
		Users:    stubUsers{},
		Tracker:  service,
		Realtime: dispatcher,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testServer{handler: handler, db: db, dispatcher: dispatcher}
}

func (s testServer) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if userID != "" {
		request.Header.Set("Authorization", "Bearer "+userID)
	}
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func mustCreate(t *testing.T, db *gorm.DB, value interface{}) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("failed to seed %T: %v", value, err)
	}
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode body %q: %v", recorder.Body.String(), err)
	}
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	decodeBody(t, recorder, &payload)
	return payload.Error
}

var errStubFailure = errors.New("stub failure")
