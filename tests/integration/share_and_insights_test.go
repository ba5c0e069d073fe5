package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tabletally/internal/auth"
	"github.com/MarcoPoloResearchLab/tabletally/internal/database"
	"github.com/MarcoPoloResearchLab/tabletally/internal/insights"
	"github.com/MarcoPoloResearchLab/tabletally/internal/server"
	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
	"github.com/MarcoPoloResearchLab/tabletally/internal/tracker"
	"github.com/MarcoPoloResearchLab/tabletally/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "app_session"
	sessionIssuer        = "tabletally-auth"
	jsonContentType      = "application/json"
)

type session struct {
	token  string
	cookie bool
}

func (s session) apply(request *http.Request) {
	if s.cookie {
		request.AddCookie(&http.Cookie{Name: sessionCookieName, Value: s.token})
		return
	}
	request.Header.Set("Authorization", "Bearer "+s.token)
}

func call(testContext *testing.T, serverURL string, caller session, method, path string, payload interface{}, target interface{}) int {
	testContext.Helper()
	var body io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			testContext.Fatalf("failed to encode payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	if payload != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	caller.apply(request)

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	if target != nil && response.StatusCode == http.StatusOK {
		if err := json.NewDecoder(response.Body).Decode(target); err != nil {
			testContext.Fatalf("failed to decode %s %s: %v", method, path, err)
		}
	}
	return response.StatusCode
}

func seed(testContext *testing.T, db *gorm.DB, value interface{}) {
	testContext.Helper()
	if err := db.Create(value).Error; err != nil {
		testContext.Fatalf("failed to seed %T: %v", value, err)
	}
}

// seedFinishedMatch records a finished match where the first player won.
func seedFinishedMatch(testContext *testing.T, db *gorm.DB, owner string, game tracker.Game, sheet tracker.Scoresheet, day int, players ...tracker.Player) tracker.Match {
	testContext.Helper()
	match := tracker.Match{
		OwnerID:      owner,
		GameID:       game.ID,
		ScoresheetID: sheet.ID,
		Date:         time.Date(2026, time.May, day, 20, 0, 0, 0, time.UTC),
		Finished:     true,
	}
	seed(testContext, db, &match)
	for index, player := range players {
		placement := index + 1
		winner := index == 0
		seed(testContext, db, &tracker.MatchPlayer{
			OwnerID:   owner,
			MatchID:   match.ID,
			PlayerID:  player.ID,
			Placement: &placement,
			Winner:    &winner,
		})
	}
	return match
}

func TestShareLinkAndInsightsFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.DriverSQLite, filepath.Join(testContext.TempDir(), "integration.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		CookieName:    sessionCookieName,
	})
	if err != nil {
		testContext.Fatalf("failed to construct session validator: %v", err)
	}
	sessionIssuerService, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to construct session issuer: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to construct user service: %v", err)
	}
	trackerService, err := tracker.NewService(tracker.ServiceConfig{
		Database:   db,
		IDProvider: tracker.NewEventIDProvider(),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to construct tracker service: %v", err)
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions: sessionValidator,
		Users:    userService,
		Tracker:  trackerService,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to construct http handler: %v", err)
	}
	httpServer := httptest.NewServer(handler)
	testContext.Cleanup(httpServer.Close)

	aliceToken, _, err := sessionIssuerService.Issue("alice", "alice@example.com", "Alice")
	if err != nil {
		testContext.Fatalf("failed to issue alice token: %v", err)
	}
	bobToken, _, err := sessionIssuerService.Issue("bob", "bob@example.com", "Bob")
	if err != nil {
		testContext.Fatalf("failed to issue bob token: %v", err)
	}
	alice := session{token: aliceToken, cookie: true}
	bob := session{token: bobToken}

	aliceGame := tracker.Game{OwnerID: "alice", Name: "Wingspan"}
	seed(testContext, db, &aliceGame)
	aliceSheet := tracker.Scoresheet{OwnerID: "alice", GameID: aliceGame.ID, Name: "Standard", WinCondition: "highest_score", RoundsScore: "aggregate"}
	seed(testContext, db, &aliceSheet)
	ann := tracker.Player{OwnerID: "alice", Name: "Ann"}
	ben := tracker.Player{OwnerID: "alice", Name: "Ben"}
	seed(testContext, db, &ann)
	seed(testContext, db, &ben)
	seedFinishedMatch(testContext, db, "alice", aliceGame, aliceSheet, 1, ann, ben)

	bobGame := tracker.Game{OwnerID: "bob", Name: "Wingspan"}
	seed(testContext, db, &bobGame)
	bobSheet := tracker.Scoresheet{OwnerID: "bob", GameID: bobGame.ID, Name: "Standard", WinCondition: "highest_score", RoundsScore: "aggregate"}
	seed(testContext, db, &bobSheet)
	dan := tracker.Player{OwnerID: "bob", Name: "Dan"}
	eve := tracker.Player{OwnerID: "bob", Name: "Eve"}
	seed(testContext, db, &dan)
	seed(testContext, db, &eve)
	bobMatch := seedFinishedMatch(testContext, db, "bob", bobGame, bobSheet, 2, dan, eve)

	if status := call(testContext, httpServer.URL, session{token: "forged"}, http.MethodGet, "/entities/games", nil, nil); status != http.StatusUnauthorized {
		testContext.Fatalf("expected forged session to be rejected, got %d", status)
	}

	var gameShare tracker.ShareChange
	status := call(testContext, httpServer.URL, bob, http.MethodPost, "/shares", map[string]interface{}{
		"kind": "game", "entity_id": bobGame.ID, "shared_with_id": "alice", "permission": "view",
	}, &gameShare)
	if status != http.StatusOK || !gameShare.Changed {
		testContext.Fatalf("game share failed: %d %+v", status, gameShare)
	}
	status = call(testContext, httpServer.URL, bob, http.MethodPost, "/shares", map[string]interface{}{
		"kind": "match", "entity_id": bobMatch.ID, "shared_with_id": "alice", "permission": "view",
	}, nil)
	if status != http.StatusOK {
		testContext.Fatalf("match share failed: %d", status)
	}

	var listed struct {
		Entities []tracker.EntitySummary `json:"entities"`
	}
	if status := call(testContext, httpServer.URL, alice, http.MethodGet, "/entities/games", nil, &listed); status != http.StatusOK {
		testContext.Fatalf("list failed: %d", status)
	}
	if len(listed.Entities) != 2 {
		testContext.Fatalf("expected alice's game and bob's shared game before linking, got %+v", listed.Entities)
	}

	status = call(testContext, httpServer.URL, alice, http.MethodPost, fmt.Sprintf("/shares/%d/link", gameShare.ShareID),
		map[string]interface{}{"linked_entity_id": aliceGame.ID}, nil)
	if status != http.StatusOK {
		testContext.Fatalf("link failed: %d", status)
	}
	if status := call(testContext, httpServer.URL, alice, http.MethodGet, "/entities/games", nil, &listed); status != http.StatusOK {
		testContext.Fatalf("list failed: %d", status)
	}
	if len(listed.Entities) != 1 || listed.Entities[0].Source != sharing.SourceLinked {
		testContext.Fatalf("expected one linked game, got %+v", listed.Entities)
	}
	if listed.Entities[0].MatchCount == nil || *listed.Entities[0].MatchCount != 2 {
		testContext.Fatalf("expected both matches to count toward the linked game, got %+v", listed.Entities[0])
	}

	var report insights.Report
	focus := fmt.Sprintf("original:%d", ann.ID)
	path := fmt.Sprintf("/games/%d/insights?player=%s", aliceGame.ID, focus)
	if status := call(testContext, httpServer.URL, alice, http.MethodGet, path, nil, &report); status != http.StatusOK {
		testContext.Fatalf("insights failed: %d", status)
	}
	if report.MatchCount != 2 {
		testContext.Fatalf("expected insights over both owners' matches, got %d", report.MatchCount)
	}
	if report.Distribution.Player == nil || report.Distribution.Player.TotalMatches != 1 {
		testContext.Fatalf("expected ann's focus distribution over her single match, got %+v", report.Distribution.Player)
	}
	if len(report.Cores.Pairs) != 2 {
		testContext.Fatalf("expected one pair per match lineup, got %+v", report.Cores.Pairs)
	}

	if status := call(testContext, httpServer.URL, bob, http.MethodGet, fmt.Sprintf("/games/%d/insights", aliceGame.ID), nil, nil); status != http.StatusNotFound {
		testContext.Fatalf("expected alice's game to stay hidden from bob, got %d", status)
	}

	var identities int64
	if err := db.Model(&users.Identity{}).Count(&identities).Error; err != nil {
		testContext.Fatalf("failed to count identities: %v", err)
	}
	if identities != 2 {
		testContext.Fatalf("expected one identity per session user, got %d", identities)
	}
}
