package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tabletally/internal/insights"
	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
	"github.com/MarcoPoloResearchLab/tabletally/internal/tracker"
)

func TestHealthzIsPublic(t *testing.T) {
	server := newTestServer(t)

	if recorder := server.do(t, http.MethodGet, "/healthz", "", ""); recorder.Code != http.StatusOK {
		t.Fatalf("expected healthz to be public, got %d", recorder.Code)
	}
	if recorder := server.do(t, http.MethodGet, "/entities/games", "", ""); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected entities to require a session, got %d", recorder.Code)
	}
}

func TestShareLinkAndListOverHTTP(t *testing.T) {
	server := newTestServer(t)
	aliceGame := tracker.Game{OwnerID: "alice", Name: "Catan"}
	bobGame := tracker.Game{OwnerID: "bob", Name: "Catan"}
	mustCreate(t, server.db, &aliceGame)
	mustCreate(t, server.db, &bobGame)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	aliceStream, cleanup := server.dispatcher.Subscribe(ctx, "alice")
	defer cleanup()

	recorder := server.do(t, http.MethodPost, "/shares", "bob",
		fmt.Sprintf(`{"kind":"games","entity_id":%d,"shared_with_id":"alice","permission":"view"}`, bobGame.ID))
	if recorder.Code != http.StatusOK {
		t.Fatalf("share failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var shared tracker.ShareChange
	decodeBody(t, recorder, &shared)
	if !shared.Changed || shared.Kind != sharing.KindGame || shared.RecipientID != "alice" {
		t.Fatalf("unexpected share change %+v", shared)
	}

	select {
	case message := <-aliceStream:
		if message.EventType != RealtimeEventShareChanged || message.ShareID != shared.ShareID || message.Action != "share" {
			t.Fatalf("unexpected realtime message %+v", message)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected the recipient to be notified")
	}

	recorder = server.do(t, http.MethodPost, fmt.Sprintf("/shares/%d/link", shared.ShareID), "alice",
		fmt.Sprintf(`{"linked_entity_id":%d}`, aliceGame.ID))
	if recorder.Code != http.StatusOK {
		t.Fatalf("link failed: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = server.do(t, http.MethodGet, "/entities/games", "alice", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("list failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var listed struct {
		Kind     sharing.Kind            `json:"kind"`
		Entities []tracker.EntitySummary `json:"entities"`
	}
	decodeBody(t, recorder, &listed)
	if listed.Kind != sharing.KindGame || len(listed.Entities) != 1 {
		t.Fatalf("expected one canonical game, got %+v", listed)
	}
	game := listed.Entities[0]
	if game.Source != sharing.SourceLinked || game.CanonicalID != aliceGame.ID || len(game.EntityIDs) != 2 {
		t.Fatalf("expected the linked game under alice's id, got %+v", game)
	}

	recorder = server.do(t, http.MethodDelete, fmt.Sprintf("/shares/%d/link", shared.ShareID), "alice", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unlink failed: %d %s", recorder.Code, recorder.Body.String())
	}
	recorder = server.do(t, http.MethodDelete, fmt.Sprintf("/shares/%d", shared.ShareID), "bob", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("revoke failed: %d %s", recorder.Code, recorder.Body.String())
	}
	recorder = server.do(t, http.MethodGet, "/entities/games", "alice", "")
	decodeBody(t, recorder, &listed)
	if len(listed.Entities) != 1 || listed.Entities[0].Source != sharing.SourceOriginal {
		t.Fatalf("expected only alice's own game after revocation, got %+v", listed.Entities)
	}
}

func TestMatchAndInsightsRoutes(t *testing.T) {
	server := newTestServer(t)
	game := tracker.Game{OwnerID: "alice", Name: "Azul"}
	mustCreate(t, server.db, &game)
	sheet := tracker.Scoresheet{OwnerID: "alice", GameID: game.ID, Name: "Standard", WinCondition: "lowest_score", RoundsScore: "aggregate"}
	mustCreate(t, server.db, &sheet)
	round := tracker.Round{OwnerID: "alice", ScoresheetID: sheet.ID, Name: "Penalty", Kind: "numeric", ConfigJSON: "{}", Order: 1}
	mustCreate(t, server.db, &round)
	match := tracker.Match{OwnerID: "alice", GameID: game.ID, ScoresheetID: sheet.ID, Date: time.Date(2026, 4, 1, 19, 0, 0, 0, time.UTC)}
	mustCreate(t, server.db, &match)

	for index, name := range []string{"Ann", "Ben"} {
		player := tracker.Player{OwnerID: "alice", Name: name}
		mustCreate(t, server.db, &player)
		seat := tracker.MatchPlayer{OwnerID: "alice", MatchID: match.ID, PlayerID: player.ID}
		mustCreate(t, server.db, &seat)
		value := int64(10 * (index + 1))
		mustCreate(t, server.db, &tracker.RoundScore{MatchPlayerID: seat.ID, RoundID: round.ID, Value: &value})
	}

	recorder := server.do(t, http.MethodGet, fmt.Sprintf("/matches/%d/outcome", match.ID), "alice", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("outcome failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var outcome tracker.MatchResult
	decodeBody(t, recorder, &outcome)
	if len(outcome.Seats) != 2 || !outcome.Seats[0].Winner || outcome.Seats[1].Winner {
		t.Fatalf("expected the lowest score to win, got %+v", outcome.Seats)
	}

	recorder = server.do(t, http.MethodPost, fmt.Sprintf("/matches/%d/finalize", match.ID), "alice", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("finalize failed: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = server.do(t, http.MethodGet, fmt.Sprintf("/games/%d/insights", game.ID), "alice", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("insights failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var report insights.Report
	decodeBody(t, recorder, &report)
	if report.MatchCount != 1 || len(report.Cores.Pairs) != 1 {
		t.Fatalf("expected the finalized match in insights, got %+v", report)
	}
}

func TestRouteErrorMapping(t *testing.T) {
	server := newTestServer(t)
	game := tracker.Game{OwnerID: "alice", Name: "Azul"}
	mustCreate(t, server.db, &game)
	bobGame := tracker.Game{OwnerID: "bob", Name: "Azul"}
	mustCreate(t, server.db, &bobGame)
	sheet := tracker.Scoresheet{OwnerID: "alice", GameID: game.ID, Name: "Standard", WinCondition: "highest_score", RoundsScore: "aggregate"}
	mustCreate(t, server.db, &sheet)
	match := tracker.Match{OwnerID: "alice", GameID: game.ID, ScoresheetID: sheet.ID, Date: time.Date(2026, 4, 2, 19, 0, 0, 0, time.UTC)}
	mustCreate(t, server.db, &match)
	matchShare := tracker.Share{Kind: "match", OwnerID: "alice", SharedWithID: "bob", EntityID: match.ID, Permission: "view"}
	mustCreate(t, server.db, &matchShare)
	gameShare := tracker.Share{Kind: "game", OwnerID: "alice", SharedWithID: "bob", EntityID: game.ID, Permission: "view"}
	mustCreate(t, server.db, &gameShare)

	testCases := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		status int
		code   string
	}{
		{"unknown kind", http.MethodGet, "/entities/widgets", "alice", "", http.StatusBadRequest, "invalid_kind"},
		{"malformed id", http.MethodGet, "/matches/abc/outcome", "alice", "", http.StatusBadRequest, "invalid_id"},
		{"invisible match", http.MethodGet, "/matches/999/outcome", "alice", "", http.StatusNotFound, "tracker.match_outcome.not_visible"},
		{"view share cannot finalize", http.MethodPost, fmt.Sprintf("/matches/%d/finalize", match.ID), "bob", "", http.StatusForbidden, "tracker.finalize_match.permission_denied"},
		{"invisible game insights", http.MethodGet, fmt.Sprintf("/games/%d/insights", game.ID), "carol", "", http.StatusNotFound, "tracker.game_insights.not_visible"},
		{"malformed focus player", http.MethodGet, fmt.Sprintf("/games/%d/insights?player=bogus:x", game.ID), "alice", "", http.StatusBadRequest, "invalid_player"},
		{"incomplete share", http.MethodPost, "/shares", "alice", `{"kind":"game"}`, http.StatusBadRequest, "invalid_request"},
		{"unknown permission", http.MethodPost, "/shares", "alice", fmt.Sprintf(`{"kind":"game","entity_id":%d,"shared_with_id":"bob","permission":"admin"}`, game.ID), http.StatusBadRequest, "invalid_request"},
		{"self share", http.MethodPost, "/shares", "alice", fmt.Sprintf(`{"kind":"game","entity_id":%d,"shared_with_id":"alice","permission":"view"}`, game.ID), http.StatusUnprocessableEntity, "tracker.share_entity.invalid_recipient"},
		{"foreign entity share", http.MethodPost, "/shares", "alice", fmt.Sprintf(`{"kind":"game","entity_id":%d,"shared_with_id":"carol","permission":"view"}`, bobGame.ID), http.StatusNotFound, "tracker.share_entity.not_visible"},
		{"link to foreign target", http.MethodPost, fmt.Sprintf("/shares/%d/link", gameShare.ID), "bob", fmt.Sprintf(`{"linked_entity_id":%d}`, game.ID), http.StatusUnprocessableEntity, "tracker.link_share.invalid_link_target"},
		{"revoke by recipient", http.MethodDelete, fmt.Sprintf("/shares/%d", gameShare.ID), "bob", "", http.StatusNotFound, "tracker.revoke_share.not_visible"},
		{"delete foreign entity", http.MethodDelete, fmt.Sprintf("/entities/games/%d", game.ID), "bob", "", http.StatusNotFound, "tracker.delete_entity.not_visible"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := server.do(t, testCase.method, testCase.path, testCase.user, testCase.body)
			if recorder.Code != testCase.status {
				t.Fatalf("expected status %d, got %d: %s", testCase.status, recorder.Code, recorder.Body.String())
			}
			if code := errorCode(t, recorder); code != testCase.code {
				t.Fatalf("expected error %q, got %q", testCase.code, code)
			}
		})
	}
}

func TestDeleteEntityNotifiesRecipients(t *testing.T) {
	server := newTestServer(t)
	game := tracker.Game{OwnerID: "bob", Name: "Azul"}
	mustCreate(t, server.db, &game)
	share := tracker.Share{Kind: "game", OwnerID: "bob", SharedWithID: "alice", EntityID: game.ID, Permission: "edit"}
	mustCreate(t, server.db, &share)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	aliceStream, cleanup := server.dispatcher.Subscribe(ctx, "alice")
	defer cleanup()

	recorder := server.do(t, http.MethodDelete, fmt.Sprintf("/entities/games/%d", game.ID), "bob", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("delete failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var payload struct {
		Changes []tracker.ShareChange `json:"changes"`
	}
	decodeBody(t, recorder, &payload)
	if len(payload.Changes) != 1 || payload.Changes[0].Action != tracker.ShareActionEntityDeleted {
		t.Fatalf("unexpected changes %+v", payload.Changes)
	}

	select {
	case message := <-aliceStream:
		if message.Action != string(tracker.ShareActionEntityDeleted) || message.ShareID != share.ID {
			t.Fatalf("unexpected realtime message %+v", message)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected the recipient to be notified")
	}
}
