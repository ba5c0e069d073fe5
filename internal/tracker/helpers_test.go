package tracker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequenceIDs struct {
	issued int
}

func (g *sequenceIDs) NewID() (string, error) {
	g.issued++
	return fmt.Sprintf("event-%03d", g.issued), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) {
	return "", errors.New("exhausted ids")
}

var testClock = func() time.Time { return time.Unix(1760000000, 0).UTC() }

func newTestService(t *testing.T, configure func(*ServiceConfig)) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:tabletally_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := ServiceConfig{
		Database:   db,
		Clock:      testClock,
		IDProvider: &sequenceIDs{},
	}
	if configure != nil {
		configure(&cfg)
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to construct tracker service: %v", err)
	}
	return service, db
}

func mustCreate(t *testing.T, db *gorm.DB, value interface{}) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("failed to seed %T: %v", value, err)
	}
}

func seedGame(t *testing.T, db *gorm.DB, owner, name string) Game {
	t.Helper()
	game := Game{OwnerID: owner, Name: name}
	mustCreate(t, db, &game)
	return game
}

func seedPlayer(t *testing.T, db *gorm.DB, owner, name string) Player {
	t.Helper()
	player := Player{OwnerID: owner, Name: name}
	mustCreate(t, db, &player)
	return player
}

func seedScoresheet(t *testing.T, db *gorm.DB, owner string, gameID int64, winCondition, roundsScore string) Scoresheet {
	t.Helper()
	sheet := Scoresheet{
		OwnerID:      owner,
		GameID:       gameID,
		Name:         "Standard",
		WinCondition: winCondition,
		RoundsScore:  roundsScore,
	}
	mustCreate(t, db, &sheet)
	return sheet
}

func seedMatch(t *testing.T, db *gorm.DB, owner string, gameID, sheetID int64, day int, finished bool) Match {
	t.Helper()
	match := Match{
		OwnerID:      owner,
		GameID:       gameID,
		ScoresheetID: sheetID,
		Date:         time.Date(2026, time.March, day, 20, 0, 0, 0, time.UTC),
		Finished:     finished,
	}
	mustCreate(t, db, &match)
	return match
}

func seedSeat(t *testing.T, db *gorm.DB, match Match, playerID int64, placement int, winner bool) MatchPlayer {
	t.Helper()
	matchPlayer := MatchPlayer{OwnerID: match.OwnerID, MatchID: match.ID, PlayerID: playerID}
	if placement > 0 {
		matchPlayer.Placement = &placement
		matchPlayer.Winner = &winner
	}
	mustCreate(t, db, &matchPlayer)
	return matchPlayer
}

func seedShare(t *testing.T, db *gorm.DB, kind, owner, recipient string, entityID int64, permission string) Share {
	t.Helper()
	share := Share{Kind: kind, OwnerID: owner, SharedWithID: recipient, EntityID: entityID, Permission: permission}
	mustCreate(t, db, &share)
	return share
}

func int64Pointer(value int64) *int64 {
	return &value
}

func requireCode(t *testing.T, err error, sentinel error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %s", code)
	}
	if sentinel != nil && !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error, got %T", err)
	}
	if serviceErr.Code() != code {
		t.Fatalf("expected code %s, got %s", code, serviceErr.Code())
	}
}
