package tracker

import (
	"sort"
	"time"

	"github.com/MarcoPoloResearchLab/tabletally/internal/sharing"
	"gorm.io/gorm"
)

// entityRecord is the slice of any entity table that resolution reads.
type entityRecord struct {
	ID        int64      `gorm:"column:id"`
	OwnerID   string     `gorm:"column:owner_id"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
}

type shareRecord struct {
	ID              int64      `gorm:"column:id"`
	Kind            string     `gorm:"column:kind"`
	OwnerID         string     `gorm:"column:owner_id"`
	SharedWithID    string     `gorm:"column:shared_with_id"`
	EntityID        int64      `gorm:"column:entity_id"`
	LinkedEntityID  *int64     `gorm:"column:linked_entity_id"`
	Permission      string     `gorm:"column:permission"`
	DeletedAt       *time.Time `gorm:"column:deleted_at"`
	EntityDeletedAt *time.Time `gorm:"column:entity_deleted_at"`
}

type nameRecord struct {
	ID   int64  `gorm:"column:id"`
	Name string `gorm:"column:name"`
}

const shareColumns = "share_edges.id, share_edges.kind, share_edges.owner_id, share_edges.shared_with_id, " +
	"share_edges.entity_id, share_edges.linked_entity_id, share_edges.permission, share_edges.deleted_at, " +
	"entity.deleted_at AS entity_deleted_at"

// loadResolver fetches the three resolution inputs for one kind with one query each and resolves them.
// Tombstoned rows are read on purpose: dropping them is resolution's job.
func loadResolver(tx *gorm.DB, viewerID string, kind sharing.Kind) (*sharing.Resolver, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var owned []entityRecord
	if err := tx.Table(table).
		Select("id, owner_id, deleted_at").
		Where("owner_id = ?", viewerID).
		Scan(&owned).Error; err != nil {
		return nil, err
	}

	// The inner join drops edges whose entity row does not exist at all.
	var shares []shareRecord
	if err := tx.Table("share_edges").
		Select(shareColumns).
		Joins("JOIN "+table+" AS entity ON entity.id = share_edges.entity_id").
		Where("share_edges.kind = ? AND share_edges.shared_with_id = ?", string(kind), viewerID).
		Scan(&shares).Error; err != nil {
		return nil, err
	}

	linkedIDs := make([]int64, 0)
	for _, share := range shares {
		if share.LinkedEntityID != nil {
			linkedIDs = append(linkedIDs, *share.LinkedEntityID)
		}
	}
	var links []entityRecord
	if len(linkedIDs) > 0 {
		if err := tx.Table(table).
			Select("id, owner_id, deleted_at").
			Where("id IN ?", linkedIDs).
			Scan(&links).Error; err != nil {
			return nil, err
		}
	}

	rows := sharing.Resolve(viewerID, toOwnedEntities(owned), toShareEdges(kind, shares), toOwnedEntities(links))
	return sharing.NewResolver(rows), nil
}

func toOwnedEntities(records []entityRecord) []sharing.OwnedEntity {
	entities := make([]sharing.OwnedEntity, 0, len(records))
	for _, record := range records {
		entities = append(entities, sharing.OwnedEntity{
			ID:        record.ID,
			OwnerID:   record.OwnerID,
			DeletedAt: record.DeletedAt,
		})
	}
	return entities
}

func toShareEdges(kind sharing.Kind, records []shareRecord) []sharing.ShareEdge {
	edges := make([]sharing.ShareEdge, 0, len(records))
	for _, record := range records {
		edges = append(edges, sharing.ShareEdge{
			ID:              record.ID,
			Kind:            kind,
			OwnerID:         record.OwnerID,
			SharedWithID:    record.SharedWithID,
			EntityID:        record.EntityID,
			LinkedEntityID:  record.LinkedEntityID,
			Permission:      sharing.Permission(record.Permission),
			DeletedAt:       record.DeletedAt,
			EntityDeletedAt: record.EntityDeletedAt,
		})
	}
	return edges
}

// loadNames returns display names by id, tombstoned rows included so history keeps its labels.
func loadNames(tx *gorm.DB, kind sharing.Kind, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 || !hasName(kind) {
		return names, nil
	}
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var records []nameRecord
	if err := tx.Table(table).Select("id, name").Where("id IN ?", ids).Scan(&records).Error; err != nil {
		return nil, err
	}
	for _, record := range records {
		names[record.ID] = record.Name
	}
	return names, nil
}

// matchView is the viewer's resolved match history with the resolvers it was composed from.
type matchView struct {
	matches     []sharing.CanonicalMatch
	matchRows   *sharing.Resolver
	games       *sharing.Resolver
	scoresheets *sharing.Resolver
	locations   *sharing.Resolver
	players     *sharing.Resolver
}

func loadMatchView(tx *gorm.DB, viewerID string) (matchView, error) {
	var view matchView
	resolvers := []struct {
		kind   sharing.Kind
		target **sharing.Resolver
	}{
		{sharing.KindMatch, &view.matchRows},
		{sharing.KindGame, &view.games},
		{sharing.KindScoresheet, &view.scoresheets},
		{sharing.KindLocation, &view.locations},
		{sharing.KindPlayer, &view.players},
	}
	for _, entry := range resolvers {
		resolver, err := loadResolver(tx, viewerID, entry.kind)
		if err != nil {
			return matchView{}, err
		}
		*entry.target = resolver
	}

	matchIDs := make([]int64, 0)
	for _, row := range view.matchRows.Rows() {
		matchIDs = append(matchIDs, row.EntityIDs...)
	}
	var stored []Match
	if len(matchIDs) > 0 {
		if err := tx.Where("id IN ?", matchIDs).Find(&stored).Error; err != nil {
			return matchView{}, err
		}
	}
	rows := make([]sharing.MatchRow, 0, len(stored))
	for _, match := range stored {
		rows = append(rows, sharing.MatchRow{
			ID:           match.ID,
			OwnerID:      match.OwnerID,
			GameID:       match.GameID,
			ScoresheetID: match.ScoresheetID,
			LocationID:   match.LocationID,
			Date:         match.Date,
			Finished:     match.Finished,
		})
	}
	view.matches = sharing.ResolveMatches(rows, view.matchRows, view.games, view.scoresheets, view.locations)
	return view, nil
}

// find returns the canonical match with the given canonical id.
func (view matchView) find(matchID int64) (sharing.CanonicalMatch, bool) {
	for _, match := range view.matches {
		if match.Row.CanonicalID == matchID {
			return match, true
		}
	}
	return sharing.CanonicalMatch{}, false
}

// seat is a stored match player joined with everything the viewer resolves for it.
type seat struct {
	MatchPlayer
	Player   sharing.Ref
	Name     string
	TeamName string
	Roles    []sharing.Ref
}

// loadSeats returns the live seats of the given stored matches keyed by match id, ordered by seat id.
// roles may be nil when the caller does not need role refs.
func loadSeats(tx *gorm.DB, viewerID string, matchIDs []int64, players, roles *sharing.Resolver) (map[int64][]seat, error) {
	seats := make(map[int64][]seat, len(matchIDs))
	if len(matchIDs) == 0 {
		return seats, nil
	}

	var matchPlayers []MatchPlayer
	if err := tx.Where("match_id IN ?", matchIDs).Order("id ASC").Find(&matchPlayers).Error; err != nil {
		return nil, err
	}
	if len(matchPlayers) == 0 {
		return seats, nil
	}

	seatIDs := make([]int64, 0, len(matchPlayers))
	storedPlayerIDs := make([]int64, 0, len(matchPlayers))
	for _, matchPlayer := range matchPlayers {
		seatIDs = append(seatIDs, matchPlayer.ID)
		storedPlayerIDs = append(storedPlayerIDs, matchPlayer.PlayerID)
	}

	// Tombstoned players included.
	var ownedIDs []int64
	if err := tx.Unscoped().Model(&Player{}).
		Where("id IN ? AND owner_id = ?", storedPlayerIDs, viewerID).
		Pluck("id", &ownedIDs).Error; err != nil {
		return nil, err
	}
	owned := make(map[int64]bool, len(ownedIDs))
	for _, id := range ownedIDs {
		owned[id] = true
	}

	refs := make(map[int64]sharing.Ref, len(matchPlayers))
	playerIDs := make([]int64, 0, len(matchPlayers))
	for _, matchPlayer := range matchPlayers {
		ref := sharing.ResolvePlayer(players, matchPlayer.PlayerID, owned[matchPlayer.PlayerID])
		refs[matchPlayer.ID] = ref
		playerIDs = append(playerIDs, ref.ID)
	}
	names, err := loadNames(tx, sharing.KindPlayer, playerIDs)
	if err != nil {
		return nil, err
	}

	var teams []Team
	if err := tx.Where("match_id IN ?", matchIDs).Find(&teams).Error; err != nil {
		return nil, err
	}
	teamNames := make(map[int64]string, len(teams))
	for _, team := range teams {
		teamNames[team.ID] = team.Name
	}

	heldRoles := map[int64][]sharing.Ref{}
	if roles != nil {
		var assignments []MatchPlayerRole
		if err := tx.Where("match_player_id IN ?", seatIDs).Find(&assignments).Error; err != nil {
			return nil, err
		}
		for _, assignment := range assignments {
			heldRoles[assignment.MatchPlayerID] = append(heldRoles[assignment.MatchPlayerID], roleRef(roles, assignment.RoleID))
		}
	}

	for _, matchPlayer := range matchPlayers {
		ref := refs[matchPlayer.ID]
		current := seat{
			MatchPlayer: matchPlayer,
			Player:      ref,
			Name:        names[ref.ID],
			Roles:       heldRoles[matchPlayer.ID],
		}
		if matchPlayer.TeamID != nil {
			current.TeamName = teamNames[*matchPlayer.TeamID]
		}
		seats[matchPlayer.MatchID] = append(seats[matchPlayer.MatchID], current)
	}
	return seats, nil
}

func storedMatchIDs(matches []sharing.CanonicalMatch) []int64 {
	ids := make([]int64, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, match.Match.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
