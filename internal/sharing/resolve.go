package sharing

import (
	"sort"
)

type candidate struct {
	canonicalID int64
	entityID    int64
	source      Source
	permission  Permission
	shareID     int64
}

// outranks orders candidates for one canonical id: linked > shared > original,
// then edit over view, then the lowest share id so the result does not depend on input order.
func (c candidate) outranks(other candidate) bool {
	if c.source != other.source {
		return c.source > other.source
	}
	if c.permission.rank() != other.permission.rank() {
		return c.permission.rank() > other.permission.rank()
	}
	if c.shareID != other.shareID {
		return c.shareID < other.shareID
	}
	return c.entityID < other.entityID
}

// Resolve produces exactly one canonical row per underlying entity visible to the viewer.
//
// owned holds the entity rows the viewer created, shares the edges addressed to the viewer, and
// links the viewer-owned rows that share edges may be linked to. Tombstoned rows and edges are
// skipped. A link is honored only when its target is a live entity owned by the viewer; any other
// link is flattened to a plain share, which keeps link depth at one hop.
func Resolve(viewerID string, owned []OwnedEntity, shares []ShareEdge, links []OwnedEntity) []CanonicalRow {
	if viewerID == "" {
		return nil
	}

	liveTargets := make(map[int64]struct{}, len(owned)+len(links))
	candidates := make([]candidate, 0, len(owned)+len(shares))

	for _, entity := range owned {
		if entity.DeletedAt != nil || entity.OwnerID != viewerID {
			continue
		}
		liveTargets[entity.ID] = struct{}{}
		candidates = append(candidates, candidate{
			canonicalID: entity.ID,
			entityID:    entity.ID,
			source:      SourceOriginal,
			permission:  PermissionEdit,
		})
	}
	for _, entity := range links {
		if entity.DeletedAt != nil || entity.OwnerID != viewerID {
			continue
		}
		liveTargets[entity.ID] = struct{}{}
	}

	for _, edge := range shares {
		if edge.SharedWithID != viewerID || edge.DeletedAt != nil || edge.EntityDeletedAt != nil {
			continue
		}
		permission := edge.Permission
		if permission != PermissionEdit {
			permission = PermissionView
		}
		next := candidate{
			canonicalID: edge.EntityID,
			entityID:    edge.EntityID,
			source:      SourceShared,
			permission:  permission,
			shareID:     edge.ID,
		}
		if edge.LinkedEntityID != nil {
			if _, ok := liveTargets[*edge.LinkedEntityID]; ok {
				next.canonicalID = *edge.LinkedEntityID
				next.source = SourceLinked
				next.permission = PermissionEdit
			}
		}
		candidates = append(candidates, next)
	}

	return reduce(candidates)
}

// reduce keeps one candidate per underlying entity, then one per canonical id.
func reduce(candidates []candidate) []CanonicalRow {
	byEntity := make(map[int64]candidate, len(candidates))
	for _, next := range candidates {
		if current, ok := byEntity[next.entityID]; !ok || next.outranks(current) {
			byEntity[next.entityID] = next
		}
	}

	winners := make(map[int64]candidate, len(byEntity))
	entityIDs := make(map[int64]map[int64]struct{}, len(byEntity))

	for _, next := range byEntity {
		if current, ok := winners[next.canonicalID]; !ok || next.outranks(current) {
			winners[next.canonicalID] = next
		}
		ids, ok := entityIDs[next.canonicalID]
		if !ok {
			ids = make(map[int64]struct{}, 1)
			entityIDs[next.canonicalID] = ids
		}
		ids[next.entityID] = struct{}{}
	}

	rows := make([]CanonicalRow, 0, len(winners))
	for canonicalID, winner := range winners {
		rows = append(rows, CanonicalRow{
			CanonicalID: canonicalID,
			Source:      winner.source,
			Permission:  winner.permission,
			ShareID:     winner.shareID,
			EntityIDs:   sortedIDs(entityIDs[canonicalID]),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CanonicalID < rows[j].CanonicalID })
	return rows
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Resolver answers which canonical row an underlying entity id belongs to.
type Resolver struct {
	rows     []CanonicalRow
	byEntity map[int64]int
}

// NewResolver indexes resolved rows by every underlying entity id.
func NewResolver(rows []CanonicalRow) *Resolver {
	resolver := &Resolver{
		rows:     rows,
		byEntity: make(map[int64]int, len(rows)),
	}
	for index, row := range rows {
		for _, entityID := range row.EntityIDs {
			resolver.byEntity[entityID] = index
		}
	}
	return resolver
}

// Rows returns the canonical rows in ascending canonical id order.
func (resolver *Resolver) Rows() []CanonicalRow {
	if resolver == nil {
		return nil
	}
	return resolver.rows
}

// Lookup returns the canonical row an entity id resolves to.
func (resolver *Resolver) Lookup(entityID int64) (CanonicalRow, bool) {
	if resolver == nil {
		return CanonicalRow{}, false
	}
	index, ok := resolver.byEntity[entityID]
	if !ok {
		return CanonicalRow{}, false
	}
	return resolver.rows[index], true
}

// Canonical returns the row whose canonical id is given.
func (resolver *Resolver) Canonical(canonicalID int64) (CanonicalRow, bool) {
	row, ok := resolver.Lookup(canonicalID)
	if !ok || row.CanonicalID != canonicalID {
		return CanonicalRow{}, false
	}
	return row, true
}

// ResolvePlayer maps a stored player id to the viewer's canonical player identity:
// the viewer's own player, the linked player, or the unlinked shared-player placeholder.
// ownedByViewer keeps a tombstoned player of the viewer's under its original identity.
func ResolvePlayer(players *Resolver, playerID int64, ownedByViewer bool) Ref {
	if row, ok := players.Lookup(playerID); ok {
		return row.Ref()
	}
	if ownedByViewer {
		return Ref{Source: SourceOriginal, ID: playerID}
	}
	return Ref{Source: SourceShared, ID: playerID}
}
