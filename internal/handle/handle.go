// Package handle implements the Handle Deduplicator: it collapses
// handle rows that share a person_centric_id into one canonical
// display identifier, then assigns each canonical identifier a stable,
// deterministic small integer.
//
// Grounded directly on imessage-database's tables/handle.rs: Cache
// mirrors Handle::cache + Handle::get_person_id_map, Dedupe mirrors
// Deduplicate::dedupe.
package handle

import (
	"context"
	"sort"
	"strings"

	"github.com/archerheffern/imessage-undeleter/internal/model"
)

// Me is the display identifier seeded for handle_id 0, the sentinel
// Messages uses for "the device owner" rather than a contact.
const Me = "Me"

// Store is the minimal read interface handle.Cache needs from the
// database layer, kept narrow so this package has no dependency on
// internal/store and is trivially testable with an in-memory fixture.
type Store interface {
	HandleRows(ctx context.Context) ([]model.Handle, error)
}

// Cache builds the handle_id -> display_identifier map: seed 0->"Me",
// insert every row's own id, then overwrite members of each
// person_centric_id equivalence class with their canonical joined
// identifier.
func Cache(ctx context.Context, s Store) (map[int]string, error) {
	rows, err := s.HandleRows(ctx)
	if err != nil {
		return nil, err
	}

	cache := map[int]string{0: Me}
	for _, h := range rows {
		cache[h.RowID] = h.ID
	}

	rowToCanonical := personIDMap(rows)
	for rowid, canonical := range rowToCanonical {
		cache[rowid] = canonical
	}

	return cache, nil
}

// personIDMap computes, for every handle row with a non-null
// person_centric_id, the canonical identifier for its equivalence
// class: the lexicographically sorted, space-joined set of every id
// sharing that person_centric_id. Two passes, exactly mirroring
// get_person_id_map in handle.rs: first pass unions ids per
// person_centric_id into a sorted set, second pass joins each set into
// its canonical string and maps every member rowid to it.
func personIDMap(rows []model.Handle) map[int]string {
	idsByPerson := make(map[string]map[string]struct{})
	for _, h := range rows {
		if h.PersonCentricID == nil {
			continue
		}
		set, ok := idsByPerson[*h.PersonCentricID]
		if !ok {
			set = make(map[string]struct{})
			idsByPerson[*h.PersonCentricID] = set
		}
		set[h.ID] = struct{}{}
	}

	canonicalByPerson := make(map[string]string, len(idsByPerson))
	for person, set := range idsByPerson {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		canonicalByPerson[person] = strings.Join(ids, " ")
	}

	rowToCanonical := make(map[int]string)
	for _, h := range rows {
		if h.PersonCentricID == nil {
			continue
		}
		rowToCanonical[h.RowID] = canonicalByPerson[*h.PersonCentricID]
	}
	return rowToCanonical
}

// Dedupe assigns each distinct display identifier in cache a dense,
// deterministic integer, iterating handle_rowid in ascending order so
// repeated runs over the same cache produce a bit-identical mapping
// (P1).
func Dedupe(cache map[int]string) map[int]int {
	rowids := make([]int, 0, len(cache))
	for rowid := range cache {
		rowids = append(rowids, rowid)
	}
	sort.Ints(rowids)

	assigned := make(map[string]int)
	result := make(map[int]int, len(cache))
	next := 0
	for _, rowid := range rowids {
		display := cache[rowid]
		id, ok := assigned[display]
		if !ok {
			id = next
			assigned[display] = id
			next++
		}
		result[rowid] = id
	}
	return result
}
