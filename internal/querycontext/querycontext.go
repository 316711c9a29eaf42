// Package querycontext holds the filter predicates applied to the
// message stream the reconciler snapshots each tick: an optional row
// limit and optional sets of chat/handle rowids to restrict to.
package querycontext

// QueryContext mirrors imessage-database's QueryContext: a limit and
// two optional id sets. A nil set means "no filter"; setting an empty
// set clears any existing filter rather than selecting nothing, same
// as the Rust source's then_some(...).is_empty() behavior.
type QueryContext struct {
	Limit              *int
	SelectedHandleIDs  map[int]struct{}
	SelectedChatIDs    map[int]struct{}
}

// SetLimit caps the number of messages a snapshot may return.
func (q *QueryContext) SetLimit(n int) {
	q.Limit = &n
}

// SetSelectedHandleIDs restricts the snapshot to messages whose sender
// handle is in ids. Passing an empty slice clears the filter.
func (q *QueryContext) SetSelectedHandleIDs(ids []int) {
	q.SelectedHandleIDs = toSet(ids)
}

// SetSelectedChatIDs restricts the snapshot to messages belonging to
// one of the given chats. Passing an empty slice clears the filter.
func (q *QueryContext) SetSelectedChatIDs(ids []int) {
	q.SelectedChatIDs = toSet(ids)
}

func toSet(ids []int) map[int]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// HasFilters reports whether any of Limit, SelectedHandleIDs, or
// SelectedChatIDs is populated.
func (q *QueryContext) HasFilters() bool {
	return q.Limit != nil || len(q.SelectedChatIDs) > 0 || len(q.SelectedHandleIDs) > 0
}
