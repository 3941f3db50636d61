// Package ledger tracks per-device suppression counters and session history.
//
// Both ledgers persist as compact comma-separated strings so they fit into a
// single preference value each.
package ledger

import (
	"sort"
	"strconv"
	"strings"
)

// Blocked maps an action id to the number of sessions the action remains
// suppressed for. Entries never hold a count below 1.
type Blocked map[int]int

// ParseBlocked decodes "id:n,id:n". Malformed or non-positive entries are skipped.
func ParseBlocked(s string) Blocked {
	b := Blocked{}
	for _, part := range strings.Split(s, ",") {
		idStr, nStr, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		n, err := strconv.Atoi(nStr)
		if err != nil || n <= 0 {
			continue
		}
		b[id] = n
	}
	return b
}

// String encodes the ledger as "id:n,id:n" ordered by id.
func (b Blocked) String() string {
	ids := make([]int, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(id))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(b[id]))
	}
	return sb.String()
}

// Block suppresses actionID for the given number of sessions, replacing any
// count already held. Non-positive counts are ignored.
func (b Blocked) Block(actionID, sessions int) {
	if sessions <= 0 {
		return
	}
	b[actionID] = sessions
}

// Contains reports whether actionID is currently suppressed.
func (b Blocked) Contains(actionID int) bool {
	return b[actionID] > 0
}

// Decrement consumes one session from every entry and evicts entries that
// reach zero.
func (b Blocked) Decrement() {
	for id, n := range b {
		if n <= 1 {
			delete(b, id)
			continue
		}
		b[id] = n - 1
	}
}

// Clone returns an independent copy.
func (b Blocked) Clone() Blocked {
	out := make(Blocked, len(b))
	for id, n := range b {
		out[id] = n
	}
	return out
}
