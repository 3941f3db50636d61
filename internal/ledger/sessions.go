package ledger

import (
	"strconv"
	"strings"
	"time"
)

// MaxPastSessions bounds the session history.
const MaxPastSessions = 12

// sessionLifetime is how long a session stays current after it starts.
// The server rotates sessions after 90 minutes; the client treats them as
// expired 5 seconds early so a request never races the rotation.
const sessionLifetime = 90*time.Minute - 5*time.Second

// PastSessions is an ordered, bounded list of session start times in Unix
// seconds, oldest first.
type PastSessions []int64

// ParsePastSessions decodes "t1,t2,...". Unparseable entries are skipped and
// only the newest MaxPastSessions entries are kept.
func ParsePastSessions(s string) PastSessions {
	var out PastSessions
	for _, part := range strings.Split(s, ",") {
		t, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	if len(out) > MaxPastSessions {
		out = out[len(out)-MaxPastSessions:]
	}
	return out
}

// Add appends a start time, evicting the oldest entry when full.
func (p PastSessions) Add(start int64) PastSessions {
	p = append(p, start)
	if len(p) > MaxPastSessions {
		p = append(PastSessions(nil), p[len(p)-MaxPastSessions:]...)
	}
	return p
}

// String encodes the list as "t1,t2,...".
func (p PastSessions) String() string {
	parts := make([]string, len(p))
	for i, t := range p {
		parts[i] = strconv.FormatInt(t, 10)
	}
	return strings.Join(parts, ",")
}

// SessionStart extracts the leading integer of a session id, which is the
// session start time in Unix seconds. Anything unparseable yields 0.
func SessionStart(sessionID string) int64 {
	head, _, _ := strings.Cut(sessionID, " ")
	n, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// SessionExpired reports whether the session identified by sessionID should
// be treated as over at time now. An empty id is always expired.
func SessionExpired(sessionID string, now time.Time) bool {
	if sessionID == "" {
		return true
	}
	start := time.Unix(SessionStart(sessionID), 0)
	return !start.Add(sessionLifetime).After(now)
}
