package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/personyze/tracker-go/internal/metrics"
	"github.com/personyze/tracker-go/internal/store"
	"github.com/personyze/tracker-go/internal/testutil"
	"github.com/personyze/tracker-go/internal/wire"
)

const testKey = "0123456789abcdef0123456789abcdef01234567"

var t0 = time.Unix(1700000000, 0)

func sid(start time.Time, tag string) string {
	return fmt.Sprintf("%d %s", start.Unix(), tag)
}

type fixture struct {
	e       *Engine
	gw      *testutil.FakeGateway
	kv      *store.Memory
	clock   *testutil.Clock
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		gw:      testutil.NewFakeGateway(),
		kv:      store.NewMemory(),
		clock:   testutil.NewClock(t0.Add(time.Minute)),
		metrics: metrics.New(),
	}
	f.serveMetadata()
	f.e = f.newEngine(testKey, opts...)
	return f
}

// newEngine creates another engine over the fixture's store, as after a
// process restart.
func (f *fixture) newEngine(apiKey string, opts ...Option) *Engine {
	base := []Option{
		WithClock(f.clock),
		WithFlowGenerator(testutil.NewFixedFlowGenerator("flow-test")),
		WithMetrics(f.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithDevice(Device{
			Platform:   "Go",
			TimeZone:   2,
			Language:   "en",
			Screen:     "1920x1080",
			OS:         "linux/amd64",
			DeviceType: "desktop",
		}),
	}
	return New(f.gw, f.kv, apiKey, append(base, opts...)...)
}

func idsFromPath(path string) []int {
	_, list, _ := strings.Cut(path, "where/id:")
	var ids []int
	for _, s := range strings.Split(list, ",") {
		if id, err := strconv.Atoi(s); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func rowsJSON(ids []int, row func(id int) map[string]any) (string, error) {
	rows := make([]map[string]any, len(ids))
	for i, id := range ids {
		rows[i] = row(id)
	}
	b, err := json.Marshal(rows)
	return string(b), err
}

// serveMetadata answers every metadata fetch. Action n has placeholder
// 100+n.
func (f *fixture) serveMetadata() {
	f.gw.Handle("GET", "conditions/", func(c testutil.Call) (string, error) {
		return rowsJSON(idsFromPath(c.Path), func(id int) map[string]any {
			return map[string]any{"id": id, "name": fmt.Sprintf("Condition %d", id)}
		})
	})
	f.gw.Handle("GET", "actions/", func(c testutil.Call) (string, error) {
		return rowsJSON(idsFromPath(c.Path), func(id int) map[string]any {
			return map[string]any{
				"id":            id,
				"name":          fmt.Sprintf("Action %d", id),
				"content_type":  "text/html",
				"content_param": "html",
				"content_begin": "<div>",
				"content_end":   "</div>",
				"libs_app":      nil,
				"placeholders":  []int{100 + id},
			}
		})
	})
	f.gw.Handle("GET", "placeholders/", func(c testutil.Call) (string, error) {
		return rowsJSON(idsFromPath(c.Path), func(id int) map[string]any {
			return map[string]any{"id": id, "name": fmt.Sprintf("Placeholder %d", id), "html_id": fmt.Sprintf("ph-%d", id), "units_count_max": 1}
		})
	})
}

func (f *fixture) seed(t *testing.T, fn func(tx *store.Tx)) {
	t.Helper()
	require.NoError(t, f.kv.Edit(context.Background(), func(tx *store.Tx) error {
		fn(tx)
		return nil
	}))
}

func (f *fixture) requests(t *testing.T) []wire.TrackerRequest {
	t.Helper()
	var out []wire.TrackerRequest
	for _, c := range f.gw.CallsTo("POST", trackerPath) {
		var req wire.TrackerRequest
		require.NoError(t, json.Unmarshal([]byte(c.Body), &req))
		out = append(out, req)
	}
	return out
}

type reply struct {
	SessionID         *string          `json:"session_id"`
	CacheVersion      int              `json:"cache_version"`
	Conditions        []map[string]any `json:"conditions"`
	Actions           []map[string]any `json:"actions"`
	DismissConditions []int            `json:"dismiss_conditions"`
	DismissActions    []int            `json:"dismiss_actions"`
}

func newReply(sessionID string, cacheVersion int) *reply {
	r := &reply{
		CacheVersion:      cacheVersion,
		Conditions:        []map[string]any{},
		Actions:           []map[string]any{},
		DismissConditions: []int{},
		DismissActions:    []int{},
	}
	if sessionID != "" {
		r.SessionID = &sessionID
	}
	return r
}

func (r *reply) conditions(ids ...int) *reply {
	for _, id := range ids {
		r.Conditions = append(r.Conditions, map[string]any{"id": id})
	}
	return r
}

func (r *reply) action(id int, data map[string]any) *reply {
	a := map[string]any{"id": id}
	if data != nil {
		a["data"] = data
	}
	r.Actions = append(r.Actions, a)
	return r
}

func (r *reply) dismiss(conditions, actions []int) *reply {
	r.DismissConditions = append(r.DismissConditions, conditions...)
	r.DismissActions = append(r.DismissActions, actions...)
	return r
}

func (r *reply) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func (e *Engine) queueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len()
}
