package engine

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/personyze/tracker-go/internal/command"
	"github.com/personyze/tracker-go/internal/ledger"
	"github.com/personyze/tracker-go/internal/metrics"
	"github.com/personyze/tracker-go/internal/model"
	"github.com/personyze/tracker-go/internal/notification"
	"github.com/personyze/tracker-go/internal/store"
)

// DefaultNotificationInterval is the minimum time between periodic
// notification checks.
const DefaultNotificationInterval = 15 * time.Minute

// Transport performs requests against the REST gateway and returns the
// response text. Implemented by transport.Client.
type Transport interface {
	Get(ctx context.Context, path string) (string, error)
	Post(ctx context.Context, path string, body []byte) (string, error)
	Delete(ctx context.Context, path string) (string, error)
	notification.ImageFetcher
}

// Device describes the device reported with every tracker request.
type Device struct {
	Platform   string
	TimeZone   float64
	Language   string
	Screen     string
	OS         string
	DeviceType string
}

// Engine is the tracker coordinator. Create one per API key and store.
//
// Thread-safety: every method is safe for concurrent use.
type Engine struct {
	transport Transport
	kv        store.KV
	keyHash   uint32

	device       Device
	notiEnabled  bool
	notiInterval time.Duration
	notifier     notification.Notifier

	logger  *slog.Logger
	clock   Clock
	flowGen FlowTokenGenerator
	metrics *metrics.Metrics

	flights  singleflight.Group
	inFlight atomic.Bool
	joined   atomic.Int64
	bg       sync.WaitGroup

	mu             sync.Mutex
	loaded         bool
	userID         int32
	sessionID      string
	wantNewSession bool
	navigate       bool
	followUp       bool
	drains         uint64
	cacheVersion   int
	notiLastCheck  time.Time
	blocked        ledger.Blocked
	past           ledger.PastSessions
	result         *model.Result
	queue          *command.Queue
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the wall clock. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithFlowGenerator sets the flow token generator. Default: UUIDv7Generator.
func WithFlowGenerator(g FlowTokenGenerator) Option {
	return func(e *Engine) {
		e.flowGen = g
	}
}

// WithMetrics records engine activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithDevice sets the device information sent with tracker requests.
func WithDevice(d Device) Option {
	return func(e *Engine) {
		e.device = d
	}
}

// WithNotifications enables notification checks at the given interval.
// A non-positive interval selects DefaultNotificationInterval.
func WithNotifications(n notification.Notifier, interval time.Duration) Option {
	return func(e *Engine) {
		e.notiEnabled = true
		e.notifier = n
		if interval > 0 {
			e.notiInterval = interval
		}
	}
}

// New creates an Engine for apiKey. The engine takes ownership of kv and
// closes it in Close. Nothing is loaded or sent until first use.
func New(t Transport, kv store.KV, apiKey string, opts ...Option) *Engine {
	e := &Engine{
		transport:    t,
		kv:           kv,
		keyHash:      hashAPIKey(apiKey),
		device:       Device{Platform: "Go", DeviceType: "desktop"},
		notiInterval: DefaultNotificationInterval,
		logger:       slog.Default(),
		clock:        SystemClock{},
		flowGen:      UUIDv7Generator{},
		queue:        command.NewQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = notification.LogNotifier{Logger: e.logger}
	}
	return e
}

// Wait blocks until every background flush started by Done, ReportActionStatus
// or a follow-up has finished.
func (e *Engine) Wait() {
	e.bg.Wait()
}

// Close waits for background flushes and closes the store.
func (e *Engine) Close() error {
	e.Wait()
	return e.kv.Close()
}

// hashAPIKey fingerprints the key so a key change can be detected across
// restarts without persisting the key itself.
func hashAPIKey(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}
