package engine

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personyze/tracker-go/internal/apierr"
	"github.com/personyze/tracker-go/internal/model"
	"github.com/personyze/tracker-go/internal/notification"
	"github.com/personyze/tracker-go/internal/store"
)

const pendingNotification = `{
	"message_id": 77,
	"title": " Sale ",
	"body": "Everything half off",
	"icon": "https://img.example/icon.png",
	"tag": "https://shop.example/sale",
	"vibrate": "100,50",
	"actions": [{"title": "Open", "action": "open"}, {"title": "", "action": "skip"}]
}`

type recordingNotifier struct {
	mu  sync.Mutex
	got []*notification.Rendered
}

func (n *recordingNotifier) Notify(_ context.Context, r *notification.Rendered) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, r)
	return nil
}

func (n *recordingNotifier) delivered() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.got)
}

func iconPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

// newNotifyFixture returns a fixture whose engine already holds session
// "1700000000 s1".
func newNotifyFixture(t *testing.T, n notification.Notifier) *fixture {
	t.Helper()
	f := newFixture(t, WithNotifications(n, 0))
	f.gw.Respond("POST", trackerPath, newReply(sid(t0, "s1"), 1).String())
	_, err := f.e.GetResult(context.Background())
	require.NoError(t, err)
	return f
}

func TestCheckNotification_Disabled(t *testing.T) {
	f := newFixture(t)

	r, err := f.e.CheckNotification(context.Background(), true)
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Empty(t, f.gw.Calls())
}

func TestCheckNotification_NoSession(t *testing.T) {
	n := &recordingNotifier{}
	f := newFixture(t, WithNotifications(n, 0))

	r, err := f.e.CheckNotification(context.Background(), true)
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Empty(t, f.gw.CallsTo("GET", notificationPath))
}

func TestCheckNotification_Delivers(t *testing.T) {
	n := &recordingNotifier{}
	f := newNotifyFixture(t, n)
	ctx := context.Background()
	f.gw.Respond("GET", notificationPath, pendingNotification)
	f.gw.Respond("DELETE", notificationPath, "1")
	f.gw.AddImage("https://img.example/icon.png", "image/png", iconPNG(t))

	r, err := f.e.CheckNotification(ctx, false)
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Equal(t, int64(77), r.MessageID)
	assert.Equal(t, "Sale", r.Title)
	assert.Equal(t, []int64{100, 50}, r.Vibrate)
	assert.NotNil(t, r.IconImage)
	assert.NotNil(t, r.BadgeImage, "badge falls back to the icon")
	require.Len(t, r.Buttons, 1)
	assert.Equal(t, "Open", r.Buttons[0].Title)
	assert.Equal(t, 1, n.delivered())

	where := "user_id=" + strconv.Itoa(int(f.e.userID)) + "&session_id=1700000000+s1"
	gets := f.gw.CallsTo("GET", notificationPath)
	require.Len(t, gets, 1)
	assert.Equal(t, notificationPath+where, gets[0].Path)
	deletes := f.gw.CallsTo("DELETE", notificationPath)
	require.Len(t, deletes, 1)
	assert.Equal(t, notificationPath+where+"&message_id=77", deletes[0].Path)

	last, ok, err := store.GetInt(ctx, f.kv, model.KeyNotiLastCheck)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.clock.Now().UnixMilli(), last)
}

func TestCheckNotification_RateLimits(t *testing.T) {
	n := &recordingNotifier{}
	f := newNotifyFixture(t, n)
	ctx := context.Background()
	f.gw.Respond("GET", notificationPath, "null")

	check := func(immediate bool) {
		t.Helper()
		_, err := f.e.CheckNotification(ctx, immediate)
		require.NoError(t, err)
	}
	gets := func() int { return len(f.gw.CallsTo("GET", notificationPath)) }

	check(false)
	assert.Equal(t, 1, gets())

	check(true)
	assert.Equal(t, 1, gets(), "immediate checks wait a second")

	f.clock.Advance(2 * time.Second)
	check(false)
	assert.Equal(t, 1, gets(), "periodic checks wait the full interval")
	check(true)
	assert.Equal(t, 2, gets())

	f.clock.Advance(DefaultNotificationInterval + time.Second)
	check(false)
	assert.Equal(t, 3, gets())

	assert.Zero(t, n.delivered())
	assert.Empty(t, f.gw.CallsTo("DELETE", notificationPath))
}

func TestCheckNotification_LastCheckSurvivesRestart(t *testing.T) {
	f := newNotifyFixture(t, &recordingNotifier{})
	ctx := context.Background()
	f.gw.Respond("GET", notificationPath, "null")

	_, err := f.e.CheckNotification(ctx, false)
	require.NoError(t, err)

	restarted := f.newEngine(testKey, WithNotifications(&recordingNotifier{}, 0))
	f.clock.Advance(time.Minute)
	_, err = restarted.CheckNotification(ctx, false)
	require.NoError(t, err)

	assert.Len(t, f.gw.CallsTo("GET", notificationPath), 1)
}

func TestCheckNotification_BadDeleteReply(t *testing.T) {
	n := &recordingNotifier{}
	f := newNotifyFixture(t, n)
	f.gw.Respond("GET", notificationPath, pendingNotification)
	f.gw.Respond("DELETE", notificationPath, "2")

	r, err := f.e.CheckNotification(context.Background(), true)

	assert.Nil(t, r)
	assert.True(t, apierr.Is(err, apierr.CodeOther))
	assert.ErrorContains(t, err, "Couldn't deliver the notification")
	assert.Zero(t, n.delivered())
}

func TestCheckNotification_MalformedPayload(t *testing.T) {
	f := newNotifyFixture(t, &recordingNotifier{})
	f.gw.Respond("GET", notificationPath, `{"message_id": 1, "title": "  ", "body": "x"}`)

	r, err := f.e.CheckNotification(context.Background(), true)

	assert.Nil(t, r)
	assert.True(t, apierr.Is(err, apierr.CodeOther))
	assert.Empty(t, f.gw.CallsTo("DELETE", notificationPath))
}

func TestRunNotificationPoller(t *testing.T) {
	f := newNotifyFixture(t, &recordingNotifier{})
	f.gw.Respond("GET", notificationPath, "null")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.e.RunNotificationPoller(ctx) }()

	require.Eventually(t, func() bool {
		return len(f.gw.CallsTo("GET", notificationPath)) == 1
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestRunNotificationPoller_Disabled(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.e.RunNotificationPoller(context.Background()))
}

func TestRestEncode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1700000000 abc", "1700000000+abc"},
		{"1,2", "1%252C2"},
		{"a&b=c", "a%26b%3Dc"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, restEncode(tt.in))
		})
	}
}
