package wire

import (
	"errors"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personyze/tracker-go/internal/apierr"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestEncodeTrackerRequest_Golden(t *testing.T) {
	sid := "1700000000 a1b2"
	body, err := EncodeTrackerRequest(&TrackerRequest{
		UserID:       123456789,
		SessionID:    &sid,
		PastSessions: "1699990000,1700000000",
		Platform:     "Go",
		TimeZone:     2,
		Languages:    "en",
		Screen:       "1920x1080",
		OS:           "linux/amd64",
		DeviceType:   "desktop",
		NotiEnabled:  true,
		Commands: [][]string{
			{"Navigate", "urn:personyze:doc:Home"},
			{"Product Viewed", "A<1>"},
			{"Products Purchased"},
		},
	})
	require.NoError(t, err)

	newGoldie(t).Assert(t, "tracker_request", body)
}

func TestEncodeTrackerRequest_FirstVisitGolden(t *testing.T) {
	body, err := EncodeTrackerRequest(&TrackerRequest{
		UserID:     -7,
		NewSession: true,
		Platform:   "Go",
		TimeZone:   -3.5,
		Languages:  "pt-BR",
		DeviceType: "phone",
	})
	require.NoError(t, err)

	newGoldie(t).Assert(t, "tracker_request_first_visit", body)
}

func TestEncodeTrackerRequest_TooBig(t *testing.T) {
	big := strings.Repeat("x", MaxRequestBytes)
	_, err := EncodeTrackerRequest(&TrackerRequest{
		Commands: [][]string{{"User profile", "notes", big}},
	})

	require.Error(t, err)
	assert.True(t, apierr.IsRequestTooBig(err))
}

func TestDecodeTrackerResponse(t *testing.T) {
	resp, err := DecodeTrackerResponse([]byte(`{
		"session_id": "1700005400 zz",
		"cache_version": 7,
		"conditions": [{"id": 1}, {"id": 2, "extra": true}],
		"actions": [
			{"id": 10, "data": {"html": "<p>x</p>", "price": 9.5, "in_stock": true, "note": null}},
			{"id": 11}
		],
		"dismiss_conditions": [3],
		"dismiss_actions": []
	}`))
	require.NoError(t, err)

	require.NotNil(t, resp.SessionID)
	assert.Equal(t, "1700005400 zz", *resp.SessionID)
	assert.Equal(t, 7, resp.CacheVersion)
	assert.Equal(t, []DeliveredCondition{{ID: 1}, {ID: 2}}, resp.Conditions)
	require.Len(t, resp.Actions, 2)
	assert.Equal(t, map[string]string{
		"html":     "<p>x</p>",
		"price":    "9.5",
		"in_stock": "true",
		"note":     "",
	}, resp.Actions[0].Data)
	assert.Nil(t, resp.Actions[1].Data)
	assert.Equal(t, []int{3}, resp.DismissConditions)
	assert.Empty(t, resp.DismissActions)
}

func TestDecodeTrackerResponse_OptionalFields(t *testing.T) {
	resp, err := DecodeTrackerResponse([]byte(`{
		"session_id": null,
		"conditions": [], "actions": [],
		"dismiss_conditions": [], "dismiss_actions": []
	}`))
	require.NoError(t, err)
	assert.Nil(t, resp.SessionID)
	assert.Equal(t, 0, resp.CacheVersion)
}

func TestDecodeTrackerResponse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing actions", `{"conditions": [], "dismiss_conditions": [], "dismiss_actions": []}`},
		{"string id", `{"conditions": [{"id": "1"}], "actions": [], "dismiss_conditions": [], "dismiss_actions": []}`},
		{"nested data", `{"conditions": [], "actions": [{"id": 1, "data": {"k": {"x": 1}}}], "dismiss_conditions": [], "dismiss_actions": []}`},
		{"not json", `<html>502</html>`},
		{"array", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTrackerResponse([]byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, apierr.CodeOther, apierr.CodeOf(err))
			assert.Contains(t, err.Error(), "JSON error")
		})
	}
}

func TestDecodeTrackerResponse_SchemaErrorIsStructured(t *testing.T) {
	_, err := DecodeTrackerResponse([]byte(`{"conditions": 5, "actions": [], "dismiss_conditions": [], "dismiss_actions": []}`))
	require.Error(t, err)

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, DefTrackerResponse, se.Definition)
}

func TestDecodeActionRows(t *testing.T) {
	rows, err := DecodeActionRows([]byte(`[
		{"id": 10, "name": "Banner", "content_type": "text/html", "content_param": "html",
		 "content_begin": "<div>", "content_end": null, "libs_app": "slider",
		 "placeholders": [100, 101]}
	]`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ActionRow{
		ID: 10, Name: "Banner", ContentType: "text/html", ContentParam: "html",
		ContentBegin: "<div>", ContentEnd: "", LibsApp: "slider",
		Placeholders: []int{100, 101},
	}, rows[0])

	_, err = DecodeActionRows([]byte(`[{"id": 10, "name": "Banner"}]`))
	assert.Error(t, err, "placeholders are required")
}

func TestDecodeConditionAndPlaceholderRows(t *testing.T) {
	conds, err := DecodeConditionRows([]byte(`[{"id": 1, "name": "Returning visitor"}]`))
	require.NoError(t, err)
	assert.Equal(t, []ConditionRow{{ID: 1, Name: "Returning visitor"}}, conds)

	phs, err := DecodePlaceholderRows([]byte(`[{"id": 100, "name": "Top", "html_id": null, "units_count_max": 3}]`))
	require.NoError(t, err)
	assert.Equal(t, []PlaceholderRow{{ID: 100, Name: "Top", UnitsCountMax: 3}}, phs)

	_, err = DecodeConditionRows([]byte(`[{"id": 1}]`))
	assert.Error(t, err, "name is required")
}

func TestDecodeNotification(t *testing.T) {
	n, err := DecodeNotification([]byte(" null \n"))
	require.NoError(t, err)
	assert.Nil(t, n)

	n, err = DecodeNotification([]byte(`{
		"message_id": 55, "title": " Sale ", "body": "Today only",
		"badge": null, "icon": "https://cdn.example.com/i.png", "image": "",
		"tag": "https://shop.example.com", "vibrate": "100,200",
		"silent": false, "renotify": true,
		"actions": [{"title": "Open", "icon": null, "action": "https://shop.example.com/sale"}]
	}`))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, int64(55), n.MessageID)
	assert.Equal(t, " Sale ", n.Title, "trimming belongs to the notification package")
	assert.Equal(t, "", n.Badge)
	assert.True(t, n.Renotify)
	assert.Equal(t, []NotificationActionRecord{{Title: "Open", Action: "https://shop.example.com/sale"}}, n.Actions)

	_, err = DecodeNotification([]byte(`{"message_id": 1, "title": "x"}`))
	assert.Error(t, err, "body is required")
}
