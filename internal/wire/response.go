package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/personyze/tracker-go/internal/apierr"
)

// TrackerResponse is the reply to a tracker-v1 POST.
type TrackerResponse struct {
	// SessionID is nil when the server kept the current session.
	SessionID *string `json:"session_id"`

	// CacheVersion of 0 means unchanged.
	CacheVersion int `json:"cache_version"`

	Conditions        []DeliveredCondition `json:"conditions"`
	Actions           []DeliveredAction    `json:"actions"`
	DismissConditions []int                `json:"dismiss_conditions"`
	DismissActions    []int                `json:"dismiss_actions"`
}

// DeliveredCondition is a matching condition in a tracker response.
type DeliveredCondition struct {
	ID int `json:"id"`
}

// DeliveredAction is a matching action in a tracker response.
// Data is nil when the server sent none.
type DeliveredAction struct {
	ID   int               `json:"id"`
	Data map[string]string `json:"-"`
}

func (a *DeliveredAction) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID   int                        `json:"id"`
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	a.ID = raw.ID
	a.Data = nil
	if raw.Data == nil {
		return nil
	}
	a.Data = make(map[string]string, len(raw.Data))
	for k, v := range raw.Data {
		s, err := scalarString(v)
		if err != nil {
			return fmt.Errorf("action %d data %q: %w", raw.ID, k, err)
		}
		a.Data[k] = s
	}
	return nil
}

// scalarString renders a JSON scalar the way the tracker stores it:
// strings verbatim, numbers and booleans in their JSON spelling, null as "".
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	switch string(raw) {
	case "true", "false":
		return string(raw), nil
	}
	if _, err := strconv.ParseFloat(string(raw), 64); err != nil {
		return "", fmt.Errorf("not a scalar: %s", raw)
	}
	return string(raw), nil
}

// ConditionRow is one row of a conditions metadata fetch.
type ConditionRow struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ActionRow is one row of an actions metadata fetch.
// Nullable text columns decode as "".
type ActionRow struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"content_type"`
	ContentParam string `json:"content_param"`
	ContentBegin string `json:"content_begin"`
	ContentEnd   string `json:"content_end"`
	LibsApp      string `json:"libs_app"`
	Placeholders []int  `json:"placeholders"`
}

// PlaceholderRow is one row of a placeholders metadata fetch.
type PlaceholderRow struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	HTMLID        string `json:"html_id"`
	UnitsCountMax int    `json:"units_count_max"`
}

// NotificationPayload is a pending notification as returned by the gateway.
type NotificationPayload struct {
	MessageID int64                      `json:"message_id"`
	Title     string                     `json:"title"`
	Body      string                     `json:"body"`
	Badge     string                     `json:"badge"`
	Icon      string                     `json:"icon"`
	Image     string                     `json:"image"`
	Tag       string                     `json:"tag"`
	Vibrate   string                     `json:"vibrate"`
	Silent    bool                       `json:"silent"`
	Renotify  bool                       `json:"renotify"`
	Actions   []NotificationActionRecord `json:"actions"`
}

// NotificationActionRecord is one button of a notification.
type NotificationActionRecord struct {
	Title  string `json:"title"`
	Icon   string `json:"icon"`
	Action string `json:"action"`
}

// DecodeTrackerResponse validates and decodes a tracker-v1 reply.
func DecodeTrackerResponse(data []byte) (*TrackerResponse, error) {
	var resp TrackerResponse
	if err := decode(DefTrackerResponse, data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DecodeConditionRows validates and decodes a conditions metadata fetch.
func DecodeConditionRows(data []byte) ([]ConditionRow, error) {
	var rows []ConditionRow
	if err := decode(DefConditionRows, data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DecodeActionRows validates and decodes an actions metadata fetch.
func DecodeActionRows(data []byte) ([]ActionRow, error) {
	var rows []ActionRow
	if err := decode(DefActionRows, data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DecodePlaceholderRows validates and decodes a placeholders metadata fetch.
func DecodePlaceholderRows(data []byte) ([]PlaceholderRow, error) {
	var rows []PlaceholderRow
	if err := decode(DefPlaceholderRows, data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DecodeNotification validates and decodes a pending notification.
// A body of "null" means there is none and yields (nil, nil).
func DecodeNotification(data []byte) (*NotificationPayload, error) {
	if IsNull(data) {
		return nil, nil
	}
	var n NotificationPayload
	if err := decode(DefNotification, data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// IsNull reports whether data is the JSON literal null.
func IsNull(data []byte) bool {
	return strings.TrimSpace(string(data)) == "null"
}

func decode(def string, data []byte, out any) error {
	if err := Validate(def, data); err != nil {
		return apierr.Wrap(apierr.CodeOther, "JSON error", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apierr.Wrap(apierr.CodeOther, "JSON error", err)
	}
	return nil
}
