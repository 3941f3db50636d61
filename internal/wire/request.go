// Package wire defines the JSON documents exchanged with the REST gateway.
//
// Outgoing tracker requests are plain structs encoded with encoding/json.
// Every incoming document is validated against the CUE definitions in
// schema.cue before it is decoded, so a missing or mistyped field fails
// fast with a positioned error instead of defaulting silently.
package wire

import (
	"bytes"
	"encoding/json"

	"github.com/personyze/tracker-go/internal/apierr"
)

// MaxRequestBytes caps the serialized tracker request.
const MaxRequestBytes = 50000

// TrackerRequest is the body of a tracker-v1 POST. Field order matches the
// order the gateway documents.
type TrackerRequest struct {
	UserID       int32      `json:"user_id"`
	SessionID    *string    `json:"session_id"`
	NewSession   bool       `json:"new_session"`
	PastSessions string     `json:"past_sessions"`
	Platform     string     `json:"platform"`
	TimeZone     float64    `json:"time_zone"`
	Languages    string     `json:"languages"`
	Screen       string     `json:"screen"`
	OS           string     `json:"os"`
	DeviceType   string     `json:"device_type"`
	NotiEnabled  bool       `json:"noti_enabled"`
	Commands     [][]string `json:"commands"`
}

// EncodeTrackerRequest serializes req and enforces MaxRequestBytes.
func EncodeTrackerRequest(req *TrackerRequest) ([]byte, error) {
	if req.Commands == nil {
		req.Commands = [][]string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return nil, apierr.Wrap(apierr.CodeOther, "JSON error", err)
	}
	body := bytes.TrimRight(buf.Bytes(), "\n")

	if len(body) > MaxRequestBytes {
		return nil, apierr.New(apierr.CodeRequestTooBig, "Request was too big")
	}
	return body, nil
}
