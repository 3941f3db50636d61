package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Content types with dedicated helpers.
const (
	ContentTypeHTML = "text/html"
	ContentTypeJSON = "application/json"
)

// Script locations referenced by HTML documents.
const (
	WebViewLibURL = "https://counter.personyze.com/web-view.js"
	LibsURL       = "https://counter.personyze.com/actions/webkit/"
)

const htmlDocHead = `<html><head><meta http-equiv="Content-Type" content="text/html; charset=utf-8">` +
	`<meta name="viewport" content="width=device-width, initial-scale=1.0"></head>` +
	`<body style="visibility:hidden" onload="document.body.style.visibility=''">`

const htmlDocTail = `<script>_S_T.new_elem(document.body, null)</script></body></html>`

// Content returns ContentBegin, the data value named by ContentParam, and
// ContentEnd, concatenated.
func (a Action) Content() string {
	var middle string
	if a.ContentParam != "" && a.Data != nil {
		middle = a.Data[a.ContentParam]
	}
	return a.ContentBegin + middle + a.ContentEnd
}

// ErrWrongContentType is returned by content helpers called on an action of
// another content type.
var ErrWrongContentType = errors.New("wrong content type")

// ContentJSONArray parses the content of an application/json action as an
// array of objects. Non-object elements are skipped. Values that are not
// strings are kept in their JSON spelling.
func (a Action) ContentJSONArray() ([]map[string]string, error) {
	if a.ContentType != ContentTypeJSON {
		return nil, fmt.Errorf("action %d is %q: %w", a.ID, a.ContentType, ErrWrongContentType)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(a.Content()), &elems); err != nil {
		return nil, fmt.Errorf("action %d content: %w", a.ID, err)
	}

	items := make([]map[string]string, 0, len(elems))
	for _, elem := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(elem, &obj); err != nil || obj == nil {
			continue
		}
		item := make(map[string]string, len(obj))
		for k, v := range obj {
			item[k] = jsonText(v)
		}
		items = append(items, item)
	}
	return items, nil
}

// jsonText renders a JSON value as text: strings unquoted, anything else
// compacted.
func jsonText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// ContentHTMLDoc wraps the content of a text/html action in a complete
// document that loads the web-view library and every library listed in
// LibsApp, each pinned to the action's cache version.
func (a Action) ContentHTMLDoc() (string, error) {
	if a.ContentType != ContentTypeHTML {
		return "", fmt.Errorf("action %d is %q: %w", a.ID, a.ContentType, ErrWrongContentType)
	}

	v := strconv.Itoa(a.CacheVersion)
	var sb strings.Builder
	sb.WriteString(htmlDocHead)
	sb.WriteString(`<script src="` + WebViewLibURL + "?v=" + v + `"></script>`)
	for _, lib := range strings.Split(a.LibsApp, ",") {
		lib = strings.TrimSpace(lib)
		if lib == "" {
			continue
		}
		sb.WriteString(`<script src="` + LibsURL + lib + ".js?v=" + v + `"></script>`)
	}
	sb.WriteString(a.Content())
	sb.WriteString(htmlDocTail)
	return sb.String(), nil
}

// Clicked is a click reported by rendered action content.
type Clicked struct {
	ActionID int
	Href     string
	Status   string
	Arg      string
}

// ParseClicked decodes a message posted by rendered content for actionID:
// {"href": ..., "clicked": <status>, "arg": ...}.
func ParseClicked(actionID int, message []byte) (Clicked, error) {
	var msg struct {
		Href    *string `json:"href"`
		Clicked *string `json:"clicked"`
		Arg     *string `json:"arg"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return Clicked{}, fmt.Errorf("parse click message: %w", err)
	}
	if msg.Href == nil || msg.Clicked == nil || msg.Arg == nil {
		return Clicked{}, errors.New("parse click message: href, clicked and arg are required")
	}
	return Clicked{
		ActionID: actionID,
		Href:     *msg.Href,
		Status:   *msg.Clicked,
		Arg:      *msg.Arg,
	}, nil
}
