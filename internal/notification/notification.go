// Package notification turns a pending gateway notification into something a
// host can display.
//
// Parse validates the payload. Render resolves the referenced images
// concurrently; an image that cannot be fetched or decoded is logged and left
// out, it never fails the notification.
package notification

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/personyze/tracker-go/internal/apierr"
	"github.com/personyze/tracker-go/internal/wire"
)

// MaxButtons is how many action buttons get an icon resolved.
const MaxButtons = 3

// Notification is a validated pending notification.
type Notification struct {
	MessageID int64
	Title     string
	Body      string
	Badge     string
	Icon      string
	Image     string

	// Tag is the URL opened by the notification's default action.
	Tag string

	Vibrate  []int64
	Silent   bool
	Renotify bool
	Actions  []Action
}

// Action is one notification button.
type Action struct {
	Title  string
	Icon   string
	Action string
}

// Usable reports whether the button can be shown: it needs both a title
// and a target.
func (a Action) Usable() bool {
	return a.Title != "" && a.Action != ""
}

// Parse converts a decoded payload. Title and body are trimmed and must not
// be empty.
func Parse(p *wire.NotificationPayload) (*Notification, error) {
	if p == nil {
		return nil, errors.New("parse notification: nil payload")
	}

	vibrate, err := ParseVibrate(p.Vibrate)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeOther, "JSON error", err)
	}

	n := &Notification{
		MessageID: p.MessageID,
		Title:     strings.TrimSpace(p.Title),
		Body:      strings.TrimSpace(p.Body),
		Badge:     p.Badge,
		Icon:      p.Icon,
		Image:     p.Image,
		Tag:       p.Tag,
		Vibrate:   vibrate,
		Silent:    p.Silent,
		Renotify:  p.Renotify,
		Actions:   make([]Action, len(p.Actions)),
	}
	for i, a := range p.Actions {
		n.Actions[i] = Action{Title: a.Title, Icon: a.Icon, Action: a.Action}
	}

	if n.Title == "" || n.Body == "" {
		return nil, apierr.New(apierr.CodeOther, "Notification lacks required fields")
	}
	return n, nil
}

// ParseVibrate decodes a vibration pattern such as "100,200,100".
// An empty string is an empty pattern.
func ParseVibrate(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int64{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, len(parts))
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("vibrate pattern %q: %w", s, err)
		}
		out[i] = n
	}
	return out, nil
}
