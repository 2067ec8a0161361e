package serviceworker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultIcon  = "/icons/app-icon-192.png"
	DefaultBadge = "/icons/badge-icon.png"
	DefaultURL   = "/dashboard"
	DefaultTag   = "default"

	ActionView  = "view"
	ActionClose = "close"
)

// Action is a button shown on a displayed notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// DefaultActions returns the view and close buttons.
func DefaultActions() []Action {
	return []Action{
		{Action: ActionView, Title: "View details"},
		{Action: ActionClose, Title: "Close"},
	}
}

// PushData is the data block carried with a push. Extra keys are flattened
// next to the fixed fields on the wire.
type PushData struct {
	NotificationID string
	Type           string
	URL            string
	Extra          map[string]any
}

func (d PushData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+3)
	for k, v := range d.Extra {
		out[k] = v
	}
	if d.NotificationID != "" {
		out["notificationId"] = d.NotificationID
	}
	if d.Type != "" {
		out["type"] = d.Type
	}
	if d.URL != "" {
		out["url"] = d.URL
	}
	return json.Marshal(out)
}

func (d *PushData) UnmarshalJSON(raw []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	*d = PushData{}
	for k, v := range fields {
		s, isString := v.(string)
		switch {
		case k == "notificationId" && isString:
			d.NotificationID = s
		case k == "type" && isString:
			d.Type = s
		case k == "url" && isString:
			d.URL = s
		default:
			if d.Extra == nil {
				d.Extra = make(map[string]any)
			}
			d.Extra[k] = v
		}
	}
	return nil
}

// PushMessage is the JSON body delivered through the push service.
type PushMessage struct {
	Title   string   `json:"title"`
	Body    string   `json:"body,omitempty"`
	Message string   `json:"message,omitempty"`
	Type    string   `json:"type,omitempty"`
	Icon    string   `json:"icon,omitempty"`
	Badge   string   `json:"badge,omitempty"`
	Data    PushData `json:"data"`
	Actions []Action `json:"actions,omitempty"`
}

func (m PushMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

var ErrEmptyPush = errors.New("push event carried no data")

// ParsePushMessage decodes a push event body.
func ParsePushMessage(raw []byte) (PushMessage, error) {
	if len(raw) == 0 {
		return PushMessage{}, ErrEmptyPush
	}
	var msg PushMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return PushMessage{}, fmt.Errorf("failed to decode push payload: %w", err)
	}
	return msg, nil
}

// DisplayOptions is what the worker hands to the platform when showing a
// notification.
type DisplayOptions struct {
	Title              string
	Body               string
	Icon               string
	Badge              string
	Tag                string
	RequireInteraction bool
	Data               PushData
	Actions            []Action
	Timestamp          time.Time
}

// Display applies the display defaults to a received push.
func Display(msg PushMessage, now time.Time) DisplayOptions {
	opts := DisplayOptions{
		Title:              msg.Title,
		Body:               msg.Body,
		Icon:               msg.Icon,
		Badge:              msg.Badge,
		Data:               msg.Data,
		Actions:            msg.Actions,
		RequireInteraction: true,
		Timestamp:          now,
	}
	if opts.Body == "" {
		opts.Body = msg.Message
	}
	if opts.Icon == "" {
		opts.Icon = DefaultIcon
	}
	if opts.Badge == "" {
		opts.Badge = DefaultBadge
	}
	if len(opts.Actions) == 0 {
		opts.Actions = DefaultActions()
	}
	switch {
	case msg.Data.Type != "":
		opts.Tag = msg.Data.Type
	case msg.Type != "":
		opts.Tag = msg.Type
	default:
		opts.Tag = DefaultTag
	}
	return opts
}
