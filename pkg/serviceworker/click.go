package serviceworker

import "strings"

// WindowClient is an open window controlled (or not) by the worker.
type WindowClient struct {
	ID        string
	URL       string
	Focusable bool
}

type ClickOutcome string

const (
	ClickIgnore     ClickOutcome = "ignore"
	ClickFocus      ClickOutcome = "focus"
	ClickNavigate   ClickOutcome = "navigate"
	ClickOpenWindow ClickOutcome = "open_window"
)

// ClickDecision tells the worker what to do after a notification click.
// Message is set when the target window must be told to navigate.
type ClickDecision struct {
	Outcome  ClickOutcome
	ClientID string
	URL      string
	Message  *Message
}

// ResolveClick decides how to route a notification click. The close action
// does nothing; view (or a click on the body) focuses a window already
// showing the target, else asks any app window to navigate there, else opens
// a new window.
func ResolveClick(action string, data PushData, clients []WindowClient, origin string) ClickDecision {
	if action != "" && action != ActionView {
		return ClickDecision{Outcome: ClickIgnore}
	}

	target := data.URL
	if target == "" {
		target = DefaultURL
	}

	for _, c := range clients {
		if c.Focusable && strings.Contains(c.URL, target) {
			return ClickDecision{Outcome: ClickFocus, ClientID: c.ID, URL: target}
		}
	}

	for _, c := range clients {
		if c.Focusable && origin != "" && strings.Contains(c.URL, origin) {
			msg := Navigate(target)
			return ClickDecision{Outcome: ClickNavigate, ClientID: c.ID, URL: target, Message: &msg}
		}
	}

	return ClickDecision{Outcome: ClickOpenWindow, URL: target}
}
