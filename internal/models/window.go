package models

import "time"

// Window is a reporting window [Start, End].
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Valid reports whether the window has positive length.
func (w Window) Valid() bool {
	return w.End.After(w.Start)
}

// Contains reports whether t lies inside the closed window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Narrow applies an override set. Override dates only move the window inwards
// and only when they fall strictly inside it.
func (w Window) Narrow(o Override) Window {
	out := w
	if o.Open != nil && o.Open.After(w.Start) && o.Open.Before(w.End) {
		out.Start = *o.Open
	}
	if o.Close != nil && o.Close.After(w.Start) && o.Close.Before(w.End) {
		out.End = *o.Close
	}
	return out
}
