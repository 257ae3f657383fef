package models

import "time"

// WindowLimit describes one fixed rate window (minute or day): its start,
// the maximum count allowed inside it and how long it lasts.
type WindowLimit struct {
	Start  time.Time
	Limit  int
	Length time.Duration
}

// End returns the first instant after the window.
func (w WindowLimit) End() time.Time {
	return w.Start.Add(w.Length)
}
