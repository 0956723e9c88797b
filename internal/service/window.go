package service

import (
	"time"
)

const dateLayout = "2006-01-02"

// Window is the half-open interval [From, To). A zero bound is open.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// MonthOf returns the calendar month containing now, in now's location.
func MonthOf(now time.Time) Window {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Window{From: start, To: start.AddDate(0, 1, 0)}
}

// ParseWindow reads YYYY-MM-DD bounds, both inclusive days. Without bounds
// the window is the calendar month of now; with only one bound the other
// closes the month it falls in.
func ParseWindow(from, to string, now time.Time) (Window, error) {
	w, err := parseBounds(from, to, now.Location())
	if err != nil {
		return Window{}, err
	}
	switch {
	case w.From.IsZero() && w.To.IsZero():
		return MonthOf(now), nil
	case w.From.IsZero():
		w.From = MonthOf(w.To.AddDate(0, 0, -1)).From
	case w.To.IsZero():
		w.To = MonthOf(w.From).To
	}
	return w, nil
}

// parseBounds is like ParseWindow but leaves missing bounds open.
func parseBounds(from, to string, loc *time.Location) (Window, error) {
	var w Window
	if from != "" {
		d, err := time.ParseInLocation(dateLayout, from, loc)
		if err != nil {
			return Window{}, invalid("from", "from must be a YYYY-MM-DD date")
		}
		w.From = d
	}
	if to != "" {
		d, err := time.ParseInLocation(dateLayout, to, loc)
		if err != nil {
			return Window{}, invalid("to", "to must be a YYYY-MM-DD date")
		}
		w.To = d.AddDate(0, 0, 1)
	}
	if !w.From.IsZero() && !w.To.IsZero() && !w.From.Before(w.To) {
		return Window{}, invalid("to", "to must not be before from")
	}
	return w, nil
}

// label renders the inclusive day range for responses.
func (w Window) label() (string, string) {
	var from, to string
	if !w.From.IsZero() {
		from = w.From.Format(dateLayout)
	}
	if !w.To.IsZero() {
		to = w.To.AddDate(0, 0, -1).Format(dateLayout)
	}
	return from, to
}
