package schedule

import (
	"fmt"
	"time"
)

// Catalog describes when a provider can be booked.
// Hours apply to every working day. With SlotMinutes set, each hours window is
// cut into consecutive slots of that length; otherwise the hours windows are the slots.
type Catalog struct {
	WorkingDays Weekdays
	Hours       Windows
	SlotMinutes int
}

func (c Catalog) Validate() error {
	if c.SlotMinutes < 0 {
		return fmt.Errorf("slot length cannot be negative")
	}
	sorted := c.Hours.Sorted()
	for i, w := range sorted {
		if err := w.Validate(); err != nil {
			return err
		}
		if i > 0 && sorted[i-1].Overlaps(w) {
			return fmt.Errorf("offerable windows %s and %s overlap", sorted[i-1], w)
		}
	}
	return nil
}

func (c Catalog) WorksOn(d Date) bool {
	return c.WorkingDays.Contains(d.Weekday())
}

// SlotsFor returns the candidate windows for d in chronological order.
func (c Catalog) SlotsFor(d Date) []Window {
	if !c.WorksOn(d) {
		return nil
	}

	var slots []Window
	for _, hours := range c.Hours.Sorted() {
		if c.SlotMinutes <= 0 {
			slots = append(slots, hours)
			continue
		}
		length := time.Duration(c.SlotMinutes) * time.Minute
		for cursor := hours.Start; cursor.Add(length) <= hours.End; cursor = cursor.Add(length) {
			slots = append(slots, Window{Start: cursor, End: cursor.Add(length)})
		}
	}
	return slots
}

// Offers reports whether w can be booked on d. With exact set, w must equal one of the
// generated slots; otherwise it only has to lie within one offerable window.
func (c Catalog) Offers(d Date, w Window, exact bool) bool {
	if !c.WorksOn(d) {
		return false
	}
	if exact {
		for _, slot := range c.SlotsFor(d) {
			if slot == w {
				return true
			}
		}
		return false
	}
	for _, hours := range c.Hours {
		if hours.Contains(w) {
			return true
		}
	}
	return false
}

// Subtract drops every slot that overlaps a busy window, keeping the input order.
func Subtract(slots []Window, busy Windows) []Window {
	free := make([]Window, 0, len(slots))
	for _, slot := range slots {
		if !busy.OverlapsAny(slot) {
			free = append(free, slot)
		}
	}
	return free
}
