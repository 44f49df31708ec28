// Package schedule computes the next run instant for persona posting
// schedules. All functions are pure: they take a clock reading and return an
// absolute UTC instant, leaving persistence to the caller.
package schedule

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the schedule variants.
type Kind string

const (
	// KindSingle posts once per day at a fixed time.
	KindSingle Kind = "single"
	// KindMulti posts at each of several times per day.
	KindMulti Kind = "multi"
	// KindRandom posts once per day at a time picked from a slot set.
	KindRandom Kind = "random"
)

// DefaultRandomSlots is the built-in slot set for random schedules with no
// configured slots.
var DefaultRandomSlots = []string{"09:00", "12:00", "17:00", "20:00"}

// Config describes a schedule: its variant, HH:MM time-of-day slots, and the
// IANA time zone the slots are expressed in.
type Config struct {
	Kind     Kind
	Slots    []string
	Timezone string
}

// Slot is a parsed HH:MM time of day.
type Slot struct {
	Hour   int
	Minute int
}

func (s Slot) minutes() int { return s.Hour*60 + s.Minute }

func (s Slot) String() string { return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute) }

// ParseSlot parses an "HH:MM" slot.
func ParseSlot(raw string) (Slot, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 {
		return Slot{}, fmt.Errorf("invalid slot %q: expected HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Slot{}, fmt.Errorf("invalid slot %q: hour out of range", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Slot{}, fmt.Errorf("invalid slot %q: minute out of range", raw)
	}
	return Slot{Hour: hour, Minute: minute}, nil
}

// NextRun computes the next run instant strictly after from.
//
// single: today at the slot if still ahead in the configured zone, else
// tomorrow. multi: the first slot strictly after the current local time,
// wrapping to the earliest slot tomorrow. random: a uniformly chosen slot on
// tomorrow's date — being due now means today's chance was already consumed.
//
// The target is composed from the local calendar date and the zone, so the
// offset applied is the offset at the target instant, not the offset now.
// This keeps results correct across DST transitions.
func NextRun(cfg Config, from time.Time) (time.Time, error) {
	loc, err := loadZone(cfg.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	local := from.In(loc)

	switch cfg.Kind {
	case KindSingle:
		if len(cfg.Slots) == 0 {
			return time.Time{}, fmt.Errorf("single schedule has no slot")
		}
		slot, err := ParseSlot(cfg.Slots[0])
		if err != nil {
			return time.Time{}, err
		}
		target := onDay(local, 0, slot, loc)
		if !target.After(from) {
			target = onDay(local, 1, slot, loc)
		}
		return target.UTC(), nil

	case KindMulti:
		if len(cfg.Slots) == 0 {
			return time.Time{}, fmt.Errorf("multi schedule has no slots")
		}
		slots, err := parseSlots(cfg.Slots)
		if err != nil {
			return time.Time{}, err
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i].minutes() < slots[j].minutes() })
		for _, slot := range slots {
			if target := onDay(local, 0, slot, loc); target.After(from) {
				return target.UTC(), nil
			}
		}
		// No slot left today; wrap to the earliest slot tomorrow.
		return onDay(local, 1, slots[0], loc).UTC(), nil

	case KindRandom:
		raw := cfg.Slots
		if len(raw) == 0 {
			raw = DefaultRandomSlots
		}
		slots, err := parseSlots(raw)
		if err != nil {
			return time.Time{}, err
		}
		slot := slots[rand.Intn(len(slots))]
		return onDay(local, 1, slot, loc).UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind %q", cfg.Kind)
	}
}

// onDay builds the instant for a slot on local's calendar day plus dayOffset.
// time.Date resolves the zone offset at that instant.
func onDay(local time.Time, dayOffset int, slot Slot, loc *time.Location) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day()+dayOffset, slot.Hour, slot.Minute, 0, 0, loc)
}

func parseSlots(raw []string) ([]Slot, error) {
	out := make([]Slot, 0, len(raw))
	for _, r := range raw {
		slot, err := ParseSlot(r)
		if err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, nil
}

func loadZone(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// Validate checks a schedule config without computing anything.
func Validate(cfg Config) error {
	if _, err := loadZone(cfg.Timezone); err != nil {
		return err
	}
	switch cfg.Kind {
	case KindSingle, KindMulti:
		if len(cfg.Slots) == 0 {
			return fmt.Errorf("%s schedule requires at least one slot", cfg.Kind)
		}
	case KindRandom:
		// Empty slots fall back to DefaultRandomSlots.
	default:
		return fmt.Errorf("unknown schedule kind %q", cfg.Kind)
	}
	_, err := parseSlots(cfg.Slots)
	return err
}
