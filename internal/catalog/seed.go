// Package catalog loads the event catalogue from a YAML seed file.  The
// exec maintain events, rooms and tournaments in that file; seeding is an
// idempotent upsert keyed by slug (name for rooms).
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/uwcs/warwickgg/internal/model"
)

// File is the top-level document of a seed file.
type File struct {
	Rooms       []Room       `yaml:"rooms"`
	Events      []Event      `yaml:"events"`
	Tournaments []Tournament `yaml:"tournaments"`
}

type Room struct {
	Name   string `yaml:"name"`
	Tables []int  `yaml:"tables"`
}

// Event mirrors model.Event with rooms referenced by name.  Costs are in
// pence; a missing signup_limit defaults to 70.
type Event struct {
	Slug               string     `yaml:"slug"`
	Title              string     `yaml:"title"`
	Description        string     `yaml:"description"`
	Location           string     `yaml:"location"`
	Start              time.Time  `yaml:"start"`
	End                time.Time  `yaml:"end"`
	SignupStart        time.Time  `yaml:"signup_start"`
	SignupEnd          time.Time  `yaml:"signup_end"`
	SignupStartFresher *time.Time `yaml:"signup_start_fresher"`
	SignupLimit        *int       `yaml:"signup_limit"`
	HostedBy           []string   `yaml:"hosted_by"`
	CostMember         int64      `yaml:"cost_member"`
	CostNonMember      int64      `yaml:"cost_non_member"`
	Room               string     `yaml:"room"`
	SeatingLockAt      *time.Time `yaml:"seating_lock_at"`
	HasPhotography     bool       `yaml:"has_photography"`
	HasLivestream      bool       `yaml:"has_livestream"`
}

// Tournament references its parent event by slug.
type Tournament struct {
	Slug               string    `yaml:"slug"`
	Title              string    `yaml:"title"`
	Description        string    `yaml:"description"`
	Platform           string    `yaml:"platform"`
	Event              string    `yaml:"event"`
	RequiresAttendance bool      `yaml:"requires_attendance"`
	Start              time.Time `yaml:"start"`
	End                time.Time `yaml:"end"`
	SignupStart        time.Time `yaml:"signup_start"`
	SignupEnd          time.Time `yaml:"signup_end"`
	SignupLimit        int       `yaml:"signup_limit"`
}

const defaultSignupLimit = 70

// Writer persists catalogue rows.  *repository.Store implements it.
type Writer interface {
	UpsertSeatingRoom(ctx context.Context, room *model.SeatingRoom) error
	UpsertEvent(ctx context.Context, e *model.Event) error
	UpsertTournament(ctx context.Context, t *model.Tournament) error
}

// Decode parses a seed document.  Unknown keys are rejected so typos in
// the file do not silently drop settings.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return &f, nil
}

// LoadFile reads and decodes a seed file from disk.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Decode(fh)
}

func (e Event) model() model.Event {
	limit := defaultSignupLimit
	if e.SignupLimit != nil {
		limit = *e.SignupLimit
	}
	return model.Event{
		Slug:               e.Slug,
		Title:              e.Title,
		Description:        e.Description,
		Location:           e.Location,
		Start:              e.Start,
		End:                e.End,
		SignupStart:        e.SignupStart,
		SignupEnd:          e.SignupEnd,
		SignupStartFresher: e.SignupStartFresher,
		SignupLimit:        limit,
		HostedBy:           e.HostedBy,
		CostMember:         e.CostMember,
		CostNonMember:      e.CostNonMember,
		SeatingLockAt:      e.SeatingLockAt,
		HasPhotography:     e.HasPhotography,
		HasLivestream:      e.HasLivestream,
	}
}

func (t Tournament) model() model.Tournament {
	return model.Tournament{
		Slug:               t.Slug,
		Title:              t.Title,
		Description:        t.Description,
		Platform:           t.Platform,
		RequiresAttendance: t.RequiresAttendance,
		Start:              t.Start,
		End:                t.End,
		SignupStart:        t.SignupStart,
		SignupEnd:          t.SignupEnd,
		SignupLimit:        t.SignupLimit,
	}
}

// Validate checks every entry and every cross reference before anything
// is written.
func (f *File) Validate() error {
	rooms := make(map[string]bool, len(f.Rooms))
	for _, r := range f.Rooms {
		if r.Name == "" {
			return errors.New("room without name")
		}
		for _, n := range r.Tables {
			if n <= 0 {
				return fmt.Errorf("room %q: tables must have at least one seat", r.Name)
			}
		}
		rooms[r.Name] = true
	}
	events := make(map[string]bool, len(f.Events))
	for _, e := range f.Events {
		if e.Slug == "" {
			return errors.New("event without slug")
		}
		if events[e.Slug] {
			return fmt.Errorf("event %q defined twice", e.Slug)
		}
		if err := e.model().Validate(); err != nil {
			return fmt.Errorf("event %q: %w", e.Slug, err)
		}
		if e.Room != "" && !rooms[e.Room] {
			return fmt.Errorf("event %q: unknown room %q", e.Slug, e.Room)
		}
		events[e.Slug] = true
	}
	for _, t := range f.Tournaments {
		if t.Slug == "" {
			return errors.New("tournament without slug")
		}
		if err := t.model().Validate(); err != nil {
			return fmt.Errorf("tournament %q: %w", t.Slug, err)
		}
		if t.Event != "" && !events[t.Event] {
			return fmt.Errorf("tournament %q: unknown event %q", t.Slug, t.Event)
		}
		if t.RequiresAttendance && t.Event == "" {
			return fmt.Errorf("tournament %q: requires attendance but has no event", t.Slug)
		}
	}
	return nil
}

// Seed validates f and upserts rooms, then events, then tournaments.
func Seed(ctx context.Context, w Writer, f *File, log *slog.Logger) error {
	if err := f.Validate(); err != nil {
		return err
	}
	roomIDs := make(map[string]uint64, len(f.Rooms))
	for _, r := range f.Rooms {
		room := model.SeatingRoom{Name: r.Name, Tables: r.Tables}
		if err := w.UpsertSeatingRoom(ctx, &room); err != nil {
			return fmt.Errorf("room %q: %w", r.Name, err)
		}
		roomIDs[r.Name] = room.ID
	}
	eventIDs := make(map[string]uint64, len(f.Events))
	for _, e := range f.Events {
		m := e.model()
		if e.Room != "" {
			id := roomIDs[e.Room]
			m.SeatingRoomID = &id
		}
		if err := w.UpsertEvent(ctx, &m); err != nil {
			return fmt.Errorf("event %q: %w", e.Slug, err)
		}
		eventIDs[e.Slug] = m.ID
		log.Info("event seeded", slog.String("slug", e.Slug), slog.Uint64("id", m.ID))
	}
	for _, t := range f.Tournaments {
		m := t.model()
		if t.Event != "" {
			id := eventIDs[t.Event]
			m.EventID = &id
		}
		if err := w.UpsertTournament(ctx, &m); err != nil {
			return fmt.Errorf("tournament %q: %w", t.Slug, err)
		}
		log.Info("tournament seeded", slog.String("slug", t.Slug), slog.Uint64("id", m.ID))
	}
	return nil
}
