package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// Persister stores the serialized settings record. *statestore.Store
// satisfies it.
type Persister interface {
	SettingsRecord(ctx context.Context) (string, bool, error)
	SetSettingsRecord(ctx context.Context, raw string) error
}

// Store holds the process-wide settings: compiled-in defaults merged with
// whatever was persisted, mutated only through Update and Reset. Every
// mutation persists the whole record immediately.
type Store struct {
	log *slog.Logger
	ps  Persister

	mu  sync.Mutex
	cur Settings
}

func NewStore(log *slog.Logger, ps Persister) (*Store, error) {
	if ps == nil {
		return nil, errors.New("missing persister")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{log: log, ps: ps, cur: Defaults()}, nil
}

// Load reads the persisted record and merges it over the defaults. A missing,
// unreadable or malformed record never prevents startup: the store logs and
// keeps whatever valid keys were recoverable (on a corrupt record, the
// defaults wholesale).
func (s *Store) Load(ctx context.Context) {
	raw, ok, err := s.ps.SettingsRecord(ctx)
	if err != nil {
		s.log.Warn("failed to read persisted settings; using defaults", "error", err)
		return
	}
	if !ok {
		return
	}

	merged := Defaults()
	if err := json.Unmarshal([]byte(raw), &merged); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			// Valid JSON with a wrong-typed field: the other fields were
			// still applied over the defaults.
			s.log.Warn("ignoring malformed settings field", "field", typeErr.Field, "error", err)
		} else {
			s.log.Warn("persisted settings record is corrupt; using defaults", "error", err)
			merged = Defaults()
		}
	}

	s.mu.Lock()
	s.cur = merged
	s.mu.Unlock()
}

// Current returns a copy of the settings.
func (s *Store) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Update sets one field by its record key and persists the whole record.
// Values arrive string-encoded (CLI args, UI form fields) and are parsed per
// field type. Ranges are not checked: a negative chunk size is accepted, same
// as the web client.
func (s *Store) Update(ctx context.Context, key string, value string) (Settings, error) {
	s.mu.Lock()
	next := s.cur
	if err := apply(&next, key, value); err != nil {
		s.mu.Unlock()
		return Settings{}, err
	}
	s.cur = next
	s.mu.Unlock()

	if err := s.persist(ctx, next); err != nil {
		return next, err
	}
	return next, nil
}

// Reset restores the compiled-in defaults and persists them.
func (s *Store) Reset(ctx context.Context) (Settings, error) {
	next := Defaults()

	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()

	if err := s.persist(ctx, next); err != nil {
		return next, err
	}
	return next, nil
}

func (s *Store) persist(ctx context.Context, v Settings) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.ps.SetSettingsRecord(ctx, string(raw)); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}

// Keys returns the record keys Update accepts, in display order.
func Keys() []string {
	return []string{
		"defaultModel",
		"responseTemperature",
		"maxResponseLength",
		"streamResponses",
		"chunkSize",
		"chunkOverlap",
		"maxDocumentsRetrieved",
		"autoIndexDocuments",
		"animations",
		"soundEffects",
		"compactMode",
	}
}

func apply(v *Settings, key string, value string) error {
	switch strings.TrimSpace(key) {
	case "defaultModel":
		v.DefaultModel = value
	case "responseTemperature":
		v.ResponseTemperature = value
	case "maxResponseLength":
		return applyInt(&v.MaxResponseLength, key, value)
	case "streamResponses":
		return applyBool(&v.StreamResponses, key, value)
	case "chunkSize":
		return applyInt(&v.ChunkSize, key, value)
	case "chunkOverlap":
		return applyInt(&v.ChunkOverlap, key, value)
	case "maxDocumentsRetrieved":
		v.MaxDocumentsRetrieved = value
	case "autoIndexDocuments":
		return applyBool(&v.AutoIndexDocuments, key, value)
	case "animations":
		return applyBool(&v.Animations, key, value)
	case "soundEffects":
		return applyBool(&v.SoundEffects, key, value)
	case "compactMode":
		return applyBool(&v.CompactMode, key, value)
	default:
		return fmt.Errorf("unknown settings key %q", key)
	}
	return nil
}

func applyInt(dst *int, key string, value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	*dst = n
	return nil
}

func applyBool(dst *bool, key string, value string) error {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	*dst = b
	return nil
}
