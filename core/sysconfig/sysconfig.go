// Package sysconfig is the key-value store for the settings that admins change at runtime,
// mostly third-party API credentials.
package sysconfig

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
)

// Well-known keys
const (
	KeyAIProvider   = "AI_PROVIDER"
	KeyAIModel      = "AI_MODEL"
	KeyGeminiAPIKey = "GEMINI_API_KEY"
	KeyOpenAIAPIKey = "OPENAI_API_KEY"
)

var (
	ErrNotFound = core.NewNotFoundError("config entry not found")

	nowFunc = time.Now // mockable

	secretMarkers = []string{"KEY", "SECRET", "TOKEN", "PASSWORD"}
)

type (
	Entry struct {
		Key         string    `json:"key" db:"key"`
		Value       string    `json:"value" db:"value"`
		Description string    `json:"description" db:"description"`
		UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
	}

	SetEntry struct {
		Key         string `json:"key" validate:"required,max=100,configkey"`
		Value       string `json:"value" validate:"max=4000"`
		Description string `json:"description" validate:"max=255"`
	}

	Repository interface {
		GetEntry(ctx context.Context, key string) (Entry, error)
		QueryEntries(ctx context.Context, search string) ([]Entry, error)
		// SaveEntry inserts the entry or updates the existing one with the same key.
		SaveEntry(ctx context.Context, entry Entry) (Entry, error)
		DeleteEntry(ctx context.Context, key string) error
	}

	Service interface {
		Get(ctx context.Context, key string) (Entry, error)
		// GetOr returns the value stored under key, or def when it is missing or empty.
		GetOr(ctx context.Context, key, def string) (string, error)
		Set(ctx context.Context, se SetEntry) (Entry, error)
		// List returns the entries with their secret values masked.
		List(ctx context.Context, search string) ([]Entry, error)
		Delete(ctx context.Context, key string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func (se *SetEntry) Validate(validate *validator.Validate) error {
	se.Key = strings.ToUpper(core.CleanString(se.Key))
	se.Value = core.CleanString(se.Value)
	se.Description = core.CleanString(se.Description)
	return validate.Struct(se)
}

// NewService returns the sysconfig service. Entries are read from the repository on every call.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Get(ctx context.Context, key string) (Entry, error) {
	return svc.repo.GetEntry(ctx, strings.ToUpper(core.CleanString(key)))
}

func (svc *service) GetOr(ctx context.Context, key, def string) (string, error) {
	entry, err := svc.Get(ctx, key)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return def, nil
		}
		return "", err
	}
	if entry.Value == "" {
		return def, nil
	}
	return entry.Value, nil
}

func (svc *service) Set(ctx context.Context, se SetEntry) (Entry, error) {
	return svc.repo.SaveEntry(ctx, Entry{
		Key:         se.Key,
		Value:       se.Value,
		Description: se.Description,
		UpdatedAt:   nowFunc().UTC(),
	})
}

func (svc *service) List(ctx context.Context, search string) ([]Entry, error) {
	entries, err := svc.repo.QueryEntries(ctx, core.CleanString(search))
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if IsSecret(entries[i].Key) {
			entries[i].Value = Mask(entries[i].Value)
		}
	}
	return entries, nil
}

func (svc *service) Delete(ctx context.Context, key string) error {
	key = strings.ToUpper(core.CleanString(key))
	if _, err := svc.repo.GetEntry(ctx, key); err != nil {
		return err
	}
	return svc.repo.DeleteEntry(ctx, key)
}

// IsSecret reports whether the value stored under key must not be displayed in full.
func IsSecret(key string) bool {
	key = strings.ToUpper(key)
	for _, marker := range secretMarkers {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

// Mask hides all but the last 4 characters of value.
func Mask(value string) string {
	runes := []rune(value)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}
