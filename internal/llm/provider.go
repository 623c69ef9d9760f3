package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tatianab/dicetale/internal/config"
)

// ErrNoAPIKey is returned when neither the settings nor the environment
// hold a key for the selected provider.
var ErrNoAPIKey = errors.New("no API key configured")

// NewFromSettings builds the provider selected in s. The returned closer
// releases the client and is never nil.
func NewFromSettings(ctx context.Context, cfg *config.Config, s *config.Settings) (Generator, io.Closer, error) {
	p := s.Provider()
	key := p.APIKey
	if key == "" {
		key = cfg.APIKey(p.Kind)
	}
	if key == "" {
		return nil, nopCloser{}, fmt.Errorf("provider %q: %w", p.Name, ErrNoAPIKey)
	}

	switch p.Kind {
	case config.KindGemini:
		g, err := NewGemini(ctx, key, p.Model, s.AI.Timeout)
		if err != nil {
			return nil, nopCloser{}, fmt.Errorf("provider %q: %w", p.Name, err)
		}
		return g, g, nil
	case config.KindOpenAI:
		return NewOpenAI(p.Name, key, p.BaseURL, p.Model, s.AI.Timeout), nopCloser{}, nil
	}
	return nil, nopCloser{}, fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
