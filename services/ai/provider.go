// Package aisvc implements the text generators used by the activity analysis and the report-card generator.
package aisvc

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/sysconfig"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	defaultGeminiModel = "gemini-2.0-flash"
	defaultOpenAIModel = "gpt-4o-mini"
)

var (
	ErrNoAPIKey        = errors.New("AI API key is not configured")
	ErrUnknownProvider = errors.New("unknown AI provider")
	ErrEmptyResponse   = errors.New("the AI returned an empty response")
)

// Provider picks the generator on every call from the system config, falling back to the app config,
// so that keys changed by an admin apply to the next request.
type Provider struct {
	settings   sysconfig.Service
	conf       *core.Config
	httpClient *http.Client
	sem        *semaphore.Weighted
}

var _ core.TextGeneratorProvider = (*Provider)(nil)

func NewProvider(settings sysconfig.Service, conf *core.Config) *Provider {
	limit := int64(conf.AI.MaxConcurrency)
	if limit <= 0 {
		limit = 1
	}
	return &Provider{
		settings:   settings,
		conf:       conf,
		httpClient: &http.Client{Timeout: conf.AI.Timeout},
		sem:        semaphore.NewWeighted(limit),
	}
}

func (p *Provider) TextGenerator(ctx context.Context) (core.TextGenerator, error) {
	provider, err := p.settings.GetOr(ctx, sysconfig.KeyAIProvider, p.conf.AI.Provider)
	if err != nil {
		return nil, errors.Wrap(err, "reading AI provider")
	}
	model, err := p.settings.GetOr(ctx, sysconfig.KeyAIModel, p.conf.AI.Model)
	if err != nil {
		return nil, errors.Wrap(err, "reading AI model")
	}

	var gen core.TextGenerator
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderGemini, "":
		key, err := p.apiKey(ctx, sysconfig.KeyGeminiAPIKey, p.conf.AI.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		gen = newGemini(key, model, p.conf.AI.Timeout)
	case ProviderOpenAI:
		key, err := p.apiKey(ctx, sysconfig.KeyOpenAIAPIKey, p.conf.AI.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		gen = newOpenAI(p.httpClient, p.conf.AI.OpenAIBaseURL, key, model)
	default:
		return nil, core.NewValidationError(ErrUnknownProvider, core.FieldError{Field: sysconfig.KeyAIProvider, Error: ErrUnknownProvider.Error()})
	}
	return &limited{gen: gen, sem: p.sem}, nil
}

func (p *Provider) apiKey(ctx context.Context, key, def string) (string, error) {
	val, err := p.settings.GetOr(ctx, key, def)
	if err != nil {
		return "", errors.Wrap(err, "reading API key")
	}
	if val == "" {
		return "", core.NewValidationError(ErrNoAPIKey)
	}
	return val, nil
}

// limited bounds the number of requests in flight across the whole process.
type limited struct {
	gen core.TextGenerator
	sem *semaphore.Weighted
}

func (l *limited) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer l.sem.Release(1)

	out, err := l.gen.Generate(ctx, system, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
