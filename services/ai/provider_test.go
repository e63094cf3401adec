package aisvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/sysconfig"
	dummydb "github.com/classnote/classnote/storage/database/dummy"
)

func newSettings(t *testing.T, entries map[string]string) sysconfig.Service {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)
	svc := sysconfig.NewService(dummydb.NewConfigRepository(db))
	for k, v := range entries {
		_, err = svc.Set(context.Background(), sysconfig.SetEntry{Key: k, Value: v})
		require.NoError(t, err)
	}
	return svc
}

func TestProvider_TextGenerator(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	conf.AI.Provider = ProviderGemini
	conf.AI.GeminiAPIKey = ""
	conf.AI.OpenAIAPIKey = ""

	validationCause := func(err error) error {
		var vErr *core.ValidationError
		if errors.As(err, &vErr) {
			return vErr.Err
		}
		return err
	}

	_, err := NewProvider(newSettings(t, nil), conf).TextGenerator(ctx)
	assert.Equal(t, ErrNoAPIKey, validationCause(err))

	_, err = NewProvider(newSettings(t, map[string]string{sysconfig.KeyAIProvider: "claude"}), conf).TextGenerator(ctx)
	assert.Equal(t, ErrUnknownProvider, validationCause(err))

	_, err = NewProvider(newSettings(t, map[string]string{
		sysconfig.KeyAIProvider:   "OpenAI",
		sysconfig.KeyGeminiAPIKey: "gemini-key",
	}), conf).TextGenerator(ctx)
	assert.Equal(t, ErrNoAPIKey, validationCause(err), "the key of the selected provider is needed")

	gen, err := NewProvider(newSettings(t, map[string]string{sysconfig.KeyGeminiAPIKey: "gemini-key"}), conf).TextGenerator(ctx)
	require.NoError(t, err)
	assert.IsType(t, &gemini{}, gen.(*limited).gen)
}

func TestOpenAI_Generate(t *testing.T) {
	var (
		gotAuth string
		gotReq  chatRequest
		reply   string
		status  int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	defer srv.Close()

	ctx := context.Background()
	conf := core.NewTestConfig()
	conf.AI.OpenAIBaseURL = srv.URL + "/v1/"
	conf.AI.Model = ""
	conf.AI.MaxConcurrency = 2
	provider := NewProvider(newSettings(t, map[string]string{
		sysconfig.KeyAIProvider:   "openai",
		sysconfig.KeyOpenAIAPIKey: "sk-test",
	}), conf)
	gen, err := provider.TextGenerator(ctx)
	require.NoError(t, err)

	status, reply = http.StatusOK, `{"choices": [{"message": {"role": "assistant", "content": "성실한 학생입니다."}}]}`
	out, err := gen.Generate(ctx, "너는 교사다.", "특기사항을 써줘")
	require.NoError(t, err)
	assert.Equal(t, "성실한 학생입니다.", out)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, defaultOpenAIModel, gotReq.Model)
	assert.Equal(t, []chatMessage{
		{Role: "system", Content: "너는 교사다."},
		{Role: "user", Content: "특기사항을 써줘"},
	}, gotReq.Messages)

	status, reply = http.StatusOK, `{"choices": [{"message": {"role": "assistant", "content": "  "}}]}`
	_, err = gen.Generate(ctx, "", "prompt")
	assert.Equal(t, ErrEmptyResponse, err)
	assert.Len(t, gotReq.Messages, 1)

	status, reply = http.StatusTooManyRequests, `{"error": {"message": "rate limit reached"}}`
	_, err = gen.Generate(ctx, "", "prompt")
	assert.EqualError(t, err, "openai: 429 rate limit reached")
}
