package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhowell/mailtriage/internal/config"
)

func TestExtractJSONPlain(t *testing.T) {
	data, err := ExtractJSON(`{"decisions": []}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"decisions": []}`, string(data))
}

func TestExtractJSONStripsFences(t *testing.T) {
	raw := "```json\n{\"decisions\": [{\"id\": \"m1\"}]}\n```"
	data, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"decisions": [{"id": "m1"}]}`, string(data))
}

func TestExtractJSONFallsBackToBraceSpan(t *testing.T) {
	raw := "Here are my decisions:\n{\"decisions\":\n  []}\nHope that helps!"
	data, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"decisions": []}`, string(data))
}

func TestExtractJSONNoObject(t *testing.T) {
	_, err := ExtractJSON("I could not process that batch.")
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "extract json", parseErr.Stage)
}

func TestParseErrorTruncatesRaw(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := &ParseError{Stage: "extract json", Raw: string(long)}
	assert.Less(t, len(err.Error()), 300)
}

func TestDecodeDecisions(t *testing.T) {
	decisions, err := decodeDecisions(`{"decisions": [
		{"id": "m1", "primary_category": "Priority 1", "needs_reply": true, "flag": "Today"},
		{"id": "m2", "primary_category": "Marketing", "is_marketing": true}
	]}`)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "m1", decisions[0].ID)
	assert.Equal(t, "Priority 1", decisions[0].PrimaryCategory)
	assert.True(t, decisions[0].NeedsReply)
	assert.Equal(t, "Today", decisions[0].Flag)
	assert.True(t, decisions[1].IsMarketing)
}

func TestDecodeToneRejectsNonObject(t *testing.T) {
	_, err := decodeTone("sure, sounds friendly")
	assert.Error(t, err)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(config.ModelConfig{Provider: "bard"})
	assert.Error(t, err)
}

func TestCodexClassifierRoundTrip(t *testing.T) {
	c := NewCodexClassifier(config.ModelConfig{
		Provider:    config.ProviderCodex,
		TriageModel: "gpt-4.1-mini",
	})
	var gotModel, gotPrompt string
	c.run = func(_ context.Context, model, prompt string) (string, error) {
		gotModel = model
		gotPrompt = prompt
		return `{"decisions": [{"id": "m1", "primary_category": "Urgent"}]}`, nil
	}

	decisions, err := c.Classify(context.Background(), BatchRequest{
		Account:  "dev@example.com",
		Messages: []MessageContext{{ID: "m1", Subject: "server down"}},
	})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "Urgent", decisions[0].PrimaryCategory)
	assert.Equal(t, "gpt-4.1-mini", gotModel)
	assert.Contains(t, gotPrompt, "server down")
	assert.Contains(t, gotPrompt, `"decisions"`)
}

func TestHTTPClassifier(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role":    "assistant",
					"content": `{"tone_summary": "short and dry", "style_guidelines": ["no exclamation marks"]}`,
				}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	c, err := NewHTTPClassifier(config.ModelConfig{
		Provider:   config.ProviderOpenAI,
		ReplyModel: "gpt-4.1",
		APIKeyEnv:  "TEST_OPENAI_KEY",
	})
	require.NoError(t, err)
	c.WithBaseURL(srv.URL)

	res, err := c.ToneProfile(context.Background(), ToneRequest{
		Account: "dev@example.com",
		Contact: "alice@corp.com",
		Samples: []string{"Thanks, merged."},
	})
	require.NoError(t, err)
	assert.Equal(t, "short and dry", res.ToneSummary)
	assert.Equal(t, []string{"no exclamation marks"}, res.StyleGuidelines)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4.1", gotBody["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, gotBody["response_format"])
}

func TestHTTPClassifierMissingKey(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "")
	_, err := NewHTTPClassifier(config.ModelConfig{APIKeyEnv: "TEST_OPENAI_KEY"})
	assert.Error(t, err)
}

func TestHTTPClassifierSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited"},
		})
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	c, err := NewHTTPClassifier(config.ModelConfig{TriageModel: "gpt-4.1-mini", APIKeyEnv: "TEST_OPENAI_KEY"})
	require.NoError(t, err)
	c.WithBaseURL(srv.URL)

	_, err = c.Classify(context.Background(), BatchRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
