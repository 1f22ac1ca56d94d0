// Package classify sends message batches to a language model and turns
// its JSON verdicts into triage decisions.
package classify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dhowell/mailtriage/internal/config"
	"github.com/dhowell/mailtriage/internal/triage"
)

// Classifier is the model behind a triage run. Implementations differ
// only in transport; the prompt and the response contract are shared.
type Classifier interface {
	// Classify returns one decision per message, in any order, keyed
	// by message id. A transport or parse failure aborts the batch.
	Classify(ctx context.Context, req BatchRequest) ([]triage.Decision, error)

	// ToneProfile derives how the user writes to one contact from a
	// sample of sent messages.
	ToneProfile(ctx context.Context, req ToneRequest) (ToneResult, error)
}

// BatchRequest is the full classification payload for one run.
type BatchRequest struct {
	Account  string           `json:"account"`
	Messages []MessageContext `json:"messages"`
}

// MessageContext is everything the model sees about one message.
type MessageContext struct {
	ID                string   `json:"id"`
	Subject           string   `json:"subject"`
	From              string   `json:"from"`
	FromName          string   `json:"from_name,omitempty"`
	Received          string   `json:"receivedDateTime,omitempty"`
	Categories        []string `json:"categories,omitempty"`
	Importance        string   `json:"importance,omitempty"`
	WebLink           string   `json:"webLink,omitempty"`
	Body              string   `json:"body"`
	ThreadSummary     []string `json:"thread_summary,omitempty"`
	HasUserReplied    bool     `json:"has_user_replied_in_thread"`
	LastMessageFromMe bool     `json:"last_message_from_me_in_thread"`

	SenderStats *SenderStatsPayload `json:"sender_stats,omitempty"`
	ToneProfile *ToneProfilePayload `json:"tone_profile,omitempty"`
}

// SenderStatsPayload summarizes the sender's history with this account.
type SenderStatsPayload struct {
	MessageCount int  `json:"message_count"`
	Internal     bool `json:"internal"`
}

// ToneProfilePayload guides draft replies toward the user's own voice.
type ToneProfilePayload struct {
	ToneSummary     string   `json:"tone_summary"`
	StyleGuidelines []string `json:"style_guidelines,omitempty"`
}

// ToneRequest asks for a tone profile of the user's writing to Contact.
// Samples are plain-text bodies of messages the user sent.
type ToneRequest struct {
	Account string   `json:"account"`
	Contact string   `json:"contact"`
	Samples []string `json:"samples"`
}

// ToneResult is the model's tone verdict.
type ToneResult struct {
	ToneSummary     string   `json:"tone_summary"`
	StyleGuidelines []string `json:"style_guidelines"`
}

// New builds the classifier named by the model config.
func New(cfg config.ModelConfig) (Classifier, error) {
	switch cfg.Provider {
	case config.ProviderCodex, config.ProviderCodexOSS:
		return NewCodexClassifier(cfg), nil
	case config.ProviderOpenAI:
		return NewHTTPClassifier(cfg)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

// decisionEnvelope is the top-level shape both providers must return.
type decisionEnvelope struct {
	Decisions []triage.Decision `json:"decisions"`
}

// decodeDecisions parses a model response into decisions, tolerating
// fenced or chatty output around the JSON object.
func decodeDecisions(raw string) ([]triage.Decision, error) {
	data, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var env decisionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ParseError{Stage: "decode decisions", Raw: raw, Err: err}
	}
	return env.Decisions, nil
}

func decodeTone(raw string) (ToneResult, error) {
	data, err := ExtractJSON(raw)
	if err != nil {
		return ToneResult{}, err
	}
	var res ToneResult
	if err := json.Unmarshal(data, &res); err != nil {
		return ToneResult{}, &ParseError{Stage: "decode tone profile", Raw: raw, Err: err}
	}
	return res, nil
}
