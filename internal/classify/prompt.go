package classify

import (
	"encoding/json"
	"fmt"
	"strings"
)

const triageInstructions = `You are an email triage assistant. For every message in the batch,
decide how it should be categorised and what follow-up it needs.

Primary categories (pick exactly one):
  "Urgent"           needs attention today, blocking or time-critical
  "Priority 1"       important, act within a day or two
  "Priority 2"       normal work correspondence
  "Priority 3"       low value, can wait indefinitely
  "Marketing"        promotional or automated marketing
  "Informational"    newsletters, notifications, FYI-only content
  "No reply needed"  requires no action at all

Flags (pick one, or omit):
  "Today", "Tomorrow", "This week", "Next week", "No date", "Mark as complete"

Set mark_complete when the thread is clearly resolved, and
mark_possibly_complete when it probably is but you are not certain.
Set needs_reply and write draft_reply_body only when the user should
answer; match the tone profile supplied with the message. Set
create_task with a one-line task_summary for anything needing work
beyond a reply. For informational messages, set is_informational and
write a one-sentence summary.

Respond with ONLY a JSON object of this exact shape:
{"decisions": [{"id": "...", "primary_category": "...",
"secondary_categories": [], "flag": "", "needs_reply": false,
"is_marketing": false, "is_informational": false,
"mark_complete": false, "mark_possibly_complete": false,
"create_task": false, "task_summary": "", "summary": "",
"draft_reply_body": ""}]}
One decision per message, same ids as the input.`

const toneInstructions = `You are analysing how a person writes email. Below are messages they
sent to one contact. Describe their tone and style so future drafts
can imitate it.

Respond with ONLY a JSON object of this exact shape:
{"tone_summary": "...", "style_guidelines": ["...", "..."]}`

// TriagePrompt renders the full prompt for one classification batch.
func TriagePrompt(req BatchRequest) (string, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal batch payload: %w", err)
	}
	var b strings.Builder
	b.WriteString(triageInstructions)
	b.WriteString("\n\nMessages:\n")
	b.Write(payload)
	return b.String(), nil
}

// TonePrompt renders the prompt for one tone-profile request.
func TonePrompt(req ToneRequest) (string, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tone payload: %w", err)
	}
	var b strings.Builder
	b.WriteString(toneInstructions)
	b.WriteString("\n\nSent messages:\n")
	b.Write(payload)
	return b.String(), nil
}
