// Package triage turns one classification decision into a concrete
// mailbox mutation. Everything here is pure; all I/O happens at the
// call site.
package triage

import (
	"sort"
	"time"

	"github.com/dhowell/mailtriage/internal/config"
	"github.com/dhowell/mailtriage/internal/graph"
)

// Categories the classifier may assign (exact strings).
const (
	CategoryUrgent           = "Urgent"
	CategoryPriority1        = "Priority 1"
	CategoryPriority2        = "Priority 2"
	CategoryPriority3        = "Priority 3"
	CategoryMarketing        = "Marketing"
	CategoryInformational    = "Informational"
	CategoryNoReplyNeeded    = "No reply needed"
	CategoryComplete         = "Complete"
	CategoryPossiblyComplete = "Possibly Complete"

	// CategoryProcessed is added by the tool itself and excludes a
	// message from future fetches.
	CategoryProcessed = "Processed"
)

// Decision is the classifier's verdict for one message.
type Decision struct {
	ID                   string   `json:"id"`
	PrimaryCategory      string   `json:"primary_category"`
	SecondaryCategories  []string `json:"secondary_categories"`
	Flag                 string   `json:"flag"`
	NeedsReply           bool     `json:"needs_reply"`
	IsMarketing          bool     `json:"is_marketing"`
	IsInformational      bool     `json:"is_informational"`
	MarkComplete         bool     `json:"mark_complete"`
	MarkPossiblyComplete bool     `json:"mark_possibly_complete"`
	CreateTask           bool     `json:"create_task"`
	TaskSummary          string   `json:"task_summary"`
	Summary              string   `json:"summary"`
	DraftReplyBody       string   `json:"draft_reply_body"`
}

// Snapshot captures the mutable fields of a message before a patch,
// for exact reversal.
type Snapshot struct {
	Categories []string            `json:"categories"`
	IsRead     bool                `json:"isRead"`
	Flag       *graph.FollowupFlag `json:"flag,omitempty"`
}

// InfoRecord feeds the informational digest.
type InfoRecord struct {
	Subject  string `json:"subject"`
	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
	Summary  string `json:"summary"`
	WebLink  string `json:"webLink,omitempty"`
}

// TaskRecord is one line appended to the account's tasks file.
type TaskRecord struct {
	Subject     string `json:"subject"`
	TaskSummary string `json:"task_summary"`
	WebLink     string `json:"webLink,omitempty"`
}

// DraftRequest asks the mailbox collaborator to create a reply draft.
// The planner never performs the creation itself.
type DraftRequest struct {
	MessageID string
	HTMLBody  string
}

// Plan is the planner's full output for one message.
type Plan struct {
	Patch  graph.MessagePatch
	Info   *InfoRecord
	Task   *TaskRecord
	Draft  *DraftRequest
	Before Snapshot
}

// BuildPlan maps (original message, decision, effective triage config)
// to the mutation to apply. now anchors the follow-up flag date table.
func BuildPlan(original *graph.Message, decision Decision, cfg config.TriageConfig, now time.Time) Plan {
	categories := make(map[string]bool, len(original.Categories)+4)
	for _, c := range original.Categories {
		categories[c] = true
	}
	categories[CategoryProcessed] = true

	primary := decision.PrimaryCategory
	if primary == "" {
		primary = CategoryPriority3
	}
	categories[primary] = true

	for _, extra := range decision.SecondaryCategories {
		if extra != "" {
			categories[extra] = true
		}
	}

	if decision.IsMarketing {
		categories[CategoryMarketing] = true
	}
	if decision.IsInformational {
		categories[CategoryInformational] = true
	}

	// Complete strictly dominates Possibly Complete.
	if decision.MarkComplete {
		categories[CategoryComplete] = true
		delete(categories, CategoryPossiblyComplete)
	} else if decision.MarkPossiblyComplete {
		categories[CategoryPossiblyComplete] = true
	}

	sorted := make([]string, 0, len(categories))
	for c := range categories {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)

	isRead := resolveReadState(primary, decision, cfg.PriorityReadState)
	patch := graph.MessagePatch{
		Categories: sorted,
		IsRead:     &isRead,
		Importance: importanceFor(primary),
		Flag:       BuildFollowupFlag(decision.Flag, now),
	}

	p := Plan{
		Patch: patch,
		Before: Snapshot{
			Categories: append([]string(nil), original.Categories...),
			IsRead:     original.IsRead,
			Flag:       cloneFlag(original.Flag),
		},
	}

	if decision.IsInformational && decision.Summary != "" {
		p.Info = &InfoRecord{
			Subject:  original.Subject,
			From:     original.FromAddress(),
			FromName: original.FromName(),
			Summary:  decision.Summary,
			WebLink:  original.WebLink,
		}
	}

	if cfg.CreateTasks && decision.CreateTask && decision.TaskSummary != "" {
		p.Task = &TaskRecord{
			Subject:     original.Subject,
			TaskSummary: decision.TaskSummary,
			WebLink:     original.WebLink,
		}
	}

	if cfg.DraftReplies && decision.NeedsReply && decision.DraftReplyBody != "" {
		p.Draft = &DraftRequest{
			MessageID: original.ID,
			HTMLBody:  ReplyHTML(decision.DraftReplyBody),
		}
	}

	return p
}

// resolveReadState looks up the desired read state with the fallback
// order: exact primary match, then the completion/marketing/
// informational signals in that order, then the configured default.
func resolveReadState(primary string, decision Decision, readState map[string]bool) bool {
	if v, ok := readState[primary]; ok {
		return v
	}
	if decision.MarkComplete {
		if v, ok := readState[CategoryComplete]; ok {
			return v
		}
	}
	if decision.MarkPossiblyComplete {
		if v, ok := readState[CategoryPossiblyComplete]; ok {
			return v
		}
	}
	if decision.IsMarketing {
		if v, ok := readState[CategoryMarketing]; ok {
			return v
		}
	}
	if decision.IsInformational {
		if v, ok := readState[CategoryInformational]; ok {
			return v
		}
	}
	return readState["default"]
}

// importanceFor is the fixed primary-category → importance table.
func importanceFor(primary string) string {
	switch primary {
	case CategoryUrgent, CategoryPriority1:
		return graph.ImportanceHigh
	case CategoryPriority3, CategoryMarketing, CategoryNoReplyNeeded:
		return graph.ImportanceLow
	default:
		// Priority 2, Informational and anything unrecognized.
		return graph.ImportanceNormal
	}
}

func cloneFlag(f *graph.FollowupFlag) *graph.FollowupFlag {
	if f == nil {
		return nil
	}
	clone := *f
	if f.StartDateTime != nil {
		v := *f.StartDateTime
		clone.StartDateTime = &v
	}
	if f.DueDateTime != nil {
		v := *f.DueDateTime
		clone.DueDateTime = &v
	}
	if f.CompletedDateTime != nil {
		v := *f.CompletedDateTime
		clone.CompletedDateTime = &v
	}
	return &clone
}
