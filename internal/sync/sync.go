// Package sync runs the triage pipeline for one account: fetch,
// classify, apply, record.
package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dhowell/mailtriage/internal/classify"
	"github.com/dhowell/mailtriage/internal/config"
	"github.com/dhowell/mailtriage/internal/db"
	"github.com/dhowell/mailtriage/internal/display"
	"github.com/dhowell/mailtriage/internal/graph"
	"github.com/dhowell/mailtriage/internal/ledger"
	"github.com/dhowell/mailtriage/internal/state"
	"github.com/dhowell/mailtriage/internal/triage"
)

// Mailbox is the slice of the Graph client the orchestrator needs.
type Mailbox interface {
	ListInboxUnprocessed(ctx context.Context, daysBack, max int) ([]graph.Message, error)
	ListInboxSince(ctx context.Context, daysBack, max int) ([]graph.Message, error)
	ListSentSince(ctx context.Context, daysBack, max int) ([]graph.Message, error)
	ListConversation(ctx context.Context, conversationID string, max int) ([]graph.Message, error)
	UpdateMessage(ctx context.Context, id string, patch graph.MessagePatch) error
	CreateDraftReply(ctx context.Context, id, htmlBody string) (string, error)
	EnsureMasterCategories(ctx context.Context, desired map[string]string) (map[string]string, error)
}

// MailSender sends the informational digest. It is optional; when nil
// the digest is skipped even if configured on.
type MailSender interface {
	SendMail(ctx context.Context, subject, htmlBody, to string) error
}

// RunResult is the per-account outcome of one triage run.
type RunResult struct {
	Account       string   `json:"account"`
	RunID         string   `json:"run_id"`
	Fetched       int      `json:"fetched"`
	Skipped       int      `json:"skipped"`
	Processed     int      `json:"processed"`
	Drafts        int      `json:"drafts"`
	Tasks         int      `json:"tasks"`
	Informational int      `json:"informational"`
	SummarySent   bool     `json:"summary_sent"`
	Error         string   `json:"error,omitempty"`
	MessageErrors []string `json:"message_errors,omitempty"`
}

// Orchestrator drives triage runs. One instance serves one account;
// accounts never share mailbox clients or state.
type Orchestrator struct {
	Mailbox    Mailbox
	Classifier classify.Classifier
	States     *state.Store
	Ledgers    *ledger.Store
	DB         *db.DB
	Summary    MailSender
	Quiet      bool

	now func() time.Time
}

func New(mailbox Mailbox, classifier classify.Classifier, states *state.Store, ledgers *ledger.Store, database *db.DB) *Orchestrator {
	return &Orchestrator{
		Mailbox:    mailbox,
		Classifier: classifier,
		States:     states,
		Ledgers:    ledgers,
		DB:         database,
		now:        time.Now,
	}
}

const (
	threadFetchMax  = 20
	threadTailLen   = 8
	defaultBodyCap  = 2000
	defaultPrevCap  = 400
	digestDateStamp = "2006-01-02"
)

// Run executes one triage pass for the account. Failures before any
// mutation abort cleanly; failures on a single message are recorded
// and skipped; failures persisting the ledger or cursor are fatal and
// leave the cursor unadvanced so the next run refetches.
func (o *Orchestrator) Run(ctx context.Context, eff config.Effective, runID string) (RunResult, error) {
	result := RunResult{Account: eff.Email, RunID: runID}

	st := o.States.Load(eff.Email)
	if !st.FirstRunCompleted {
		if err := o.Bootstrap(ctx, eff); err != nil {
			return result, fmt.Errorf("bootstrap %s: %w", eff.Email, err)
		}
		st = o.States.Load(eff.Email)
	}

	// Category colours are cosmetic; a mailbox that rejects master
	// category writes still gets triaged.
	if _, err := o.Mailbox.EnsureMasterCategories(ctx, graph.CategoryColors); err != nil {
		o.warnf("%s: master categories: %v", eff.Email, err)
	}

	days := st.LookbackDays(eff.Triage.LookbackDaysInitial, eff.Triage.LookbackDaysIncremental)
	msgs, err := o.Mailbox.ListInboxUnprocessed(ctx, days, eff.Triage.MaxMessagesPerRun)
	if err != nil {
		return result, fmt.Errorf("fetch inbox for %s: %w", eff.Email, err)
	}
	result.Fetched = len(msgs)
	o.printf("  %s — %d unprocessed in last %dd\n", eff.Email, len(msgs), days)

	if len(msgs) == 0 {
		if err := o.advanceCursor(eff.Email, st); err != nil {
			return result, err
		}
		return result, nil
	}

	batch := classify.BatchRequest{Account: eff.Email}
	for i := range msgs {
		batch.Messages = append(batch.Messages, o.messageContext(ctx, eff, &msgs[i]))
	}

	decisions, err := o.Classifier.Classify(ctx, batch)
	if err != nil {
		// Nothing has been mutated yet; the whole batch returns next run.
		return result, fmt.Errorf("classify %d messages for %s: %w", len(msgs), eff.Email, err)
	}
	byID := make(map[string]triage.Decision, len(decisions))
	for _, d := range decisions {
		byID[d.ID] = d
	}

	led := ledger.New(runID, eff.Email)
	var tasks []triage.TaskRecord
	var infos []triage.InfoRecord
	now := o.now().UTC()

	for i := range msgs {
		msg := &msgs[i]
		decision, ok := byID[msg.ID]
		if !ok {
			// Tolerated: the message stays unprocessed and comes back
			// next run.
			result.Skipped++
			continue
		}

		plan := triage.BuildPlan(msg, decision, eff.Triage, now)
		if err := o.Mailbox.UpdateMessage(ctx, msg.ID, plan.Patch); err != nil {
			result.MessageErrors = append(result.MessageErrors, fmt.Sprintf("%s: %v", msg.ID, err))
			o.warnf("%s: patch %s: %v", eff.Email, msg.ID, err)
			continue
		}
		led.RecordPatch(msg.ID, plan.Before, plan.Patch)
		result.Processed++
		if !o.Quiet {
			display.MessageLine(decision.PrimaryCategory, msg.FromAddress(), msg.Subject, msg.ReceivedDateTime)
		}

		if plan.Draft != nil {
			draftID, err := o.Mailbox.CreateDraftReply(ctx, plan.Draft.MessageID, plan.Draft.HTMLBody)
			if err != nil {
				result.MessageErrors = append(result.MessageErrors, fmt.Sprintf("%s: draft: %v", msg.ID, err))
			} else {
				led.RecordDraft(msg.ID, draftID)
				result.Drafts++
			}
		}
		if plan.Task != nil {
			tasks = append(tasks, *plan.Task)
		}
		if plan.Info != nil {
			infos = append(infos, *plan.Info)
		}
	}
	result.Tasks = len(tasks)
	result.Informational = len(infos)

	if err := o.writeSideFiles(eff, led, now, tasks, result); err != nil {
		o.warnf("%s: %v", eff.Email, err)
	}

	if err := o.Ledgers.Persist(led.Entry()); err != nil {
		// Without a durable ledger the run cannot be rolled back, and
		// without an advanced cursor it will be retried; fail loudly.
		return result, fmt.Errorf("persist ledger for %s: %w", eff.Email, err)
	}

	if err := o.advanceCursor(eff.Email, st); err != nil {
		return result, err
	}

	if eff.Triage.SendSummaryEmail && len(infos) > 0 && o.Summary != nil {
		if err := o.sendDigest(ctx, eff, infos, now); err != nil {
			o.warnf("%s: summary email: %v", eff.Email, err)
		} else {
			result.SummarySent = true
		}
	}
	return result, nil
}

func (o *Orchestrator) advanceCursor(account string, st state.AccountState) error {
	now := o.now().UTC()
	st.FirstRunCompleted = true
	st.LastRunUTC = &now
	if err := o.States.Save(account, st); err != nil {
		return fmt.Errorf("save cursor for %s: %w", account, err)
	}
	return nil
}

// messageContext assembles everything the classifier sees about one
// message. Enrichment is best effort; a failed thread fetch or a
// missing profile degrades the context rather than the run.
func (o *Orchestrator) messageContext(ctx context.Context, eff config.Effective, msg *graph.Message) classify.MessageContext {
	bodyCap := eff.Triage.BodyLimit
	if bodyCap <= 0 {
		bodyCap = defaultBodyCap
	}
	prevCap := eff.Triage.PreviewLimit
	if prevCap <= 0 {
		prevCap = defaultPrevCap
	}

	mc := classify.MessageContext{
		ID:         msg.ID,
		Subject:    msg.Subject,
		From:       msg.FromAddress(),
		FromName:   msg.FromName(),
		Received:   msg.ReceivedDateTime,
		Categories: msg.Categories,
		Importance: msg.Importance,
		WebLink:    msg.WebLink,
		Body:       truncate(messageBody(msg), bodyCap),
	}

	thread, err := o.Mailbox.ListConversation(ctx, msg.ConversationID, threadFetchMax)
	if err != nil {
		o.warnf("%s: thread for %s: %v", eff.Email, msg.ID, err)
	} else if len(thread) > 1 {
		tail := thread
		if len(tail) > threadTailLen {
			tail = tail[len(tail)-threadTailLen:]
		}
		var lastFromMe bool
		for _, tm := range tail {
			fromMe := tm.FromAddress() == eff.Email
			lastFromMe = fromMe
			if fromMe && tm.ID != msg.ID {
				mc.HasUserReplied = true
			}
			mc.ThreadSummary = append(mc.ThreadSummary,
				fmt.Sprintf("%s: %s", tm.FromAddress(), truncate(tm.BodyPreview, prevCap)))
		}
		mc.LastMessageFromMe = lastFromMe
	}

	if o.DB != nil {
		if stat, err := o.DB.SenderStat(eff.Email, msg.FromAddress()); err == nil && stat != nil {
			mc.SenderStats = &classify.SenderStatsPayload{
				MessageCount: stat.MessageCount,
				Internal:     stat.Internal,
			}
		}
		if prof, err := o.DB.ToneProfile(eff.Email, msg.FromAddress()); err == nil && prof != nil {
			mc.ToneProfile = &classify.ToneProfilePayload{
				ToneSummary:     prof.ToneSummary,
				StyleGuidelines: prof.StyleGuidelines,
			}
		}
	}
	return mc
}

// writeSideFiles appends tasks and the run log to the account's data
// directory, recording each append in the ledger so rollback can
// truncate it away.
func (o *Orchestrator) writeSideFiles(eff config.Effective, led *ledger.Ledger, now time.Time, tasks []triage.TaskRecord, result RunResult) error {
	dir, err := o.States.AccountDir(eff.Email)
	if err != nil {
		return err
	}

	if len(tasks) > 0 {
		var b strings.Builder
		for _, t := range tasks {
			fmt.Fprintf(&b, "- [ ] %s — %s", t.TaskSummary, t.Subject)
			if t.WebLink != "" {
				fmt.Fprintf(&b, " (%s)", t.WebLink)
			}
			b.WriteString("\n")
		}
		if err := o.appendFile(filepath.Join(dir, "tasks.md"), b.String(), led); err != nil {
			return fmt.Errorf("append tasks.md: %w", err)
		}
	}

	if eff.Triage.LogToFile {
		line := fmt.Sprintf("%s run=%s processed=%d drafts=%d tasks=%d informational=%d errors=%d\n",
			now.Format(time.RFC3339), result.RunID, result.Processed, result.Drafts,
			len(tasks), result.Informational, len(result.MessageErrors))
		if err := o.appendFile(filepath.Join(dir, "triage-log.txt"), line, led); err != nil {
			return fmt.Errorf("append triage-log.txt: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) appendFile(path, content string, led *ledger.Ledger) error {
	var prevSize int64
	if info, err := os.Stat(path); err == nil {
		prevSize = info.Size()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	led.RecordAppend(path, prevSize)
	return nil
}

func (o *Orchestrator) sendDigest(ctx context.Context, eff config.Effective, infos []triage.InfoRecord, now time.Time) error {
	to := eff.Triage.SummaryEmailTo
	if to == "" {
		to = eff.Email
	}
	subject := fmt.Sprintf("Inbox digest %s: %d informational", now.Format(digestDateStamp), len(infos))
	return o.Summary.SendMail(ctx, subject, DigestHTML(infos), to)
}

// DigestHTML renders the informational digest body.
func DigestHTML(infos []triage.InfoRecord) string {
	var b strings.Builder
	b.WriteString("<h3>Informational messages</h3>\n<ul>\n")
	for _, info := range infos {
		from := info.FromName
		if from == "" {
			from = info.From
		}
		b.WriteString("  <li><b>")
		b.WriteString(htmlEscape(info.Subject))
		b.WriteString("</b> from ")
		b.WriteString(htmlEscape(from))
		b.WriteString("<br>")
		b.WriteString(htmlEscape(info.Summary))
		if info.WebLink != "" {
			fmt.Fprintf(&b, ` <a href="%s">open</a>`, info.WebLink)
		}
		b.WriteString("</li>\n")
	}
	b.WriteString("</ul>\n")
	return b.String()
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func messageBody(msg *graph.Message) string {
	if msg.UniqueBody != nil && msg.UniqueBody.Content != "" {
		return msg.UniqueBody.Content
	}
	if msg.Body != nil && msg.Body.Content != "" {
		return msg.Body.Content
	}
	return msg.BodyPreview
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func (o *Orchestrator) printf(format string, args ...any) {
	if !o.Quiet {
		fmt.Printf(format, args...)
	}
}

func (o *Orchestrator) warnf(format string, args ...any) {
	if !o.Quiet {
		fmt.Fprintf(os.Stderr, "  ! "+format+"\n", args...)
	}
}
