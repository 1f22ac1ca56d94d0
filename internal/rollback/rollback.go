// Package rollback reverses a previously recorded run by replaying its
// ledger in reverse order.
package rollback

import (
	"context"
	"fmt"
	"os"

	"github.com/dhowell/mailtriage/internal/graph"
	"github.com/dhowell/mailtriage/internal/ledger"
)

// Mailbox is the slice of the Graph client rollback needs.
type Mailbox interface {
	UpdateMessage(ctx context.Context, id string, patch graph.MessagePatch) error
	DeleteMessage(ctx context.Context, id string) error
}

// ActionResult reports the outcome of undoing one ledger action.
type ActionResult struct {
	Action ledger.Action
	Error  string
}

// Report summarizes one account's rollback. Undone counts successful
// reversals; every action gets a result regardless.
type Report struct {
	Account string
	RunID   string
	Undone  int
	Failed  int
	Results []ActionResult
}

// Run undoes every action in the entry, newest first. Failures are
// recorded and skipped; one stuck action must not strand the rest.
func Run(ctx context.Context, mailbox Mailbox, entry ledger.Entry) Report {
	report := Report{Account: entry.Account, RunID: entry.RunID}

	for i := len(entry.Actions) - 1; i >= 0; i-- {
		action := entry.Actions[i]
		result := ActionResult{Action: action}
		if err := undo(ctx, mailbox, action); err != nil {
			result.Error = err.Error()
			report.Failed++
		} else {
			report.Undone++
		}
		report.Results = append(report.Results, result)
	}
	return report
}

func undo(ctx context.Context, mailbox Mailbox, action ledger.Action) error {
	switch action.Type {
	case ledger.ActionMessagePatch:
		return undoPatch(ctx, mailbox, action)
	case ledger.ActionDraftCreated:
		if action.DraftID == "" {
			return fmt.Errorf("draft action without draft id")
		}
		return mailbox.DeleteMessage(ctx, action.DraftID)
	case ledger.ActionFileAppend:
		return undoAppend(action)
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// undoPatch restores the snapshot taken before the original patch. A
// message that had no flag gets an explicit notFlagged, since omitting
// the field would leave the applied flag in place.
func undoPatch(ctx context.Context, mailbox Mailbox, action ledger.Action) error {
	if action.Before == nil {
		return fmt.Errorf("patch action without before snapshot")
	}
	before := action.Before

	isRead := before.IsRead
	restore := graph.MessagePatch{
		Categories: before.Categories,
		IsRead:     &isRead,
	}
	if restore.Categories == nil {
		restore.Categories = []string{}
	}
	if before.Flag != nil {
		restore.Flag = before.Flag
	} else {
		restore.Flag = &graph.FollowupFlag{FlagStatus: graph.FlagStatusNotFlagged}
	}
	return mailbox.UpdateMessage(ctx, action.MessageID, restore)
}

// undoAppend truncates the file back to its pre-append length. When
// the file has shrunk below that length since the run, the append is
// already gone and truncating would eat someone else's data.
func undoAppend(action ledger.Action) error {
	info, err := os.Stat(action.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", action.Path, err)
	}
	if info.Size() < action.PrevSize {
		return nil
	}
	if err := os.Truncate(action.Path, action.PrevSize); err != nil {
		return fmt.Errorf("truncate %s: %w", action.Path, err)
	}
	return nil
}
