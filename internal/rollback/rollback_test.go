package rollback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhowell/mailtriage/internal/graph"
	"github.com/dhowell/mailtriage/internal/ledger"
	"github.com/dhowell/mailtriage/internal/triage"
)

type fakeMailbox struct {
	patches  []graph.MessagePatch
	patchIDs []string
	deleted  []string
	failOn   string
}

func (f *fakeMailbox) UpdateMessage(_ context.Context, id string, patch graph.MessagePatch) error {
	if id == f.failOn {
		return errors.New("boom")
	}
	f.patchIDs = append(f.patchIDs, id)
	f.patches = append(f.patches, patch)
	return nil
}

func (f *fakeMailbox) DeleteMessage(_ context.Context, id string) error {
	if id == f.failOn {
		return errors.New("boom")
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func entryWith(actions ...ledger.Action) ledger.Entry {
	return ledger.Entry{RunID: "run-1", Account: "dev@example.com", Actions: actions}
}

func TestRunReversesOrder(t *testing.T) {
	mb := &fakeMailbox{}
	isRead := true
	entry := entryWith(
		ledger.Action{Type: ledger.ActionMessagePatch, MessageID: "m1", Before: &triage.Snapshot{}, Patch: &graph.MessagePatch{IsRead: &isRead}},
		ledger.Action{Type: ledger.ActionMessagePatch, MessageID: "m2", Before: &triage.Snapshot{}, Patch: &graph.MessagePatch{IsRead: &isRead}},
		ledger.Action{Type: ledger.ActionDraftCreated, MessageID: "m2", DraftID: "draft-7"},
	)

	report := Run(context.Background(), mb, entry)

	assert.Equal(t, 3, report.Undone)
	assert.Zero(t, report.Failed)
	assert.Equal(t, []string{"draft-7"}, mb.deleted)
	assert.Equal(t, []string{"m2", "m1"}, mb.patchIDs, "newest action is undone first")
}

func TestUndoPatchRestoresSnapshot(t *testing.T) {
	mb := &fakeMailbox{}
	before := &triage.Snapshot{
		Categories: []string{"Customer"},
		IsRead:     false,
		Flag: &graph.FollowupFlag{
			FlagStatus:  graph.FlagStatusFlagged,
			DueDateTime: &graph.DateTimeTimeZone{DateTime: "2026-08-28T18:00:00", TimeZone: "UTC"},
		},
	}
	entry := entryWith(ledger.Action{Type: ledger.ActionMessagePatch, MessageID: "m1", Before: before})

	report := Run(context.Background(), mb, entry)
	require.Equal(t, 1, report.Undone)

	restore := mb.patches[0]
	assert.Equal(t, []string{"Customer"}, restore.Categories)
	require.NotNil(t, restore.IsRead)
	assert.False(t, *restore.IsRead)
	require.NotNil(t, restore.Flag)
	assert.Equal(t, graph.FlagStatusFlagged, restore.Flag.FlagStatus)
	assert.Empty(t, restore.Importance, "importance is never restored")
}

func TestUndoPatchNoPriorFlagClearsFlag(t *testing.T) {
	mb := &fakeMailbox{}
	entry := entryWith(ledger.Action{
		Type:      ledger.ActionMessagePatch,
		MessageID: "m1",
		Before:    &triage.Snapshot{IsRead: true},
	})

	Run(context.Background(), mb, entry)

	restore := mb.patches[0]
	require.NotNil(t, restore.Flag)
	assert.Equal(t, graph.FlagStatusNotFlagged, restore.Flag.FlagStatus)
	assert.NotNil(t, restore.Categories, "empty category list still patches to empty")
	assert.Empty(t, restore.Categories)
}

func TestUndoAppendTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.md")
	require.NoError(t, os.WriteFile(path, []byte("old content\nnew line\n"), 0o644))

	entry := entryWith(ledger.Action{Type: ledger.ActionFileAppend, Path: path, PrevSize: 12})
	report := Run(context.Background(), &fakeMailbox{}, entry)
	require.Equal(t, 1, report.Undone)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old content\n", string(data))
}

func TestUndoAppendSkipsShrunkFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.md")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o644))

	entry := entryWith(ledger.Action{Type: ledger.ActionFileAppend, Path: path, PrevSize: 100})
	report := Run(context.Background(), &fakeMailbox{}, entry)
	assert.Equal(t, 1, report.Undone)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "short", string(data))
}

func TestUndoAppendMissingFileIsNoop(t *testing.T) {
	entry := entryWith(ledger.Action{
		Type:     ledger.ActionFileAppend,
		Path:     filepath.Join(t.TempDir(), "gone.txt"),
		PrevSize: 10,
	})
	report := Run(context.Background(), &fakeMailbox{}, entry)
	assert.Equal(t, 1, report.Undone)
}

func TestRunContinuesPastFailures(t *testing.T) {
	mb := &fakeMailbox{failOn: "m2"}
	entry := entryWith(
		ledger.Action{Type: ledger.ActionMessagePatch, MessageID: "m1", Before: &triage.Snapshot{}},
		ledger.Action{Type: ledger.ActionMessagePatch, MessageID: "m2", Before: &triage.Snapshot{}},
		ledger.Action{Type: ledger.ActionDraftCreated, MessageID: "m3", DraftID: "draft-1"},
	)

	report := Run(context.Background(), mb, entry)

	assert.Equal(t, 2, report.Undone)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 3)
	assert.Contains(t, report.Results[1].Error, "boom")
	assert.Equal(t, []string{"m1"}, mb.patchIDs, "failure on m2 does not stop m1")
}

func TestRunRejectsMalformedActions(t *testing.T) {
	entry := entryWith(
		ledger.Action{Type: ledger.ActionMessagePatch, MessageID: "m1"},
		ledger.Action{Type: ledger.ActionDraftCreated},
		ledger.Action{Type: ledger.ActionType("message_move")},
	)

	report := Run(context.Background(), &fakeMailbox{}, entry)
	assert.Equal(t, 3, report.Failed)
}
