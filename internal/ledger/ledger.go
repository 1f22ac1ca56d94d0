// Package ledger records every mutation a run performs, in order, so a
// later rollback can replay it in reverse.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dhowell/mailtriage/internal/graph"
	"github.com/dhowell/mailtriage/internal/state"
	"github.com/dhowell/mailtriage/internal/triage"
)

// ActionType discriminates the ledger action variants.
type ActionType string

const (
	ActionMessagePatch ActionType = "message_patch"
	ActionDraftCreated ActionType = "draft_created"
	ActionFileAppend   ActionType = "file_append"
)

// Action is one recorded mutation. Only the fields relevant to its
// Type are set; the rest stay zero and are omitted from JSON.
type Action struct {
	Type      ActionType          `json:"type"`
	MessageID string              `json:"message_id,omitempty"`
	Before    *triage.Snapshot    `json:"before,omitempty"`
	Patch     *graph.MessagePatch `json:"patch,omitempty"`
	DraftID   string              `json:"draft_id,omitempty"`
	Path      string              `json:"path,omitempty"`
	PrevSize  int64               `json:"previous_size,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Entry is the complete ledger for one (run, account) pair.
type Entry struct {
	RunID     string    `json:"run_id"`
	Account   string    `json:"account"`
	Timestamp time.Time `json:"timestamp"`
	Actions   []Action  `json:"actions"`
}

// Ledger accumulates actions in memory during a run. Actions are
// appended only after the underlying mutation has succeeded, so the
// ledger never over-reports. Persist writes everything or nothing.
type Ledger struct {
	entry Entry
	now   func() time.Time
}

func New(runID, account string) *Ledger {
	return &Ledger{
		entry: Entry{RunID: runID, Account: account},
		now:   time.Now,
	}
}

// RecordPatch logs a successful message patch together with the
// pre-mutation snapshot needed to reverse it.
func (l *Ledger) RecordPatch(messageID string, before triage.Snapshot, patch graph.MessagePatch) {
	b := before
	p := patch
	l.append(Action{
		Type:      ActionMessagePatch,
		MessageID: messageID,
		Before:    &b,
		Patch:     &p,
	})
}

// RecordDraft logs a created reply draft.
func (l *Ledger) RecordDraft(messageID, draftID string) {
	l.append(Action{
		Type:      ActionDraftCreated,
		MessageID: messageID,
		DraftID:   draftID,
	})
}

// RecordAppend logs a file append; prevSize is the file length before
// the append, so rollback can truncate back to it.
func (l *Ledger) RecordAppend(path string, prevSize int64) {
	l.append(Action{
		Type:     ActionFileAppend,
		Path:     path,
		PrevSize: prevSize,
	})
}

func (l *Ledger) append(a Action) {
	a.Timestamp = l.now().UTC()
	l.entry.Actions = append(l.entry.Actions, a)
}

// Len reports how many actions have been recorded so far.
func (l *Ledger) Len() int { return len(l.entry.Actions) }

// Entry returns the accumulated entry, timestamped for persistence.
func (l *Ledger) Entry() Entry {
	e := l.entry
	e.Timestamp = l.now().UTC()
	return e
}

// IndexRecord is one line in an account's run index.
type IndexRecord struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Actions   int       `json:"actions"`
}

// Store persists ledger entries under each account's state directory,
// one JSON file per run plus a small index for listing.
type Store struct {
	state *state.Store
}

func NewStore(st *state.Store) *Store {
	return &Store{state: st}
}

func (s *Store) runsDir(account string) (string, error) {
	dir, err := s.state.AccountDir(account)
	if err != nil {
		return "", err
	}
	dir = filepath.Join(dir, "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create runs dir %s: %w", dir, err)
	}
	return dir, nil
}

// Persist writes the full entry atomically and updates the run index.
// A run with no actions is still persisted so the run id resolves
// later, if only to an empty ledger.
func (s *Store) Persist(e Entry) error {
	dir, err := s.runsDir(e.Account)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	if err := state.WriteFileAtomic(filepath.Join(dir, e.RunID+".json"), data); err != nil {
		return fmt.Errorf("persist ledger %s: %w", e.RunID, err)
	}
	return s.updateIndex(dir, IndexRecord{
		RunID:     e.RunID,
		Timestamp: e.Timestamp,
		Actions:   len(e.Actions),
	})
}

func (s *Store) updateIndex(dir string, rec IndexRecord) error {
	path := filepath.Join(dir, "index.json")
	var index []IndexRecord
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &index)
	}
	for i, existing := range index {
		if existing.RunID == rec.RunID {
			index[i] = rec
			return writeIndex(path, index)
		}
	}
	index = append(index, rec)
	return writeIndex(path, index)
}

func writeIndex(path string, index []IndexRecord) error {
	sort.Slice(index, func(i, j int) bool {
		return index[i].Timestamp.Before(index[j].Timestamp)
	})
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run index: %w", err)
	}
	return state.WriteFileAtomic(path, data)
}

// Load returns the persisted entry for one run of one account.
func (s *Store) Load(account, runID string) (Entry, error) {
	dir, err := s.runsDir(account)
	if err != nil {
		return Entry{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, runID+".json"))
	if err != nil {
		return Entry{}, fmt.Errorf("load ledger %s for %s: %w", runID, account, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("parse ledger %s for %s: %w", runID, account, err)
	}
	return e, nil
}

// ListRuns returns the account's run index, oldest first.
func (s *Store) ListRuns(account string) ([]IndexRecord, error) {
	dir, err := s.runsDir(account)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "index.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run index for %s: %w", account, err)
	}
	var index []IndexRecord
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse run index for %s: %w", account, err)
	}
	return index, nil
}
