// Package state persists the per-account sync cursor.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AccountState is the sync cursor for one account. It is created on
// first access, mutated only by the orchestrator, and never deleted.
type AccountState struct {
	FirstRunCompleted bool       `json:"first_run_completed"`
	LastRunUTC        *time.Time `json:"last_run_utc"`
}

// LookbackDays returns the fetch window for the next run: the initial
// window until a run has advanced the cursor, then the incremental one.
func (s AccountState) LookbackDays(initial, incremental int) int {
	if s.LastRunUTC == nil {
		return initial
	}
	return incremental
}

// Store reads and writes account state under a data directory. Each
// account owns one subdirectory; nothing is shared across accounts.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// AccountDir returns (and creates) the state directory for an account.
func (st *Store) AccountDir(account string) (string, error) {
	dir := filepath.Join(st.root, safeName(account))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create account dir %s: %w", dir, err)
	}
	return dir, nil
}

// Load returns the persisted state for an account, or a fresh
// "not yet run" state when none exists or the file is unreadable.
// Failing open is deliberate: reprocessing is idempotent downstream,
// so availability beats strictness here.
func (st *Store) Load(account string) AccountState {
	path := filepath.Join(st.root, safeName(account), "state.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return AccountState{}
	}
	var s AccountState
	if err := json.Unmarshal(data, &s); err != nil {
		return AccountState{}
	}
	return s
}

// Save overwrites the account state atomically (temp file + rename),
// so a crash mid-write never leaves a truncated cursor behind.
func (st *Store) Save(account string, s AccountState) error {
	dir, err := st.AccountDir(account)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return WriteFileAtomic(filepath.Join(dir, "state.json"), data)
}

// WriteFileAtomic writes content to path via a temp file in the same
// directory followed by a rename.
func WriteFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mailtriage-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// safeName makes an account email usable as a directory name.
func safeName(account string) string {
	s := strings.ToLower(account)
	s = strings.ReplaceAll(s, "@", "_at_")
	return strings.ReplaceAll(s, "/", "_")
}
