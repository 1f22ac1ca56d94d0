// Package db provides SQLite storage for sender statistics and tone
// profiles gathered during bootstrap.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection for mailtriage operations.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) a mailtriage database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Now returns the current time as an ISO 8601 string.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// --- Sender stats ---

// SenderStat aggregates one account's inbound history for a sender.
type SenderStat struct {
	Account        string
	Address        string
	DisplayName    string
	MessageCount   int
	Internal       bool
	LatestReceived string
}

// UpsertSenderStat inserts or accumulates a sender's counters.
func (d *DB) UpsertSenderStat(s SenderStat) error {
	_, err := d.conn.Exec(`
		INSERT INTO sender_stats
			(account, address, display_name, message_count, internal, latest_received)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account, address) DO UPDATE SET
			display_name    = excluded.display_name,
			message_count   = sender_stats.message_count + excluded.message_count,
			internal        = excluded.internal,
			latest_received = MAX(sender_stats.latest_received, excluded.latest_received)`,
		s.Account, s.Address, nullStr(s.DisplayName), s.MessageCount, s.Internal, nullStr(s.LatestReceived),
	)
	return err
}

// SenderStat returns the stats for one sender, or nil when unknown.
func (d *DB) SenderStat(account, address string) (*SenderStat, error) {
	s := &SenderStat{}
	var name, latest sql.NullString
	err := d.conn.QueryRow(`
		SELECT account, address, display_name, message_count, internal, latest_received
		FROM sender_stats
		WHERE account = ? AND address = ?`, account, address).Scan(
		&s.Account, &s.Address, &name, &s.MessageCount, &s.Internal, &latest,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.DisplayName = name.String
	s.LatestReceived = latest.String
	return s, nil
}

// TopSenders returns the account's most frequent senders.
func (d *DB) TopSenders(account string, limit int) ([]SenderStat, error) {
	rows, err := d.conn.Query(`
		SELECT account, address, display_name, message_count, internal, latest_received
		FROM sender_stats
		WHERE account = ?
		ORDER BY message_count DESC, address ASC
		LIMIT ?`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SenderStat
	for rows.Next() {
		var s SenderStat
		var name, latest sql.NullString
		if err := rows.Scan(&s.Account, &s.Address, &name, &s.MessageCount, &s.Internal, &latest); err != nil {
			return nil, err
		}
		s.DisplayName = name.String
		s.LatestReceived = latest.String
		result = append(result, s)
	}
	return result, rows.Err()
}

// SenderCount returns how many distinct senders are known for an account.
func (d *DB) SenderCount(account string) int {
	var n int
	d.conn.QueryRow("SELECT COUNT(*) FROM sender_stats WHERE account = ?", account).Scan(&n)
	return n
}

// --- Tone profiles ---

// ToneProfile describes how the user writes to one contact. The
// DefaultContact row holds the account-wide fallback.
type ToneProfile struct {
	Account         string
	Contact         string
	ToneSummary     string
	StyleGuidelines []string
	UpdatedAt       string
}

// DefaultContact keys the account-wide fallback profile.
const DefaultContact = "_default"

// UpsertToneProfile inserts or replaces one contact's profile.
func (d *DB) UpsertToneProfile(p ToneProfile) error {
	guidelines, err := json.Marshal(p.StyleGuidelines)
	if err != nil {
		return fmt.Errorf("marshal style guidelines: %w", err)
	}
	if p.UpdatedAt == "" {
		p.UpdatedAt = Now()
	}
	_, err = d.conn.Exec(`
		INSERT INTO tone_profiles (account, contact, tone_summary, style_guidelines, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account, contact) DO UPDATE SET
			tone_summary     = excluded.tone_summary,
			style_guidelines = excluded.style_guidelines,
			updated_at       = excluded.updated_at`,
		p.Account, p.Contact, p.ToneSummary, string(guidelines), p.UpdatedAt,
	)
	return err
}

// ToneProfile returns the profile for one contact, falling back to the
// account default, then nil when neither exists.
func (d *DB) ToneProfile(account, contact string) (*ToneProfile, error) {
	p, err := d.toneProfile(account, contact)
	if err != nil || p != nil {
		return p, err
	}
	return d.toneProfile(account, DefaultContact)
}

func (d *DB) toneProfile(account, contact string) (*ToneProfile, error) {
	p := &ToneProfile{}
	var guidelines sql.NullString
	err := d.conn.QueryRow(`
		SELECT account, contact, tone_summary, style_guidelines, updated_at
		FROM tone_profiles
		WHERE account = ? AND contact = ?`, account, contact).Scan(
		&p.Account, &p.Contact, &p.ToneSummary, &guidelines, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if guidelines.Valid && guidelines.String != "" {
		if err := json.Unmarshal([]byte(guidelines.String), &p.StyleGuidelines); err != nil {
			return nil, fmt.Errorf("parse style guidelines for %s: %w", contact, err)
		}
	}
	return p, nil
}

// ToneProfileCount returns how many profiles exist for an account,
// excluding the default row.
func (d *DB) ToneProfileCount(account string) int {
	var n int
	d.conn.QueryRow(
		"SELECT COUNT(*) FROM tone_profiles WHERE account = ? AND contact != ?",
		account, DefaultContact).Scan(&n)
	return n
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
