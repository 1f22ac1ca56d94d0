package db

// Schema is the DDL for the mailtriage database.
const Schema = `
CREATE TABLE IF NOT EXISTS sender_stats (
    account          TEXT NOT NULL,
    address          TEXT NOT NULL,
    display_name     TEXT,
    message_count    INTEGER NOT NULL DEFAULT 0,
    internal         INTEGER NOT NULL DEFAULT 0,
    latest_received  TEXT,
    PRIMARY KEY (account, address)
);

CREATE TABLE IF NOT EXISTS tone_profiles (
    account           TEXT NOT NULL,
    contact           TEXT NOT NULL,
    tone_summary      TEXT NOT NULL,
    style_guidelines  TEXT,
    updated_at        TEXT NOT NULL,
    PRIMARY KEY (account, contact)
);

CREATE INDEX IF NOT EXISTS idx_sender_stats_account ON sender_stats(account);
CREATE INDEX IF NOT EXISTS idx_sender_stats_count ON sender_stats(account, message_count DESC);
CREATE INDEX IF NOT EXISTS idx_tone_profiles_account ON tone_profiles(account);
`
