// Package config loads the mailtriage YAML configuration and resolves
// per-account effective settings.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Auth modes.
const (
	AuthModeApplication = "application"
	AuthModeDelegated   = "delegated"
)

// Classifier providers.
const (
	ProviderCodex    = "codex"
	ProviderCodexOSS = "codex-oss"
	ProviderOpenAI   = "openai"
)

// Config is the on-disk configuration: base settings plus per-account
// overrides. It is built once at process start and treated as read-only.
type Config struct {
	DataDir  string          `yaml:"data_dir"`
	Auth     AuthConfig      `yaml:"auth"`
	Graph    GraphConfig     `yaml:"graph"`
	Triage   TriageConfig    `yaml:"triage"`
	Model    ModelConfig     `yaml:"model"`
	Accounts []AccountConfig `yaml:"accounts"`
}

type AuthConfig struct {
	AuthMode      string `yaml:"auth_mode"`       // application | delegated
	TokenCacheDir string `yaml:"token_cache_dir"` // delegated token files live here
}

type GraphConfig struct {
	ClientID        string   `yaml:"client_id"`
	TenantID        string   `yaml:"tenant_id"`
	AuthorityBase   string   `yaml:"authority_base"`
	ClientSecretEnv string   `yaml:"client_secret_env"`
	DelegatedScopes []string `yaml:"delegated_scopes"`
}

type TriageConfig struct {
	LookbackDaysInitial     int  `yaml:"lookback_days_initial"`
	LookbackDaysIncremental int  `yaml:"lookback_days_incremental"`
	MaxMessagesPerRun       int  `yaml:"max_messages_per_run"`
	ToneProfileLookbackDays int  `yaml:"tone_profile_lookback_days"`
	DraftReplies            bool `yaml:"draft_replies"`
	CreateTasks             bool `yaml:"create_tasks"`
	SendSummaryEmail        bool `yaml:"send_summary_email"`
	LogToFile               bool `yaml:"log_to_file"`

	SummaryEmailTo          string `yaml:"summary_email_to"`
	SummaryEmailFromAccount string `yaml:"summary_email_from_account"`

	// BodyLimit bounds message bodies sent to the classifier;
	// PreviewLimit bounds thread-context previews.
	BodyLimit    int `yaml:"body_limit"`
	PreviewLimit int `yaml:"preview_limit"`

	// PriorityReadState maps a category name to the desired read state
	// of messages landing in it. The "default" key is the fallback.
	PriorityReadState map[string]bool `yaml:"priority_read_state"`
}

type ModelConfig struct {
	Provider    string `yaml:"provider"` // codex | codex-oss | openai
	TriageModel string `yaml:"triage_model"`
	ReplyModel  string `yaml:"reply_model"`
	CodexBin    string `yaml:"codex_bin"`
	APIKeyEnv   string `yaml:"api_key_env"`
	BaseURL     string `yaml:"base_url"`
}

// AccountConfig names one mailbox. TenantID is an account-level
// shorthand; Overrides beat both it and the base config.
type AccountConfig struct {
	Email     string           `yaml:"email"`
	Label     string           `yaml:"label"`
	TenantID  string           `yaml:"tenant_id"`
	Overrides *AccountOverride `yaml:"overrides"`
}

// AccountOverride holds per-account settings that replace base values.
// Nil pointers fall through to the base silently.
type AccountOverride struct {
	TenantID                *string         `yaml:"tenant_id"`
	AuthMode                *string         `yaml:"auth_mode"`
	LookbackDaysInitial     *int            `yaml:"lookback_days_initial"`
	LookbackDaysIncremental *int            `yaml:"lookback_days_incremental"`
	MaxMessagesPerRun       *int            `yaml:"max_messages_per_run"`
	ToneProfileLookbackDays *int            `yaml:"tone_profile_lookback_days"`
	DraftReplies            *bool           `yaml:"draft_replies"`
	CreateTasks             *bool           `yaml:"create_tasks"`
	SendSummaryEmail        *bool           `yaml:"send_summary_email"`
	LogToFile               *bool           `yaml:"log_to_file"`
	SummaryEmailTo          *string         `yaml:"summary_email_to"`
	SummaryEmailFromAccount *string         `yaml:"summary_email_from_account"`
	BodyLimit               *int            `yaml:"body_limit"`
	PreviewLimit            *int            `yaml:"preview_limit"`
	PriorityReadState       map[string]bool `yaml:"priority_read_state"`
}

// Effective is the merged configuration for one account. It is derived
// on every run and never persisted.
type Effective struct {
	Email string
	Label string

	AuthMode        string
	TokenCacheDir   string
	ClientID        string
	TenantID        string
	AuthorityBase   string
	ClientSecretEnv string
	DelegatedScopes []string

	Triage TriageConfig
}

// ValidationError reports a missing or invalid configuration field.
// It is fatal before any run starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Load reads and validates the YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		DataDir: "./data",
		Auth: AuthConfig{
			AuthMode:      AuthModeApplication,
			TokenCacheDir: "./data/tokens",
		},
		Graph: GraphConfig{
			TenantID:        "organizations",
			AuthorityBase:   "https://login.microsoftonline.com",
			ClientSecretEnv: "MS_GRAPH_CLIENT_SECRET",
			DelegatedScopes: []string{"Mail.ReadWrite", "Mail.Send"},
		},
		Triage: TriageConfig{
			LookbackDaysInitial:     60,
			LookbackDaysIncremental: 3,
			MaxMessagesPerRun:       40,
			ToneProfileLookbackDays: 120,
			LogToFile:               true,
			BodyLimit:               2000,
			PreviewLimit:            400,
			PriorityReadState: map[string]bool{
				"Complete":  true,
				"Marketing": true,
				"default":   false,
			},
		},
		Model: ModelConfig{
			Provider:    ProviderCodex,
			TriageModel: "gpt-4.1-mini",
			ReplyModel:  "gpt-4.1",
			APIKeyEnv:   "OPENAI_API_KEY",
		},
	}
}

func (c *Config) validate() error {
	if c.Graph.ClientID == "" {
		return &ValidationError{Field: "graph.client_id", Reason: "required"}
	}
	switch c.Auth.AuthMode {
	case AuthModeApplication, AuthModeDelegated:
	default:
		return &ValidationError{Field: "auth.auth_mode", Reason: fmt.Sprintf("unknown mode %q", c.Auth.AuthMode)}
	}
	switch c.Model.Provider {
	case ProviderCodex, ProviderCodexOSS, ProviderOpenAI:
	default:
		return &ValidationError{Field: "model.provider", Reason: fmt.Sprintf("unknown provider %q", c.Model.Provider)}
	}
	if len(c.Accounts) == 0 {
		return &ValidationError{Field: "accounts", Reason: "at least one account required"}
	}
	for i, a := range c.Accounts {
		if a.Email == "" || !strings.Contains(a.Email, "@") {
			return &ValidationError{Field: fmt.Sprintf("accounts[%d].email", i), Reason: "valid address required"}
		}
		if o := a.Overrides; o != nil && o.MaxMessagesPerRun != nil && *o.MaxMessagesPerRun <= 0 {
			return &ValidationError{Field: fmt.Sprintf("accounts[%d].overrides.max_messages_per_run", i), Reason: "must be positive"}
		}
	}
	if c.Triage.LookbackDaysInitial <= 0 || c.Triage.LookbackDaysIncremental <= 0 {
		return &ValidationError{Field: "triage.lookback_days", Reason: "must be positive"}
	}
	if c.Triage.MaxMessagesPerRun <= 0 {
		return &ValidationError{Field: "triage.max_messages_per_run", Reason: "must be positive"}
	}
	return nil
}

// Account returns the account entry matching email (case-insensitive).
func (c *Config) Account(email string) (AccountConfig, bool) {
	for _, a := range c.Accounts {
		if strings.EqualFold(a.Email, email) {
			return a, true
		}
	}
	return AccountConfig{}, false
}

// Resolve merges the base config with one account's overrides.
// Precedence per field: explicit override > account-level shorthand >
// base default. Pure: neither input is mutated; maps and slices are
// copied before they land in the result.
func Resolve(base *Config, account AccountConfig) Effective {
	eff := Effective{
		Email:           strings.ToLower(account.Email),
		Label:           account.Label,
		AuthMode:        base.Auth.AuthMode,
		TokenCacheDir:   base.Auth.TokenCacheDir,
		ClientID:        base.Graph.ClientID,
		TenantID:        base.Graph.TenantID,
		AuthorityBase:   base.Graph.AuthorityBase,
		ClientSecretEnv: base.Graph.ClientSecretEnv,
		DelegatedScopes: append([]string(nil), base.Graph.DelegatedScopes...),
		Triage:          base.Triage,
	}
	if eff.Label == "" {
		eff.Label = eff.Email
	}
	eff.Triage.PriorityReadState = copyBoolMap(base.Triage.PriorityReadState)

	if account.TenantID != "" {
		eff.TenantID = account.TenantID
	}

	o := account.Overrides
	if o == nil {
		return eff
	}
	if o.TenantID != nil {
		eff.TenantID = *o.TenantID
	}
	if o.AuthMode != nil {
		eff.AuthMode = *o.AuthMode
	}
	if o.LookbackDaysInitial != nil {
		eff.Triage.LookbackDaysInitial = *o.LookbackDaysInitial
	}
	if o.LookbackDaysIncremental != nil {
		eff.Triage.LookbackDaysIncremental = *o.LookbackDaysIncremental
	}
	if o.MaxMessagesPerRun != nil {
		eff.Triage.MaxMessagesPerRun = *o.MaxMessagesPerRun
	}
	if o.ToneProfileLookbackDays != nil {
		eff.Triage.ToneProfileLookbackDays = *o.ToneProfileLookbackDays
	}
	if o.DraftReplies != nil {
		eff.Triage.DraftReplies = *o.DraftReplies
	}
	if o.CreateTasks != nil {
		eff.Triage.CreateTasks = *o.CreateTasks
	}
	if o.SendSummaryEmail != nil {
		eff.Triage.SendSummaryEmail = *o.SendSummaryEmail
	}
	if o.LogToFile != nil {
		eff.Triage.LogToFile = *o.LogToFile
	}
	if o.SummaryEmailTo != nil {
		eff.Triage.SummaryEmailTo = *o.SummaryEmailTo
	}
	if o.SummaryEmailFromAccount != nil {
		eff.Triage.SummaryEmailFromAccount = *o.SummaryEmailFromAccount
	}
	if o.BodyLimit != nil {
		eff.Triage.BodyLimit = *o.BodyLimit
	}
	if o.PreviewLimit != nil {
		eff.Triage.PreviewLimit = *o.PreviewLimit
	}
	if o.PriorityReadState != nil {
		eff.Triage.PriorityReadState = copyBoolMap(o.PriorityReadState)
	}
	return eff
}

func copyBoolMap(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
