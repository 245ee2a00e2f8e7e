package config

// Config is the full bot configuration. Files may be YAML or JSON;
// both go through the same strict decoder, so unknown fields are
// rejected either way. All durations are Go duration strings.
type Config struct {
	Discord    DiscordConfig   `json:"discord"`
	Channels   ChannelsConfig  `json:"channels"`
	Roles      RolesConfig     `json:"roles"`
	Timeouts   TimeoutsConfig  `json:"timeouts"`
	Highlight  HighlightConfig `json:"highlight"`
	Moderation ModConfig       `json:"moderation"`

	// WelcomeMessage is DMed to members after join roles are applied.
	WelcomeMessage string `json:"welcome_message"`

	Logging   LoggingConfig    `json:"logging"`
	Storage   *StorageConfig   `json:"storage,omitempty"`
	Telemetry *TelemetryConfig `json:"telemetry,omitempty"`
}

type DiscordConfig struct {
	// Token may be left empty and supplied via WARDENBOT_DISCORD_TOKEN.
	Token   string `json:"token,omitempty"`
	GuildID string `json:"guild_id"`
}

type ChannelsConfig struct {
	// Highlight is the channel ID where broadcasts are allowed.
	Highlight string `json:"highlight"`
	// Log and Tracker are resolved by case-insensitive channel name.
	Log     string `json:"log,omitempty"`
	Tracker string `json:"tracker,omitempty"`
}

type RolesConfig struct {
	Manager string `json:"manager"`
	Staff   string `json:"staff"`

	// Join roles (IDs) are self-service: applied on join, and members
	// may add/remove them; they are also the highlightable set.
	Join []string `json:"join"`

	// Temporary is the allow-list of role names staff may grant with
	// a duration.
	Temporary []string `json:"temporary"`
}

type TimeoutsConfig struct {
	// File backs the timeout record store.
	File string `json:"file"`
	// SweepInterval is the pulse between revocation scans.
	SweepInterval string `json:"sweep_interval,omitempty"`
}

type HighlightConfig struct {
	// Cooldown is the minimum interval between broadcasts.
	Cooldown string `json:"cooldown,omitempty"`
}

type ModConfig struct {
	// MinAccountAge bans joining accounts younger than this.
	// Empty disables the heuristic.
	MinAccountAge string `json:"min_account_age,omitempty"`
}

type LoggingConfig struct {
	Level   string           `json:"level"`
	Console bool             `json:"console"`
	File    LogFileConfig    `json:"file"`
	Channel LogChannelConfig `json:"channel"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LogChannelConfig mirrors warnings and errors into channels.log.
type LogChannelConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the audit store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./audit.jsonl" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type TelemetryConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9190"
}
