package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Hub      HubConfig      `mapstructure:"hub"`
	Reminder ReminderConfig `mapstructure:"reminder" validate:"required"`
	Mail     MailConfig     `mapstructure:"mail"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains identity handshake settings. Tokens are treated as
// opaque at this layer; verification belongs to an upstream gateway.
type AuthConfig struct {
	// AnonymousIdentity is the identity assigned to connections that present
	// no token.
	AnonymousIdentity string `mapstructure:"anonymous_identity"`
}

// HubConfig contains broadcast hub settings.
type HubConfig struct {
	// SendBufferSize is the per-connection outbound frame buffer. A slow
	// connection whose buffer fills up has frames dropped rather than
	// blocking fan-out to other subscribers.
	SendBufferSize int `mapstructure:"send_buffer_size" validate:"gte=0"`

	// RedisURL enables the cross-instance backplane when non-empty.
	RedisURL string `mapstructure:"redis_url"`

	// RedisChannel is the pub/sub channel events are relayed on.
	RedisChannel string `mapstructure:"redis_channel"`
}

// ReminderConfig contains reminder pipeline settings.
type ReminderConfig struct {
	// TickSeconds is the scheduler scan interval.
	TickSeconds int `mapstructure:"tick_seconds" validate:"required,gt=0"`

	// WorkerCount determines how many concurrent workers deliver reminders.
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`

	// QueueSize is the buffer size of the in-memory job hand-off channel.
	QueueSize int `mapstructure:"queue_size" validate:"required,gt=0"`

	// ClaimLimit caps how many due reminders one scheduler tick claims. It
	// should not exceed QueueSize, or a tick can claim more jobs than the
	// channel will accept.
	ClaimLimit int `mapstructure:"claim_limit" validate:"required,gt=0"`

	// MaxAttempts caps delivery retries; beyond it a job is abandoned.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// StuckJobAgeMinutes is how long a job may stay in processing state
	// before the queue considers it abandoned and redelivers it.
	StuckJobAgeMinutes int `mapstructure:"stuck_job_age_minutes" validate:"required,gt=0"`

	// ClaimAgeMinutes is how long a scheduler claim may outlive its tick
	// before being released for retry.
	ClaimAgeMinutes int `mapstructure:"claim_age_minutes" validate:"required,gt=0"`
}

// MailConfig contains all notification transport settings.
type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}
