package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional config
// file. Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config.yaml next to the binary or in the working directory
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables: TODO_SERVER_PORT, TODO_DATABASE_URL, ...
	v.SetEnvPrefix("TODO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults so a bare environment still yields a
// runnable development configuration (database URL excepted).
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Registering an empty default makes AutomaticEnv visible to Unmarshal
	// for keys that have no file value.
	v.SetDefault("database.url", "")

	v.SetDefault("auth.anonymous_identity", "anonymous")

	v.SetDefault("hub.send_buffer_size", 32)
	v.SetDefault("hub.redis_url", "")
	v.SetDefault("hub.redis_channel", "task-events")

	v.SetDefault("reminder.tick_seconds", 60)
	v.SetDefault("reminder.worker_count", 2)
	v.SetDefault("reminder.queue_size", 100)
	v.SetDefault("reminder.claim_limit", 100)
	v.SetDefault("reminder.max_attempts", 5)
	v.SetDefault("reminder.stuck_job_age_minutes", 10)
	v.SetDefault("reminder.claim_age_minutes", 15)

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "no-reply@todoapp.local")
}
