package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	SlackBotToken      string `env:"SLACK_BOT_TOKEN"`
	SlackSigningSecret string `env:"SLACK_SIGNING_SECRET"`
	SlackAppToken      string `env:"SLACK_APP_TOKEN"`

	AirtableAPIToken  string `env:"AIRTABLE_API_TOKEN"`
	AirtableBaseID    string `env:"AIRTABLE_BASE_ID"`
	AirtableTableName string `env:"AIRTABLE_TABLE_NAME"`
	AirtableFieldName string `env:"AIRTABLE_FIELD_NAME" env-default:"Name"`

	TargetEmoji       string `env:"TARGET_EMOJI" env-default:"fedex"`
	RulesPath         string `env:"RULES_PATH" env-default:"rules.yaml"`
	AssigneeMap       string `env:"ASSIGNEE_MAP"`
	ThreadSearchLimit int    `env:"THREAD_SEARCH_LIMIT" env-default:"100"`

	HTTPAddr    string        `env:"HTTP_ADDR" env-default:":8000"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" env-default:"10s"`

	RedisAddr            string `env:"REDIS_ADDR" env-default:"host.docker.internal:6379"`
	RedisPassword        string `env:"REDIS_PASSWORD"`
	RedisReactionChannel string `env:"REDIS_REACTION_CHANNEL" env-default:"slack-relay-reaction-added"`
	RedisRelayEnabled    bool   `env:"REDIS_RELAY_ENABLED" env-default:"false"`
	RedisSlackLinerList  string `env:"REDIS_SLACKLINER_LIST" env-default:"slack_messages"`

	ConfirmationEnabled bool          `env:"CONFIRMATION_ENABLED" env-default:"false"`
	ConfirmationTTL     time.Duration `env:"CONFIRMATION_TTL" env-default:"48h"`

	Environment string `env:"ENVIRONMENT" env-default:"development"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"INFO"`
	LogFormat   string `env:"LOG_FORMAT" env-default:"json"`
}

func loadConfig() (Config, error) {
	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if config.ThreadSearchLimit <= 0 {
		return Config{}, fmt.Errorf("THREAD_SEARCH_LIMIT must be > 0 (got %d)", config.ThreadSearchLimit)
	}
	if config.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("HTTP_TIMEOUT must be > 0 (got %s)", config.HTTPTimeout)
	}
	return config, nil
}

// needsRedis reports whether any enabled feature talks to Redis.
func (c Config) needsRedis() bool {
	return c.RedisRelayEnabled || c.ConfirmationEnabled
}

// validateCore checks the settings every ingress mode needs to create records.
func (c Config) validateCore() error {
	var errs []error
	if c.SlackBotToken == "" {
		errs = append(errs, errors.New("SLACK_BOT_TOKEN is required"))
	}
	if c.AirtableAPIToken == "" {
		errs = append(errs, errors.New("AIRTABLE_API_TOKEN is required"))
	}
	return errors.Join(errs...)
}
