package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ProcessorConfig holds everything the campaign processor needs for one run.
// Credentials and relay settings come from the environment only.
type ProcessorConfig struct {
	DBDSN string `envconfig:"DB_DSN" required:"true"`

	SMTPHost     string `envconfig:"SMTP_HOST" required:"true"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER" required:"true"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" required:"true"`
	SenderEmail  string `envconfig:"SENDER_EMAIL" required:"true"`
	SenderName   string `envconfig:"SENDER_NAME" default:"Coolkeypoint"`

	// MaxBatch bounds how many recipients one invocation may pull per
	// campaign, before the hourly quota is applied on top.
	MaxBatch int `envconfig:"MAX_BATCH" default:"50"`

	// SendPause is the fixed inter-message delay toward the relay.
	SendPause time.Duration `envconfig:"SEND_PAUSE" default:"500ms"`

	// AdvisoryLocks guards against overlapping scheduler triggers.
	AdvisoryLocks bool `envconfig:"ADVISORY_LOCKS" default:"true"`

	OpTimeout time.Duration `envconfig:"DB_OP_TIMEOUT" default:"5s"`
}

var Processor ProcessorConfig

func MustLoadProcessor() {
	envconfig.MustProcess("", &Processor)
}

// Load is the non-fatal variant used by tests.
func Load() (*ProcessorConfig, error) {
	var cfg ProcessorConfig
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
