// Package config decodes process configuration from the environment,
// optionally seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mahaj/duo-relay/pkg/logging"
	"github.com/samber/lo"
)

type Gateway struct {
	Addr                 string        `env:"GATEWAY_ADDR,default=:8080"`
	AllowedOrigin        string        `env:"ALLOWED_ORIGIN,default=*"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	MaxMessageSize       int           `env:"MAX_MESSAGE_SIZE,default=8192"`
	PongWait             time.Duration `env:"PONG_WAIT,default=60s"`
	WriteWait            time.Duration `env:"WRITE_WAIT,default=10s"`
	NodeID               int           `env:"NODE_ID,default=1"`

	VAPIDPublicKey  string        `env:"PUBLIC_VAPID_KEY"`
	VAPIDPrivateKey string        `env:"PRIVATE_VAPID_KEY"`
	VAPIDSubscriber string        `env:"VAPID_SUBSCRIBER,default=admin@example.com"`
	PushTTL         time.Duration `env:"PUSH_TTL,default=24h"`

	TokenSecret string        `env:"TOKEN_SECRET"`
	TokenTTL    time.Duration `env:"TOKEN_TTL,default=24h"`

	// Optional outer services. Empty disables them.
	RedisAddr    string `env:"REDIS_ADDR"`
	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=chat-messages"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
	LogFile   string `env:"LOG_FILE"`
}

func (c Gateway) Logging() logging.Options {
	return logging.Options{Level: c.LogLevel, Format: c.LogFormat, File: c.LogFile}
}

type Archiver struct {
	KafkaBrokers string `env:"KAFKA_BROKERS,default=localhost:19092"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=chat-messages"`
	GroupID      string `env:"KAFKA_GROUP_ID,default=archiver-group"`
	ScyllaHosts  string `env:"SCYLLA_HOSTS,default=localhost:9042"`
	Keyspace     string `env:"SCYLLA_KEYSPACE,default=chat"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
	LogFile   string `env:"LOG_FILE"`
}

func (c Archiver) Logging() logging.Options {
	return logging.Options{Level: c.LogLevel, Format: c.LogFormat, File: c.LogFile}
}

type API struct {
	Addr          string `env:"API_ADDR,default=:8081"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN,default=*"`
	ScyllaHosts   string `env:"SCYLLA_HOSTS,default=localhost:9042"`
	Keyspace      string `env:"SCYLLA_KEYSPACE,default=chat"`
	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379"`
	TokenSecret   string `env:"TOKEN_SECRET,required=true"`
	HistoryLimit  int    `env:"HISTORY_LIMIT,default=200"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
	LogFile   string `env:"LOG_FILE"`
}

func (c API) Logging() logging.Options {
	return logging.Options{Level: c.LogLevel, Format: c.LogFormat, File: c.LogFile}
}

// Load fills cfg from .env (when present) and the process environment.
func Load(cfg any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// Split turns a comma separated list into its non-empty trimmed items.
func Split(list string) []string {
	return lo.Compact(lo.Map(strings.Split(list, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
}
