package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	PostgresURI  string       `env:"POSTGRES_URI"`
	PostgresPool PostgresPool `envPrefix:"POSTGRES_"`
	MongoURI     string       `env:"MONGO_URI"`
	MongoDB      string       `env:"MONGO_DB" envDefault:"groupspeak"`
	MongoPool    MongoPool    `envPrefix:"MONGO_"`
	RedisAddr    string       `env:"REDIS_ADDR"`
	RedisURI     string       `env:"REDIS_URI"`
	RedisURL     string       `env:"REDIS_URL"`
	RedisPool    RedisPool    `envPrefix:"REDIS_"`

	JWTSecret          string `env:"SUPABASE_JWT_SECRET"`
	JWTIssuer          string `env:"SUPABASE_JWT_ISSUER"`
	JWTAudience        string `env:"SUPABASE_JWT_AUDIENCE"`
	InternalAPIKeyHash string `env:"INTERNAL_API_KEY_HASH"`

	Session   SessionConfig   `envPrefix:"SESSION_"`
	Recording RecordingConfig `envPrefix:"RECORDING_"`
	Scoring   ScoringConfig   `envPrefix:"SCORING_"`

	VertexProjectID string `env:"VERTEX_PROJECT_ID"`
	VertexLocation  string `env:"VERTEX_LOCATION" envDefault:"us-central1"`
	VertexModel     string `env:"VERTEX_MODEL" envDefault:"gemini-1.5-flash"`
	CredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS_FILE"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	GCSRecordingBucket string `env:"GCS_RECORDING_BUCKET"`
	TopicsFile         string `env:"TOPICS_FILE"`

	EvaluationWorkers int           `env:"EVALUATION_WORKERS" envDefault:"3"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"15s"`
}

type SessionConfig struct {
	WaitingTTL          time.Duration `env:"WAITING_TTL" envDefault:"10m"`
	PreparationDuration time.Duration `env:"PREPARATION_DURATION" envDefault:"2m"`
	DiscussionDuration  time.Duration `env:"DISCUSSION_DURATION" envDefault:"10m"`
	MaxParticipants     int           `env:"MAX_PARTICIPANTS" envDefault:"4"`
}

type RecordingConfig struct {
	Enabled        bool          `env:"ENABLED" envDefault:"false"`
	BaseURL        string        `env:"BASE_URL" envDefault:"https://api.agora.io"`
	AppID          string        `env:"APP_ID"`
	CustomerID     string        `env:"CUSTOMER_ID"`
	CustomerSecret string        `env:"CUSTOMER_SECRET"`
	IndividualUID  string        `env:"INDIVIDUAL_UID" envDefault:"100001"`
	CompositeUID   string        `env:"COMPOSITE_UID" envDefault:"100002"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"15s"`

	StorageVendor    int    `env:"STORAGE_VENDOR" envDefault:"6"`
	StorageRegion    int    `env:"STORAGE_REGION" envDefault:"0"`
	StorageBucket    string `env:"STORAGE_BUCKET"`
	StorageAccessKey string `env:"STORAGE_ACCESS_KEY"`
	StorageSecretKey string `env:"STORAGE_SECRET_KEY"`
}

type ScoringConfig struct {
	Provider string        `env:"PROVIDER" envDefault:"vertex"` // vertex|openai
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"90s"`
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	for _, req := range []struct{ name, value string }{
		{"POSTGRES_URI", c.PostgresURI},
		{"MONGO_URI", c.MongoURI},
		{"REDIS_ADDR (or REDIS_URI/REDIS_URL)", c.RedisTarget()},
	} {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.Session.MaxParticipants < 1 || c.Session.MaxParticipants > 4 {
		return fmt.Errorf("SESSION_MAX_PARTICIPANTS must be between 1 and 4, got %d", c.Session.MaxParticipants)
	}
	if c.Session.WaitingTTL <= 0 || c.Session.PreparationDuration <= 0 || c.Session.DiscussionDuration <= 0 {
		return errors.New("SESSION_* durations must be positive")
	}
	if c.Recording.Enabled && (c.Recording.AppID == "" || c.Recording.CustomerID == "" || c.Recording.CustomerSecret == "") {
		return errors.New("RECORDING_APP_ID, RECORDING_CUSTOMER_ID and RECORDING_CUSTOMER_SECRET are required when RECORDING_ENABLED=true")
	}
	switch strings.ToLower(c.Scoring.Provider) {
	case "vertex":
		if c.VertexProjectID == "" {
			return errors.New("VERTEX_PROJECT_ID is required when SCORING_PROVIDER=vertex")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required when SCORING_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("SCORING_PROVIDER must be vertex or openai, got %q", c.Scoring.Provider)
	}
	if c.EvaluationWorkers <= 0 {
		return fmt.Errorf("EVALUATION_WORKERS must be positive, got %d", c.EvaluationWorkers)
	}
	return nil
}

func (c *Config) RedisTarget() string {
	switch {
	case c.RedisAddr != "":
		return c.RedisAddr
	case c.RedisURI != "":
		return c.RedisURI
	default:
		return c.RedisURL
	}
}
