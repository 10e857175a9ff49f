package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	OIDC      OIDCConfig
	RateLimit RateLimitConfig
	Provider  ProviderConfig
	Media     MediaToolsConfig
	Storage   StorageConfig
	Pipeline  PipelineConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type OIDCConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type RateLimitConfig struct {
	SubmitPerHour     int
	RegeneratePerHour int
	StatusPerMin      int
	CancelPerMin      int
}

type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	PollSeconds int
}

type MediaToolsConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// PipelineConfig tunes the orchestration engine. Expected stage durations
// feed the progress reporter; they are estimates, not limits on the provider.
type PipelineConfig struct {
	Workers                int // worker slots draining the queue
	MaxPending             int // backpressure bound; 0 disables
	TickMillis             int // progress tick interval
	StepMillis             int // per-step generation cost estimate
	UpscaleSeconds         int // fixed upscale stage estimate
	EncodeSeconds          int // fixed encode stage estimate
	ProviderTimeoutSeconds int // per provider call
	MaxFanOut              int // parallel provider calls per multi-output job
	VideoFormat            string
	JobTTLHours            int // job record retention
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("PROVIDER_API_KEY")
	readSecret("STORAGE_ACCOUNT_ID")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")
	readSecret("OIDC_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("oidc.domain", "OIDC_DOMAIN")
	_ = viper.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = viper.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = viper.BindEnv("provider.api_key", "PROVIDER_API_KEY")
	_ = viper.BindEnv("provider.base_url", "PROVIDER_BASE_URL")
	_ = viper.BindEnv("provider.model", "PROVIDER_MODEL")
	_ = viper.BindEnv("provider.poll_seconds", "PROVIDER_POLL_SECONDS")
	_ = viper.BindEnv("media.base_url", "MEDIA_BASE_URL")
	_ = viper.BindEnv("media.timeout", "MEDIA_TIMEOUT")
	_ = viper.BindEnv("storage.account_id", "STORAGE_ACCOUNT_ID")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("pipeline.workers", "PIPELINE_WORKERS")
	_ = viper.BindEnv("pipeline.max_pending", "PIPELINE_MAX_PENDING")
	_ = viper.BindEnv("pipeline.tick_millis", "PIPELINE_TICK_MILLIS")
	_ = viper.BindEnv("pipeline.step_millis", "PIPELINE_STEP_MILLIS")
	_ = viper.BindEnv("pipeline.upscale_seconds", "PIPELINE_UPSCALE_SECONDS")
	_ = viper.BindEnv("pipeline.encode_seconds", "PIPELINE_ENCODE_SECONDS")
	_ = viper.BindEnv("pipeline.provider_timeout", "PIPELINE_PROVIDER_TIMEOUT")
	_ = viper.BindEnv("pipeline.max_fan_out", "PIPELINE_MAX_FAN_OUT")
	_ = viper.BindEnv("pipeline.video_format", "PIPELINE_VIDEO_FORMAT")
	_ = viper.BindEnv("pipeline.job_ttl_hours", "PIPELINE_JOB_TTL_HOURS")
	_ = viper.BindEnv("ratelimit.submit_per_hour", "RATELIMIT_SUBMIT_PER_HOUR")
	_ = viper.BindEnv("ratelimit.regenerate_per_hour", "RATELIMIT_REGENERATE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.status_per_min", "RATELIMIT_STATUS_PER_MIN")
	_ = viper.BindEnv("ratelimit.cancel_per_min", "RATELIMIT_CANCEL_PER_MIN")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)

	viper.SetDefault("ratelimit.submit_per_hour", 20)
	viper.SetDefault("ratelimit.regenerate_per_hour", 30)
	viper.SetDefault("ratelimit.status_per_min", 120)
	viper.SetDefault("ratelimit.cancel_per_min", 30)

	// Provider defaults
	viper.SetDefault("provider.base_url", "https://api.dreamforge.dev")
	viper.SetDefault("provider.model", "forge-xl-1")
	viper.SetDefault("provider.poll_seconds", 3)

	// Media service defaults
	viper.SetDefault("media.base_url", "")
	viper.SetDefault("media.timeout", 300)

	// Pipeline defaults — a single worker slot drains the queue unless
	// configured otherwise.
	viper.SetDefault("pipeline.workers", 1)
	viper.SetDefault("pipeline.max_pending", 100)
	viper.SetDefault("pipeline.tick_millis", 500)
	viper.SetDefault("pipeline.step_millis", 400)
	viper.SetDefault("pipeline.upscale_seconds", 20)
	viper.SetDefault("pipeline.encode_seconds", 15)
	viper.SetDefault("pipeline.provider_timeout", 600)
	viper.SetDefault("pipeline.max_fan_out", 3)
	viper.SetDefault("pipeline.video_format", "mp4")
	viper.SetDefault("pipeline.job_ttl_hours", 24)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		OIDC: OIDCConfig{
			Domain:   viper.GetString("oidc.domain"),
			ClientID: viper.GetString("oidc.client_id"),
			Issuer:   viper.GetString("oidc.issuer"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour:     viper.GetInt("ratelimit.submit_per_hour"),
			RegeneratePerHour: viper.GetInt("ratelimit.regenerate_per_hour"),
			StatusPerMin:      viper.GetInt("ratelimit.status_per_min"),
			CancelPerMin:      viper.GetInt("ratelimit.cancel_per_min"),
		},
		Provider: ProviderConfig{
			APIKey:      viper.GetString("provider.api_key"),
			BaseURL:     viper.GetString("provider.base_url"),
			Model:       viper.GetString("provider.model"),
			PollSeconds: viper.GetInt("provider.poll_seconds"),
		},
		Media: MediaToolsConfig{
			BaseURL:        viper.GetString("media.base_url"),
			TimeoutSeconds: viper.GetInt("media.timeout"),
		},
		Storage: StorageConfig{
			AccountID:       viper.GetString("storage.account_id"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
		Pipeline: PipelineConfig{
			Workers:                viper.GetInt("pipeline.workers"),
			MaxPending:             viper.GetInt("pipeline.max_pending"),
			TickMillis:             viper.GetInt("pipeline.tick_millis"),
			StepMillis:             viper.GetInt("pipeline.step_millis"),
			UpscaleSeconds:         viper.GetInt("pipeline.upscale_seconds"),
			EncodeSeconds:          viper.GetInt("pipeline.encode_seconds"),
			ProviderTimeoutSeconds: viper.GetInt("pipeline.provider_timeout"),
			MaxFanOut:              viper.GetInt("pipeline.max_fan_out"),
			VideoFormat:            viper.GetString("pipeline.video_format"),
			JobTTLHours:            viper.GetInt("pipeline.job_ttl_hours"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
