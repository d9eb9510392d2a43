package config

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Storage   StorageConfig
	R2        R2Config
	Session   SessionConfig
	Synthesis SynthesisConfig
	Concat    ConcatConfig
	Process   ProcessConfig
	Jobs      JobsConfig
	Artifacts ArtifactsConfig
	Auth      AuthConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	BodyLimitMB int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig holds the process-scoped upload and artifact roots.
type StorageConfig struct {
	UploadDir   string
	ArtifactDir string
	Backend     string // "local" or "r2"
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
}

type SessionConfig struct {
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
	OutboundBuffer    int
}

type SynthesisConfig struct {
	Command     string
	Parallelism int
}

type ConcatConfig struct {
	Command string
}

type ProcessConfig struct {
	MaxConcurrent int
}

type JobsConfig struct {
	Timeout            time.Duration
	CancelOnDisconnect bool
}

type ArtifactsConfig struct {
	Retention time.Duration
}

type AuthConfig struct {
	Enabled bool
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	UploadPerHour int
}

func Load() (*Config, error) {
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("storage.upload_dir", "UPLOAD_DIR")
	_ = v.BindEnv("storage.artifact_dir", "ARTIFACT_DIR")
	_ = v.BindEnv("storage.backend", "STORAGE_BACKEND")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("synthesis.command", "SYNTH_COMMAND")
	_ = v.BindEnv("synthesis.parallelism", "SYNTH_PARALLELISM")
	_ = v.BindEnv("concat.command", "CONCAT_COMMAND")
	_ = v.BindEnv("jobs.timeout", "JOB_TIMEOUT")
	_ = v.BindEnv("jobs.cancel_on_disconnect", "JOB_CANCEL_ON_DISCONNECT")
	_ = v.BindEnv("artifacts.retention", "ARTIFACT_RETENTION")
	_ = v.BindEnv("auth.enabled", "AUTH_ENABLED")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")

	setDefaults(v)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.body_limit_mb", 50)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.upload_dir", "./temp_uploads")
	v.SetDefault("storage.artifact_dir", "./temp_audio")
	v.SetDefault("storage.backend", "local")

	v.SetDefault("session.heartbeat_interval", 5*time.Second)
	v.SetDefault("session.client_timeout", 10*time.Second)
	v.SetDefault("session.outbound_buffer", 64)

	v.SetDefault("synthesis.command", "espeak")
	v.SetDefault("synthesis.parallelism", 1)
	v.SetDefault("concat.command", "ffmpeg")
	v.SetDefault("process.max_concurrent", 4*runtime.NumCPU())

	v.SetDefault("jobs.timeout", 10*time.Minute)
	v.SetDefault("jobs.cancel_on_disconnect", true)
	v.SetDefault("artifacts.retention", 24*time.Hour)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("ratelimit.upload_per_hour", 50)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			Env:         v.GetString("server.env"),
			LogLevel:    v.GetString("server.log_level"),
			BodyLimitMB: v.GetInt("server.body_limit_mb"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			UploadDir:   v.GetString("storage.upload_dir"),
			ArtifactDir: v.GetString("storage.artifact_dir"),
			Backend:     strings.ToLower(v.GetString("storage.backend")),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
		},
		Session: SessionConfig{
			HeartbeatInterval: v.GetDuration("session.heartbeat_interval"),
			ClientTimeout:     v.GetDuration("session.client_timeout"),
			OutboundBuffer:    v.GetInt("session.outbound_buffer"),
		},
		Synthesis: SynthesisConfig{
			Command:     v.GetString("synthesis.command"),
			Parallelism: v.GetInt("synthesis.parallelism"),
		},
		Concat: ConcatConfig{
			Command: v.GetString("concat.command"),
		},
		Process: ProcessConfig{
			MaxConcurrent: v.GetInt("process.max_concurrent"),
		},
		Jobs: JobsConfig{
			Timeout:            v.GetDuration("jobs.timeout"),
			CancelOnDisconnect: v.GetBool("jobs.cancel_on_disconnect"),
		},
		Artifacts: ArtifactsConfig{
			Retention: v.GetDuration("artifacts.retention"),
		},
		Auth: AuthConfig{
			Enabled: v.GetBool("auth.enabled"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			UploadPerHour: v.GetInt("ratelimit.upload_per_hour"),
		},
	}
}
