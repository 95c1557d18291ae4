package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"swcatalog/pkg/database"
)

// EnvPrefix namespaces every environment variable, e.g. SWCATALOG_DB_PATH.
const EnvPrefix = "SWCATALOG"

// Config keys. Each maps to EnvPrefix + "_" + upper-cased key.
const (
	KeyDBPath           = "db_path"
	KeySwapiBaseURL     = "swapi_base_url"
	KeyHTTPAddr         = "http_addr"
	KeyTCPAddr          = "tcp_addr"
	KeyGrpcAddr         = "grpc_addr"
	KeySchedule         = "schedule"
	KeyIngestLimit      = "ingest_limit"
	KeyFetchAttempts    = "fetch_attempts"
	KeyFetchTimeout     = "fetch_timeout"
	KeyJWTSecret        = "jwt_secret"
	KeyJWTIssuer        = "jwt_issuer"
	KeyJWTTTLHours      = "jwt_ttl_hours"
	KeyOpenRegistration = "open_registration"
	KeyLogLevel         = "log_level"
	KeyLogFormat        = "log_format"
	KeyLogOutput        = "log_output"
)

const devSecret = "dev-secret-change-me"

type AuthConfig struct {
	JWTSecret        string
	JWTIssuer        string
	JWTDuration      time.Duration
	OpenRegistration bool
}

// Config is the resolved configuration. Precedence, highest first: bound
// flags, environment, .env.local, .env, config file, defaults.
type Config struct {
	DBPath        string
	SwapiBaseURL  string
	HTTPAddr      string
	TCPAddr       string
	GrpcAddr      string
	Schedule      string
	IngestLimit   int
	FetchAttempts uint
	FetchTimeout  time.Duration

	Auth AuthConfig

	LogLevel  string
	LogFormat string
	LogOutput string

	ConfigFile string
}

// NewViper returns a viper instance with defaults and environment binding
// set up. Flags can be bound to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyDBPath, database.DefaultConfig().Path)
	v.SetDefault(KeySwapiBaseURL, "https://swapi.dev/api/")
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyTCPAddr, ":7070")
	v.SetDefault(KeyGrpcAddr, ":9090")
	v.SetDefault(KeySchedule, "")
	v.SetDefault(KeyIngestLimit, 0)
	v.SetDefault(KeyFetchAttempts, 3)
	v.SetDefault(KeyFetchTimeout, 15*time.Second)
	v.SetDefault(KeyJWTSecret, devSecret)
	v.SetDefault(KeyJWTIssuer, "swcatalog")
	v.SetDefault(KeyJWTTTLHours, 24)
	v.SetDefault(KeyOpenRegistration, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "auto")
	v.SetDefault(KeyLogOutput, "stderr")
	return v
}

// LoadEnvFiles loads .env.local then .env from the working directory.
// Variables already set in the environment are never overridden.
func LoadEnvFiles() {
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}
}

// Load reads the optional config file into v and resolves a Config. An
// explicitly named file must exist; otherwise ./swcatalog.yaml and
// $HOME/.swcatalog/swcatalog.yaml are tried.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("swcatalog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.swcatalog")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		DBPath:        v.GetString(KeyDBPath),
		SwapiBaseURL:  v.GetString(KeySwapiBaseURL),
		HTTPAddr:      v.GetString(KeyHTTPAddr),
		TCPAddr:       v.GetString(KeyTCPAddr),
		GrpcAddr:      v.GetString(KeyGrpcAddr),
		Schedule:      strings.TrimSpace(v.GetString(KeySchedule)),
		IngestLimit:   v.GetInt(KeyIngestLimit),
		FetchAttempts: v.GetUint(KeyFetchAttempts),
		FetchTimeout:  v.GetDuration(KeyFetchTimeout),
		Auth: AuthConfig{
			JWTSecret:        v.GetString(KeyJWTSecret),
			JWTIssuer:        v.GetString(KeyJWTIssuer),
			JWTDuration:      time.Duration(v.GetInt(KeyJWTTTLHours)) * time.Hour,
			OpenRegistration: v.GetBool(KeyOpenRegistration),
		},
		LogLevel:   v.GetString(KeyLogLevel),
		LogFormat:  v.GetString(KeyLogFormat),
		LogOutput:  v.GetString(KeyLogOutput),
		ConfigFile: v.ConfigFileUsed(),
	}

	if cfg.FetchAttempts == 0 {
		cfg.FetchAttempts = 1
	}
	if cfg.Auth.JWTDuration <= 0 {
		cfg.Auth.JWTDuration = 24 * time.Hour
	}
	return cfg, nil
}

// UsesDevSecret reports whether the JWT secret was left at its default.
func (c Config) UsesDevSecret() bool {
	return c.Auth.JWTSecret == devSecret
}
