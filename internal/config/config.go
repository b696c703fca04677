// Package config loads the application configuration from defaults, a .env
// file, environment variables, and command-line flags, in increasing order of
// priority, and validates the result.
package config

import (
	"flag"
	"log"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service.
type Config struct {
	RunAddr             string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	DatabaseDSN         string        `env:"DATABASE_DSN"`
	LogLevel            string        `env:"LOG_LEVEL" validate:"loglevel"`
	JWTSigningSecretKey string        `env:"JWT_SIGNING_SECRET_KEY" validate:"base64url"`
	AccessTokenTTL      time.Duration `env:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL     time.Duration `env:"REFRESH_TOKEN_TTL"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT"`
	MigrationsDir       string        `env:"MIGRATIONS_DIR"`
}

var defaultConfig = Config{
	RunAddr:             ":8080",
	DatabaseDSN:         "",
	LogLevel:            "info",
	JWTSigningSecretKey: "Ym9va21hcmtlci1qd3Qtc2lnbmluZy1rZXk=",
	AccessTokenTTL:      15 * time.Minute,
	RefreshTokenTTL:     30 * 24 * time.Hour,
	DBConnectionTimeout: 10 * time.Second,
	MigrationsDir:       "cmd/bookmarker/migrations",
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	return allowedLogLevels[value]
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}

// InitOption defines a functional option for configuring initialization.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing disables command-line flag parsing.
// It is used by tests, where the flag set is owned by the test binary.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

func applyDefaults(target *Config, defaults Config) {
	*target = defaults
}

// New assembles the configuration from defaults, .env, environment variables,
// and flags, then validates it.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	if !options.disableFlagsParsing {
		flag.StringVar(&values.RunAddr, "a", values.RunAddr, "address and port to run server")
		flag.StringVar(&values.DatabaseDSN, "d", values.DatabaseDSN, "a string with the database connection details")
		flag.StringVar(&values.LogLevel, "l", values.LogLevel, "logger level")
		flag.StringVar(&values.MigrationsDir, "m", values.MigrationsDir, "directory with goose migration files")
		flag.Parse()
	}

	var valuesFromEnv Config
	err = env.Parse(&valuesFromEnv)
	if err != nil {
		return nil, err
	}

	if valuesFromEnv.RunAddr != "" {
		values.RunAddr = valuesFromEnv.RunAddr
	}

	if valuesFromEnv.DatabaseDSN != "" {
		values.DatabaseDSN = valuesFromEnv.DatabaseDSN
	}

	if valuesFromEnv.LogLevel != "" {
		values.LogLevel = valuesFromEnv.LogLevel
	}

	if valuesFromEnv.JWTSigningSecretKey != "" {
		values.JWTSigningSecretKey = valuesFromEnv.JWTSigningSecretKey
	}

	if valuesFromEnv.AccessTokenTTL != 0 {
		values.AccessTokenTTL = valuesFromEnv.AccessTokenTTL
	}

	if valuesFromEnv.RefreshTokenTTL != 0 {
		values.RefreshTokenTTL = valuesFromEnv.RefreshTokenTTL
	}

	if valuesFromEnv.DBConnectionTimeout != 0 {
		values.DBConnectionTimeout = valuesFromEnv.DBConnectionTimeout
	}

	if valuesFromEnv.MigrationsDir != "" {
		values.MigrationsDir = valuesFromEnv.MigrationsDir
	}

	return values, values.validate()
}
