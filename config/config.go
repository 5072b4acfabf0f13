package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode     string `mapstructure:"mode"`
	Handlers struct {
		ExternalAPI struct {
			Port      string `mapstructure:"port"`
			CertFile  string `mapstructure:"certFile"`
			KeyFile   string `mapstructure:"keyFile"`
			EnableTLS bool   `mapstructure:"enableTLS"`
		} `mapstructure:"externalAPI"`
		Prometheus struct {
			Port      string `mapstructure:"port"`
			CertFile  string `mapstructure:"certFile"`
			KeyFile   string `mapstructure:"keyFile"`
			EnableTLS bool   `mapstructure:"enableTLS"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Host     string `mapstructure:"host"`
			Port     string `mapstructure:"port"`
			Username string `mapstructure:"username"`
			Password string `mapstructure:"password"`
			DB       string `mapstructure:"db"`
			SSLMode  string `mapstructure:"sslmode"`
			// URL, when set (DATABASE_URL), wins over the discrete fields.
			URL string `mapstructure:"url"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	JWT  JWTConfig  `mapstructure:"jwt"`
	Auth AuthConfig `mapstructure:"auth"`
}

type JWTConfig struct {
	SecretKey       string        `mapstructure:"secretKey"`
	Issuer          string        `mapstructure:"issuer"`
	Audience        string        `mapstructure:"audience"`
	AccessTokenTTL  time.Duration `mapstructure:"accessTokenTTL"`
	RefreshTokenTTL time.Duration `mapstructure:"refreshTokenTTL"`
}

type AuthConfig struct {
	BcryptCost         int    `mapstructure:"bcryptCost"`
	BackupCodeCount    int    `mapstructure:"backupCodeCount"`
	GoogleClientID     string `mapstructure:"googleClientID"`
	GoogleClientSecret string `mapstructure:"googleClientSecret"`
	GoogleCallbackURL  string `mapstructure:"googleCallbackURL"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Deployment-time secrets and connection details come from the
	// environment, never from the committed yml.
	bindings := map[string]string{
		"mode":                           "APP_ENV",
		"repositories.postgres.host":     "DB_HOST",
		"repositories.postgres.port":     "DB_PORT",
		"repositories.postgres.username": "DB_USER",
		"repositories.postgres.password": "DB_PASSWORD",
		"repositories.postgres.db":       "DB_NAME",
		"repositories.postgres.url":      "DATABASE_URL",
		"jwt.secretKey":                  "JWT_SECRET_KEY",
		"auth.googleClientID":            "GOOGLE_CLIENT_ID",
		"auth.googleClientSecret":        "GOOGLE_CLIENT_SECRET",
		"auth.googleCallbackURL":         "GOOGLE_CALLBACK_URL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.JWT.SecretKey == "" {
		return Config{}, fmt.Errorf("JWT_SECRET_KEY must be set")
	}
	if config.Mode != "development" && config.Repositories.Postgres.URL == "" && config.Repositories.Postgres.SSLMode == "disable" {
		return Config{}, fmt.Errorf("TLS to postgres is required outside development")
	}

	return config, nil
}
