package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	AWS      AWSConfig      `json:"aws"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
	Signing  SigningConfig  `json:"signing"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// AWSConfig covers the S3 artifact bucket and the SES sender region.
type AWSConfig struct {
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// EmailConfig
type EmailConfig struct {
	FromAddress string `json:"from_address"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// SigningConfig holds the e-signature workflow policy.
type SigningConfig struct {
	OTPTTLMinutes  int  `json:"otp_ttl_minutes"`
	OTPMaxAttempts int  `json:"otp_max_attempts"`
	OTPSingleUse   bool `json:"otp_single_use"`
	AllowResign    bool `json:"allow_resign"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Default config
	config := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "homehub_portal",
			SSLMode: "disable",
		},
		AWS: AWSConfig{
			Region: "eu-west-1",
			Bucket: "homehub-reports",
		},
		Email: EmailConfig{
			FromAddress: "no-reply@homehub.example",
		},
		Signing: SigningConfig{
			OTPTTLMinutes:  10,
			OTPMaxAttempts: 5,
			OTPSingleUse:   false,
			AllowResign:    true,
		},
	}

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	overrideWithEnv(config)

	if config.Security.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is not configured")
	}

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.AWS.Region = region
	}
	if bucket := os.Getenv("REPORTS_BUCKET"); bucket != "" {
		config.AWS.Bucket = bucket
	}
	if from := os.Getenv("EMAIL_FROM"); from != "" {
		config.Email.FromAddress = from
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
	if ttl := os.Getenv("OTP_TTL_MINUTES"); ttl != "" {
		if v, err := strconv.Atoi(ttl); err == nil {
			config.Signing.OTPTTLMinutes = v
		}
	}
	if single := os.Getenv("OTP_SINGLE_USE"); single != "" {
		config.Signing.OTPSingleUse = single == "true" || single == "1"
	}
	if resign := os.Getenv("ALLOW_RESIGN"); resign != "" {
		config.Signing.AllowResign = resign == "true" || resign == "1"
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
