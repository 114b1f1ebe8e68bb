package database

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config defines the PostgreSQL connection used by the metadata store
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"` // disable, require, verify-ca, verify-full

	MaxIdleConns    int           `mapstructure:"maxidleconns"`
	MaxOpenConns    int           `mapstructure:"maxopenconns"`
	ConnMaxLifetime time.Duration `mapstructure:"connmaxlifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"connmaxidletime"`

	LogLevel      string        `mapstructure:"loglevel"` // silent, error, warn, info
	SlowThreshold time.Duration `mapstructure:"slowthreshold"`
	SkipDefaultTx bool          `mapstructure:"skipdefaulttx"`
	PrepareStmt   bool          `mapstructure:"preparestmt"`

	Timezone             string `mapstructure:"timezone"`
	AutoMigrate          bool   `mapstructure:"automigrate"` // create the files table on startup
	PreferSimpleProtocol bool   `mapstructure:"prefersimpleprotocol"`
}

// DefaultConfig returns a local development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		DBName:          "postgres",
		SSLMode:         "disable",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		LogLevel:        "warn",
		SlowThreshold:   200 * time.Millisecond,
		PrepareStmt:     true,
		Timezone:        "UTC",
	}
}

var (
	validSSLModes = map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	validLevels   = map[string]bool{"silent": true, "error": true, "warn": true, "info": true}
)

// Validate checks required fields and pool limits
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("database host is required")
	case c.Port <= 0 || c.Port > 65535:
		return errors.New("database port must be between 1 and 65535")
	case c.User == "":
		return errors.New("database user is required")
	case c.DBName == "":
		return errors.New("database name is required")
	}

	if !validSSLModes[c.SSLMode] {
		return fmt.Errorf("invalid SSL mode %q, must be one of: disable, require, verify-ca, verify-full", c.SSLMode)
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level %q, must be one of: silent, error, warn, info", c.LogLevel)
	}

	switch {
	case c.MaxIdleConns < 0 || c.MaxOpenConns < 0:
		return errors.New("connection pool sizes must be >= 0")
	case c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns:
		return errors.New("max idle connections cannot exceed max open connections")
	case c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0 || c.SlowThreshold < 0:
		return errors.New("durations must be >= 0")
	}
	return nil
}

// DSN returns the libpq keyword/value connection string
func (c *Config) DSN() string {
	parts := []string{
		"host=" + c.Host,
		fmt.Sprintf("port=%d", c.Port),
		"user=" + c.User,
		"password=" + c.Password,
		"dbname=" + c.DBName,
		"sslmode=" + c.SSLMode,
		"TimeZone=" + c.Timezone,
	}
	if c.PreferSimpleProtocol {
		parts = append(parts, "prefer_simple_protocol=true")
	}
	return strings.Join(parts, " ")
}
