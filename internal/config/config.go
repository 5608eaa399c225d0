package config

import "time"

// Config is the root application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Pagination PaginationConfig `yaml:"pagination"`
	Auth       AuthConfig       `yaml:"auth"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
	AutoMigrate     bool          `yaml:"auto_migrate"       env:"DATABASE_AUTO_MIGRATE"       env-default:"false"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// PaginationConfig bounds list queries issued through the service layer.
type PaginationConfig struct {
	DefaultLimit uint64 `yaml:"default_limit" env:"PAGINATION_DEFAULT_LIMIT" env-default:"50"`
	MaxLimit     uint64 `yaml:"max_limit"     env:"PAGINATION_MAX_LIMIT"     env-default:"200"`
}

// AuthConfig holds credential settings.
type AuthConfig struct {
	BcryptCost int `yaml:"bcrypt_cost" env:"AUTH_BCRYPT_COST" env-default:"10"`
}

// MetricsConfig controls the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr            string        `yaml:"addr"             env:"METRICS_ADDR"             env-default:""`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"METRICS_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

// Enabled reports whether the observability listener should start.
func (m MetricsConfig) Enabled() bool { return m.Addr != "" }

// Clamp applies the default limit when limit is zero and caps it at MaxLimit.
func (p PaginationConfig) Clamp(limit uint64) uint64 {
	if limit == 0 {
		limit = p.DefaultLimit
	}
	if p.MaxLimit > 0 && limit > p.MaxLimit {
		limit = p.MaxLimit
	}
	return limit
}
