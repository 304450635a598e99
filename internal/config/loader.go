package config

import (
	"fmt"
	"time"

	"github.com/jsalverda/disentangle/internal/db"
	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// ImportConfig tunes the import pipeline.
type ImportConfig struct {
	BatchSize    int
	MaxErrorRate float64
	JobTimeout   time.Duration
	UploadDir    string
	PreviewRows  int
}

// ExportConfig tunes the room export subsystem.
type ExportConfig struct {
	Dir        string
	PageSize   int
	JobTimeout time.Duration
}

// Config aggregates all application settings.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Import   ImportConfig
	Export   ExportConfig
}

// DefaultConfig returns the settings used when no config file or env
// overrides are present.
func DefaultConfig() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Import: ImportConfig{
			BatchSize:    50,
			MaxErrorRate: 1.0,
			JobTimeout:   30 * time.Minute,
			UploadDir:    "",
			PreviewRows:  10,
		},
		Export: ExportConfig{
			Dir:        "",
			PageSize:   1000,
			JobTimeout: 30 * time.Minute,
		},
	}
}

// Load reads config.yaml from configPath and applies environment overrides.
func Load(configPath string) (Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()          // allow environment overrides
	v.SetEnvPrefix("DISENT")  // map env vars like DISENT_DATABASE_HOST

	// Map nested keys to flat env vars
	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("import.batch_size")
	v.BindEnv("import.upload_dir")
	v.BindEnv("export.dir")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	// Override defaults if values exist
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("import.batch_size") {
		cfg.Import.BatchSize = v.GetInt("import.batch_size")
	}
	if v.IsSet("import.max_error_rate") {
		cfg.Import.MaxErrorRate = v.GetFloat64("import.max_error_rate")
	}
	if v.IsSet("import.job_timeout") {
		cfg.Import.JobTimeout = v.GetDuration("import.job_timeout")
	}
	if v.IsSet("import.upload_dir") {
		cfg.Import.UploadDir = v.GetString("import.upload_dir")
	}
	if v.IsSet("import.preview_rows") {
		cfg.Import.PreviewRows = v.GetInt("import.preview_rows")
	}
	if v.IsSet("export.dir") {
		cfg.Export.Dir = v.GetString("export.dir")
	}
	if v.IsSet("export.page_size") {
		cfg.Export.PageSize = v.GetInt("export.page_size")
	}
	if v.IsSet("export.job_timeout") {
		cfg.Export.JobTimeout = v.GetDuration("export.job_timeout")
	}

	return cfg, nil
}
