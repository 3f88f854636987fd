package config

// Config holds process bootstrap settings sourced from the environment.
// Keys and runtime tunables live in the database after first boot; the
// env values here only seed an empty store.
type Config struct {
	Host        string
	Port        int
	Environment string
	Debug       bool
	LogFile     string

	// DatabaseURL is the sqlite file path.
	DatabaseURL string

	// Seed material for a fresh store.
	AccessKeys    []string
	AdminKey      string
	GoogleAPIKeys []string

	// Scheduler seed values, env-overridable on first boot only.
	ValidationModel         string
	ValidationIntervalHours int
	SchedulerTimezone       string
	ErrorLogRetentionDays   int
	RequestLogRetentionDays int
}

// FromEnv assembles a Config from environment variables with the
// documented defaults.
func FromEnv() *Config {
	cfg := &Config{
		Host:        getenv("HOST", "0.0.0.0"),
		Port:        8000,
		Environment: getenv("ENVIRONMENT", "development"),
		Debug:       getenvBool("DEBUG", false),
		LogFile:     getenv("LOG_FILE", ""),

		DatabaseURL: getenv("DATABASE_URL", "data.db"),

		AccessKeys:    splitAndTrim(getenv("ACCESS_KEY", ""), ","),
		AdminKey:      getenv("ADMIN_KEY", ""),
		GoogleAPIKeys: splitAndTrim(getenv("GOOGLE_API_KEYS", ""), ","),

		ValidationModel:         getenv("VALIDATION_MODEL", "gemini-2.5-flash-lite"),
		ValidationIntervalHours: 1,
		SchedulerTimezone:       getenv("SCHEDULER_TIMEZONE", "Asia/Shanghai"),
		ErrorLogRetentionDays:   15,
		RequestLogRetentionDays: 30,
	}

	setIntFromEnv("PORT", func(n int) { cfg.Port = n })
	setIntFromEnv("KEY_VALIDATION_INTERVAL_HOURS", func(n int) { cfg.ValidationIntervalHours = n })
	setIntFromEnv("ERROR_LOG_RETENTION_DAYS", func(n int) { cfg.ErrorLogRetentionDays = n })
	setIntFromEnv("REQUEST_LOG_RETENTION_DAYS", func(n int) { cfg.RequestLogRetentionDays = n })

	return cfg
}

// IsProduction reports whether cookies should carry the Secure flag.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
