package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strings" // strings normalizes driver names
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
    StorageMySQL  = "mysql"
    StorageMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable, except for the nested groups which have their
// own loaders.
type Config struct {
    Env           string // application environment (e.g. "dev", "prod")
    Port          string // HTTP port to listen on
    StorageDriver string // "mysql" or "memory"
    DBUser        string // database username
    DBPass        string // database password (optional)
    DBHost        string // database host address
    DBPort        string // database port number
    DBName        string // database name
    JWTSecret     string // secret used to verify JWTs

    Engine EngineConfig
    Broker BrokerConfig
    Log    LogConfig
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Database variables
// are only required when the MySQL storage driver is selected.
func Load() Config {
    cfg := Config{
        Env:           getenv("APP_ENV", "dev"),                               // environment (dev/test/prod)
        Port:          must("APP_PORT"),                                       // port to bind the HTTP server
        StorageDriver: strings.ToLower(getenv("STORAGE_DRIVER", StorageMySQL)), // where events, ledgers and tickets live
        JWTSecret:     must("JWT_SECRET"),                                     // secret used for verifying JWTs
        Engine:        LoadEngineConfig(),
        Broker:        LoadBrokerConfig(),
        Log:           LoadLogConfig(),
    }
    switch cfg.StorageDriver {
    case StorageMySQL:
        cfg.DBUser = must("DB_USER")
        cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    case StorageMemory:
    default:
        log.Fatalf("invalid STORAGE_DRIVER: %q", cfg.StorageDriver)
    }
    return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}
