package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultHost           = "localhost"
	defaultPort           = 5432
	defaultDBName         = "lamiragebeauty"
	defaultUser           = "postgres"
	defaultSSLMode        = "disable"
	defaultClientEncoding = "UTF8"
	defaultConnectTimeout = 5 * time.Second
	defaultSQLitePath     = "data/conversations.db"
)

// Connection identifies the database server, instance and credentials.
// It is fixed for the lifetime of the process.
type Connection struct {
	Driver         string
	URL            string
	Host           string
	Port           int
	DBName         string
	User           string
	Password       string
	SSLMode        string
	ClientEncoding string
	ConnectTimeout time.Duration
	// Path is the database file when Driver is sqlite.
	Path string
}

// FromEnv builds a Connection from DB_* variables, falling back to local defaults.
// Call godotenv.Load first if a .env file should be honored.
func FromEnv() (Connection, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup is FromEnv with an injectable lookup function.
func FromLookup(lookup func(string) (string, bool)) (Connection, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Connection{
		Driver:         strings.ToLower(get("DB_DRIVER", DriverPostgres)),
		URL:            get("DATABASE_URL", ""),
		Host:           get("DB_HOST", defaultHost),
		Port:           defaultPort,
		DBName:         get("DB_NAME", defaultDBName),
		User:           get("DB_USER", defaultUser),
		SSLMode:        get("DB_SSLMODE", defaultSSLMode),
		ClientEncoding: get("DB_CLIENT_ENCODING", defaultClientEncoding),
		ConnectTimeout: defaultConnectTimeout,
		Path:           get("SQLITE_PATH", defaultSQLitePath),
	}
	// The password may legitimately contain surrounding spaces.
	if v, ok := lookup("DB_PASSWORD"); ok {
		cfg.Password = v
	}
	if raw := get("DB_PORT", ""); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Connection{}, fmt.Errorf("parse DB_PORT %q: %w", raw, err)
		}
		cfg.Port = port
	}
	if raw := get("DB_CONNECT_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Connection{}, fmt.Errorf("parse DB_CONNECT_TIMEOUT %q: %w", raw, err)
		}
		cfg.ConnectTimeout = d
	}
	if err := cfg.Validate(); err != nil {
		return Connection{}, err
	}
	return cfg, nil
}

// Validate reports the first problem that would prevent a connection attempt.
func (c Connection) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.URL != "" {
			if _, err := url.Parse(c.URL); err != nil {
				return fmt.Errorf("invalid DATABASE_URL: %w", err)
			}
			return nil
		}
		if c.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.DBName == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("database port %d out of range", c.Port)
		}
	case DriverSQLite:
		if c.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect timeout must not be negative")
	}
	return nil
}

// DSN renders the connection string handed to the driver. DATABASE_URL wins when set.
func (c Connection) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return c.keywordDSN(c.Password)
}

// Redacted is DSN with the password masked, safe for logs.
func (c Connection) Redacted() string {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return "<invalid url>"
		}
		return u.Redacted()
	}
	if c.Password == "" {
		return c.keywordDSN("")
	}
	return c.keywordDSN("xxxxx")
}

func (c Connection) keywordDSN(password string) string {
	params := map[string]string{
		"host":    c.Host,
		"port":    strconv.Itoa(c.Port),
		"dbname":  c.DBName,
		"user":    c.User,
		"sslmode": c.SSLMode,
	}
	if password != "" {
		params["password"] = password
	}
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteValue(params[k]))
	}
	return strings.Join(parts, " ")
}

// quoteValue applies libpq keyword/value quoting.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
