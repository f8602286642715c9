package sqlexec

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Supported database/sql driver names.
const (
	DriverPgx      = "pgx"      // github.com/jackc/pgx/v5/stdlib
	DriverPostgres = "postgres" // github.com/lib/pq
	DriverSQLite3  = "sqlite3"  // github.com/mattn/go-sqlite3
	DriverSQLite   = "sqlite"   // modernc.org/sqlite
)

// Drivers lists the supported driver names.
var Drivers = []string{DriverPgx, DriverPostgres, DriverSQLite3, DriverSQLite}

// Duration is a time.Duration read from text such as "3s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config holds the settings for a run.
type Config struct {
	// Driver is the database/sql driver: "pgx", "postgres", "sqlite3" or "sqlite".
	Driver string `toml:"driver" yaml:"driver"`

	Host     string `toml:"host" yaml:"host"`
	Port     int    `toml:"port" yaml:"port"`
	Database string `toml:"database" yaml:"database"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`

	// SSLMode is passed to PostgreSQL drivers as sslmode.
	SSLMode string `toml:"sslmode" yaml:"sslmode"`

	// DSN, when set, is handed to the driver as is and the connection
	// fields above are ignored.
	DSN string `toml:"dsn" yaml:"dsn"`

	// ScriptDir is the root directory scanned for scripts.
	ScriptDir string `toml:"script_dir" yaml:"script_dir"`

	// Mode is the transaction mode.
	Mode string `toml:"mode" yaml:"mode"`

	// LogDir is where log and report directories are created.
	LogDir string `toml:"log_dir" yaml:"log_dir"`

	ConnectAttempts int      `toml:"connect_attempts" yaml:"connect_attempts"`
	ConnectDelay    Duration `toml:"connect_delay" yaml:"connect_delay"`
}

// DefaultConfig mirrors the official PostgreSQL Docker image defaults.
var DefaultConfig = Config{
	Driver:          DriverPgx,
	Host:            "localhost",
	Port:            5432,
	Database:        "postgres",
	User:            "postgres",
	Password:        "mysecretpassword",
	SSLMode:         "disable",
	ScriptDir:       "../",
	LogDir:          "./logs",
	ConnectAttempts: DefaultConnectAttempts,
	ConnectDelay:    Duration(DefaultConnectDelay),
}

// ConfigFiles are the file names looked up in the working directory when no
// config file is given explicitly.
var ConfigFiles = []string{"sqlexec.toml", "sqlexec.yaml", "sqlexec.yml"}

// LoadConfigFile decodes a TOML file, or a YAML file when path ends in .yaml
// or .yml, into cfg. Keys absent from the file keep their current values.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// LoadDotenv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotenv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to access %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with the DB_* and related variables found by lookup
// (usually os.LookupEnv).
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("DB_DRIVER", &cfg.Driver)
	str("DB_HOST", &cfg.Host)
	str("DB_NAME", &cfg.Database)
	str("DB_USER", &cfg.User)
	str("DB_PASS", &cfg.Password)
	str("DB_SSLMODE", &cfg.SSLMode)
	str("DATABASE_URL", &cfg.DSN)
	str("SQL_DIR", &cfg.ScriptDir)
	if v, ok := lookup("DB_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	return nil
}

// Validate checks that cfg can drive a run.
func (c Config) Validate() error {
	if !isDriver(c.Driver) {
		return fmt.Errorf("db driver '%s' not supported. Must be one of: %s", c.Driver, strings.Join(Drivers, ", "))
	}
	if _, err := ParseMode(c.Mode); err != nil {
		return err
	}
	if strings.TrimSpace(c.ScriptDir) == "" {
		return errors.New("script directory must be provided")
	}
	if c.DSN == "" && !isSQLite(c.Driver) && c.Host == "" {
		return errors.New("database host must be provided")
	}
	if c.DSN == "" && isSQLite(c.Driver) && c.Database == "" {
		return errors.New("database file must be provided for SQLite drivers")
	}
	return nil
}

// DataSource returns the driver connection string for cfg.
func (c Config) DataSource() string {
	if c.DSN != "" {
		return c.DSN
	}
	if isSQLite(c.Driver) {
		return c.Database
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// Redacted returns DataSource with the password masked, for logging.
func (c Config) Redacted() string {
	if c.DSN == "" && !isSQLite(c.Driver) && c.Password != "" {
		masked := c
		masked.Password = "xxxxx"
		return masked.DataSource()
	}
	if u, err := url.Parse(c.DataSource()); err == nil && u.User != nil {
		return u.Redacted()
	}
	return c.DataSource()
}

// Dialer returns a Dialer for cfg's driver and data source.
func (c Config) Dialer() Dialer {
	return SQLDialer(c.Driver, c.DataSource())
}

func isDriver(name string) bool {
	for _, d := range Drivers {
		if d == name {
			return true
		}
	}
	return false
}

func isSQLite(driver string) bool {
	return driver == DriverSQLite3 || driver == DriverSQLite
}
