package resilock

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/adrianmcphee/resilock/internal/settingsutil"
)

// PostgresSettings is the validated configuration for a PostgresBackend,
// loaded from the POSTGRES_* environment variables enumerated in §4.J/§6.
type PostgresSettings struct {
	// URL mode.
	URL string

	// Field mode.
	Host     string
	Port     int
	DB       string
	User     string
	Password string
}

var postgresEnvKeys = struct {
	URL, Host, Port, DB, User, Password string
}{
	URL:      "POSTGRES_URL",
	Host:     "POSTGRES_HOST",
	Port:     "POSTGRES_PORT",
	DB:       "POSTGRES_DB",
	User:     "POSTGRES_USER",
	Password: "POSTGRES_PASSWORD",
}

// LoadPostgresSettingsFromEnv parses and validates the POSTGRES_*
// environment variables. Exactly one of POSTGRES_URL or the
// {POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
// POSTGRES_PASSWORD} tuple must be present.
func LoadPostgresSettingsFromEnv() (PostgresSettings, error) {
	return LoadPostgresSettings(os.Getenv)
}

// LoadPostgresSettings is LoadPostgresSettingsFromEnv parameterized over the
// lookup function.
func LoadPostgresSettings(lookup func(string) string) (PostgresSettings, error) {
	offending, err := settingsutil.RequireExactlyOneGroup(
		lookup,
		postgresEnvKeys.URL,
		postgresEnvKeys.Host, postgresEnvKeys.Port, postgresEnvKeys.DB, postgresEnvKeys.User, postgresEnvKeys.Password,
	)
	if err != nil {
		return PostgresSettings{}, SettingsValidationError(err.Error(), offending...)
	}

	if u := lookup(postgresEnvKeys.URL); u != "" {
		parsed, perr := url.Parse(u)
		if perr != nil || (parsed.Scheme != "postgres" && parsed.Scheme != "postgresql") {
			return PostgresSettings{}, SettingsValidationError(
				fmt.Sprintf("%s must be a postgres:// or postgresql:// URL, got %q", postgresEnvKeys.URL, u),
				postgresEnvKeys.URL,
			)
		}
		return PostgresSettings{URL: u}, nil
	}

	port, perr := strconv.Atoi(lookup(postgresEnvKeys.Port))
	if perr != nil {
		return PostgresSettings{}, SettingsValidationError(
			fmt.Sprintf("%s must be an integer, got %q", postgresEnvKeys.Port, lookup(postgresEnvKeys.Port)),
			postgresEnvKeys.Port,
		)
	}

	return PostgresSettings{
		Host:     lookup(postgresEnvKeys.Host),
		Port:     port,
		DB:       lookup(postgresEnvKeys.DB),
		User:     lookup(postgresEnvKeys.User),
		Password: lookup(postgresEnvKeys.Password),
	}, nil
}

// DSN converts validated settings into a libpq-style connection string
// accepted by pgx.
func (s PostgresSettings) DSN() string {
	if s.URL != "" {
		return s.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", s.User, s.Password, s.Host, s.Port, s.DB)
}
