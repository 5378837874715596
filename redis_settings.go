package resilock

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/adrianmcphee/resilock/internal/settingsutil"
	"github.com/redis/go-redis/v9"
)

// RedisSettings is the validated configuration for a RedisBackend, loaded
// from the REDIS_* environment variables enumerated in §4.J/§6.
type RedisSettings struct {
	// URL mode.
	URL string

	// Field mode.
	Host     string
	Port     int
	DB       int
	Password string
}

// redisEnvKeys are the recognized environment variables, in the order they
// are validated.
var redisEnvKeys = struct {
	URL, Host, Port, DB, Password string
}{
	URL:      "REDIS_URL",
	Host:     "REDIS_HOST",
	Port:     "REDIS_PORT",
	DB:       "REDIS_DB",
	Password: "REDIS_PASSWORD",
}

// LoadRedisSettingsFromEnv parses and validates the REDIS_* environment
// variables. Exactly one of REDIS_URL or the {REDIS_HOST, REDIS_PORT,
// REDIS_DB, REDIS_PASSWORD} tuple must be present; mixing modes or
// supplying an incomplete field-mode tuple is a settings-validation-error
// naming every offending key.
func LoadRedisSettingsFromEnv() (RedisSettings, error) {
	return LoadRedisSettings(os.Getenv)
}

// LoadRedisSettings is LoadRedisSettingsFromEnv parameterized over the
// lookup function, so callers (and tests) can supply a fake environment.
func LoadRedisSettings(lookup func(string) string) (RedisSettings, error) {
	offending, err := settingsutil.RequireExactlyOneGroup(
		lookup,
		redisEnvKeys.URL,
		redisEnvKeys.Host, redisEnvKeys.Port, redisEnvKeys.DB, redisEnvKeys.Password,
	)
	if err != nil {
		return RedisSettings{}, SettingsValidationError(err.Error(), offending...)
	}

	if u := lookup(redisEnvKeys.URL); u != "" {
		parsed, perr := url.Parse(u)
		if perr != nil || (parsed.Scheme != "redis" && parsed.Scheme != "rediss") {
			return RedisSettings{}, SettingsValidationError(
				fmt.Sprintf("%s must be a redis:// or rediss:// URL, got %q", redisEnvKeys.URL, u),
				redisEnvKeys.URL,
			)
		}
		return RedisSettings{URL: u}, nil
	}

	port, perr := strconv.Atoi(lookup(redisEnvKeys.Port))
	if perr != nil {
		return RedisSettings{}, SettingsValidationError(
			fmt.Sprintf("%s must be an integer, got %q", redisEnvKeys.Port, lookup(redisEnvKeys.Port)),
			redisEnvKeys.Port,
		)
	}
	db, derr := strconv.Atoi(lookup(redisEnvKeys.DB))
	if derr != nil {
		return RedisSettings{}, SettingsValidationError(
			fmt.Sprintf("%s must be an integer, got %q", redisEnvKeys.DB, lookup(redisEnvKeys.DB)),
			redisEnvKeys.DB,
		)
	}

	return RedisSettings{
		Host:     lookup(redisEnvKeys.Host),
		Port:     port,
		DB:       db,
		Password: lookup(redisEnvKeys.Password),
	}, nil
}

// Options converts validated settings into go-redis client options.
func (s RedisSettings) Options() (*redis.Options, error) {
	if s.URL != "" {
		return redis.ParseURL(s.URL)
	}
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", s.Host, s.Port),
		DB:       s.DB,
		Password: s.Password,
	}, nil
}
