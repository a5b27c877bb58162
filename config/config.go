package config

import (
	"errors"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config aggregates every setting read from the environment. Nested structs
// are parsed with their envPrefix.
type Config struct {
	Env string `env:"ENV" envDefault:"dev"`

	HTTP      HTTP      `envPrefix:"HTTP_"`
	DB        DB        `envPrefix:"DB_"`
	JWT       JWT       `envPrefix:"JWT_"`
	Log       Log       `envPrefix:"LOG_"`
	WS        WS        `envPrefix:"WS_"`
	Lifecycle Lifecycle `envPrefix:"LIFECYCLE_"`
}

type HTTP struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	GinMode        string   `env:"GIN_MODE" envDefault:"debug"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envDefault:"127.0.0.1"`
	// RateLimit is the number of requests per RateInterval per client IP.
	RateLimit    int           `env:"RATE_LIMIT" envDefault:"50"`
	RateInterval time.Duration `env:"RATE_INTERVAL" envDefault:"1s"`
}

// DB selects the gorm dialector. Driver is one of mysql, postgres, sqlite.
type DB struct {
	Driver       string        `env:"DRIVER" envDefault:"sqlite"`
	DSN          string        `env:"DSN" envDefault:"groupbuy.db"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLife  time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	AutoMigrate  bool          `env:"AUTO_MIGRATE" envDefault:"true"`
}

// DevJWTSecret signs tokens when JWT_SECRET is unset. Release builds refuse it.
const DevJWTSecret = "TestSecretKeyAUTH1945"

var ErrDevSecretInRelease = errors.New("JWT_SECRET must be set when running in release mode")

type JWT struct {
	Secret string        `env:"SECRET" envDefault:"TestSecretKeyAUTH1945"`
	TTL    time.Duration `env:"TTL" envDefault:"24h"`
}

type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// WS tunes the push endpoint.
type WS struct {
	AuthTimeout time.Duration `env:"AUTH_TIMEOUT" envDefault:"10s"`
	SendBuffer  int           `env:"SEND_BUFFER" envDefault:"32"`
	PingPeriod  time.Duration `env:"PING_PERIOD" envDefault:"30s"`
}

// Lifecycle holds the campaign timing rules.
type Lifecycle struct {
	AuctionDuration    time.Duration `env:"AUCTION_DURATION" envDefault:"48h"`
	VoteDuration       time.Duration `env:"VOTE_DURATION" envDefault:"24h"`
	VoteReminderWindow time.Duration `env:"VOTE_REMINDER_WINDOW" envDefault:"1h"`
	MaxActivePerUser   int           `env:"MAX_ACTIVE_PER_USER" envDefault:"2"`
	// SweepSchedule is a robfig/cron spec for the deadline sweep.
	SweepSchedule string `env:"SWEEP_SCHEDULE" envDefault:"@every 1m"`
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(files...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Release reports whether the server runs in gin release mode, set either
// through HTTP_GIN_MODE or gin's own GIN_MODE.
func (c Config) Release() bool {
	return c.HTTP.GinMode == "release" || os.Getenv("GIN_MODE") == "release"
}

// Validate rejects settings that are only safe for local development.
func (c Config) Validate() error {
	if c.Release() && (c.JWT.Secret == "" || c.JWT.Secret == DevJWTSecret) {
		return ErrDevSecretInRelease
	}
	return nil
}
