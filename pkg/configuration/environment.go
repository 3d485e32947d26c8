package configuration

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory, or from the
// nearest directory above it that holds a go.mod when none exist locally.
func LoadEnv(envFiles []string) (int, error) {
	existingFiles := existingEnvFiles(envFiles, "")
	if len(existingFiles) == 0 {
		if root, ok := findModuleRoot(); ok {
			existingFiles = existingEnvFiles(envFiles, root)
		}
	}
	if len(existingFiles) == 0 {
		return 0, nil
	}
	return len(existingFiles), godotenv.Load(existingFiles...)
}

func existingEnvFiles(envFiles []string, dir string) []string {
	out := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if fs.FileExists(path) {
			out = append(out, path)
		}
	}
	return out
}

func findModuleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"orgtree"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"orgtree"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
}

func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	if r.GlobalRPS > 1000000 {
		return fmt.Errorf("rate limit GlobalRPS too high, maximum is 1,000,000, got %d", r.GlobalRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	return nil
}

type OrgOptions struct {
	// memory, redis or none
	SnapshotCache        string        `env:"ORG_SNAPSHOT_CACHE" envDefault:"memory"`
	SnapshotTTL          time.Duration `env:"ORG_SNAPSHOT_TTL" envDefault:"5m"`
	SnapshotCacheKey     string        `env:"ORG_SNAPSHOT_CACHE_KEY" envDefault:"org:department_tree_structure:v1"`
	PropagationBatchSize int           `env:"ORG_PROPAGATION_BATCH_SIZE" envDefault:"1000"`
	// Publishes committed changes to a Redis stream in addition to the audit log.
	EventsStream       bool   `env:"ORG_EVENTS_STREAM" envDefault:"false"`
	EventsStreamName   string `env:"ORG_EVENTS_STREAM_NAME" envDefault:"org.changed.v1"`
	EventsStreamMaxLen int64  `env:"ORG_EVENTS_STREAM_MAXLEN" envDefault:"10000"`
}

// UsesRedis reports whether any org component needs a Redis connection.
func (o *OrgOptions) UsesRedis() bool {
	return o.SnapshotCache == "redis" || o.EventsStream
}

func (o *OrgOptions) Validate() error {
	switch o.SnapshotCache {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("invalid ORG_SNAPSHOT_CACHE=%q (expected memory|redis|none)", o.SnapshotCache)
	}
	if o.SnapshotTTL <= 0 {
		return fmt.Errorf("ORG_SNAPSHOT_TTL must be positive, got %s", o.SnapshotTTL)
	}
	if o.PropagationBatchSize <= 0 {
		return fmt.Errorf("ORG_PROPAGATION_BATCH_SIZE must be positive, got %d", o.PropagationBatchSize)
	}
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	Prometheus    PrometheusOptions
	OpenTelemetry OpenTelemetryOptions
	RateLimit     RateLimitOptions
	Org           OrgOptions

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"migrations/org"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	PageSize         int    `env:"PAGE_SIZE" envDefault:"10"`
	MaxPageSize      int    `env:"MAX_PAGE_SIZE" envDefault:"100"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:""`
	// Looked up on every request; a uuid is generated when the header is absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	return c.finalize()
}

func (c *Configuration) finalize() error {
	c.Org.SnapshotCache = strings.ToLower(strings.TrimSpace(c.Org.SnapshotCache))
	if err := c.Org.Validate(); err != nil {
		return fmt.Errorf("org configuration error: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if c.PageSize <= 0 || c.MaxPageSize < c.PageSize {
		return fmt.Errorf("invalid PAGE_SIZE=%d / MAX_PAGE_SIZE=%d", c.PageSize, c.MaxPageSize)
	}

	if err := c.setupLogger(); err != nil {
		return err
	}

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

func (c *Configuration) setupLogger() error {
	logger := logrus.New()
	logger.SetLevel(c.LogrusLogLevel())
	if c.GoAppEnvironment == Production {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if c.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(c.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		c.logFile = f
		logger.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	c.logger = logger
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
