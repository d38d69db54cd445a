package configuration

import (
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/seoplan/planner/pkg/logging"
)

var singleton = sync.OnceValue(func() *Configuration {
	c, err := New([]string{".env", ".env.local"})
	if err != nil {
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}
	if len(existingFiles) == 0 {
		return 0, nil
	}
	return len(existingFiles), godotenv.Load(existingFiles...)
}

type BackendOptions struct {
	URL             string        `env:"PLANNER_BACKEND_URL" envDefault:"http://localhost:8000/api"`
	Token           string        `env:"PLANNER_API_TOKEN"`
	Timeout         time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	RequestIDHeader string        `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
}

func (b *BackendOptions) Validate() error {
	u, err := url.Parse(strings.TrimSpace(b.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid PLANNER_BACKEND_URL=%q", b.URL)
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", b.Timeout)
	}
	return nil
}

// ImportOptions drive per-item submission pacing and retries.
type ImportOptions struct {
	RequestDelay time.Duration `env:"IMPORT_REQUEST_DELAY" envDefault:"150ms"`
	MaxAttempts  int           `env:"IMPORT_MAX_ATTEMPTS" envDefault:"3"`
	RetryBackoff time.Duration `env:"IMPORT_RETRY_BACKOFF" envDefault:"1s"`
	MaxErrors    int           `env:"IMPORT_MAX_ERRORS" envDefault:"50"`
}

func (o *ImportOptions) Validate() error {
	if o.MaxAttempts < 1 {
		return fmt.Errorf("IMPORT_MAX_ATTEMPTS must be at least 1, got %d", o.MaxAttempts)
	}
	if o.RequestDelay < 0 {
		return fmt.Errorf("IMPORT_REQUEST_DELAY must be non-negative, got %s", o.RequestDelay)
	}
	if o.RetryBackoff < 0 {
		return fmt.Errorf("IMPORT_RETRY_BACKOFF must be non-negative, got %s", o.RetryBackoff)
	}
	if o.MaxErrors < 0 {
		return fmt.Errorf("IMPORT_MAX_ERRORS must be non-negative, got %d", o.MaxErrors)
	}
	return nil
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type Configuration struct {
	Backend    BackendOptions
	Import     ImportOptions
	Prometheus PrometheusOptions

	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	// Empty keeps logging on stderr only.
	LogPath string `env:"LOG_PATH" envDefault:""`

	logFile io.Closer
	logger  *logrus.Logger
}

// New loads env files (missing ones are skipped) and parses the environment.
func New(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
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

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		for _, file := range envFiles {
			log.Printf("env file not found, skipped: %s", filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend configuration error: %w", err)
	}
	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import configuration error: %w", err)
	}

	if strings.TrimSpace(c.LogPath) == "" {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
		return nil
	}
	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger
	return nil
}

// Unload releases the log file, if any.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
