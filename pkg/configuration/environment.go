package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/rolloy/scm-import/pkg/logging"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		panic(err)
	}
	return c
})

// LoadEnv loads whichever of the given env files exist.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// StoreOptions holds remote store connection settings.
type StoreOptions struct {
	URL        string        `env:"STORE_URL"`
	ServiceKey string        `env:"STORE_SERVICE_KEY"`
	Timeout    time.Duration `env:"STORE_TIMEOUT" envDefault:"30s"`
	// WriteRPS caps the client-side request rate against the hosted tier.
	WriteRPS float64 `env:"STORE_WRITE_RPS" envDefault:"20"`
}

type Configuration struct {
	Store StoreOptions

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogPath     string `env:"LOG_PATH" envDefault:""`
	ColumnMap   string `env:"COLUMN_MAP" envDefault:""`
	ManifestDir string `env:"MANIFEST_DIR" envDefault:"."`
	// MaxReportedErrors caps the error excerpt in the final summary.
	MaxReportedErrors int `env:"MAX_REPORTED_ERRORS" envDefault:"10"`

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
		return logrus.InfoLevel
	}
}

// Use returns the process-wide configuration, loading it on first call.
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
	if c.MaxReportedErrors < 0 {
		return fmt.Errorf("MAX_REPORTED_ERRORS must be non-negative, got %d", c.MaxReportedErrors)
	}

	if c.LogPath != "" {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}
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
