package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ledgerdesk/ledgerdesk/pkg/logging"
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

// LoadEnv loads the given env files relative to the working directory,
// falling back to the module root (the nearest parent containing go.mod)
// so tests run from package directories pick up the same files.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles(envFiles)
	if len(existing) == 0 {
		if root, ok := moduleRoot(); ok {
			rooted := make([]string, 0, len(envFiles))
			for _, f := range envFiles {
				rooted = append(rooted, filepath.Join(root, f))
			}
			existing = existingFiles(rooted)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

func moduleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if st, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil && !st.IsDir() {
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
	Name     string `env:"DB_NAME" envDefault:"ledgerdesk"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type Configuration struct {
	Database DatabaseOptions

	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	PageSize         int    `env:"PAGE_SIZE" envDefault:"25"`
	MaxPageSize      int    `env:"MAX_PAGE_SIZE" envDefault:"100"`

	UploadsPath string `env:"UPLOADS_PATH" envDefault:"static/uploads"`
	// Archived invoice attachments are relocated here; relocation failures
	// are logged and never abort the archive.
	ArchivePath string `env:"ARCHIVE_PATH" envDefault:"static/archive"`
	DeletedPath string `env:"DELETED_PATH" envDefault:"static/deleted"`

	// MinReasonLength applies to hold, rejection and review-rejection reasons.
	MinReasonLength int `env:"MIN_REASON_LENGTH" envDefault:"10"`
	// DueSoonDays is the worklist "due soon" window. Kept configurable: the
	// 3-day default is observed behavior, not a confirmed business rule.
	DueSoonDays int `env:"DUE_SOON_DAYS" envDefault:"3"`

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
	if c.MinReasonLength < 1 {
		return fmt.Errorf("MIN_REASON_LENGTH must be positive, got %d", c.MinReasonLength)
	}
	if c.DueSoonDays < 0 {
		return fmt.Errorf("DUE_SOON_DAYS must be non-negative, got %d", c.DueSoonDays)
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
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
