package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// FileLogger returns a logger writing to both stdout and the given file,
// creating parent directories as needed. The caller owns closing the file.
func FileLogger(level logrus.Level, path string) (*os.File, *logrus.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	logger.SetFormatter(&logrus.JSONFormatter{})
	return f, logger, nil
}

func ConsoleLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(level)
	return logger
}
