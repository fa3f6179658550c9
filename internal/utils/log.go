// Package utils
package utils

import (
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *log.Logger
	once   sync.Once

	mu     sync.Mutex
	output io.Writer = os.Stdout
)

// LogOptions controls the rotating log file.
type LogOptions struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SetupLogging sends the standard logger and the shared trade logger to stdout
// and to a size-rotated file. An empty File keeps stdout only.
func SetupLogging(opts LogOptions) io.Closer {
	mu.Lock()
	defer mu.Unlock()

	if opts.File == "" {
		output = os.Stdout
		log.SetOutput(output)
		return io.NopCloser(nil)
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	output = io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(output)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if logger != nil {
		logger.SetOutput(output)
	}
	return rotator
}

// GetLogger returns the logger used for trade lifecycle lines.
func GetLogger() *log.Logger {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		logger = log.New(output, "Zeta Trader: ", log.LstdFlags|log.Lmicroseconds)
	})
	return logger
}
