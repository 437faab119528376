package logger

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"attendance-backend/config"
)

var once sync.Once

// Init configures the global zerolog logger. It writes to stdout and, when
// cfg.File is set, also appends to that file.
func Init(cfg config.LogConfig) {
	once.Do(func() {
		writers := []io.Writer{os.Stdout}

		if cfg.File != "" {
			file, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
			if err != nil {
				// The logger is not ready yet.
				os.Stderr.WriteString("Failed to open log file: " + err.Error() + "\n")
			} else {
				writers = append(writers, file)
			}
		}

		level, err := zerolog.ParseLevel(cfg.Level)
		if err != nil || level == zerolog.NoLevel {
			level = zerolog.InfoLevel
		}

		multi := zerolog.MultiLevelWriter(writers...)
		log.Logger = zerolog.New(multi).With().Timestamp().Logger().Level(level)
	})
}

// Component returns a child logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
