package observability

import (
	"github.com/danmuck/sdapctl/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs a console logger tagged with app as the global logger.
func InitLogger(app string, level zerolog.Level) zerolog.Logger {
	cfg := logging.RuntimeConfig(level)
	logger := logging.New(cfg).With().Str("app", app).Logger()
	log.Logger = logger
	zerolog.SetGlobalLevel(cfg.Level)
	return logger
}
