package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loggerFactory routes pion logs into zerolog. pion is chatty, so its
// info level is demoted to debug.
type loggerFactory struct{}

func (loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	l := log.With().Str("module", "rtc.pion").Str("scope", scope).Logger()
	return &leveledLogger{l: l}
}

type leveledLogger struct {
	l zerolog.Logger
}

func (p *leveledLogger) Trace(msg string) { p.l.Trace().Msg(msg) }
func (p *leveledLogger) Tracef(f string, args ...any) { p.l.Trace().Msg(fmt.Sprintf(f, args...)) }
func (p *leveledLogger) Debug(msg string) { p.l.Debug().Msg(msg) }
func (p *leveledLogger) Debugf(f string, args ...any) { p.l.Debug().Msg(fmt.Sprintf(f, args...)) }
func (p *leveledLogger) Info(msg string) { p.l.Debug().Msg(msg) }
func (p *leveledLogger) Infof(f string, args ...any) { p.l.Debug().Msg(fmt.Sprintf(f, args...)) }
func (p *leveledLogger) Warn(msg string) { p.l.Warn().Msg(msg) }
func (p *leveledLogger) Warnf(f string, args ...any) { p.l.Warn().Msg(fmt.Sprintf(f, args...)) }
func (p *leveledLogger) Error(msg string) { p.l.Error().Msg(msg) }
func (p *leveledLogger) Errorf(f string, args ...any) { p.l.Error().Msg(fmt.Sprintf(f, args...)) }
