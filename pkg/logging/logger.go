// Package logging adapts zerolog to the voicecore.Logger surface every
// component depends on, grounded on RedClaus-cortex's internal/logging
// package (ConsoleWriter + level-from-string setup), trimmed to the
// console-only sink this module needs.
package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

// ZerologAdapter backs voicecore.Logger with a zerolog.Logger, mapping the
// kv-pairs convention (key, value, key, value, ...) every call site in this
// module uses onto zerolog's fluent field builder.
type ZerologAdapter struct {
	z zerolog.Logger
}

// New builds a console-writer-backed adapter at the given level
// ("debug", "info", "warn", "error"; anything else defaults to info).
func New(levelName string) *ZerologAdapter {
	level := zerolog.InfoLevel
	switch levelName {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	z := zerolog.New(console).With().Timestamp().Str("app", "voicebridge").Logger()
	return &ZerologAdapter{z: z}
}

func withFields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}

func (a *ZerologAdapter) Debug(msg string, kv ...interface{}) {
	withFields(a.z.Debug(), kv).Msg(msg)
}

func (a *ZerologAdapter) Info(msg string, kv ...interface{}) {
	withFields(a.z.Info(), kv).Msg(msg)
}

func (a *ZerologAdapter) Warn(msg string, kv ...interface{}) {
	withFields(a.z.Warn(), kv).Msg(msg)
}

func (a *ZerologAdapter) Error(msg string, kv ...interface{}) {
	withFields(a.z.Error(), kv).Msg(msg)
}

var _ voicecore.Logger = (*ZerologAdapter)(nil)
