// Package logging builds the structured *zap.Logger used across every
// manager in the message plane, from the <log> section of the XML config.
//
// The config's five independent sinks (debug, info, net, warn, err), each
// routable to "terminal", "file", or both, are realized as one zapcore.Core
// per sink, combined with zapcore.NewTee. "net" is a custom level (NetLevel)
// reserved for connection lifecycle and frame-level tracing —
// high-volume, meant to be off in production.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the five names the XML config uses verbatim.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelNet   Level = "net"
	LevelWarn  Level = "warn"
	LevelErr   Level = "err"
)

// NetLevel is a custom zapcore.Level reserved for connection lifecycle and
// frame-level tracing. Each configured sink below is wired to match exactly
// one level (not "at or above", since the XML config routes each of the
// five levels independently), so NetLevel only needs to be distinct from
// the four standard levels this build otherwise emits at.
const NetLevel = zapcore.Level(-2)

// Sink names the destination(s) a level's config entry asks for.
type Sink struct {
	Terminal bool
	File     string // non-empty enables a file sink at this path
}

// Config is the parsed <log .../> element.
type Config struct {
	Debug Sink
	Info  Sink
	Net   Sink
	Warn  Sink
	Err   Sink
}

func zapLevelFor(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelNet:
		return NetLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelErr:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// Build assembles a *zap.Logger plus a Guard whose Close flushes every sink.
// The encoder is always JSON rather than a custom text format, matching
// zap's own structured-logging idiom.
func Build(cfg Config) (*zap.Logger, *Guard, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	var cores []zapcore.Core
	var files []*os.File

	addSink := func(level Level, s Sink) error {
		exactLevel := zapLevelFor(level)
		enabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l == exactLevel })
		if s.Terminal {
			cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), enabler))
		}
		if s.File != "" {
			f, err := os.OpenFile(s.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return err
			}
			files = append(files, f)
			cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(f), enabler))
		}
		return nil
	}

	for level, s := range map[Level]Sink{
		LevelDebug: cfg.Debug,
		LevelInfo:  cfg.Info,
		LevelNet:   cfg.Net,
		LevelWarn:  cfg.Warn,
		LevelErr:   cfg.Err,
	} {
		if !s.Terminal && s.File == "" {
			continue
		}
		if err := addSink(level, s); err != nil {
			closeAll(files)
			return nil, nil, err
		}
	}

	core := zapcore.NewTee(cores...)
	logger := zap.New(core, zap.AddCaller())
	return logger, &Guard{logger: logger, files: files}, nil
}

// Guard owns every file handle opened for a logger and the logger's own
// buffered writers. Its lifetime equals the owning server's; Close flushes
// and releases everything, and must run last during teardown so late error
// messages survive.
type Guard struct {
	logger *zap.Logger
	files  []*os.File
}

func (g *Guard) Close() error {
	_ = g.logger.Sync()
	return closeAll(g.files)
}

func closeAll(files []*os.File) error {
	var first error
	for _, f := range files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Net logs at the custom net level, for connection lifecycle and
// frame-level tracing.
func Net(l *zap.Logger, msg string, fields ...zap.Field) {
	if ce := l.Check(NetLevel, msg); ce != nil {
		ce.Write(fields...)
	}
}
