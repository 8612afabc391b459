package config

import (
	"strings"

	"pantyhose/logging"
)

// ParseSink turns one <log> attribute value into a logging.Sink. Per spec
// §6 the value is "terminal", "file", or both comma-separated
// ("terminal,file"); a bare "file" routes to logs/<level>.log, following
// the level name passed in (the config format names a destination kind,
// not a path — the path itself is this repo's convention).
func ParseSink(level, value string) logging.Sink {
	var s logging.Sink
	for _, part := range strings.Split(value, ",") {
		switch strings.TrimSpace(part) {
		case "terminal":
			s.Terminal = true
		case "file":
			s.File = "logs/" + level + ".log"
		}
	}
	return s
}

// LoggingConfig translates the parsed <log> section into logging.Config.
func (c *ServerConfig) LoggingConfig() logging.Config {
	return logging.Config{
		Debug: ParseSink("debug", c.Log.Debug),
		Info:  ParseSink("info", c.Log.Info),
		Net:   ParseSink("net", c.Log.Net),
		Warn:  ParseSink("warn", c.Log.Warn),
		Err:   ParseSink("err", c.Log.Err),
	}
}
