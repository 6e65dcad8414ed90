package logging

import "time"

type Config struct {
	BufferSize       int
	MinimumSeverity  Severity
	DropWarnInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
	}
}
