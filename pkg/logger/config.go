package logger

import "log/slog"

type Backend string

const (
	BackendStd Backend = "std" // text handler; dev default
	BackendZap Backend = "zap" // zap-backed slog handler; prod default
)

type Config struct {
	// Logger metadata attached to every record.
	Service    string
	Version    string
	InstanceID string

	// Output control.
	Level   slog.Level
	Env     Env
	Backend Backend
	Debug   bool

	// Zap sampling knobs.
	SampleInitial    int
	SampleThereafter int

	AddSource bool
}
