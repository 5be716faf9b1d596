package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config is the full runtime configuration, loaded from the environment.
// Defaults mirror the original deployment: 60 s active transfer timeouts,
// a 5 s sweep, uploads/ as the landing folder.
type Config struct {
	ListenAddr     string `env:"LISTEN_ADDR,default=:8080"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=data/badger"`
	UploadFolder   string `env:"UPLOAD_FOLDER,default=uploads"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`

	SweepInterval       time.Duration `env:"SWEEP_INTERVAL,default=5s"`
	ServerActiveTimeout time.Duration `env:"SERVER_ACTIVE_TIMEOUT,default=60s"`
	ServerPausedTimeout time.Duration `env:"SERVER_PAUSED_TIMEOUT,default=1h"`
	P2PActiveTimeout    time.Duration `env:"P2P_ACTIVE_TIMEOUT,default=60s"`
	P2PPausedTimeout    time.Duration `env:"P2P_PAUSED_TIMEOUT,default=1h"`

	MaxFileSize       int64 `env:"MAX_FILE_SIZE,default=104857600"`
	PrefetchTolerance int   `env:"PREFETCH_TOLERANCE,default=5"`
	ForgetTolerance   int   `env:"FORGET_TOLERANCE,default=16"`
	PersistChunkEvery int   `env:"PERSIST_CHUNK_EVERY,default=32"`

	// AddressBook backs the standalone directory: "alice@example.com=1,...".
	// Empty when the host core server provides resolution instead.
	AddressBook string `env:"ADDRESS_BOOK"`

	DebugPort int `env:"DEBUG_PORT"`
}

func (c Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("LOG_LEVEL must be debug|info|warn|error, got %q", c.LogLevel)
}
