package keeper

import (
	"math/big"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultInterval is the pause between head-advancing request attempts.
	DefaultInterval = 60 * time.Second
	// DefaultStep is how many blocks past the head each attempt targets.
	DefaultStep = 128
)

// KeeperConfig configures a Keeper.
type KeeperConfig struct {
	// Interval is the period between request attempts.
	Interval time.Duration
	// Step is the number of blocks past the current head each header-range
	// request targets, capped by the protocol's range bound.
	Step uint32
	// Payment is forwarded with every request and is not recoverable.
	Payment *big.Int
	Logger  zerolog.Logger
}

// DefaultKeeperConfig returns a config with sensible defaults.
func DefaultKeeperConfig(logger zerolog.Logger) KeeperConfig {
	return KeeperConfig{
		Interval: DefaultInterval,
		Step:     DefaultStep,
		Payment:  new(big.Int),
		Logger:   logger.With().Str("component", "keeper").Logger(),
	}
}
