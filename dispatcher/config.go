package dispatcher

import (
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultMaxRetries     = 5
	DefaultPendingTimeout = 30 * time.Minute
	DefaultDrainInterval  = 30 * time.Second
	MinTickerDuration     = 100 * time.Millisecond
)

var DefaultGasPriceEscalation = decimal.RequireFromString("1.125")

type DispatcherConfig struct {
	// DestChainID is the chain the mints are signed for
	DestChainID *big.Int

	// ReserveKey signs the mint transfers out of the reserve account
	ReserveKey *ecdsa.PrivateKey

	// MaxRetries is the retry count at which a mint fails permanently
	MaxRetries int

	// PendingTimeout is how long a broadcast mint may stay unmined before it
	// is resubmitted with a fresh nonce
	PendingTimeout time.Duration

	// GasPriceEscalation multiplies the suggested gas price once per retry
	GasPriceEscalation decimal.Decimal

	// DrainInterval is the period of Start
	DrainInterval time.Duration
}

func (cfg *DispatcherConfig) setDefaults() {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = DefaultPendingTimeout
	}
	if cfg.GasPriceEscalation.LessThan(decimal.NewFromInt(1)) {
		cfg.GasPriceEscalation = DefaultGasPriceEscalation
	}
	if cfg.DrainInterval < MinTickerDuration {
		cfg.DrainInterval = DefaultDrainInterval
	}
}
