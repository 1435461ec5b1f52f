package relayer

import "time"

const (
	DefaultScanInterval  = 5 * time.Minute
	DefaultDrainInterval = 30 * time.Second
	DefaultConfirmations = 10
	MinTickerDuration    = 100 * time.Millisecond
)

type Config struct {
	// ScanInterval is the period of the scan loop
	ScanInterval time.Duration

	// DrainInterval is the period of the drain loop
	DrainInterval time.Duration

	// Confirmations is the depth below the source head a block must reach
	// before it is scanned
	Confirmations uint64

	// StartBlock is the first block scanned by a ledger without checkpoint
	StartBlock uint64
}

func (cfg *Config) setDefaults() {
	if cfg.ScanInterval < MinTickerDuration {
		cfg.ScanInterval = DefaultScanInterval
	}
	if cfg.DrainInterval < MinTickerDuration {
		cfg.DrainInterval = DefaultDrainInterval
	}
}
