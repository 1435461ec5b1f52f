package etherman

import (
	"math/big"
	"time"
)

type Config struct {
	// Name labels the chain in logs and metrics, e.g. "source"
	Name string

	// URLs are JSON-RPC endpoints tried in order until one answers
	URLs []string

	// ChainID every endpoint must report
	ChainID *big.Int

	// CallTimeout bounds a single RPC call. Zero means no extra bound.
	CallTimeout time.Duration

	// RateLimit caps calls per second across all endpoints. Zero disables it.
	RateLimit float64
}
