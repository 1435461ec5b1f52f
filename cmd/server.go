// Server = source scanner + destination dispatcher + db/state + http reporter.
// All components are configured via environment variables (strings!).

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/TEENet-io/burnmint-relayer/common"
	"github.com/TEENet-io/burnmint-relayer/dispatcher"
	"github.com/TEENet-io/burnmint-relayer/etherman"
	"github.com/TEENet-io/burnmint-relayer/relayer"
	"github.com/TEENet-io/burnmint-relayer/reporter"
	"github.com/TEENet-io/burnmint-relayer/scanner"
	"github.com/TEENet-io/burnmint-relayer/state"
)

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
// Zero durations and counts fall back to the component defaults.
type RelayerServerConfig struct {
	// source side
	SourceRpcUrls string `validate:"required"` // comma separated, tried in order
	SourceChainID string `validate:"required,number"`
	BurnAddress   string `validate:"required,eth_addr"`
	TokenAddress  string `validate:"omitempty,eth_addr"` // empty disables token burns
	NativeRate    string `validate:"required,numeric"`   // eg. 0.001
	TokenRate     string `validate:"required_with=TokenAddress,omitempty,numeric"`
	Confirmations uint64
	StartBlock    uint64 // first block scanned by a fresh ledger
	BatchSize     uint64
	ScanInterval  time.Duration

	// destination side
	DestRpcUrls        string `validate:"required"`
	DestChainID        string `validate:"required,number"`
	ReservePriv        string `validate:"required"` // hex private key of the reserve account
	MaxRetries         int    `validate:"gte=0"`
	PendingTimeout     time.Duration
	GasPriceEscalation string `validate:"omitempty,numeric"` // eg. 1.125
	DrainInterval      time.Duration

	// rpc side
	RpcTimeout   time.Duration
	RpcRateLimit float64 `validate:"gte=0"` // calls per second per chain, 0 = unlimited

	// state side
	DbFilePath string `validate:"required"`

	// Http side, an empty port disables the reporter
	HttpIp   string // eg. 0.0.0.0
	HttpPort string `validate:"omitempty,number"` // eg. 8080
}

// RelayerServer holds the objects that consists of the relayer server.
type RelayerServer struct {
	Source     *etherman.Etherman
	Dest       *etherman.Etherman
	SqlDB      *sql.DB
	StateDB    *state.StateDB
	Scanner    *scanner.Scanner
	Dispatcher *dispatcher.Dispatcher
	Relayer    *relayer.Relayer
	Reporter   *reporter.HttpReporter
}

// Validate checks the field formats. Chain ids and keys are parsed later.
func (rsc *RelayerServerConfig) Validate() error {
	return validator.New().Struct(rsc)
}

func ErrInvalidChainID(s string) error {
	return fmt.Errorf("invalid chain id: %q", s)
}

func parseChainID(s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() <= 0 {
		return nil, ErrInvalidChainID(s)
	}
	return id, nil
}

// NewRelayerServer validates rsc, connects to both chains and opens the
// ledger. Every error it returns is a configuration error.
func NewRelayerServer(ctx context.Context, rsc *RelayerServerConfig) (*RelayerServer, error) {
	if err := rsc.Validate(); err != nil {
		return nil, err
	}

	sourceChainID, err := parseChainID(rsc.SourceChainID)
	if err != nil {
		return nil, err
	}
	destChainID, err := parseChainID(rsc.DestChainID)
	if err != nil {
		return nil, err
	}
	nativeRate, err := common.ParseMicroRate(rsc.NativeRate)
	if err != nil {
		return nil, err
	}
	var tokenRate common.MicroRate
	if rsc.TokenRate != "" {
		if tokenRate, err = common.ParseMicroRate(rsc.TokenRate); err != nil {
			return nil, err
		}
	}
	escalation := decimal.Zero
	if rsc.GasPriceEscalation != "" {
		if escalation, err = decimal.NewFromString(rsc.GasPriceEscalation); err != nil {
			return nil, err
		}
	}
	reserveKey, err := etherman.StringToPrivateKey(rsc.ReservePriv)
	if err != nil {
		return nil, err
	}

	// 1) Connect to both chains.
	source, err := etherman.NewEtherman(ctx, &etherman.Config{
		Name:        "source",
		URLs:        SplitList(rsc.SourceRpcUrls),
		ChainID:     sourceChainID,
		CallTimeout: rsc.RpcTimeout,
		RateLimit:   rsc.RpcRateLimit,
	})
	if err != nil {
		return nil, err
	}
	dest, err := etherman.NewEtherman(ctx, &etherman.Config{
		Name:        "dest",
		URLs:        SplitList(rsc.DestRpcUrls),
		ChainID:     destChainID,
		CallTimeout: rsc.RpcTimeout,
		RateLimit:   rsc.RpcRateLimit,
	})
	if err != nil {
		return nil, err
	}

	// 2) Open the ledger.
	sqlDB, err := sql.Open("sqlite3", SqliteDSN(rsc.DbFilePath))
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	stateDB, err := state.NewStateDB(sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	srv := &RelayerServer{
		Source:  source,
		Dest:    dest,
		SqlDB:   sqlDB,
		StateDB: stateDB,
	}

	// 3) Source side scanner.
	srv.Scanner, err = scanner.New(&scanner.ScannerConfig{
		SourceChainID: sourceChainID,
		BurnAddress:   common.PureHexStrToAddress(rsc.BurnAddress),
		TokenAddress:  common.PureHexStrToAddress(rsc.TokenAddress),
		NativeRate:    nativeRate,
		TokenRate:     tokenRate,
		BatchSize:     rsc.BatchSize,
	}, source, stateDB)
	if err != nil {
		srv.Close()
		return nil, err
	}

	// 4) Destination side dispatcher.
	srv.Dispatcher, err = dispatcher.New(&dispatcher.DispatcherConfig{
		DestChainID:        destChainID,
		ReserveKey:         reserveKey,
		MaxRetries:         rsc.MaxRetries,
		PendingTimeout:     rsc.PendingTimeout,
		GasPriceEscalation: escalation,
		DrainInterval:      rsc.DrainInterval,
	}, dest, stateDB)
	if err != nil {
		srv.Close()
		return nil, err
	}
	logger.WithField("address", srv.Dispatcher.ReserveAddress().Hex()).Info("Reserve account address")

	// 5) Orchestrator over both.
	srv.Relayer = relayer.New(&relayer.Config{
		ScanInterval:  rsc.ScanInterval,
		DrainInterval: rsc.DrainInterval,
		Confirmations: rsc.Confirmations,
		StartBlock:    rsc.StartBlock,
	}, source, stateDB, srv.Scanner, srv.Dispatcher)

	if rsc.HttpPort != "" {
		srv.Reporter = reporter.NewHttpReporter(rsc.HttpIp, rsc.HttpPort, stateDB)
	}
	return srv, nil
}

// Run blocks until ctx is done or the reporter fails to serve.
func (s *RelayerServer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Relayer.Start(ctx)
	})
	if s.Reporter != nil {
		g.Go(func() error {
			return s.Reporter.Run(ctx)
		})
	}
	return g.Wait()
}

func (s *RelayerServer) Close() {
	s.StateDB.Close()
	s.SqlDB.Close()
}

// Create, then start the relayer server and wait.
// Press Ctrl-C to kill the server.
func StartRelayerServerAndWait(rsc *RelayerServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("received signal, cancelling context")
		cancel()
	}()

	srv, err := NewRelayerServer(ctx, rsc)
	if err != nil {
		logger.Fatalf("failed to create relayer server: %v", err)
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("relayer server stopped: %v", err)
	}
	logger.Info("relayer server stopped")
}
