package main

import (
	"fmt"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/TEENet-io/burnmint-relayer/cmd"
	"github.com/TEENet-io/burnmint-relayer/dispatcher"
	"github.com/TEENet-io/burnmint-relayer/logconfig"
	"github.com/TEENet-io/burnmint-relayer/relayer"
	"github.com/TEENet-io/burnmint-relayer/scanner"
)

const (
	ENV_CONFIG_FILE_PATH = "RELAYER_CONFIG"
)

func main() {
	// Tool to read environment variables
	viper.AutomaticEnv()
	setDefaults()

	// A configuration file is optional, the environment alone may be enough.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	if _config_file != "" {
		fmt.Printf("Relayer configuration file = %s\n", _config_file)
		if !cmd.FileExists(_config_file) {
			fmt.Printf("Relayer configuration file not found: %s\n", _config_file)
			return
		}
		if !initializeViper(_config_file) {
			return
		}
	}

	configLogger()

	rsc := PrepareRelayerServerConfig()

	fmt.Println("Starting relayer server... press Ctrl+C to kill the server")
	// Start server and block.
	cmd.StartRelayerServerAndWait(rsc)
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s\n", err)
		return false
	}
	return true
}

func setDefaults() {
	viper.SetDefault("NATIVE_CONVERSION_RATE", "0.001")
	viper.SetDefault("TOKEN_CONVERSION_RATE", "0.002")
	viper.SetDefault("CONFIRMATIONS", relayer.DefaultConfirmations)
	viper.SetDefault("SCAN_INTERVAL", relayer.DefaultScanInterval)
	viper.SetDefault("SCAN_BATCH_SIZE", scanner.DefaultBatchSize)
	viper.SetDefault("DRAIN_INTERVAL", relayer.DefaultDrainInterval)
	viper.SetDefault("PENDING_TIMEOUT", dispatcher.DefaultPendingTimeout)
	viper.SetDefault("MAX_RETRIES", dispatcher.DefaultMaxRetries)
	viper.SetDefault("GAS_PRICE_ESCALATION", dispatcher.DefaultGasPriceEscalation.String())
	viper.SetDefault("RPC_TIMEOUT", "10s")
	viper.SetDefault("HTTP_IP", "0.0.0.0")
	viper.SetDefault("LOG_LEVEL", "info")
}

func configLogger() {
	level := logconfig.ParseLevel(viper.GetString("LOG_LEVEL"))
	if path := viper.GetString("LOG_FILE"); path != "" {
		logconfig.ConfigFileLogger(path, level)
		return
	}
	if level >= logger.DebugLevel {
		logconfig.ConfigDebugLogger()
		return
	}
	logconfig.ConfigProductionLogger(level)
}

// PrepareRelayerServerConfig reads configuration variables and returns a RelayerServerConfig.
func PrepareRelayerServerConfig() *cmd.RelayerServerConfig {
	return &cmd.RelayerServerConfig{
		// source side
		SourceRpcUrls: viper.GetString("SOURCE_RPC_URLS"),
		SourceChainID: viper.GetString("SOURCE_CHAIN_ID"),
		BurnAddress:   viper.GetString("BURN_ADDRESS"),
		TokenAddress:  viper.GetString("TOKEN_ADDRESS"),
		NativeRate:    viper.GetString("NATIVE_CONVERSION_RATE"),
		TokenRate:     viper.GetString("TOKEN_CONVERSION_RATE"),
		Confirmations: viper.GetUint64("CONFIRMATIONS"),
		StartBlock:    viper.GetUint64("START_BLOCK"),
		BatchSize:     viper.GetUint64("SCAN_BATCH_SIZE"),
		ScanInterval:  viper.GetDuration("SCAN_INTERVAL"),
		// destination side
		DestRpcUrls:        viper.GetString("DEST_RPC_URLS"),
		DestChainID:        viper.GetString("DEST_CHAIN_ID"),
		ReservePriv:        viper.GetString("RESERVE_ACCOUNT_KEY"),
		MaxRetries:         viper.GetInt("MAX_RETRIES"),
		PendingTimeout:     viper.GetDuration("PENDING_TIMEOUT"),
		GasPriceEscalation: viper.GetString("GAS_PRICE_ESCALATION"),
		DrainInterval:      viper.GetDuration("DRAIN_INTERVAL"),
		// rpc side
		RpcTimeout:   viper.GetDuration("RPC_TIMEOUT"),
		RpcRateLimit: viper.GetFloat64("RPC_RATE_LIMIT"),
		// state side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		// Http side
		HttpIp:   viper.GetString("HTTP_IP"),
		HttpPort: viper.GetString("HTTP_PORT"),
	}
}
