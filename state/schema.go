package state

import "strings"

var (
	strZeroBytes32 = strings.Repeat("0", 64)
	strZeroBytes20 = strings.Repeat("0", 40)

	// table stores key-value pairs. Both key and value are a 32-byte hex string without prefix '0x'
	kvTable = `CREATE TABLE IF NOT EXISTS kv (
		key CHAR(64) PRIMARY KEY NOT NULL,
		value CHAR(64) NOT NULL
	);`

	// append-only burn ledger, amounts are base-10 strings of 256-bit integers
	burnTable = `CREATE TABLE IF NOT EXISTS burn (
		sourceTxHash CHAR(64) PRIMARY KEY NOT NULL,
		fromAddr CHAR(40) NOT NULL,
		kind VARCHAR(10) NOT NULL,
		originalAmount VARCHAR(78) NOT NULL,
		convertedAmount VARCHAR(78) NOT NULL,
		blockNumber INTEGER NOT NULL,
		blockTimestamp INTEGER NOT NULL,
		CONSTRAINT chk_kind CHECK (kind IN ('native', 'token')),
		CONSTRAINT chk_originalAmount CHECK (originalAmount != '0'),
		CONSTRAINT chk_sourceTxHash CHECK (sourceTxHash != '` + strZeroBytes32 + `'),
		CONSTRAINT chk_fromAddr CHECK (fromAddr != '` + strZeroBytes20 + `')
	);
	CREATE INDEX IF NOT EXISTS idx_burn_from ON burn (fromAddr);`

	// nonce == -1 means unassigned, timestamps are unix milliseconds
	mintTable = `CREATE TABLE IF NOT EXISTS mint (
		burnTxHash CHAR(64) PRIMARY KEY NOT NULL REFERENCES burn (sourceTxHash),
		mintTxHash CHAR(64),
		toAddr CHAR(40) NOT NULL,
		amount VARCHAR(78) NOT NULL,
		status VARCHAR(10) NOT NULL,
		retryCount INTEGER NOT NULL,
		nonce INTEGER NOT NULL,
		gasPrice VARCHAR(78),
		lastError TEXT NOT NULL,
		superseded TEXT NOT NULL,
		createdAt INTEGER NOT NULL,
		updatedAt INTEGER NOT NULL,
		CONSTRAINT chk_status CHECK (status IN ('queued', 'pending', 'completed', 'failed')),
		CONSTRAINT chk_amount CHECK (amount != '0'),
		CONSTRAINT chk_retryCount CHECK (retryCount >= 0),
		CONSTRAINT chk_burnTxHash CHECK (burnTxHash != '` + strZeroBytes32 + `'),
		CONSTRAINT chk_mintTxHash CHECK (mintTxHash IS NULL OR mintTxHash != '` + strZeroBytes32 + `'),
		CONSTRAINT chk_pending CHECK (status != 'pending' OR (mintTxHash IS NOT NULL AND nonce >= 0))
	);
	CREATE INDEX IF NOT EXISTS idx_mint_status ON mint (status);
	CREATE INDEX IF NOT EXISTS idx_mint_to ON mint (toAddr);`

	// snapshot of the dispatcher queue, rebuilt from mint on recovery
	queueTable = `CREATE TABLE IF NOT EXISTS queue (
		burnTxHash CHAR(64) PRIMARY KEY NOT NULL,
		toAddr CHAR(40) NOT NULL,
		amount VARCHAR(78) NOT NULL,
		priority INTEGER NOT NULL,
		enqueuedAt INTEGER NOT NULL,
		lastError TEXT NOT NULL
	);`

	burnColumns = ` sourceTxHash, fromAddr, kind, originalAmount, convertedAmount, blockNumber, blockTimestamp `
	mintColumns = ` burnTxHash, mintTxHash, toAddr, amount, status, retryCount, nonce, gasPrice, lastError, superseded, createdAt, updatedAt `
)
