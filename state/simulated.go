package state

import (
	"database/sql"
	"math/big"

	"github.com/TEENet-io/burnmint-relayer/common"
	_ "github.com/mattn/go-sqlite3"
	logger "github.com/sirupsen/logrus"
)

// RandBurnEvent returns a native burn of amount converted at 1:1.
func RandBurnEvent(blockNumber uint64, amount int64) *BurnEvent {
	return &BurnEvent{
		SourceTxHash:    common.RandHash(),
		From:            common.RandEthAddress(),
		Kind:            BurnKindNative,
		OriginalAmount:  big.NewInt(amount),
		ConvertedAmount: big.NewInt(amount),
		BlockNumber:     blockNumber,
		BlockTimestamp:  1_700_000_000 + blockNumber*12,
	}
}

// NewMemoryDB opens an in-memory sqlite database. Every connection of a
// :memory: pool would see its own database, so the pool is capped at one.
func NewMemoryDB() *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		logger.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	return db
}

// NewMemoryStateDB returns a StateDB over a fresh in-memory database.
func NewMemoryStateDB() (*StateDB, *sql.DB) {
	sqlDB := NewMemoryDB()
	st, err := NewStateDB(sqlDB)
	if err != nil {
		logger.Fatal(err)
	}
	return st, sqlDB
}
