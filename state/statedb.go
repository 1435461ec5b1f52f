package state

import (
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/TEENet-io/burnmint-relayer/common"
	"github.com/TEENet-io/burnmint-relayer/database"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	logger "github.com/sirupsen/logrus"
)

var KeyLastProcessedBlock = crypto.Keccak256Hash([]byte("KeyLastProcessedBlock"))

// StateDB is the durable ledger of the relayer. It owns the scan checkpoint,
// the burn ledger, the mint ledger and the queue snapshot. Writes are
// serialized so that read-check-write sequences are atomic.
type StateDB struct {
	mu        sync.Mutex
	stmtCache *database.StmtCache
}

func NewStateDB(db *sql.DB) (*StateDB, error) {
	// 1. Burn rows are referenced by mint rows.
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, err
	}

	// 2. Create the tables.
	if _, err := db.Exec(kvTable + burnTable + mintTable + queueTable); err != nil {
		return nil, err
	}

	// 3. A stmt cache + db.
	return &StateDB{
		stmtCache: database.NewStmtCache(db),
	}, nil
}

func (st *StateDB) Close() {
	st.stmtCache.Clear()
}

func (st *StateDB) GetKeyedValue(key ethcommon.Hash) (ethcommon.Hash, bool, error) {
	query := `SELECT value FROM kv WHERE key = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return ethcommon.Hash{}, false, err
	}

	var value string
	if err := stmt.QueryRow(common.HashToPureHexStr(key)).Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return ethcommon.Hash{}, false, nil
		}
		return ethcommon.Hash{}, false, err
	}

	return common.PureHexStrToHash(value), true, nil
}

func (st *StateDB) SetKeyedValue(key, value ethcommon.Hash) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	return st.setKeyedValue(nil, key, value)
}

func (st *StateDB) setKeyedValue(tx *sql.Tx, key, value ethcommon.Hash) error {
	query := `INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`
	stmt, err := st.prepare(tx, query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(common.HashToPureHexStr(key), common.HashToPureHexStr(value))
	return err
}

// GetCheckpoint returns the last source block whose burns are all recorded.
// ok is false before the first committed scan.
func (st *StateDB) GetCheckpoint() (block uint64, ok bool, err error) {
	v, ok, err := st.GetKeyedValue(KeyLastProcessedBlock)
	if err != nil || !ok {
		return 0, ok, err
	}
	return v.Big().Uint64(), true, nil
}

// AdvanceCheckpoint moves the checkpoint forward. A value lower than or equal
// to the current one is ignored.
func (st *StateDB) AdvanceCheckpoint(block uint64) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	tx, err := st.stmtCache.DB().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := st.advanceCheckpoint(tx, block); err != nil {
		return err
	}
	return tx.Commit()
}

func (st *StateDB) advanceCheckpoint(tx *sql.Tx, block uint64) error {
	stmt, err := st.prepare(tx, `SELECT value FROM kv WHERE key = ?`)
	if err != nil {
		return err
	}

	var value string
	err = stmt.QueryRow(common.HashToPureHexStr(KeyLastProcessedBlock)).Scan(&value)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if err == nil && common.PureHexStrToHash(value).Big().Uint64() >= block {
		return nil
	}

	return st.setKeyedValue(tx, KeyLastProcessedBlock, ethcommon.BigToHash(new(big.Int).SetUint64(block)))
}

// CommitScan records the burns found in a scanned range, creates the queued
// mint record of every burn with a positive converted amount and advances the
// checkpoint to toBlock, all in one transaction. Burns already in the ledger
// are skipped. It returns the burns that were newly recorded.
func (st *StateDB) CommitScan(events []*BurnEvent, toBlock uint64, now time.Time) ([]*BurnEvent, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	tx, err := st.stmtCache.DB().Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inserted, err := st.insertBurns(tx, events)
	if err != nil {
		return nil, err
	}

	for _, ev := range inserted {
		if ev.ConvertedAmount.Sign() == 0 {
			logger.WithFields(logger.Fields{
				"sourceTxHash":   ev.SourceTxHash.String(),
				"originalAmount": ev.OriginalAmount,
			}).Info("burn converts to zero, no mint created")
			continue
		}
		if err := st.insertMint(tx, NewMintRecord(ev, now)); err != nil {
			return nil, err
		}
	}

	if err := st.advanceCheckpoint(tx, toBlock); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

// AppendBurnEvents inserts burns that are not yet in the ledger and returns
// the ones that were new.
func (st *StateDB) AppendBurnEvents(events []*BurnEvent) ([]*BurnEvent, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	tx, err := st.stmtCache.DB().Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inserted, err := st.insertBurns(tx, events)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

func (st *StateDB) insertBurns(tx *sql.Tx, events []*BurnEvent) ([]*BurnEvent, error) {
	query := `INSERT OR IGNORE INTO burn (` + burnColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	stmt, err := st.prepare(tx, query)
	if err != nil {
		return nil, err
	}

	inserted := []*BurnEvent{}
	for _, ev := range events {
		s, err := (&sqlBurn{}).encode(ev)
		if err != nil {
			return nil, err
		}

		res, err := stmt.Exec(
			s.SourceTxHash,
			s.From,
			s.Kind,
			s.OriginalAmount,
			s.ConvertedAmount,
			s.BlockNumber,
			s.BlockTimestamp,
		)
		if err != nil {
			return nil, err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			inserted = append(inserted, ev)
		}
	}

	return inserted, nil
}

func (st *StateDB) HasBurnEvent(sourceTxHash ethcommon.Hash) (bool, error) {
	_, ok, err := st.GetBurnEvent(sourceTxHash)
	return ok, err
}

func (st *StateDB) GetBurnEvent(sourceTxHash ethcommon.Hash) (*BurnEvent, bool, error) {
	query := `SELECT ` + burnColumns + ` FROM burn WHERE sourceTxHash = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	s := &sqlBurn{}
	if err := s.scanFrom(stmt.QueryRow(common.HashToPureHexStr(sourceTxHash))); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	ev, err := s.decode()
	if err != nil {
		return nil, false, err
	}
	return ev, true, nil
}

// ListBurnEvents returns burns newest block first.
func (st *StateDB) ListBurnEvents(filter BurnFilter) ([]*BurnEvent, error) {
	query := `SELECT ` + burnColumns + ` FROM burn`
	args := []any{}
	if filter.From != nil {
		query += ` WHERE fromAddr = ?`
		args = append(args, common.AddressToPureHexStr(*filter.From))
	}
	query += ` ORDER BY blockNumber DESC, sourceTxHash ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := st.stmtCache.DB().Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*BurnEvent{}
	for rows.Next() {
		s := &sqlBurn{}
		if err := s.scanFrom(rows); err != nil {
			return nil, err
		}
		ev, err := s.decode()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

// UpsertMint writes a mint record. A new record must be queued and its burn
// must be in the ledger. An existing record may only move along an allowed
// status transition.
func (st *StateDB) UpsertMint(rec *MintRecord) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	tx, err := st.stmtCache.DB().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := st.prepare(tx, `SELECT status FROM mint WHERE burnTxHash = ?`)
	if err != nil {
		return err
	}

	var current string
	err = stmt.QueryRow(common.HashToPureHexStr(rec.BurnTxHash)).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		if rec.Status != MintStatusQueued {
			return ErrMintNotQueued
		}
		if err := st.insertMint(tx, rec); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		from := MintStatus(current)
		if !from.CanTransitionTo(rec.Status) {
			return ErrMintTransition(from, rec.Status)
		}
		if err := st.updateMint(tx, rec); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (st *StateDB) insertMint(tx *sql.Tx, rec *MintRecord) error {
	s, err := (&sqlMint{}).encode(rec)
	if err != nil {
		return err
	}

	query := `INSERT INTO mint (` + mintColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := st.prepare(tx, query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		s.BurnTxHash,
		s.MintTxHash,
		s.To,
		s.Amount,
		s.Status,
		s.RetryCount,
		s.Nonce,
		s.GasPrice,
		s.LastError,
		s.Superseded,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

func (st *StateDB) updateMint(tx *sql.Tx, rec *MintRecord) error {
	s, err := (&sqlMint{}).encode(rec)
	if err != nil {
		return err
	}

	query := `UPDATE mint SET mintTxHash = ?, status = ?, retryCount = ?, nonce = ?,
		gasPrice = ?, lastError = ?, superseded = ?, updatedAt = ? WHERE burnTxHash = ?`
	stmt, err := st.prepare(tx, query)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		s.MintTxHash,
		s.Status,
		s.RetryCount,
		s.Nonce,
		s.GasPrice,
		s.LastError,
		s.Superseded,
		s.UpdatedAt,
		s.BurnTxHash,
	)
	return err
}

func (st *StateDB) GetMint(burnTxHash ethcommon.Hash) (*MintRecord, bool, error) {
	query := `SELECT ` + mintColumns + ` FROM mint WHERE burnTxHash = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	s := &sqlMint{}
	if err := s.scanFrom(stmt.QueryRow(common.HashToPureHexStr(burnTxHash))); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	rec, err := s.decode()
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// ListMints returns mint records most recently updated first.
func (st *StateDB) ListMints(filter MintFilter) ([]*MintRecord, error) {
	conds := []string{}
	args := []any{}
	if filter.To != nil {
		conds = append(conds, `toAddr = ?`)
		args = append(args, common.AddressToPureHexStr(*filter.To))
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			marks = append(marks, "?")
			args = append(args, string(status))
		}
		conds = append(conds, `status IN (`+strings.Join(marks, ", ")+`)`)
	}

	query := `SELECT ` + mintColumns + ` FROM mint`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY updatedAt DESC, burnTxHash ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	return st.queryMints(query, args...)
}

// GetMintsByStatus returns the records in any of the given statuses, oldest
// first.
func (st *StateDB) GetMintsByStatus(statuses ...MintStatus) ([]*MintRecord, error) {
	if len(statuses) == 0 {
		return []*MintRecord{}, nil
	}

	marks := make([]string, 0, len(statuses))
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		marks = append(marks, "?")
		args = append(args, string(status))
	}

	query := `SELECT ` + mintColumns + ` FROM mint WHERE status IN (` + strings.Join(marks, ", ") + `)
		ORDER BY createdAt ASC, burnTxHash ASC`
	return st.queryMints(query, args...)
}

func (st *StateDB) queryMints(query string, args ...any) ([]*MintRecord, error) {
	rows, err := st.stmtCache.DB().Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []*MintRecord{}
	for rows.Next() {
		s := &sqlMint{}
		if err := s.scanFrom(rows); err != nil {
			return nil, err
		}
		rec, err := s.decode()
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

func (st *StateDB) CountMintsByStatus() (map[MintStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM mint GROUP BY status`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[MintStatus]int{
		MintStatusQueued:    0,
		MintStatusPending:   0,
		MintStatusCompleted: 0,
		MintStatusFailed:    0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[MintStatus(status)] = n
	}

	return counts, rows.Err()
}

// SaveQueueSnapshot replaces the stored queue with items.
func (st *StateDB) SaveQueueSnapshot(items []*QueueItem) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	tx, err := st.stmtCache.DB().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM queue`); err != nil {
		return err
	}

	query := `INSERT INTO queue (burnTxHash, toAddr, amount, priority, enqueuedAt, lastError) VALUES (?, ?, ?, ?, ?, ?)`
	stmt, err := st.prepare(tx, query)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, err := stmt.Exec(
			common.HashToPureHexStr(item.BurnTxHash),
			common.AddressToPureHexStr(item.To),
			item.Amount.String(),
			item.Priority,
			item.EnqueuedAt.UnixMilli(),
			item.LastError,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadQueueSnapshot returns the stored queue ordered by priority and then by
// enqueue time.
func (st *StateDB) LoadQueueSnapshot() ([]*QueueItem, error) {
	query := `SELECT burnTxHash, toAddr, amount, priority, enqueuedAt, lastError FROM queue
		ORDER BY priority ASC, enqueuedAt ASC`
	rows, err := st.stmtCache.DB().Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*QueueItem{}
	for rows.Next() {
		var (
			hash, to, amount, lastError string
			priority                    int
			enqueuedAt                  int64
		)
		if err := rows.Scan(&hash, &to, &amount, &priority, &enqueuedAt, &lastError); err != nil {
			return nil, err
		}
		v, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, ErrStoredAmountInvalid(amount)
		}
		items = append(items, &QueueItem{
			BurnTxHash: common.PureHexStrToHash(hash),
			To:         common.PureHexStrToAddress(to),
			Amount:     v,
			Priority:   priority,
			EnqueuedAt: time.UnixMilli(enqueuedAt),
			LastError:  lastError,
		})
	}

	return items, rows.Err()
}

func (st *StateDB) prepare(tx *sql.Tx, query string) (*sql.Stmt, error) {
	if tx == nil {
		return st.stmtCache.Prepare(query)
	}
	return st.stmtCache.TxPrepare(tx, query)
}
