// This is a http type of reporter.
// It reads the ledgers and publishes them on the http routes.

package reporter

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/TEENet-io/burnmint-relayer/state"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
)

const (
	ROUTE_HELLO   = "/hello"
	ROUTE_BURNS   = "/burns"
	ROUTE_MINTS   = "/mints"
	ROUTE_STATUS  = "/status"
	ROUTE_METRICS = "/metrics"

	shutdownTimeout = 5 * time.Second
)

// Ledger is the read side of *state.StateDB.
type Ledger interface {
	GetCheckpoint() (uint64, bool, error)
	ListBurnEvents(filter state.BurnFilter) ([]*state.BurnEvent, error)
	ListMints(filter state.MintFilter) ([]*state.MintRecord, error)
	CountMintsByStatus() (map[state.MintStatus]int, error)
	LoadQueueSnapshot() ([]*state.QueueItem, error)
}

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	ledger Ledger
}

func NewHttpReporter(serverIP string, serverPort string, ledger Ledger) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		ledger:     ledger,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET(ROUTE_HELLO, Hello)
	router.GET(ROUTE_BURNS, h.Burns)
	router.GET(ROUTE_MINTS, h.Mints)
	router.GET(ROUTE_STATUS, h.Status)
	router.GET(ROUTE_METRICS, gin.WrapH(promhttp.Handler()))

	return router
}

// Run serves until ctx is done.
func (h *HttpReporter) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              h.serverIP + ":" + h.serverPort,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("address", srv.Addr).Info("http reporter listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "world",
	})
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// Burns lists recorded burns, newest first, optionally of one sender.
func (h *HttpReporter) Burns(c *gin.Context) {
	var q BurnQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter := state.BurnFilter{Limit: limitOrDefault(q.Limit)}
	if q.Address != "" {
		addr := ethcommon.HexToAddress(q.Address)
		filter.From = &addr
	}

	events, err := h.ledger.ListBurnEvents(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data := make([]*BurnJSON, 0, len(events))
	for _, ev := range events {
		data = append(data, toBurnJSON(ev))
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// Mints lists mint records, most recently updated first, optionally of one
// recipient and one status.
func (h *HttpReporter) Mints(c *gin.Context) {
	var q MintQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter := state.MintFilter{Limit: limitOrDefault(q.Limit)}
	if q.Address != "" {
		addr := ethcommon.HexToAddress(q.Address)
		filter.To = &addr
	}
	if q.Status != "" {
		filter.Statuses = []state.MintStatus{state.MintStatus(q.Status)}
	}

	recs, err := h.ledger.ListMints(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data := make([]*MintJSON, 0, len(recs))
	for _, rec := range recs {
		data = append(data, toMintJSON(rec))
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (h *HttpReporter) Status(c *gin.Context) {
	checkpoint, ok, err := h.ledger.GetCheckpoint()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	counts, err := h.ledger.CountMintsByStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	queue, err := h.ledger.LoadQueueSnapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := &StatusJSON{
		Mints:       map[string]int{},
		QueueLength: len(queue),
	}
	if ok {
		status.LastProcessedBlock = &checkpoint
	}
	for s, n := range counts {
		status.Mints[string(s)] = n
	}
	c.JSON(http.StatusOK, gin.H{"data": status})
}
