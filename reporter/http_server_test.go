package reporter

import (
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/TEENet-io/burnmint-relayer/metrics"
	"github.com/TEENet-io/burnmint-relayer/state"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	st     *state.StateDB
	reader *HttpReader
}

func newTestEnv(t *testing.T) *testEnv {
	st, sqlDB := state.NewMemoryStateDB()
	srv := httptest.NewServer(NewHttpReporter("", "", st).SetupRouter())
	t.Cleanup(func() {
		srv.Close()
		st.Close()
		sqlDB.Close()
	})

	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	return &testEnv{st: st, reader: NewHttpReader(host, port)}
}

func (env *testEnv) burn(t *testing.T, amount int64) *state.BurnEvent {
	ev := state.RandBurnEvent(7, amount)
	_, err := env.st.AppendBurnEvents([]*state.BurnEvent{ev})
	require.NoError(t, err)
	return ev
}

func TestHello(t *testing.T) {
	env := newTestEnv(t)

	body, err := env.reader.GetHello()
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"world"}`, body)
}

func TestBurns(t *testing.T) {
	env := newTestEnv(t)
	ev := env.burn(t, 1_000_000_000_000_000_000)
	env.burn(t, 5)

	burns, err := env.reader.GetBurns("")
	require.NoError(t, err)
	assert.Len(t, burns, 2)

	burns, err = env.reader.GetBurns(ev.From.Hex())
	require.NoError(t, err)
	require.Len(t, burns, 1)
	assert.Equal(t, ev.SourceTxHash.String(), burns[0].SourceTxHash)
	assert.Equal(t, "native", burns[0].Kind)
	assert.Equal(t, "1000000000000000000", burns[0].ConvertedAmount)
	assert.Equal(t, "1", burns[0].ConvertedEther)
	assert.Equal(t, uint64(7), burns[0].BlockNumber)
}

func TestBadQuery(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{
		ROUTE_BURNS + "?address=0x123",
		ROUTE_BURNS + "?limit=0x10",
		ROUTE_MINTS + "?status=lost",
		ROUTE_MINTS + "?limit=5000",
	} {
		route, raw, _ := strings.Cut(q, "?")
		values, err := url.ParseQuery(raw)
		require.NoError(t, err)
		_, code, err := env.reader.get(route, values)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
}

func TestMints(t *testing.T) {
	env := newTestEnv(t)
	now := time.UnixMilli(1_700_000_000_000)

	queued := env.burn(t, 1)
	require.NoError(t, env.st.UpsertMint(state.NewMintRecord(queued, now)))

	pending := env.burn(t, 2)
	rec := state.NewMintRecord(pending, now)
	require.NoError(t, env.st.UpsertMint(rec))
	rec = rec.Clone()
	rec.Status = state.MintStatusPending
	rec.MintTxHash = state.RandBurnEvent(1, 1).SourceTxHash
	rec.Nonce = state.NonceOf(3)
	rec.GasPrice = big.NewInt(1_000_000_000)
	rec.UpdatedAt = now.Add(time.Second)
	require.NoError(t, env.st.UpsertMint(rec))

	mints, err := env.reader.GetMints("", "")
	require.NoError(t, err)
	require.Len(t, mints, 2)
	assert.Equal(t, pending.SourceTxHash.String(), mints[0].BurnTxHash)

	mints, err = env.reader.GetMints("", "pending")
	require.NoError(t, err)
	require.Len(t, mints, 1)
	assert.Equal(t, rec.MintTxHash.String(), mints[0].MintTxHash)
	require.NotNil(t, mints[0].Nonce)
	assert.Equal(t, uint64(3), *mints[0].Nonce)

	mints, err = env.reader.GetMints(queued.From.Hex(), "")
	require.NoError(t, err)
	require.Len(t, mints, 1)
	assert.Equal(t, "queued", mints[0].Status)
	assert.Empty(t, mints[0].MintTxHash)
	assert.Nil(t, mints[0].Nonce)

	mints, err = env.reader.GetMints("", "failed")
	require.NoError(t, err)
	assert.Empty(t, mints)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)

	status, err := env.reader.GetStatus()
	require.NoError(t, err)
	assert.Nil(t, status.LastProcessedBlock)

	ev := env.burn(t, 1)
	rec := state.NewMintRecord(ev, time.Now())
	require.NoError(t, env.st.UpsertMint(rec))
	require.NoError(t, env.st.SaveQueueSnapshot([]*state.QueueItem{state.NewQueueItem(rec, rec.CreatedAt)}))
	require.NoError(t, env.st.AdvanceCheckpoint(42))

	status, err = env.reader.GetStatus()
	require.NoError(t, err)
	require.NotNil(t, status.LastProcessedBlock)
	assert.Equal(t, uint64(42), *status.LastProcessedBlock)
	assert.Equal(t, 1, status.QueueLength)
	assert.Equal(t, map[string]int{"queued": 1, "pending": 0, "completed": 0, "failed": 0}, status.Mints)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	metrics.ScannedBlock.Set(42)

	body, code, err := env.reader.get(ROUTE_METRICS, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "burnmint_scanned_block 42")
}

func TestRouterWithRecorder(t *testing.T) {
	st, sqlDB := state.NewMemoryStateDB()
	defer sqlDB.Close()
	router := NewHttpReporter("", "", st).SetupRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, ROUTE_BURNS, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))
}
