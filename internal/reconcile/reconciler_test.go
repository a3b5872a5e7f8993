package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimswap/grimledger/internal/chain"
	"github.com/grimswap/grimledger/internal/chain/stub"
	"github.com/grimswap/grimledger/internal/domain"
	"github.com/grimswap/grimledger/internal/storage"
	"github.com/grimswap/grimledger/internal/storage/memory"
)

const (
	testPool      = "0x1111111111111111111111111111111111111111111111111111111111111111"
	testContract  = "0xPoolManager"
	testRouter    = "0x00000000000000000000000052af36Db2c3f1fD01247Eb32Ca2cDE4bE9d8aB14"
	testSubmitter = "0xAb5801a7D398351b8bE11C439e05C5b3259aeC9B"
)

// word renders a signed value as one 32-byte big-endian hex word.
func word(v int64) string {
	w := big.NewInt(v)
	if w.Sign() < 0 {
		w.Add(w, twoPow256)
	}
	return fmt.Sprintf("%064x", w)
}

// saltWord left-pads a short salt to one 32-byte hex word.
func saltWord(salt string) string {
	return strings.Repeat("0", wordHexLen-len(salt)) + salt
}

// modifyLog builds a well-formed liquidity-modification log.
func modifyLog(txHash string, block int64, logIndex int, tickLower, tickUpper, delta int64, salt string) chain.Log {
	return chain.Log{
		Address:     testContract,
		Topics:      []string{ModifyLiquidityTopic, testPool, testRouter},
		Data:        "0x" + word(tickLower) + word(tickUpper) + word(delta) + saltWord(salt),
		BlockNumber: block,
		TxHash:      txHash,
		LogIndex:    logIndex,
	}
}

func newTestReconciler(client chain.Client, positions *memory.PositionStore) *Reconciler {
	return New(client, positions, nil, nil, log.New(io.Discard, "", 0), Config{
		Contract:       testContract,
		LookbackBlocks: 1000,
		LookupWorkers:  4,
	})
}

// seedTx registers a transaction whose sender is the test submitter.
func seedTx(c *stub.Client, hash string, block int64) {
	c.Transactions[hash] = &chain.Transaction{
		Hash:        hash,
		From:        testSubmitter,
		To:          testContract,
		BlockNumber: block,
	}
}

func TestReconcile_FoldsDeltasPerKey(t *testing.T) {
	client := stub.NewClient()
	client.Height = 500
	client.Logs = []chain.Log{
		modifyLog("0xt1", 100, 0, -60, 60, 1000, "aa"),
		modifyLog("0xt2", 101, 0, -60, 60, 500, "aa"),
		modifyLog("0xt3", 102, 0, -60, 60, -1200, "aa"),
	}
	for _, h := range []string{"0xt1", "0xt2", "0xt3"} {
		seedTx(client, h, 100)
	}

	positions := memory.NewPositionStore()
	r := newTestReconciler(client, positions)

	res, err := r.Reconcile(context.Background(), testPool, testSubmitter, nil)
	require.NoError(t, err)
	require.False(t, res.Degraded)

	require.Len(t, res.Positions, 1)
	assert.Equal(t, int64(300), res.Positions[0].Liquidity.Int64())
	assert.Equal(t, domain.PositionSourceChain, res.Positions[0].Source)
	assert.Equal(t, int64(300), res.NetLiquidity.Int64())

	// A fourth event draining the key removes it entirely.
	client.Logs = append(client.Logs, modifyLog("0xt4", 103, 0, -60, 60, -300, "aa"))
	seedTx(client, "0xt4", 103)

	res, err = r.Reconcile(context.Background(), testPool, testSubmitter, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Positions)
	assert.Equal(t, int64(0), res.NetLiquidity.Int64())
}

func TestReconcile_Idempotent(t *testing.T) {
	client := stub.NewClient()
	client.Height = 500
	client.Logs = []chain.Log{
		modifyLog("0xt1", 100, 0, -60, 60, 1000, "aa"),
		modifyLog("0xt1", 100, 1, -120, 120, 700, "bb"),
		modifyLog("0xt2", 101, 0, -60, 60, -400, "aa"),
	}
	seedTx(client, "0xt1", 100)
	seedTx(client, "0xt2", 101)

	r := newTestReconciler(client, memory.NewPositionStore())

	first, err := r.Reconcile(context.Background(), testPool, testSubmitter, nil)
	require.NoError(t, err)

	// The fold recomputes full net state from the window; re-running after
	// an abandoned or completed scan never double-counts deltas.
	second, err := r.Reconcile(context.Background(), testPool, testSubmitter, nil)
	require.NoError(t, err)

	require.Equal(t, first.NetLiquidity, second.NetLiquidity)
	require.Len(t, second.Positions, len(first.Positions))
	for i := range first.Positions {
		assert.Equal(t, first.Positions[i].Key(), second.Positions[i].Key())
		assert.Equal(t, first.Positions[i].Liquidity, second.Positions[i].Liquidity)
	}
}

func TestReconcile_ScopedToQueriedPool(t *testing.T) {
	otherPool := "0x2222222222222222222222222222222222222222222222222222222222222222"

	foreign := modifyLog("0xother", 101, 0, -60, 60, 5000, "aa")
	foreign.Topics[1] = otherPool

	client := stub.NewClient()
	client.Height = 500
	client.Logs = []chain.Log{
		modifyLog("0xt1", 100, 0, -60, 60, 1000, "aa"),
		foreign,
	}
	seedTx(client, "0xt1", 100)
	seedTx(client, "0xother", 101)

	r := newTestReconciler(client, memory.NewPositionStore())

	// The log query is scoped by pool topic; another pool's event must not
	// fold into this pool's net state even when the submitter matches.
	res, err := r.Reconcile(context.Background(), testPool, testSubmitter, nil)
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, int64(1000), res.NetLiquidity.Int64())
}

func TestReconcile_FiltersBySubmitter(t *testing.T) {
	client := stub.NewClient()
	client.Height = 500
	client.Logs = []chain.Log{
		modifyLog("0xmine", 100, 0, -60, 60, 1000, "aa"),
		modifyLog("0xother", 101, 0, -60, 60, 9000, "aa"),
	}
	seedTx(client, "0xmine", 100)
	client.Transactions["0xother"] = &chain.Transaction{Hash: "0xother", From: "0xSomeoneElse", BlockNumber: 101}

	r := newTestReconciler(client, memory.NewPositionStore())

	// Submitter comparison is case-insensitive.
	res, err := r.Reconcile(context.Background(), testPool, "0xAB5801A7D398351B8BE11C439E05C5B3259AEC9B", nil)
	require.NoError(t, err)

	require.Len(t, res.Positions, 1)
	assert.Equal(t, int64(1000), res.Positions[0].Liquidity.Int64())
}

func TestReconcile_LookupFailureSkipsEvent(t *testing.T) {
	client := stub.NewClient()
	client.Height = 500
	client.Logs = []chain.Log{
		modifyLog("0xok", 100, 0, -60, 60, 1000, "aa"),
		modifyLog("0xbroken", 101, 0, -120, 120, 500, "bb"),
	}
	seedTx(client, "0xok", 100)
	client.GetTransactionErr["0xbroken"] = errors.New("lookup timeout")

	r := newTestReconciler(client, memory.NewPositionStore())

	// A failed per-event lookup is skipped without aborting the scan.
	res, err := r.Reconcile(context.Background(), testPool, testSubmitter, nil)
	require.NoError(t, err)

	require.Len(t, res.Positions, 1)
	assert.Equal(t, int64(1000), res.NetLiquidity.Int64())
}

func TestReconcile_SkipsMalformedLogs(t *testing.T) {
	client := stub.NewClient()
	client.Height = 500
	client.Logs = []chain.Log{
		modifyLog("0xok", 100, 0, -60, 60, 1000, "aa"),
		{
			Address:     testContract,
			Topics:      []string{ModifyLiquidityTopic, testPool, testRouter},
			Data:        "0xdeadbeef", // truncated payload
			BlockNumber: 101,
			TxHash:      "0xbad",
			LogIndex:    0,
		},
	}
	seedTx(client, "0xok", 100)
	seedTx(client, "0xbad", 101)

	r := newTestReconciler(client, memory.NewPositionStore())

	res, err := r.Reconcile(context.Background(), testPool, testSubmitter, nil)
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, int64(1000), res.NetLiquidity.Int64())
}

func TestReconcile_ChainSupersedesLocal(t *testing.T) {
	client := stub.NewClient()
	client.Height = 500
	client.Logs = []chain.Log{
		modifyLog("0xt1", 100, 0, -60, 60, 1000, "aa"),
	}
	seedTx(client, "0xt1", 100)

	positions := memory.NewPositionStore()
	r := newTestReconciler(client, positions)
	ctx := context.Background()

	// Optimistic local write for the same key, made right after the user
	// action, with a liquidity the feed later contradicts.
	sameKey := domain.PositionKey{TickLower: -60, TickUpper: 60, Salt: "0x" + saltWord("aa")}
	_, err := r.RecordLocalPosition(ctx, testPool, sameKey, big.NewInt(999), "", "0xlocal1")
	require.NoError(t, err)

	// Local write for a key the feed does not know yet.
	otherKey := domain.PositionKey{TickLower: -200, TickUpper: 200, Salt: "0x" + saltWord("cc")}
	_, err = r.RecordLocalPosition(ctx, testPool, otherKey, big.NewInt(50), "", "0xlocal2")
	require.NoError(t, err)

	res, err := r.Reconcile(ctx, testPool, testSubmitter, nil)
	require.NoError(t, err)

	require.Len(t, res.Positions, 2)
	bySource := map[string]*domain.LiquidityPosition{}
	for _, p := range res.Positions {
		bySource[p.Source] = p
	}
	// Chain-derived record wins for the shared key.
	require.NotNil(t, bySource[domain.PositionSourceChain])
	assert.Equal(t, int64(1000), bySource[domain.PositionSourceChain].Liquidity.Int64())
	// The unconfirmed local key is retained.
	require.NotNil(t, bySource[domain.PositionSourceLocal])
	assert.Equal(t, otherKey, bySource[domain.PositionSourceLocal].Key())
}

func TestReconcile_DegradedFallsBackToLocal(t *testing.T) {
	client := stub.NewClient()
	client.Height = 500
	client.Logs = []chain.Log{
		modifyLog("0xt1", 100, 0, -60, 60, 1000, "aa"),
	}
	seedTx(client, "0xt1", 100)

	positions := memory.NewPositionStore()
	r := newTestReconciler(client, positions)
	ctx := context.Background()

	// A successful run caches a chain-derived position.
	_, err := r.Reconcile(ctx, testPool, testSubmitter, nil)
	require.NoError(t, err)

	key := domain.PositionKey{TickLower: -200, TickUpper: 200, Salt: "0xcc"}
	_, err = r.RecordLocalPosition(ctx, testPool, key, big.NewInt(50), "", "0xlocal")
	require.NoError(t, err)

	// Remote feed goes away.
	client.BlockNumberErr = errors.New("connection refused")

	res, err := r.Reconcile(ctx, testPool, testSubmitter, nil)
	require.ErrorIs(t, err, ErrDegraded)
	require.NotNil(t, res)
	require.True(t, res.Degraded)

	// Degraded result carries locally recorded positions only.
	require.Len(t, res.Positions, 1)
	assert.Equal(t, domain.PositionSourceLocal, res.Positions[0].Source)

	// The cached chain-derived position survives the outage untouched.
	chainSet, err := positions.ListByPoolAndSource(ctx, testPool, domain.PositionSourceChain)
	require.NoError(t, err)
	require.Len(t, chainSet, 1)
	assert.Equal(t, int64(1000), chainSet[0].Liquidity.Int64())
}

func TestReconcile_ScanWindowClampedToGenesis(t *testing.T) {
	client := stub.NewClient()
	client.Height = 100 // chain shorter than the lookback
	client.Logs = []chain.Log{
		modifyLog("0xt1", 5, 0, -60, 60, 1000, "aa"),
	}
	seedTx(client, "0xt1", 5)

	r := newTestReconciler(client, memory.NewPositionStore())

	res, err := r.Reconcile(context.Background(), testPool, testSubmitter, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.FromBlock)
	assert.Equal(t, int64(100), res.ToBlock)
	require.Len(t, res.Positions, 1)
}

func TestLocalPositionLifecycle(t *testing.T) {
	positions := memory.NewPositionStore()
	r := newTestReconciler(stub.NewClient(), positions)
	ctx := context.Background()

	key := domain.PositionKey{TickLower: -60, TickUpper: 60, Salt: "0xaa"}
	p, err := r.RecordLocalPosition(ctx, testPool, key, big.NewInt(100), "poolkey", "0xtx")
	require.NoError(t, err)
	require.Equal(t, int64(100), p.Liquidity.Int64())

	// Recording the same key again accumulates.
	p, err = r.RecordLocalPosition(ctx, testPool, key, big.NewInt(25), "poolkey", "0xtx2")
	require.NoError(t, err)
	require.Equal(t, int64(125), p.Liquidity.Int64())

	require.NoError(t, r.UpdateLocalLiquidity(ctx, p.ID, big.NewInt(80)))
	got, err := positions.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(80), got.Liquidity.Int64())

	// Dropping to zero removes the record.
	require.NoError(t, r.UpdateLocalLiquidity(ctx, p.ID, big.NewInt(0)))
	_, err = positions.GetByID(ctx, p.ID)
	require.Error(t, err)

	// Removing an absent record is a benign no-op.
	require.NoError(t, r.RemoveLocalPosition(ctx, p.ID))
}

func TestLocalMutatorsRejectChainPositions(t *testing.T) {
	positions := memory.NewPositionStore()
	r := newTestReconciler(stub.NewClient(), positions)
	ctx := context.Background()

	chainPos := &domain.LiquidityPosition{
		ID:        "chain-1",
		PoolID:    testPool,
		TickLower: -60,
		TickUpper: 60,
		Salt:      "0xaa",
		Liquidity: big.NewInt(500),
		Source:    domain.PositionSourceChain,
	}
	require.NoError(t, positions.Insert(ctx, chainPos))

	// Only the scan may rewrite the chain-derived view.
	err := r.UpdateLocalLiquidity(ctx, chainPos.ID, big.NewInt(1))
	require.ErrorIs(t, err, storage.ErrInvalidInput)
	err = r.RemoveLocalPosition(ctx, chainPos.ID)
	require.ErrorIs(t, err, storage.ErrInvalidInput)

	// A zero amount routes through removal and is rejected the same way.
	err = r.UpdateLocalLiquidity(ctx, chainPos.ID, big.NewInt(0))
	require.ErrorIs(t, err, storage.ErrInvalidInput)

	got, err := positions.GetByID(ctx, chainPos.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Liquidity.Int64())
}
