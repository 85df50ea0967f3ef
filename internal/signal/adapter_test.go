package signal

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/ledger"
	"autotrader/internal/marketdata"
	"autotrader/internal/metrics"
	"autotrader/internal/model"
	"autotrader/internal/orders"
	"autotrader/internal/store/memory"
	"autotrader/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// capturingPlacer records placed orders instead of executing them.
type capturingPlacer struct {
	placed []orders.PlaceRequest
}

func (p *capturingPlacer) PlaceOrder(ctx context.Context, req orders.PlaceRequest) (model.Order, error) {
	p.placed = append(p.placed, req)
	return model.Order{ID: "01TESTORDER", Status: types.OrderStatusFilled}, nil
}

func defaultConfig() Config {
	return Config{
		MinConfidence:       dec("0.7"),
		MaxPositionFraction: dec("0.1"),
		StopLossPct:         dec("0.02"),
		TakeProfitPct:       dec("0.05"),
	}
}

type harness struct {
	adapter *Adapter
	placer  *capturingPlacer
	ledger  *ledger.Ledger
	board   *marketdata.Board
}

func newHarness(t *testing.T, initialCapital string) *harness {
	t.Helper()
	board := marketdata.NewBoard()
	l := ledger.New(memory.NewStore(dec(initialCapital)), board)
	placer := &capturingPlacer{}
	m := metrics.New(prometheus.NewRegistry())
	return &harness{
		adapter: NewAdapter(placer, l, board, defaultConfig(), m),
		placer:  placer,
		ledger:  l,
		board:   board,
	}
}

func (h *harness) seedPosition(t *testing.T, symbol, qty, avg string) {
	t.Helper()
	err := h.ledger.Exclusive(context.Background(), func(tx ledger.Tx) error {
		return tx.SavePosition(context.Background(), model.Position{
			Symbol:       symbol,
			Quantity:     dec(qty),
			AveragePrice: dec(avg),
			CurrentPrice: dec(avg),
			UpdatedAt:    time.Now().UTC(),
		})
	})
	require.NoError(t, err)
}

func buySignal(symbol, confidence, price string) model.Signal {
	p := dec(price)
	return model.Signal{
		Symbol:       symbol,
		Action:       types.SignalActionBuy,
		Confidence:   dec(confidence),
		CurrentPrice: &p,
		Timestamp:    time.Now().UTC(),
	}
}

func TestHandleSignalHoldIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "100000")
	sig := model.Signal{Symbol: "AAPL", Action: types.SignalActionHold, Confidence: dec("0.99")}
	require.NoError(t, h.adapter.HandleSignal(context.Background(), sig))
	assert.Empty(t, h.placer.placed)
}

func TestHandleSignalBelowConfidenceSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "100000")
	require.NoError(t, h.adapter.HandleSignal(context.Background(), buySignal("AAPL", "0.69", "100")))
	assert.Empty(t, h.placer.placed)
}

func TestHandleSignalUnknownActionFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "100000")
	sig := model.Signal{Symbol: "AAPL", Action: "SHORT", Confidence: dec("0.9")}
	assert.Error(t, h.adapter.HandleSignal(context.Background(), sig))
}

func TestHandleSignalBuySizing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "100000")
	require.NoError(t, h.adapter.HandleSignal(context.Background(), buySignal("AAPL", "0.8", "100")))

	require.Len(t, h.placer.placed, 1)
	req := h.placer.placed[0]
	assert.Equal(t, "AAPL", req.Symbol)
	assert.Equal(t, types.OrderSideBuy, req.Side)
	assert.Equal(t, types.OrderTypeMarket, req.Type)
	// 100000 * 0.1 * 0.8 / 100 = 80.
	assert.True(t, req.Quantity.Equal(dec("80")), "qty %s", req.Quantity)
}

func TestHandleSignalSizingRoundsDown(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "100000")
	require.NoError(t, h.adapter.HandleSignal(context.Background(), buySignal("AAPL", "0.75", "301")))

	require.Len(t, h.placer.placed, 1)
	// 100000 * 0.1 * 0.75 / 301 = 24.916... -> 24.91
	assert.True(t, h.placer.placed[0].Quantity.Equal(dec("24.91")), "qty %s", h.placer.placed[0].Quantity)
}

func TestHandleSignalSellClampsToPosition(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "100000")
	h.seedPosition(t, "AAPL", "10", "100")

	p := dec("100")
	sig := model.Signal{
		Symbol:       "AAPL",
		Action:       types.SignalActionSell,
		Confidence:   dec("0.9"),
		CurrentPrice: &p,
		Timestamp:    time.Now().UTC(),
	}
	require.NoError(t, h.adapter.HandleSignal(context.Background(), sig))

	require.Len(t, h.placer.placed, 1)
	assert.Equal(t, types.OrderSideSell, h.placer.placed[0].Side)
	assert.True(t, h.placer.placed[0].Quantity.Equal(dec("10")), "qty %s", h.placer.placed[0].Quantity)
}

func TestHandleSignalSellWithoutPositionSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "100000")
	p := dec("100")
	sig := model.Signal{
		Symbol:       "AAPL",
		Action:       types.SignalActionSell,
		Confidence:   dec("0.9"),
		CurrentPrice: &p,
	}
	require.NoError(t, h.adapter.HandleSignal(context.Background(), sig))
	assert.Empty(t, h.placer.placed)
}

func TestHandleSignalUsesBoardWhenNoPrice(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "100000")
	h.board.Set(model.Quote{Symbol: "AAPL", Price: dec("200"), At: time.Now().UTC()})

	sig := model.Signal{Symbol: "AAPL", Action: types.SignalActionBuy, Confidence: dec("0.8")}
	require.NoError(t, h.adapter.HandleSignal(context.Background(), sig))

	require.Len(t, h.placer.placed, 1)
	// 100000 * 0.1 * 0.8 / 200 = 40.
	assert.True(t, h.placer.placed[0].Quantity.Equal(dec("40")), "qty %s", h.placer.placed[0].Quantity)
}

func TestStopLossTriggersLiquidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "100000")
	require.NoError(t, h.adapter.HandleSignal(context.Background(), buySignal("AAPL", "0.8", "100")))
	h.placer.placed = nil
	h.seedPosition(t, "AAPL", "80", "100")

	// Above the default 2% stop: nothing happens.
	h.adapter.OnQuote(context.Background(), model.Quote{Symbol: "AAPL", Price: dec("98.5"), At: time.Now().UTC()})
	assert.Empty(t, h.placer.placed)

	// At the stop level the position is liquidated in full.
	h.adapter.OnQuote(context.Background(), model.Quote{Symbol: "AAPL", Price: dec("98"), At: time.Now().UTC()})
	require.Len(t, h.placer.placed, 1)
	assert.Equal(t, types.OrderSideSell, h.placer.placed[0].Side)
	assert.True(t, h.placer.placed[0].Quantity.Equal(dec("80")))

	// Levels disarm after the exit.
	h.placer.placed = nil
	h.adapter.OnQuote(context.Background(), model.Quote{Symbol: "AAPL", Price: dec("90"), At: time.Now().UTC()})
	assert.Empty(t, h.placer.placed)
}

func TestTakeProfitTriggersLiquidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "100000")
	require.NoError(t, h.adapter.HandleSignal(context.Background(), buySignal("AAPL", "0.8", "100")))
	h.placer.placed = nil
	h.seedPosition(t, "AAPL", "80", "100")

	h.adapter.OnQuote(context.Background(), model.Quote{Symbol: "AAPL", Price: dec("105"), At: time.Now().UTC()})
	require.Len(t, h.placer.placed, 1)
	assert.Equal(t, types.OrderSideSell, h.placer.placed[0].Side)
}

func TestExplicitExitLevelsOverrideDefaults(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "100000")
	sig := buySignal("AAPL", "0.8", "100")
	stop := dec("95")
	take := dec("120")
	sig.StopLoss = &stop
	sig.TakeProfit = &take
	require.NoError(t, h.adapter.HandleSignal(context.Background(), sig))
	h.placer.placed = nil
	h.seedPosition(t, "AAPL", "80", "100")

	// Default stop would have fired at 98; the explicit one has not.
	h.adapter.OnQuote(context.Background(), model.Quote{Symbol: "AAPL", Price: dec("96"), At: time.Now().UTC()})
	assert.Empty(t, h.placer.placed)

	h.adapter.OnQuote(context.Background(), model.Quote{Symbol: "AAPL", Price: dec("95"), At: time.Now().UTC()})
	require.Len(t, h.placer.placed, 1)
}

func TestOnQuoteWithoutArmedLevelsIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "100000")
	h.seedPosition(t, "AAPL", "10", "100")
	h.adapter.OnQuote(context.Background(), model.Quote{Symbol: "AAPL", Price: dec("50"), At: time.Now().UTC()})
	assert.Empty(t, h.placer.placed)
}
