package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"grid-trader-go/internal/config"
	"grid-trader-go/internal/grid"
	"grid-trader-go/internal/guard"
	"grid-trader-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockRestClient is a mock implementation of the RestClientInterface.
type MockRestClient struct {
	mock.Mock
}

func (m *MockRestClient) GetServerTime() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRestClient) GetTickerPrice(symbol string) (decimal.Decimal, error) {
	args := m.Called(symbol)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRestClient) GetOpenOrders(symbol string) ([]models.Order, error) {
	args := m.Called(symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockRestClient) GetAllOrders(symbol string, startTime int64, limit int) ([]models.Order, error) {
	args := m.Called(symbol, startTime, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockRestClient) GetAccountBalances() ([]models.Balance, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Balance), args.Error(1)
}

func (m *MockRestClient) GetKlines(symbol, interval string, limit int) ([]models.Kline, error) {
	args := m.Called(symbol, interval, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Kline), args.Error(1)
}

func (m *MockRestClient) SubmitLimitBuy(symbol string, qty, price decimal.Decimal) (int64, error) {
	args := m.Called(symbol, qty, price)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRestClient) SubmitLimitSell(symbol string, qty, price decimal.Decimal) (int64, error) {
	args := m.Called(symbol, qty, price)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRestClient) CancelOrder(symbol string, orderID int64) error {
	args := m.Called(symbol, orderID)
	return args.Error(0)
}

func testCfg() *config.Config {
	return &config.Config{
		Grid: config.Grid{
			BaseAsset:       "BNB",
			QuoteAsset:      "USDT",
			LowerLimit:      "100",
			UpperLimit:      "200",
			GridCount:       10,
			Investment:      "1000",
			StartPrice:      "150",
			StopProfitPrice: "180",
			PriceResolution: 2,
			QtyResolution:   4,
			MinNotional:     "10.0",
		},
		Trading: config.Trading{TickInterval: 1},
	}
}

func testContext(client *MockRestClient) *StrategyContext {
	return &StrategyContext{
		Logger: zap.NewNop(),
		Cfg:    testCfg(),
		Client: client,
		Guard:  guard.NewTradingGuard(1000, 12*time.Hour, zap.NewNop()),
	}
}

func TestGridStrategyFullCycle(t *testing.T) {
	client := new(MockRestClient)
	sctx := testContext(client)

	client.On("GetOpenOrders", "BNBUSDT").Return([]models.Order{}, nil)
	client.On("GetTickerPrice", "BNBUSDT").Return(decimal.NewFromInt(150), nil)
	client.On("GetAccountBalances").Return([]models.Balance{
		{Asset: "USDT", Free: decimal.NewFromInt(1000), Locked: decimal.Zero},
		{Asset: "BNB", Free: decimal.NewFromInt(10), Locked: decimal.Zero},
	}, nil)
	client.On("GetAllOrders", "BNBUSDT", mock.Anything, mock.Anything).Return([]models.Order{}, nil)
	client.On("SubmitLimitBuy", "BNBUSDT", mock.Anything, mock.Anything).Return(int64(1), nil)
	client.On("SubmitLimitSell", "BNBUSDT", mock.Anything, mock.Anything).Return(int64(2), nil)

	s := NewGridStrategy()
	require.NoError(t, s.Initialize(sctx))
	require.NoError(t, s.Tick(sctx))

	// Fresh ladder at 150: buys on grids 0..5, sells on 6..8 (8 is the
	// liquidation band).
	client.AssertNumberOfCalls(t, "SubmitLimitBuy", 6)
	client.AssertNumberOfCalls(t, "SubmitLimitSell", 3)
}

func TestGridStrategyHaltsOnUnexpectedOrder(t *testing.T) {
	client := new(MockRestClient)
	sctx := testContext(client)

	stray := models.Order{
		OrderID: 99, Side: models.SideBuy, Status: models.StatusNew,
		Price:   decimal.RequireFromString("105"), // off every boundary
		OrigQty: decimal.RequireFromString("1"),
	}
	client.On("GetOpenOrders", "BNBUSDT").Return([]models.Order{stray}, nil)
	client.On("GetTickerPrice", "BNBUSDT").Return(decimal.NewFromInt(150), nil)
	client.On("GetAccountBalances").Return([]models.Balance{}, nil)

	s := NewGridStrategy()
	require.NoError(t, s.Initialize(sctx))

	err := s.Tick(sctx)
	require.Error(t, err)
	assert.True(t, IsFatal(err), "an unmappable order must halt the process")

	var uerr *grid.UnexpectedOrderError
	assert.ErrorAs(t, err, &uerr)
}

func TestGridStrategyTransientFaultIsNotFatal(t *testing.T) {
	client := new(MockRestClient)
	sctx := testContext(client)

	client.On("GetOpenOrders", "BNBUSDT").Return(nil, errors.New("request timeout"))

	s := NewGridStrategy()
	require.NoError(t, s.Initialize(sctx))

	err := s.Tick(sctx)
	require.Error(t, err)
	assert.False(t, IsFatal(err))
	// Nothing was submitted against the torn view.
	client.AssertNotCalled(t, "SubmitLimitBuy", mock.Anything, mock.Anything, mock.Anything)
}

func TestGridStrategyRejectsBadConfig(t *testing.T) {
	client := new(MockRestClient)
	sctx := testContext(client)
	sctx.Cfg.Grid.UpperLimit = "50" // inverted range

	s := NewGridStrategy()
	err := s.Initialize(sctx)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestMakerStrategyRequotes(t *testing.T) {
	client := new(MockRestClient)
	sctx := testContext(client)
	sctx.Cfg.Trading.Quantity = "1"
	sctx.Cfg.Trading.PolicyMode = "FW"
	sctx.Cfg.Trading.Delta = "0.003"

	s := NewMakerStrategy()
	require.NoError(t, s.Initialize(sctx))

	decimalEq := func(want string) interface{} {
		return mock.MatchedBy(func(d decimal.Decimal) bool {
			return d.Equal(decimal.RequireFromString(want))
		})
	}

	client.On("GetOpenOrders", "BNBUSDT").Return([]models.Order{}, nil).Once()
	client.On("GetTickerPrice", "BNBUSDT").Return(decimal.NewFromInt(100), nil)
	client.On("SubmitLimitBuy", "BNBUSDT", decimalEq("1"), decimalEq("99.7")).
		Return(int64(11), nil)
	client.On("SubmitLimitSell", "BNBUSDT", decimalEq("1"), decimalEq("100.3")).
		Return(int64(12), nil)
	require.NoError(t, s.Tick(sctx))

	// Next cycle finds both quotes still resting and pulls them first.
	client.On("GetOpenOrders", "BNBUSDT").Return([]models.Order{
		{OrderID: 11}, {OrderID: 12},
	}, nil).Once()
	client.On("CancelOrder", "BNBUSDT", int64(11)).Return(nil)
	client.On("CancelOrder", "BNBUSDT", int64(12)).Return(nil)
	require.NoError(t, s.Tick(sctx))

	client.AssertNumberOfCalls(t, "CancelOrder", 2)
	client.AssertNumberOfCalls(t, "SubmitLimitBuy", 2)
}

func TestMakerStrategyRejectsBadDelta(t *testing.T) {
	client := new(MockRestClient)
	sctx := testContext(client)
	sctx.Cfg.Trading.Quantity = "1"
	sctx.Cfg.Trading.PolicyMode = "FW"
	sctx.Cfg.Trading.Delta = "0.3%"

	s := NewMakerStrategy()
	err := s.Initialize(sctx)
	require.Error(t, err, "an unparseable delta must fail at startup, not quote a zero-width pair")
	assert.Contains(t, err.Error(), "delta")
}

func TestMakerStrategyDecodesLegacySignal(t *testing.T) {
	client := new(MockRestClient)
	sctx := testContext(client)
	sctx.Cfg.Trading.Quantity = "1"
	sctx.Cfg.Trading.SignalPrice = "1.253" // MA mode, window 25, delta 0.0003
	sctx.Cfg.Trading.MAAlg = "sma"

	s := NewMakerStrategy()
	require.NoError(t, s.Initialize(sctx))
	assert.Equal(t, "sma-25", s.policy.Name())
}

// stubStrategy drives Engine.Run without a real exchange.
type stubStrategy struct {
	tickErr error
	ticks   int
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Initialize(ctx *StrategyContext) error { return nil }

func (s *stubStrategy) Tick(ctx *StrategyContext) error {
	s.ticks++
	return s.tickErr
}

func TestEngineHaltsOnFatalFault(t *testing.T) {
	stub := &stubStrategy{tickErr: &grid.InvariantError{Reason: "buy above sell"}}
	sctx := testContext(new(MockRestClient))
	e := NewEngine(stub, sctx)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := e.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, stub.ticks, "the engine must not tick again after a fatal fault")
}

func TestEngineSurvivesTransientFault(t *testing.T) {
	stub := &stubStrategy{tickErr: errors.New("request timeout")}
	sctx := testContext(new(MockRestClient))
	e := NewEngine(stub, sctx)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	err := e.Run(ctx)
	assert.NoError(t, err, "transient faults abandon the cycle, not the process")
	assert.GreaterOrEqual(t, stub.ticks, 2)
}

func TestIsFatalClassification(t *testing.T) {
	assert.True(t, IsFatal(&grid.UnexpectedOrderError{Reason: "x"}))
	assert.True(t, IsFatal(&grid.InvariantError{Reason: "x"}))
	assert.True(t, IsFatal(&config.ValidationError{Reason: "x"}))
	assert.False(t, IsFatal(errors.New("rate limited")))
	assert.False(t, IsFatal(nil))
}
