package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/helinwang/matchdex/pkg/calc"
	"github.com/helinwang/matchdex/pkg/dex"
	"github.com/helinwang/matchdex/pkg/journal"
	"github.com/helinwang/matchdex/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	engineAddr = common.HexToAddress("0xe0")
	owner      = common.HexToAddress("0x01")
	tokenA     = common.HexToAddress("0x0a")
	tokenB     = common.HexToAddress("0x0b")
)

type fixture struct {
	t      *testing.T
	bank   *ledger.Bank
	engine *dex.Engine
	server *Server
}

func newFixture(t *testing.T, withJournal bool) *fixture {
	gin.SetMode(gin.TestMode)
	bank := ledger.NewBank(engineAddr)

	var events EventStore
	opts := []dex.Option{}
	if withJournal {
		j, err := journal.Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { j.Close() })
		events = j
		opts = append(opts, dex.WithEventSink(j))
	}

	e, err := dex.NewEngine(dex.NewMemDatabase(), bank, dex.Config{
		Address:   engineAddr,
		Owner:     owner,
		FeeRateBP: 25,
	}, opts...)
	require.NoError(t, err)

	return &fixture{
		t:      t,
		bank:   bank,
		engine: e,
		server: NewServer(zap.NewNop(), e, events),
	}
}

func (f *fixture) funded() dex.SK {
	_, sk := dex.RandKeyPair()
	f.bank.Mint(tokenA, sk.Addr(), calc.MustParseFixed("1000", 18))
	f.bank.Mint(tokenB, sk.Addr(), calc.MustParseFixed("1000", 18))
	return sk
}

func (f *fixture) do(method, path, body string) (int, map[string]interface{}) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	var r map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &r))
	}
	return w.Code, r
}

func (f *fixture) submit(raw []byte) (int, map[string]interface{}) {
	return f.do(http.MethodPost, "/v1/txns", `{"txn":"`+hexutil.Encode(raw)+`"}`)
}

func (f *fixture) placeSell(sk dex.SK, nonce uint64) uint64 {
	code, r := f.submit(dex.MakePlaceLimitOrderTxn(sk, dex.PlaceLimitOrderTxn{
		TokenA: tokenA,
		TokenB: tokenB,
		Side:   calc.Sell,
		Amount: calc.MustParseFixed("10", 18),
		Price:  calc.MustParseFixed("1.5", 18),
	}, nonce, nil))
	require.Equal(f.t, http.StatusOK, code, r)
	ids := r["order_ids"].([]interface{})
	require.Len(f.t, ids, 1)
	return uint64(ids[0].(float64))
}

func TestSubmitAndQuery(t *testing.T) {
	f := newFixture(t, true)
	sk := f.funded()
	id := f.placeSell(sk, 0)
	assert.Equal(t, uint64(1), id)

	code, r := f.do(http.MethodGet, "/v1/orders/1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "active", r["status"])
	assert.Equal(t, "sell", r["side"])
	assert.Equal(t, "limit", r["type"])
	assert.Equal(t, "1.5", r["price"])
	assert.Equal(t, "10000000000000000000", r["locked_amount"])
	assert.Equal(t, "25000000000000000", r["fee_amount"])
	assert.Equal(t, strings.ToLower(sk.Addr().Hex()), strings.ToLower(r["owner"].(string)))

	_, r = f.do(http.MethodGet, "/v1/orders/1/exists", "")
	assert.Equal(t, true, r["exists"])
	_, r = f.do(http.MethodGet, "/v1/orders/2/exists", "")
	assert.Equal(t, false, r["exists"])

	_, r = f.do(http.MethodGet, "/v1/users/"+sk.Addr().Hex()+"/orders", "")
	assert.Equal(t, []interface{}{float64(1)}, r["ids"])

	_, r = f.do(http.MethodGet, "/v1/pairs/"+tokenB.Hex()+"/"+tokenA.Hex()+"/orders?limit=5", "")
	assert.Equal(t, []interface{}{float64(1)}, r["ids"])

	code, r = f.do(http.MethodGet, "/v1/pairs/"+tokenA.Hex()+"/"+tokenB.Hex(), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1.5", r["last_price"])
	assert.Equal(t, float64(18), r["decimals"])

	code, r = f.do(http.MethodGet, "/v1/pairs/"+tokenA.Hex()+"/"+tokenB.Hex()+"/book", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, r["asks"], 1)
	assert.Len(t, r["bids"], 0)

	_, r = f.do(http.MethodGet, "/v1/accounts/"+sk.Addr().Hex()+"/nonce", "")
	assert.Equal(t, float64(1), r["nonce"])

	_, r = f.do(http.MethodGet, "/v1/fees/"+tokenA.Hex(), "")
	assert.Equal(t, "0", r["balance"])
	assert.Equal(t, "10025000000000000000", r["custody"])

	code, r = f.do(http.MethodGet, "/v1/events?order=1", "")
	require.Equal(t, http.StatusOK, code)
	events := r["events"].([]interface{})
	require.Len(t, events, 1)
	ev := events[0].(map[string]interface{})["event"].(map[string]interface{})
	assert.Equal(t, string(dex.OrderCreated), ev["type"])

	_, r = f.do(http.MethodGet, "/v1/settings", "")
	assert.Equal(t, float64(25), r["fee_rate_bp"])

	code, r = f.do(http.MethodGet, "/v1/state/root", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, r["root"], 66)
}

func TestSubmitErrors(t *testing.T) {
	f := newFixture(t, false)
	sk := f.funded()
	f.placeSell(sk, 0)

	// replayed nonce
	code, _ := f.submit(dex.MakeCancelOrderTxn(sk, 1, 0))
	assert.Equal(t, http.StatusConflict, code)

	// someone else's order
	other := f.funded()
	code, r := f.submit(dex.MakeCancelOrderTxn(other, 1, 0))
	assert.Equal(t, http.StatusForbidden, code)
	assert.Contains(t, r["error"], dex.ErrNotOrderCreator.Error())

	code, _ = f.submit(dex.MakeCancelOrderTxn(sk, 7, 1))
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.submit(dex.MakeCancelOrderTxn(sk, 1, 1))
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.submit(dex.MakeCancelOrderTxn(sk, 1, 2))
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = f.do(http.MethodPost, "/v1/txns", `{"txn":"zz"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodPost, "/v1/txns", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodPost, "/v1/txns", `{"txn":"0x010203"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReceipt(t *testing.T) {
	f := newFixture(t, false)
	sk := f.funded()
	raw := dex.MakeCancelOrderTxn(sk, 1, 0)
	f.placeSell(sk, 0)

	txn, err := dex.DecodeTxn(dex.MakeCancelOrderTxn(sk, 1, 1))
	require.NoError(t, err)
	code, r := f.submit(txn.Bytes())
	require.Equal(t, http.StatusOK, code, r)

	code, r = f.do(http.MethodGet, "/v1/txns/"+txn.Hash().Hex(), "")
	require.Equal(t, http.StatusOK, code, r)
	assert.Equal(t, "cancel_order", r["type"])
	assert.Equal(t, float64(1), r["nonce"])

	// never applied
	rejected, err := dex.DecodeTxn(raw)
	require.NoError(t, err)
	code, _ = f.do(http.MethodGet, "/v1/txns/"+rejected.Hash().Hex(), "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(http.MethodGet, "/v1/txns/0x01", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestQueryErrors(t *testing.T) {
	f := newFixture(t, false)

	code, _ := f.do(http.MethodGet, "/v1/orders/9", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(http.MethodGet, "/v1/orders/x", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodGet, "/v1/users/nope/orders", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodGet, "/v1/pairs/"+tokenA.Hex()+"/"+tokenB.Hex(), "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(http.MethodGet, "/v1/pairs/"+tokenA.Hex()+"/"+tokenA.Hex(), "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodGet, "/v1/match/1/2", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(http.MethodGet, "/v1/events", "")
	assert.Equal(t, http.StatusNotImplemented, code)

	code, _ = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestLockAndMatchQueries(t *testing.T) {
	f := newFixture(t, false)
	seller := f.funded()
	f.placeSell(seller, 0)

	q := "/v1/lock?token_a=" + tokenA.Hex() + "&token_b=" + tokenB.Hex() + "&side=sell&amount=10000&price=2"
	code, r := f.do(http.MethodGet, q, "")
	require.Equal(t, http.StatusOK, code, r)
	assert.Equal(t, "10000", r["lock"])
	assert.Equal(t, "25", r["fee"])
	assert.Equal(t, "2", r["price"])

	code, _ = f.do(http.MethodGet, "/v1/lock?token_a="+tokenA.Hex()+"&token_b="+tokenB.Hex()+"&side=up&amount=1", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(http.MethodGet, "/v1/lock?token_a="+tokenA.Hex()+"&token_b="+tokenB.Hex()+"&side=buy&amount=0&price=1", "")
	assert.Equal(t, http.StatusBadRequest, code)

	buyer := f.funded()
	_, err := f.engine.CreateLimitOrder(context.Background(), buyer.Addr(), dex.LimitOrderRequest{
		TokenA: tokenA,
		TokenB: tokenB,
		Side:   calc.Buy,
		Amount: calc.MustParseFixed("4", 18),
		Price:  calc.MustParseFixed("1.5", 18),
	})
	require.NoError(t, err)

	_, r = f.do(http.MethodGet, "/v1/match/2/1", "")
	assert.Equal(t, true, r["can_match"])

	_, r = f.do(http.MethodGet, "/v1/match/1/1", "")
	assert.Equal(t, false, r["can_match"])
	assert.NotEmpty(t, r["reason"])

	_, r = f.do(http.MethodGet, "/v1/tokens/"+tokenA.Hex(), "")
	assert.Equal(t, false, r["verified"])
}
