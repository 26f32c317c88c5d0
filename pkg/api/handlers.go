package api

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/helinwang/matchdex/pkg/calc"
	"github.com/helinwang/matchdex/pkg/dex"
	"github.com/helinwang/matchdex/pkg/journal"
)

const (
	defaultPageSize = 100
	defaultDepth    = 50
)

var (
	errJournalDisabled = errors.New("event journal disabled")
	errReceiptNotFound = errors.New("receipt not found")
)

func addrParam(c *gin.Context, name string) (common.Address, bool) {
	s := c.Param(name)
	if !common.IsHexAddress(s) {
		badRequest(c, fmt.Errorf("invalid address %q", s))
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid %s: %w", name, err))
		return 0, false
	}
	return v, true
}

type pageQuery struct {
	Offset uint64 `form:"offset"`
	Limit  uint64 `form:"limit" binding:"lte=1000"`
}

func page(c *gin.Context) (pageQuery, bool) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return q, false
	}

	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}
	return q, true
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	o, err := s.engine.Order(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderView(o))
}

func (s *Server) orderExists(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": s.engine.OrderExists(id)})
}

func (s *Server) userOrders(c *gin.Context) {
	addr, ok := addrParam(c, "addr")
	if !ok {
		return
	}

	q, ok := page(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": s.engine.OrdersByUser(addr, q.Offset, q.Limit)})
}

func pairParams(c *gin.Context) (common.Address, common.Address, bool) {
	a, ok := addrParam(c, "a")
	if !ok {
		return a, a, false
	}

	b, ok := addrParam(c, "b")
	return a, b, ok
}

func (s *Server) getPair(c *gin.Context) {
	a, b, ok := pairParams(c)
	if !ok {
		return
	}

	p, exists, err := s.engine.PairInfo(a, b)
	if err != nil {
		fail(c, err)
		return
	}

	if !exists {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": dex.ErrPairNotEstablished.Error()})
		return
	}
	c.JSON(http.StatusOK, newPairView(p))
}

func (s *Server) pairOrders(c *gin.Context) {
	a, b, ok := pairParams(c)
	if !ok {
		return
	}

	q, ok := page(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": s.engine.OrdersByPair(a, b, q.Offset, q.Limit)})
}

type depthQuery struct {
	Depth int `form:"depth" binding:"gte=0,lte=1000"`
}

func (s *Server) getBook(c *gin.Context) {
	a, b, ok := pairParams(c)
	if !ok {
		return
	}

	var q depthQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	if q.Depth == 0 {
		q.Depth = defaultDepth
	}

	book, err := s.engine.Book(a, b, q.Depth)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookView(book))
}

func (s *Server) canMatch(c *gin.Context) {
	initiating, ok := uintParam(c, "initiating")
	if !ok {
		return
	}

	matched, ok := uintParam(c, "matched")
	if !ok {
		return
	}

	err := s.engine.CanMatch(initiating, matched)
	if errors.Is(err, dex.ErrOrderDoesNotExist) {
		fail(c, err)
		return
	}

	if err != nil {
		c.JSON(http.StatusOK, gin.H{"can_match": false, "reason": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"can_match": true})
}

type lockQuery struct {
	TokenA     string `form:"token_a" binding:"required,eth_addr"`
	TokenB     string `form:"token_b" binding:"required,eth_addr"`
	Side       string `form:"side" binding:"required,oneof=buy sell"`
	Type       string `form:"type,default=limit" binding:"oneof=limit market"`
	Amount     string `form:"amount" binding:"required,number"`
	Price      string `form:"price"`
	SlippageBP uint64 `form:"slippage_bp"`
}

func (s *Server) lockAmount(c *gin.Context) {
	var q lockQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	side, _ := calc.ParseSide(q.Side)
	typ, _ := dex.ParseOrderType(q.Type)
	amt, _ := new(big.Int).SetString(q.Amount, 10)

	req := dex.QuoteRequest{
		TokenA:     common.HexToAddress(q.TokenA),
		TokenB:     common.HexToAddress(q.TokenB),
		Side:       side,
		Type:       typ,
		Amount:     amt,
		SlippageBP: q.SlippageBP,
	}

	if typ == dex.Limit {
		price, err := calc.ParsePrice(q.Price)
		if err != nil {
			badRequest(c, err)
			return
		}
		req.Price = price
	}

	quote, err := s.engine.LockAmount(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, quoteView{
		Lock:  amount(quote.Lock),
		Fee:   amount(quote.Fee),
		Price: calc.FormatPrice(quote.Price),
	})
}

func (s *Server) getToken(c *gin.Context) {
	token, ok := addrParam(c, "addr")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "verified": s.engine.TokenVerified(token)})
}

func (s *Server) getFees(c *gin.Context) {
	token, ok := addrParam(c, "token")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"balance": amount(s.engine.FeeBalance(token)),
		"custody": amount(s.engine.Custody(token)),
	})
}

func (s *Server) accountNonce(c *gin.Context) {
	addr, ok := addrParam(c, "addr")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": addr, "nonce": s.engine.AccountNonce(addr)})
}

func (s *Server) getSettings(c *gin.Context) {
	st := s.engine.Settings()
	c.JSON(http.StatusOK, settingsView{
		Engine:     s.engine.Address(),
		Owner:      st.Owner,
		Backend:    st.Backend,
		AdminToken: st.AdminToken,
		FeeRateBP:  st.FeeRateBP,
	})
}

func (s *Server) stateRoot(c *gin.Context) {
	root, err := s.engine.StateRoot()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"root": root})
}

type eventsQuery struct {
	Type    string `form:"type"`
	OrderID uint64 `form:"order"`
	Account string `form:"account" binding:"omitempty,eth_addr"`
	After   uint64 `form:"after"`
	Limit   int    `form:"limit" binding:"gte=0,lte=1000"`
}

func (s *Server) getEvents(c *gin.Context) {
	if s.events == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": errJournalDisabled.Error()})
		return
	}

	var q eventsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	f := journal.Filter{
		Type:    dex.EventType(q.Type),
		OrderID: q.OrderID,
		After:   q.After,
		Limit:   q.Limit,
	}
	if q.Account != "" {
		addr := common.HexToAddress(q.Account)
		f.Account = &addr
	}

	list, err := s.events.Events(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": list})
}

type txnRequest struct {
	// Txn is the hex encoded signed transaction.
	Txn string `json:"txn" binding:"required"`
}

func (s *Server) submitTxn(c *gin.Context) {
	var req txnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	raw, err := hexutil.Decode(req.Txn)
	if err != nil {
		badRequest(c, fmt.Errorf("%w: %v", dex.ErrMalformedTxn, err))
		return
	}

	r, err := s.engine.Apply(c.Request.Context(), raw)
	if err != nil {
		fail(c, err)
		return
	}

	s.receipts.Add(r.Hash, r)
	c.JSON(http.StatusOK, r)
}

// getReceipt returns the receipt of a transaction applied by this
// server. Only the most recent receipts are kept.
func (s *Server) getReceipt(c *gin.Context) {
	str := c.Param("hash")
	b, err := hexutil.Decode(str)
	if err != nil || len(b) != common.HashLength {
		badRequest(c, fmt.Errorf("invalid transaction hash %q", str))
		return
	}

	r, ok := s.receipts.Get(common.BytesToHash(b))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": errReceiptNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, r)
}
