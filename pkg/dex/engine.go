package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/helinwang/matchdex/pkg/calc"
)

const (
	// MaxFeeRateBP is the highest fee rate the administrator can
	// set, 10%.
	MaxFeeRateBP = 1000
	// MinPairDecimals is the floor of a pair's price precision.
	MinPairDecimals = 4
	// MaxPairDecimals is the most precise a pair can be.
	MaxPairDecimals = calc.PrecisionDecimals
	// DefaultTokenDecimals is used when no token metadata is
	// configured.
	DefaultTokenDecimals = 18
)

// TokenMetadata provides token decimals.
type TokenMetadata interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// AdminRegistry tells whether an account administers a project. The
// engine treats it as an opaque oracle gating sales.
type AdminRegistry interface {
	IsAdmin(ctx context.Context, adminToken, account, project common.Address) (bool, error)
}

// Config is the initial configuration of an engine. It is written to
// a fresh state only, an existing state keeps its settings.
type Config struct {
	// Address is the engine's own account: the custody account
	// and the contract address bound into authorization digests.
	Address    common.Address
	Owner      common.Address
	Backend    common.Address
	AdminToken common.Address
	FeeRateBP  uint64
}

// Engine is the order lifecycle controller. Every state changing call
// runs under one lock as a single validate, mutate, settle, emit
// sequence.
type Engine struct {
	mu sync.Mutex

	addr     common.Address
	state    *State
	custody  custody
	verifier AuthorizationVerifier
	meta     TokenMetadata
	admins   AdminRegistry
	sink     EventSink
	book     *book
}

type Option func(*Engine)

// WithAuthorizer gates market orders and matches behind backend
// signatures. Without it the engine accepts them from any caller.
func WithAuthorizer(v AuthorizationVerifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithNative enables native asset settlement.
func WithNative(n NativeTransferer) Option {
	return func(e *Engine) { e.custody.native = n }
}

func WithTokenMetadata(m TokenMetadata) Option {
	return func(e *Engine) { e.meta = m }
}

func WithAdminRegistry(r AdminRegistry) Option {
	return func(e *Engine) { e.admins = r }
}

func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.sink = s }
}

// NewEngine creates an engine on top of db.
func NewEngine(db Database, tokens TokenTransferer, cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Address == (common.Address{}) || cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: engine address and owner are required", ErrZeroAddress)
	}

	e := &Engine{
		addr:    cfg.Address,
		state:   NewState(db),
		custody: custody{tokens: tokens},
		sink:    LogSink{},
		book:    newBook(),
	}

	for _, o := range opts {
		o(e)
	}

	if _, ok := loadSettings(e.state); !ok {
		if cfg.FeeRateBP > MaxFeeRateBP {
			return nil, ErrInvalidFeeRate
		}

		t := newTransition(e.state)
		t.putSettings(Settings{
			Owner:      cfg.Owner,
			Backend:    cfg.Backend,
			AdminToken: cfg.AdminToken,
			FeeRateBP:  cfg.FeeRateBP,
		})
		err := t.commit()
		if err != nil {
			return nil, err
		}
	}

	e.state.Orders(func(o Order) bool {
		e.book.update(&o, e.pairOf(&o))
		return true
	})

	return e, nil
}

// Address returns the engine's account.
func (e *Engine) Address() common.Address {
	return e.addr
}

func (e *Engine) pairOf(o *Order) *Pair {
	p, _ := loadPair(e.state, o.Pair())
	return &p
}

// run executes one operation. fn validates and mutates the
// transition and fills the settlement; nothing is persisted or
// transferred when it fails.
func (e *Engine) run(ctx context.Context, op string, sender common.Address, value *big.Int, fn func(t *transition, s *settlement) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := newTransition(e.state)
	s := newSettlement(sender, value)

	err := fn(t, s)
	if err == nil {
		err = s.attachValue()
	}
	if err == nil {
		err = e.custody.execute(ctx, t, s)
	}

	if err != nil {
		rejected.WithLabelValues(op, errorLabel(err)).Inc()
		log.Debug("operation rejected", "op", op, "sender", sender, "err", err)
		return err
	}

	for id := range s.touched {
		o, ok := loadOrder(e.state, id)
		if ok {
			e.book.update(&o, e.pairOf(&o))
		}
	}

	for _, ev := range s.events {
		e.observe(ev)
		if err := e.sink.Emit(ctx, ev); err != nil {
			log.Warn("error emitting event", "type", ev.Type, "err", err)
		}
	}

	return nil
}

// authorize verifies a backend authorization and consumes its nonce.
func (e *Engine) authorize(t *transition, digest common.Hash, auth Authorization) error {
	if e.verifier == nil {
		return nil
	}

	if auth.Nonce == nil {
		return fmt.Errorf("%w: missing nonce", ErrInvalidSignature)
	}

	signer, err := e.verifier.Signer(digest, auth.Sig)
	if err != nil {
		return err
	}

	if signer != t.settings().Backend {
		return fmt.Errorf("%w: signed by %s", ErrInvalidSignature, signer.Hex())
	}

	return t.consumeAuthNonce(auth.Nonce)
}

type orderParams struct {
	owner       common.Address
	tokenA      common.Address
	tokenB      common.Address
	side        calc.Side
	typ         OrderType
	amount      *big.Int
	price       *big.Int
	slippageBP  uint64
	cancellable bool
}

func validateTokens(a, b common.Address) error {
	if a == (common.Address{}) || b == (common.Address{}) {
		return ErrZeroAddress
	}

	if a == b {
		return ErrIdenticalTokens
	}

	return nil
}

// pairDecimals derives the default precision of a pair from its
// quoted token.
func (e *Engine) pairDecimals(ctx context.Context, quoted common.Address) (uint8, error) {
	d := uint8(DefaultTokenDecimals)
	if e.meta != nil && quoted != NativeToken {
		var err error
		d, err = e.meta.Decimals(ctx, quoted)
		if err != nil {
			return 0, err
		}
	}

	if d < MinPairDecimals {
		d = MinPairDecimals
	}
	if d > MaxPairDecimals {
		d = MaxPairDecimals
	}
	return d, nil
}

// effectivePrice returns the price an order is recorded and locked
// at.
func effectivePrice(pair *Pair, o *Order, requested *big.Int) (*big.Int, error) {
	if o.Type == Market {
		if requested != nil && requested.Sign() != 0 {
			return nil, fmt.Errorf("%w: market orders take the pair price", ErrInvalidPrice)
		}

		if pair.LastPrice.Sign() == 0 {
			return nil, fmt.Errorf("%w: no market price", ErrPairNotEstablished)
		}

		if o.SlippageBP == 0 || o.SlippageBP >= calc.BasisPoints {
			return nil, ErrInvalidSlippage
		}

		o.ReferencePrice = new(big.Int).Set(pair.LastPrice)
		return calc.WorstPrice(pair.LastPrice, o.SlippageBP, pair.buysBase(o))
	}

	if requested == nil || requested.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}

	if !calc.OnTick(requested, pair.Decimals) {
		return nil, fmt.Errorf("%w: %s is not a multiple of %s", ErrInvalidPrice, calc.FormatPrice(requested), calc.FormatPrice(calc.TickSize(pair.Decimals)))
	}

	price := new(big.Int).Set(requested)
	// a buy order locks the counter token, a limit worse than the
	// market is capped at the market price
	if o.Side == calc.Buy && pair.LastPrice.Sign() > 0 {
		if pair.buysBase(o) && price.Cmp(pair.LastPrice) > 0 {
			price.Set(pair.LastPrice)
		} else if !pair.buysBase(o) && price.Cmp(pair.LastPrice) < 0 {
			price.Set(pair.LastPrice)
		}
	}
	return price, nil
}

// buildOrder validates p against the pair and computes the order
// record, including the lock and the fee. pair is updated in place.
func (e *Engine) buildOrder(ctx context.Context, t *transition, pair *Pair, p orderParams) (Order, error) {
	if p.amount == nil || p.amount.Sign() <= 0 {
		return Order{}, ErrZeroAmount
	}

	err := validateTokens(p.tokenA, p.tokenB)
	if err != nil {
		return Order{}, err
	}

	if !p.side.Valid() {
		return Order{}, ErrInvalidSide
	}

	if (p.tokenA == NativeToken || p.tokenB == NativeToken) && e.custody.native == nil {
		return Order{}, ErrNativeUnsupported
	}

	if p.typ != Limit && p.typ != Market {
		return Order{}, ErrInvalidOrderType
	}

	if !pair.Established() {
		if p.typ == Market {
			return Order{}, ErrPairNotEstablished
		}
		pair.QuotedToken = p.tokenB
	}

	if pair.Decimals == 0 {
		d, err := e.pairDecimals(ctx, pair.QuotedToken)
		if err != nil {
			return Order{}, err
		}
		pair.Decimals = d
	}

	o := Order{
		Owner:          p.owner,
		TokenA:         p.tokenA,
		TokenB:         p.tokenB,
		Side:           p.side,
		Type:           p.typ,
		Amount:         new(big.Int).Set(p.amount),
		AmountFilled:   new(big.Int),
		LimitPrice:     new(big.Int),
		ReferencePrice: new(big.Int),
		SlippageBP:     p.slippageBP,
		FeeCollected:   new(big.Int),
		IsCancellable:  p.cancellable,
		Status:         Active,
	}

	if p.typ == Limit {
		o.LimitPrice.Set(p.price)
		o.SlippageBP = 0
	}

	o.Price, err = effectivePrice(pair, &o, p.price)
	if err != nil {
		return Order{}, err
	}

	o.LockedAmount, err = calc.LockAmount(o.Amount, o.Price, pair.quotedIsSecond(&o), o.Side)
	if err != nil {
		return Order{}, err
	}

	if o.LockedAmount.Sign() == 0 {
		return Order{}, fmt.Errorf("%w: lock rounds to zero", ErrZeroAmount)
	}

	o.FeeAmount = calc.FeeAmount(o.LockedAmount, t.settings().FeeRateBP)
	return o, nil
}

// placeOrder creates an order, records it and requests its
// collateral.
func (e *Engine) placeOrder(ctx context.Context, t *transition, s *settlement, p orderParams) (Order, error) {
	if p.tokenA != (common.Address{}) && p.tokenB != (common.Address{}) && p.tokenA == p.tokenB {
		return Order{}, ErrIdenticalTokens
	}

	pair, _ := t.pair(NewPairKey(p.tokenA, p.tokenB))
	o, err := e.buildOrder(ctx, t, &pair, p)
	if err != nil {
		return Order{}, err
	}

	o.ID = t.nextOrderID()
	t.putOrder(&o)
	t.appendUserOrder(o.Owner, o.ID)
	t.appendPairOrder(o.Pair(), o.ID)

	if o.Type == Limit && pair.LastPrice.Cmp(o.Price) != 0 {
		pair.LastPrice = new(big.Int).Set(o.Price)
		s.emit(priceEvent(&pair))
	}
	t.putPair(&pair)

	s.pull(o.LockToken(), o.Owner, new(big.Int).Add(o.LockedAmount, o.FeeAmount))
	s.emit(orderEvent(OrderCreated, &o, o.Amount))
	s.touch(o.ID)
	return o, nil
}

// LimitOrderRequest describes a limit order. Price is quote per base
// scaled by calc.Precision. Value is the native asset attached to the
// call.
type LimitOrderRequest struct {
	TokenA common.Address
	TokenB common.Address
	Side   calc.Side
	Amount *big.Int
	Price  *big.Int
	Value  *big.Int
}

// CreateLimitOrder creates a limit order owned by caller and returns
// its id.
func (e *Engine) CreateLimitOrder(ctx context.Context, caller common.Address, req LimitOrderRequest) (uint64, error) {
	var id uint64
	err := e.run(ctx, "create_limit_order", caller, req.Value, func(t *transition, s *settlement) error {
		var err error
		id, err = e.createLimitOrder(ctx, t, s, caller, req)
		return err
	})
	return id, err
}

func (e *Engine) createLimitOrder(ctx context.Context, t *transition, s *settlement, caller common.Address, req LimitOrderRequest) (uint64, error) {
	o, err := e.placeOrder(ctx, t, s, orderParams{
		owner:       caller,
		tokenA:      req.TokenA,
		tokenB:      req.TokenB,
		side:        req.Side,
		typ:         Limit,
		amount:      req.Amount,
		price:       req.Price,
		cancellable: true,
	})
	return o.ID, err
}

// MarketOrderRequest describes a market order. Its price is taken
// from the pair; SlippageBP bounds how far the execution price may
// move from the pair price at creation.
type MarketOrderRequest struct {
	TokenA     common.Address
	TokenB     common.Address
	Side       calc.Side
	Amount     *big.Int
	SlippageBP uint64
	Auth       Authorization
	Value      *big.Int
}

// CreateMarketOrder creates a market order owned by caller. With an
// authorizer configured, req.Auth must be a fresh backend signature
// over MarketOrderDigest.
func (e *Engine) CreateMarketOrder(ctx context.Context, caller common.Address, req MarketOrderRequest) (uint64, error) {
	var id uint64
	err := e.run(ctx, "create_market_order", caller, req.Value, func(t *transition, s *settlement) error {
		var err error
		id, err = e.createMarketOrder(ctx, t, s, caller, req)
		return err
	})
	return id, err
}

func (e *Engine) createMarketOrder(ctx context.Context, t *transition, s *settlement, caller common.Address, req MarketOrderRequest) (uint64, error) {
	digest := MarketOrderDigest(e.addr, caller, req.TokenA, req.TokenB, req.Amount, req.Side, req.SlippageBP, req.Auth.Nonce)
	err := e.authorize(t, digest, req.Auth)
	if err != nil {
		return 0, err
	}

	o, err := e.placeOrder(ctx, t, s, orderParams{
		owner:       caller,
		tokenA:      req.TokenA,
		tokenB:      req.TokenB,
		side:        req.Side,
		typ:         Market,
		amount:      req.Amount,
		slippageBP:  req.SlippageBP,
		cancellable: true,
	})
	return o.ID, err
}

// CancelOrder cancels an order of caller, refunding the remaining lock
// and the unearned part of the prepaid fee.
func (e *Engine) CancelOrder(ctx context.Context, caller common.Address, id uint64) error {
	return e.run(ctx, "cancel_order", caller, nil, func(t *transition, s *settlement) error {
		return e.cancelOrder(t, s, caller, id)
	})
}

func (e *Engine) cancelOrder(t *transition, s *settlement, caller common.Address, id uint64) error {
	o, err := t.order(id)
	if err != nil {
		return err
	}

	if o.Owner != caller {
		return ErrNotOrderCreator
	}

	if !o.IsCancellable {
		return ErrNonCancellable
	}

	if o.Status.Terminal() {
		return fmt.Errorf("%w: order %d is %s", ErrInvalidOrderStatus, o.ID, o.Status)
	}

	feeRefund := calc.CancelRefund(o.FeeAmount, o.Amount, o.AmountFilled)
	// what neither the earned fee nor the refund covers is
	// rounding dust, it goes to the fee ledger
	dust := new(big.Int).Sub(o.FeeAmount, o.FeeCollected)
	dust.Sub(dust, feeRefund)
	t.addFee(o.LockToken(), dust)

	refund := new(big.Int).Add(o.LockedAmount, feeRefund)
	o.FeeCollected = new(big.Int).Sub(o.FeeAmount, feeRefund)
	o.LockedAmount = new(big.Int)
	o.Status = Cancelled
	t.putOrder(&o)

	s.push(o.LockToken(), o.Owner, refund)
	s.emit(orderEvent(OrderCancelled, &o, refund))
	s.touch(o.ID)
	return nil
}

// Match consumes the initiating order against the matched orders, in
// the given order. The whole batch applies or nothing does. With an
// authorizer configured, auth must be a fresh backend signature over
// MatchDigest.
func (e *Engine) Match(ctx context.Context, caller common.Address, initiatingID uint64, matchedIDs []uint64, auth Authorization) error {
	return e.run(ctx, "match", caller, nil, func(t *transition, s *settlement) error {
		return e.match(t, s, initiatingID, matchedIDs, auth)
	})
}

func (e *Engine) match(t *transition, s *settlement, initiatingID uint64, matchedIDs []uint64, auth Authorization) error {
	err := e.authorize(t, MatchDigest(e.addr, initiatingID, matchedIDs, auth.Nonce), auth)
	if err != nil {
		return err
	}

	return e.matchOrders(t, s, initiatingID, matchedIDs)
}

// errorLabel names an error for metrics.
func errorLabel(err error) string {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "other"
}

var knownErrors = []error{
	ErrZeroAmount, ErrInvalidPrice, ErrInvalidSide, ErrZeroAddress, ErrIdenticalTokens,
	ErrDifferentLength, ErrInvalidDecimals, ErrInvalidFeeRate, ErrInvalidSlippage,
	ErrInvalidOrderType, ErrEmptyMatch, ErrNotOrderCreator, ErrNotOwner, ErrNotAdmin,
	ErrInvalidSignature, ErrTxAlreadyExecuted, ErrInvalidNonce, ErrOrderDoesNotExist,
	ErrInvalidOrderStatus, ErrNonCancellable, ErrPairNotEstablished, ErrDecimalsAlreadySet,
	ErrPairMismatch, ErrSideMismatch, ErrBadPriceMatch, ErrSlippageTooBig,
	ErrInsufficientLocked, ErrInsufficientValue, ErrUnexpectedValue, ErrNativeUnsupported,
	ErrNoFeesToWithdraw, ErrTransferFailed, ErrUnknownTxnType, ErrMalformedTxn,
}
