package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/helinwang/matchdex/pkg/calc"
)

type TxnType uint8

const (
	PlaceLimitOrder TxnType = iota
	PlaceMarketOrder
	CancelOrder
	MatchOrders
	StartSale
	WithdrawFees
	SetFeeRate
	SetBackend
	SetAdminToken
	SetPairDecimals
	SetTokenVerified
)

var txnTypeNames = []string{
	"place_limit_order",
	"place_market_order",
	"cancel_order",
	"match_orders",
	"start_sale",
	"withdraw_fees",
	"set_fee_rate",
	"set_backend",
	"set_admin_token",
	"set_pair_decimals",
	"set_token_verified",
}

func (t TxnType) String() string {
	if int(t) < len(txnTypeNames) {
		return txnTypeNames[t]
	}
	return fmt.Sprintf("txn_type(%d)", uint8(t))
}

// Txn is a signed call. Owner is the caller, Nonce its account
// sequence number, Value the native asset attached.
type Txn struct {
	T     TxnType
	Data  []byte
	Nonce uint64
	Owner common.Address
	Value *big.Int
	Sig   Sig
}

func (b *Txn) Encode(withSig bool) []byte {
	en := *b
	if !withSig {
		en.Sig = nil
	}
	if en.Value == nil {
		en.Value = new(big.Int)
	}

	d, err := rlp.EncodeToBytes(en)
	if err != nil {
		panic(err)
	}

	return d
}

func (b *Txn) Bytes() []byte {
	return b.Encode(true)
}

func (b *Txn) Hash() common.Hash {
	return crypto.Keccak256Hash(b.Encode(true))
}

func DecodeTxn(raw []byte) (*Txn, error) {
	var t Txn
	err := rlp.DecodeBytes(raw, &t)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTxn, err)
	}
	return &t, nil
}

type PlaceLimitOrderTxn struct {
	TokenA common.Address
	TokenB common.Address
	Side   calc.Side
	Amount *big.Int
	Price  *big.Int
}

type PlaceMarketOrderTxn struct {
	TokenA     common.Address
	TokenB     common.Address
	Side       calc.Side
	Amount     *big.Int
	SlippageBP uint64
	AuthNonce  *big.Int
	AuthSig    []byte
}

type CancelOrderTxn struct {
	ID uint64
}

type MatchOrdersTxn struct {
	Initiating uint64
	Matched    []uint64
	AuthNonce  *big.Int
	AuthSig    []byte
}

type StartSaleTxn struct {
	Token   common.Address
	Counter common.Address
	Amounts []*big.Int
	Prices  []*big.Int
}

// WithdrawFeesTxn withdraws the fees of Tokens, or of every token
// when Tokens is empty.
type WithdrawFeesTxn struct {
	Tokens []common.Address
}

type SetFeeRateTxn struct {
	RateBP uint64
}

type SetBackendTxn struct {
	Backend common.Address
}

type SetAdminTokenTxn struct {
	Token common.Address
}

type SetPairDecimalsTxn struct {
	TokenA   common.Address
	TokenB   common.Address
	Decimals uint8
}

type SetTokenVerifiedTxn struct {
	Token    common.Address
	Verified bool
}

// MakeTxn encodes payload as a transaction of type t signed by sk.
func MakeTxn(sk SK, t TxnType, payload interface{}, nonce uint64, value *big.Int) []byte {
	data, err := rlp.EncodeToBytes(payload)
	if err != nil {
		panic(err)
	}

	txn := &Txn{
		T:     t,
		Data:  data,
		Nonce: nonce,
		Owner: sk.Addr(),
		Value: value,
	}

	txn.Sig = sk.Sign(txn.Encode(false))
	return txn.Encode(true)
}

func MakePlaceLimitOrderTxn(sk SK, t PlaceLimitOrderTxn, nonce uint64, value *big.Int) []byte {
	return MakeTxn(sk, PlaceLimitOrder, t, nonce, value)
}

func MakePlaceMarketOrderTxn(sk SK, t PlaceMarketOrderTxn, nonce uint64, value *big.Int) []byte {
	return MakeTxn(sk, PlaceMarketOrder, t, nonce, value)
}

func MakeCancelOrderTxn(sk SK, id uint64, nonce uint64) []byte {
	return MakeTxn(sk, CancelOrder, CancelOrderTxn{ID: id}, nonce, nil)
}

func MakeMatchOrdersTxn(sk SK, t MatchOrdersTxn, nonce uint64) []byte {
	return MakeTxn(sk, MatchOrders, t, nonce, nil)
}

func MakeWithdrawFeesTxn(sk SK, tokens []common.Address, nonce uint64) []byte {
	return MakeTxn(sk, WithdrawFees, WithdrawFeesTxn{Tokens: tokens}, nonce, nil)
}

// Receipt describes an applied transaction.
type Receipt struct {
	Hash   common.Hash    `json:"hash"`
	Type   string         `json:"type"`
	Sender common.Address `json:"sender"`
	Nonce  uint64         `json:"nonce"`
	// OrderIDs are the orders the transaction created.
	OrderIDs []uint64 `json:"order_ids,omitempty"`
}

func decodeData(txn *Txn, v interface{}) error {
	err := rlp.DecodeBytes(txn.Data, v)
	if err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedTxn, txn.T, err)
	}
	return nil
}

// Apply verifies and executes a signed transaction. The sender's nonce
// advances only when the transaction succeeds.
func (e *Engine) Apply(ctx context.Context, raw []byte) (Receipt, error) {
	txn, err := DecodeTxn(raw)
	if err != nil {
		return Receipt{}, err
	}

	if int(txn.T) >= len(txnTypeNames) {
		return Receipt{}, fmt.Errorf("%w: %d", ErrUnknownTxnType, txn.T)
	}

	signer, err := txn.Sig.Recover(txn.Encode(false))
	if err != nil {
		return Receipt{}, err
	}

	if signer != txn.Owner {
		return Receipt{}, fmt.Errorf("%w: signed by %s, owner %s", ErrInvalidSignature, signer.Hex(), txn.Owner.Hex())
	}

	r := Receipt{Hash: txn.Hash(), Type: txn.T.String(), Sender: txn.Owner, Nonce: txn.Nonce}
	err = e.run(ctx, txn.T.String(), txn.Owner, txn.Value, func(t *transition, s *settlement) error {
		if n := t.accountNonce(txn.Owner); txn.Nonce != n {
			return fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, n, txn.Nonce)
		}
		t.bumpAccountNonce(txn.Owner)

		ids, err := e.dispatch(ctx, t, s, txn)
		r.OrderIDs = ids
		return err
	})
	if err != nil {
		return Receipt{}, err
	}

	return r, nil
}

func (e *Engine) dispatch(ctx context.Context, t *transition, s *settlement, txn *Txn) ([]uint64, error) {
	caller := txn.Owner
	switch txn.T {
	case PlaceLimitOrder:
		var p PlaceLimitOrderTxn
		if err := decodeData(txn, &p); err != nil {
			return nil, err
		}

		id, err := e.createLimitOrder(ctx, t, s, caller, LimitOrderRequest{
			TokenA: p.TokenA,
			TokenB: p.TokenB,
			Side:   p.Side,
			Amount: p.Amount,
			Price:  p.Price,
		})
		if err != nil {
			return nil, err
		}
		return []uint64{id}, nil
	case PlaceMarketOrder:
		var p PlaceMarketOrderTxn
		if err := decodeData(txn, &p); err != nil {
			return nil, err
		}

		id, err := e.createMarketOrder(ctx, t, s, caller, MarketOrderRequest{
			TokenA:     p.TokenA,
			TokenB:     p.TokenB,
			Side:       p.Side,
			Amount:     p.Amount,
			SlippageBP: p.SlippageBP,
			Auth:       Authorization{Nonce: p.AuthNonce, Sig: p.AuthSig},
		})
		if err != nil {
			return nil, err
		}
		return []uint64{id}, nil
	case CancelOrder:
		var p CancelOrderTxn
		if err := decodeData(txn, &p); err != nil {
			return nil, err
		}
		return nil, e.cancelOrder(t, s, caller, p.ID)
	case MatchOrders:
		var p MatchOrdersTxn
		if err := decodeData(txn, &p); err != nil {
			return nil, err
		}
		return nil, e.match(t, s, p.Initiating, p.Matched, Authorization{Nonce: p.AuthNonce, Sig: p.AuthSig})
	case StartSale:
		var p StartSaleTxn
		if err := decodeData(txn, &p); err != nil {
			return nil, err
		}
		return e.startSale(ctx, t, s, caller, SaleRequest{
			Token:   p.Token,
			Counter: p.Counter,
			Amounts: p.Amounts,
			Prices:  p.Prices,
		})
	case WithdrawFees:
		var p WithdrawFeesTxn
		if err := decodeData(txn, &p); err != nil {
			return nil, err
		}

		tokens := p.Tokens
		if len(tokens) == 0 {
			tokens = e.state.FeeTokens()
		}
		return nil, e.withdrawFees(t, s, caller, tokens)
	case SetFeeRate:
		var p SetFeeRateTxn
		if err := decodeData(txn, &p); err != nil {
			return nil, err
		}
		return nil, setFeeRate(t, s, caller, p.RateBP)
	case SetBackend:
		var p SetBackendTxn
		if err := decodeData(txn, &p); err != nil {
			return nil, err
		}
		return nil, setBackend(t, s, caller, p.Backend)
	case SetAdminToken:
		var p SetAdminTokenTxn
		if err := decodeData(txn, &p); err != nil {
			return nil, err
		}
		return nil, setAdminToken(t, s, caller, p.Token)
	case SetPairDecimals:
		var p SetPairDecimalsTxn
		if err := decodeData(txn, &p); err != nil {
			return nil, err
		}
		return nil, e.setPairDecimals(ctx, t, s, caller, p.TokenA, p.TokenB, p.Decimals)
	case SetTokenVerified:
		var p SetTokenVerifiedTxn
		if err := decodeData(txn, &p); err != nil {
			return nil, err
		}
		return nil, setTokenVerified(t, s, caller, p.Token, p.Verified)
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownTxnType, txn.T)
}
