package dex

import (
	"context"
	"math/big"
	"testing"

	"github.com/helinwang/matchdex/pkg/calc"
	"github.com/helinwang/matchdex/pkg/ledger"
)

func BenchmarkSigRecover(b *testing.B) {
	_, sk := RandKeyPair()
	msg := []byte("hello")
	sig := sk.Sign(msg)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := sig.Recover(msg)
		if err != nil {
			panic(err)
		}
	}
}

func BenchmarkApplyLimitOrder(b *testing.B) {
	const numAccounts = 100
	bank := ledger.NewBank(engineAddr)
	sks := make([]SK, numAccounts)
	for i := range sks {
		_, sks[i] = RandKeyPair()
		bank.Mint(tokenA, sks[i].Addr(), units("1000000000"))
		bank.Mint(tokenB, sks[i].Addr(), units("1000000000"))
	}

	e, err := NewEngine(NewMemDatabase(), bank, Config{
		Address:   engineAddr,
		Owner:     owner,
		FeeRateBP: feeRate,
	}, WithTokenMetadata(bank))
	if err != nil {
		panic(err)
	}

	txns := make([][]byte, b.N)
	nonces := make([]uint64, numAccounts)
	for i := range txns {
		idx := i % numAccounts
		side, price := calc.Sell, "2"
		if i%2 == 1 {
			side, price = calc.Buy, "1"
		}

		txns[i] = MakePlaceLimitOrderTxn(sks[idx], PlaceLimitOrderTxn{
			TokenA: tokenA,
			TokenB: tokenB,
			Side:   side,
			Amount: units("1"),
			Price:  units(price),
		}, nonces[idx], new(big.Int))
		nonces[idx]++
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := e.Apply(ctx, txns[i])
		if err != nil {
			panic(err)
		}
	}
}
