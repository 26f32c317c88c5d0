package main

import (
	"bufio"
	"fmt"
	"math/big"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/helinwang/matchdex/pkg/api"
	"github.com/helinwang/matchdex/pkg/calc"
	"github.com/helinwang/matchdex/pkg/dex"
	"github.com/urfave/cli"
)

type replayOrder struct {
	txn dex.PlaceLimitOrderTxn
}

func parseLine(line string, decimals int32) (replayOrder, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 5 {
		return replayOrder{}, fmt.Errorf("expecting 5 fields, got %d", len(fields))
	}

	if !common.IsHexAddress(fields[0]) || !common.IsHexAddress(fields[1]) {
		return replayOrder{}, fmt.Errorf("invalid token address")
	}

	side, err := calc.ParseSide(fields[2])
	if err != nil {
		return replayOrder{}, err
	}

	price, err := calc.ParsePrice(fields[3])
	if err != nil {
		return replayOrder{}, err
	}

	amount, err := calc.ParseFixed(fields[4], decimals)
	if err != nil {
		return replayOrder{}, err
	}

	return replayOrder{txn: dex.PlaceLimitOrderTxn{
		TokenA: common.HexToAddress(fields[0]),
		TokenB: common.HexToAddress(fields[1]),
		Side:   side,
		Amount: amount,
		Price:  price,
	}}, nil
}

func loadCredentials(dir string) ([]dex.SK, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var r []dex.SK
	for _, f := range files {
		if f.IsDir() || !strings.HasPrefix(f.Name(), "account-") {
			continue
		}

		c, err := dex.LoadCredential(filepath.Join(dir, f.Name()))
		if err != nil {
			fmt.Printf("%v, skip\n", err)
			continue
		}
		r = append(r, c.SK)
	}

	if len(r) == 0 {
		return nil, fmt.Errorf("no account key in %s", dir)
	}
	return r, nil
}

// account tracks the nonce of a replaying account locally.
type account struct {
	sk    dex.SK
	nonce uint64
}

type replayer struct {
	client   *api.Client
	accounts []*account
	// backend, when set, matches every placed order against the
	// book.
	backend *account
	engine  common.Address
	rand    *rand.Rand

	placed, matched, failed int
}

func (r *replayer) submit(a *account, t dex.TxnType, payload interface{}) (dex.Receipt, error) {
	rc, err := r.client.Submit(dex.MakeTxn(a.sk, t, payload, a.nonce, nil))
	if err != nil {
		return rc, err
	}
	a.nonce++
	return rc, nil
}

func inBook(entries []api.BookEntry, id uint64) bool {
	for _, e := range entries {
		if e.OrderID == id {
			return true
		}
	}
	return false
}

// candidates returns the resting orders of the other side of id that
// id can match, best first.
func (r *replayer) candidates(id uint64, o dex.PlaceLimitOrderTxn) ([]uint64, error) {
	book, err := r.client.Book(o.TokenA, o.TokenB, 20)
	if err != nil {
		return nil, err
	}

	others := book.Asks
	if !inBook(book.Bids, id) {
		if !inBook(book.Asks, id) {
			// filled on placement or beyond the depth
			return nil, nil
		}
		others = book.Bids
	}

	var ids []uint64
	for _, e := range others {
		ok, err := r.client.CanMatch(id, e.OrderID)
		if err != nil {
			return nil, err
		}

		if !ok {
			break
		}
		ids = append(ids, e.OrderID)
	}
	return ids, nil
}

func (r *replayer) match(id uint64, o dex.PlaceLimitOrderTxn) error {
	ids, err := r.candidates(id, o)
	if err != nil || len(ids) == 0 {
		return err
	}

	key, err := r.backend.sk.Key()
	if err != nil {
		return err
	}

	authNonce := new(big.Int).SetUint64(r.rand.Uint64())
	sig, err := dex.SignAuthorization(key, dex.MatchDigest(r.engine, id, ids, authNonce))
	if err != nil {
		return err
	}

	_, err = r.submit(r.backend, dex.MatchOrders, dex.MatchOrdersTxn{
		Initiating: id,
		Matched:    ids,
		AuthNonce:  authNonce,
		AuthSig:    sig,
	})
	if err != nil {
		return err
	}

	r.matched++
	return nil
}

func (r *replayer) replay(o replayOrder, i int) {
	a := r.accounts[i%len(r.accounts)]
	rc, err := r.submit(a, dex.PlaceLimitOrder, o.txn)
	if err != nil {
		fmt.Printf("order %d failed: %v\n", i, err)
		r.failed++
		return
	}
	r.placed++

	if r.backend == nil {
		return
	}

	err = r.match(rc.OrderIDs[0], o.txn)
	if err != nil {
		fmt.Printf("match of order %d failed: %v\n", rc.OrderIDs[0], err)
	}
}

func newAccount(client *api.Client, sk dex.SK) (*account, error) {
	n, err := client.Nonce(sk.Addr())
	if err != nil {
		return nil, err
	}
	return &account{sk: sk, nonce: n}, nil
}

func runReplay(c *cli.Context) error {
	client := api.NewClient(c.String("addr"))
	sks, err := loadCredentials(c.String("c"))
	if err != nil {
		return err
	}

	// stable account order for reproducible runs
	sort.Slice(sks, func(i, j int) bool {
		return sks[i].Addr().Hex() < sks[j].Addr().Hex()
	})

	r := &replayer{client: client, rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, sk := range sks {
		a, err := newAccount(client, sk)
		if err != nil {
			return err
		}
		r.accounts = append(r.accounts, a)
	}

	if path := c.String("backend"); path != "" {
		cred, err := dex.LoadCredential(path)
		if err != nil {
			return err
		}

		r.backend, err = newAccount(client, cred.SK)
		if err != nil {
			return err
		}

		r.engine, err = client.Engine()
		if err != nil {
			return err
		}
	}

	f, err := os.Open(c.String("order"))
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Now()
	scanner := bufio.NewScanner(f)
	i := 0
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}

		o, err := parseLine(scanner.Text(), int32(c.Int("decimals")))
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}

		r.replay(o, i)
		i++
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	dur := time.Since(start)
	fmt.Printf("placed %d, failed %d, matches %d in %v (%.1f orders/s)\n",
		r.placed, r.failed, r.matched, dur, float64(r.placed)/dur.Seconds())
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "order_replayer"
	app.Usage = "replay an order file against a node"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "c", Usage: "path to the directory containing account-N key files"},
		cli.StringFlag{Name: "order", Usage: "path to the order file to replay"},
		cli.StringFlag{Name: "backend", Usage: "backend key file, matches the placed orders when set"},
		cli.StringFlag{Name: "addr", Value: "127.0.0.1:8080", Usage: "node's HTTP endpoint"},
		cli.IntFlag{Name: "decimals", Value: 18, Usage: "decimals of the amounts in the order file"},
	}
	app.Action = runReplay

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "command failed with error: %v\n", err)
		os.Exit(1)
	}
}
