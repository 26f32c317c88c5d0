package main

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/helinwang/matchdex/pkg/api"
	"github.com/helinwang/matchdex/pkg/calc"
	"github.com/helinwang/matchdex/pkg/dex"
	"github.com/urfave/cli"
)

var rpcAddr string
var credentialPath string
var decimals int

type order struct {
	ID           uint64 `json:"id"`
	Owner        string `json:"owner"`
	TokenA       string `json:"token_a"`
	TokenB       string `json:"token_b"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	AmountFilled string `json:"amount_filled"`
	Price        string `json:"price"`
	LockedAmount string `json:"locked_amount"`
	Status       string `json:"status"`
}

type bookEntry struct {
	OrderID   uint64 `json:"order_id"`
	Type      string `json:"type"`
	Price     string `json:"price"`
	Remaining string `json:"remaining"`
}

type book struct {
	Base  string      `json:"base"`
	Quote string      `json:"quote"`
	Bids  []bookEntry `json:"bids"`
	Asks  []bookEntry `json:"asks"`
}

func loadSK() (dex.SK, error) {
	if credentialPath == "" {
		return nil, fmt.Errorf("no credential, use -c KEY_FILE")
	}

	c, err := dex.LoadCredential(credentialPath)
	if err != nil {
		return nil, err
	}
	return c.SK, nil
}

func parseAddr(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address: %s", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	return calc.ParseFixed(s, int32(decimals))
}

// units formats an integer amount in the --decimals unit.
func units(s string) string {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return s
	}
	return calc.FormatFixed(v, int32(decimals))
}

func parseIDs(s string) ([]uint64, error) {
	var ids []uint64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid order id %q: %v", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseNonce(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid authorization nonce: %s", s)
	}
	return n, nil
}

func value(c *cli.Context) (*big.Int, error) {
	v := c.String("value")
	if v == "" {
		return nil, nil
	}
	return calc.ParseFixed(v, dex.DefaultTokenDecimals)
}

func checkArgs(c *cli.Context, n int) error {
	if len(c.Args()) < n {
		return fmt.Errorf("%s needs %d arguments (received: %d), please check usage using ./wallet -h", c.Command.Name, n, len(c.Args()))
	}
	return nil
}

// send signs a transaction of type t with the credential's next nonce
// and submits it.
func send(c *cli.Context, t dex.TxnType, payload interface{}) error {
	sk, err := loadSK()
	if err != nil {
		return err
	}

	v, err := value(c)
	if err != nil {
		return err
	}

	cl := api.NewClient(rpcAddr)
	n, err := cl.Nonce(sk.Addr())
	if err != nil {
		return err
	}

	r, err := cl.Submit(dex.MakeTxn(sk, t, payload, n, v))
	if err != nil {
		return err
	}

	fmt.Println(r.Hash.Hex())
	for _, id := range r.OrderIDs {
		fmt.Printf("order %d\n", id)
	}
	return nil
}

func keygen(c *cli.Context) error {
	if err := checkArgs(c, 1); err != nil {
		return err
	}

	pk, sk := dex.RandKeyPair()
	err := dex.SaveCredential(c.Args().First(), dex.Credential{PK: pk, SK: sk})
	if err != nil {
		return err
	}

	fmt.Println(pk.Addr().Hex())
	return nil
}

func printAccount(c *cli.Context) error {
	var addr common.Address
	if s := c.Args().First(); s != "" {
		var err error
		addr, err = parseAddr(s)
		if err != nil {
			return err
		}
	} else {
		sk, err := loadSK()
		if err != nil {
			return err
		}
		addr = sk.Addr()
	}

	cl := api.NewClient(rpcAddr)
	n, err := cl.Nonce(addr)
	if err != nil {
		return err
	}

	var ids struct {
		IDs []uint64 `json:"ids"`
	}
	err = cl.Get("/v1/users/"+addr.Hex()+"/orders", &ids)
	if err != nil {
		return err
	}

	fmt.Printf("Addr:\n%s\nNonce: %d\n", addr.Hex(), n)
	fmt.Println("\nOrders:")
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.Debug)
	_, err = fmt.Fprintln(tw, "\tID\tTokenA\tTokenB\tSide\tType\tPrice\tAmount\tFilled\tStatus\t")
	if err != nil {
		return err
	}

	for _, id := range ids.IDs {
		var o order
		err = cl.Get(fmt.Sprintf("/v1/orders/%d", id), &o)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(tw, "\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n", o.ID, o.TokenA, o.TokenB,
			o.Side, o.Type, o.Price, units(o.Amount), units(o.AmountFilled), o.Status)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printBook(c *cli.Context) error {
	if err := checkArgs(c, 2); err != nil {
		return err
	}

	var b book
	err := api.NewClient(rpcAddr).Get(fmt.Sprintf("/v1/pairs/%s/%s/book?depth=%d", c.Args()[0], c.Args()[1], c.Int("depth")), &b)
	if err != nil {
		return err
	}

	fmt.Printf("Base: %s\nQuote: %s\n", b.Base, b.Quote)
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.AlignRight|tabwriter.Debug)
	_, err = fmt.Fprintln(tw, "\tSide\tID\tType\tPrice\tRemaining\t")
	if err != nil {
		return err
	}

	for _, side := range []struct {
		name    string
		entries []bookEntry
	}{{"ask", b.Asks}, {"bid", b.Bids}} {
		for _, e := range side.entries {
			_, err = fmt.Fprintf(tw, "\t%s\t%d\t%s\t%s\t%s\t\n", side.name, e.OrderID, e.Type, e.Price, units(e.Remaining))
			if err != nil {
				return err
			}
		}
	}
	return tw.Flush()
}

func printOrder(c *cli.Context) error {
	if err := checkArgs(c, 1); err != nil {
		return err
	}

	var o map[string]interface{}
	err := api.NewClient(rpcAddr).Get("/v1/orders/"+c.Args().First(), &o)
	if err != nil {
		return err
	}

	for _, k := range []string{"id", "owner", "token_a", "token_b", "side", "type", "amount", "amount_filled",
		"price", "limit_price", "reference_price", "slippage_bp", "locked_amount", "fee_amount", "fee_collected",
		"cancellable", "status"} {
		fmt.Printf("%-16s %v\n", k, o[k])
	}
	return nil
}

func printLock(c *cli.Context) error {
	if err := checkArgs(c, 5); err != nil {
		return err
	}

	args := c.Args()
	amount, err := parseAmount(args[4])
	if err != nil {
		return err
	}

	q := fmt.Sprintf("/v1/lock?token_a=%s&token_b=%s&side=%s&type=%s&amount=%s&slippage_bp=%d",
		args[0], args[1], args[2], args[3], amount, c.Uint64("slippage"))
	if len(args) > 5 {
		q += "&price=" + args[5]
	}

	var r struct {
		Lock  string `json:"lock"`
		Fee   string `json:"fee"`
		Price string `json:"price"`
	}
	err = api.NewClient(rpcAddr).Get(q, &r)
	if err != nil {
		return err
	}

	fmt.Printf("lock:  %s\nfee:   %s\nprice: %s\n", units(r.Lock), units(r.Fee), r.Price)
	return nil
}

func orderArgs(c *cli.Context) (common.Address, common.Address, calc.Side, *big.Int, error) {
	args := c.Args()
	a, err := parseAddr(args[0])
	if err != nil {
		return a, a, 0, nil, err
	}

	b, err := parseAddr(args[1])
	if err != nil {
		return a, b, 0, nil, err
	}

	side, err := calc.ParseSide(args[2])
	if err != nil {
		return a, b, 0, nil, err
	}

	amount, err := parseAmount(args[3])
	return a, b, side, amount, err
}

func placeLimit(c *cli.Context) error {
	if err := checkArgs(c, 5); err != nil {
		return err
	}

	a, b, side, amount, err := orderArgs(c)
	if err != nil {
		return err
	}

	price, err := calc.ParsePrice(c.Args()[4])
	if err != nil {
		return fmt.Errorf("parse price error: %v", err)
	}

	return send(c, dex.PlaceLimitOrder, dex.PlaceLimitOrderTxn{
		TokenA: a,
		TokenB: b,
		Side:   side,
		Amount: amount,
		Price:  price,
	})
}

func placeMarket(c *cli.Context) error {
	if err := checkArgs(c, 7); err != nil {
		return err
	}

	a, b, side, amount, err := orderArgs(c)
	if err != nil {
		return err
	}

	args := c.Args()
	slippage, err := strconv.ParseUint(args[4], 10, 64)
	if err != nil {
		return fmt.Errorf("parse slippage error: %v", err)
	}

	authNonce, err := parseNonce(args[5])
	if err != nil {
		return err
	}

	sig, err := hexutil.Decode(args[6])
	if err != nil {
		return fmt.Errorf("parse authorization error: %v", err)
	}

	return send(c, dex.PlaceMarketOrder, dex.PlaceMarketOrderTxn{
		TokenA:     a,
		TokenB:     b,
		Side:       side,
		Amount:     amount,
		SlippageBP: slippage,
		AuthNonce:  authNonce,
		AuthSig:    sig,
	})
}

func cancelOrder(c *cli.Context) error {
	if err := checkArgs(c, 1); err != nil {
		return err
	}

	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return err
	}
	return send(c, dex.CancelOrder, dex.CancelOrderTxn{ID: id})
}

func matchOrders(c *cli.Context) error {
	if err := checkArgs(c, 4); err != nil {
		return err
	}

	args := c.Args()
	initiating, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return err
	}

	matched, err := parseIDs(args[1])
	if err != nil {
		return err
	}

	authNonce, err := parseNonce(args[2])
	if err != nil {
		return err
	}

	sig, err := hexutil.Decode(args[3])
	if err != nil {
		return fmt.Errorf("parse authorization error: %v", err)
	}

	return send(c, dex.MatchOrders, dex.MatchOrdersTxn{
		Initiating: initiating,
		Matched:    matched,
		AuthNonce:  authNonce,
		AuthSig:    sig,
	})
}

func sign(digest common.Hash) error {
	sk, err := loadSK()
	if err != nil {
		return err
	}

	key, err := sk.Key()
	if err != nil {
		return err
	}

	sig, err := dex.SignAuthorization(key, digest)
	if err != nil {
		return err
	}

	fmt.Println(hexutil.Encode(sig))
	return nil
}

func signMatch(c *cli.Context) error {
	if err := checkArgs(c, 3); err != nil {
		return err
	}

	args := c.Args()
	initiating, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return err
	}

	matched, err := parseIDs(args[1])
	if err != nil {
		return err
	}

	authNonce, err := parseNonce(args[2])
	if err != nil {
		return err
	}

	engine, err := api.NewClient(rpcAddr).Engine()
	if err != nil {
		return err
	}
	return sign(dex.MatchDigest(engine, initiating, matched, authNonce))
}

func signMarket(c *cli.Context) error {
	if err := checkArgs(c, 7); err != nil {
		return err
	}

	args := c.Args()
	owner, err := parseAddr(args[0])
	if err != nil {
		return err
	}

	a, err := parseAddr(args[1])
	if err != nil {
		return err
	}

	b, err := parseAddr(args[2])
	if err != nil {
		return err
	}

	side, err := calc.ParseSide(args[3])
	if err != nil {
		return err
	}

	amount, err := parseAmount(args[4])
	if err != nil {
		return err
	}

	slippage, err := strconv.ParseUint(args[5], 10, 64)
	if err != nil {
		return err
	}

	authNonce, err := parseNonce(args[6])
	if err != nil {
		return err
	}

	engine, err := api.NewClient(rpcAddr).Engine()
	if err != nil {
		return err
	}
	return sign(dex.MarketOrderDigest(engine, owner, a, b, amount, side, slippage, authNonce))
}

func withdrawFees(c *cli.Context) error {
	var tokens []common.Address
	for _, s := range c.Args() {
		t, err := parseAddr(s)
		if err != nil {
			return err
		}
		tokens = append(tokens, t)
	}
	return send(c, dex.WithdrawFees, dex.WithdrawFeesTxn{Tokens: tokens})
}

func setFeeRate(c *cli.Context) error {
	if err := checkArgs(c, 1); err != nil {
		return err
	}

	rate, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return err
	}
	return send(c, dex.SetFeeRate, dex.SetFeeRateTxn{RateBP: rate})
}

func printRoot(c *cli.Context) error {
	var r struct {
		Root string `json:"root"`
	}
	err := api.NewClient(rpcAddr).Get("/v1/state/root", &r)
	if err != nil {
		return err
	}

	fmt.Println(r.Root)
	return nil
}

func printReceipt(c *cli.Context) error {
	if err := checkArgs(c, 1); err != nil {
		return err
	}

	str := c.Args().First()
	b, err := hexutil.Decode(str)
	if err != nil || len(b) != common.HashLength {
		return fmt.Errorf("invalid transaction hash %q", str)
	}

	r, err := api.NewClient(rpcAddr).Receipt(common.BytesToHash(b))
	if err != nil {
		return err
	}

	fmt.Printf("type: %s, sender: %s, nonce: %d, orders: %v\n", r.Type, r.Sender.Hex(), r.Nonce, r.OrderIDs)
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "matchdex wallet"
	app.Usage = ""

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "credential, c",
			Usage:       "path to the key file",
			Destination: &credentialPath,
		},
		cli.StringFlag{
			Name:        "addr",
			Value:       "127.0.0.1:8080",
			Usage:       "node's HTTP endpoint",
			Destination: &rpcAddr,
		},
		cli.IntFlag{
			Name:        "decimals",
			Value:       18,
			Usage:       "decimals of the amounts given and printed",
			Destination: &decimals,
		},
	}

	valueFlag := cli.StringFlag{Name: "value", Usage: "native asset attached to the transaction"}
	app.Commands = []cli.Command{
		{
			Name:   "keygen",
			Usage:  "Generate a key: ./wallet keygen KEY_FILE",
			Action: keygen,
		},
		{
			Name:   "account",
			Usage:  "Print account nonce and orders: ./wallet account ADDRESS, or, ./wallet -c KEY_FILE account",
			Action: printAccount,
		},
		{
			Name:   "order",
			Usage:  "Print an order: ./wallet order ID",
			Action: printOrder,
		},
		{
			Name:   "book",
			Usage:  "Print the active orders of a pair: ./wallet book TOKEN_A TOKEN_B",
			Action: printBook,
			Flags:  []cli.Flag{cli.IntFlag{Name: "depth", Value: 20, Usage: "entries per side"}},
		},
		{
			Name:   "lock",
			Usage:  "Print what an order would lock: ./wallet lock TOKEN_A TOKEN_B SIDE TYPE AMOUNT [PRICE]",
			Action: printLock,
			Flags:  []cli.Flag{cli.Uint64Flag{Name: "slippage", Usage: "slippage of a market order in basis points"}},
		},
		{
			Name:   "limit",
			Usage:  "Place a limit order: ./wallet -c KEY_FILE limit TOKEN_A TOKEN_B SIDE (buy or sell TOKEN_A) AMOUNT (of TOKEN_A) PRICE",
			Action: placeLimit,
			Flags:  []cli.Flag{valueFlag},
		},
		{
			Name:   "market",
			Usage:  "Place a market order: ./wallet -c KEY_FILE market TOKEN_A TOKEN_B SIDE AMOUNT SLIPPAGE_BP AUTH_NONCE AUTH_SIG (AUTH_SIG from sign-market)",
			Action: placeMarket,
			Flags:  []cli.Flag{valueFlag},
		},
		{
			Name:   "cancel",
			Usage:  "Cancel an order: ./wallet -c KEY_FILE cancel ID",
			Action: cancelOrder,
		},
		{
			Name:   "match",
			Usage:  "Match orders: ./wallet -c KEY_FILE match INITIATING_ID MATCHED_IDS (comma separated) AUTH_NONCE AUTH_SIG (AUTH_SIG from sign-match)",
			Action: matchOrders,
		},
		{
			Name:   "sign-match",
			Usage:  "Authorize a match with the backend key: ./wallet -c BACKEND_KEY_FILE sign-match INITIATING_ID MATCHED_IDS AUTH_NONCE",
			Action: signMatch,
		},
		{
			Name:   "sign-market",
			Usage:  "Authorize a market order with the backend key: ./wallet -c BACKEND_KEY_FILE sign-market OWNER TOKEN_A TOKEN_B SIDE AMOUNT SLIPPAGE_BP AUTH_NONCE",
			Action: signMarket,
		},
		{
			Name:   "withdraw-fees",
			Usage:  "Withdraw collected fees, all tokens when none given: ./wallet -c OWNER_KEY_FILE withdraw-fees [TOKEN...]",
			Action: withdrawFees,
		},
		{
			Name:   "set-fee-rate",
			Usage:  "Set the fee rate in basis points: ./wallet -c OWNER_KEY_FILE set-fee-rate RATE",
			Action: setFeeRate,
		},
		{
			Name:   "root",
			Usage:  "Print the state root: ./wallet root",
			Action: printRoot,
		},
		{
			Name:   "receipt",
			Usage:  "Print the receipt of a recently submitted transaction: ./wallet receipt TXN_HASH",
			Action: printReceipt,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Printf("command failed with error: %v\n", err)
		os.Exit(1)
	}
}
