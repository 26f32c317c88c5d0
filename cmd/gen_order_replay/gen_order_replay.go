package main

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli"
)

// replayLine is one order of the replay file:
// TOKEN_A,TOKEN_B,SIDE,PRICE,AMOUNT.
func replayLine(r *rand.Rand, pairs [][2]string, center decimal.Decimal, spreadBP int) string {
	p := pairs[r.Intn(len(pairs))]
	side := "buy"
	if r.Intn(2) == 0 {
		side = "sell"
	}

	// price within center +- spread, 4 decimals
	offset := decimal.NewFromInt(int64(r.Intn(2*spreadBP+1) - spreadBP)).Div(decimal.NewFromInt(10000))
	price := center.Mul(decimal.NewFromInt(1).Add(offset)).Round(4)
	amount := decimal.NewFromInt(int64(r.Intn(10) + 1))
	return fmt.Sprintf("%s,%s,%s,%s,%s", p[0], p[1], side, price, amount)
}

func parsePairs(s string) ([][2]string, error) {
	var pairs [][2]string
	for _, part := range strings.Split(s, ",") {
		tokens := strings.Split(strings.TrimSpace(part), "/")
		if len(tokens) != 2 || !common.IsHexAddress(tokens[0]) || !common.IsHexAddress(tokens[1]) {
			return nil, fmt.Errorf("pair %q not in TOKEN_A/TOKEN_B format", part)
		}
		pairs = append(pairs, [2]string{tokens[0], tokens[1]})
	}
	return pairs, nil
}

func genReplay(c *cli.Context) error {
	pairs, err := parsePairs(c.String("pairs"))
	if err != nil {
		return err
	}

	center, err := decimal.NewFromString(c.String("price"))
	if err != nil {
		return err
	}

	r := rand.New(rand.NewSource(c.Int64("seed")))
	for i := 0; i < c.Int("count"); i++ {
		fmt.Println(replayLine(r, pairs, center, c.Int("spread")))
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "gen_order_replay"
	app.Usage = "print random limit orders for order_replayer"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "pairs", Usage: "comma separated TOKEN_A/TOKEN_B pairs"},
		cli.StringFlag{Name: "price", Value: "1", Usage: "center price"},
		cli.IntFlag{Name: "spread", Value: 200, Usage: "maximum distance from the center price in basis points"},
		cli.Int64Flag{Name: "seed", Usage: "the seed used for the random order generation process"},
		cli.IntFlag{Name: "count", Value: 1000, Usage: "order count"},
	}
	app.Action = genReplay

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "command failed with error: %v\n", err)
		os.Exit(1)
	}
}
