package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/helinwang/matchdex/pkg/dex"
)

// Client talks to a node's HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client of the node at addr, "host:port" or a
// URL.
func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{base: strings.TrimRight(addr, "/"), http: &http.Client{Timeout: 10 * time.Second}}
}

// StatusError is a non 200 response.
type StatusError struct {
	Status int
	Msg    string `json:"error"`
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Msg)
}

func (c *Client) do(req *http.Request, v interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		e := &StatusError{Status: resp.StatusCode}
		if json.Unmarshal(b, e) != nil {
			e.Msg = string(b)
		}
		return e
	}

	if v == nil {
		return nil
	}
	return json.Unmarshal(b, v)
}

// Get decodes the JSON response of path into v.
func (c *Client) Get(path string, v interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, v)
}

// Submit posts a signed transaction.
func (c *Client) Submit(raw []byte) (dex.Receipt, error) {
	body, err := json.Marshal(txnRequest{Txn: hexutil.Encode(raw)})
	if err != nil {
		return dex.Receipt{}, err
	}

	req, err := http.NewRequest(http.MethodPost, c.base+"/v1/txns", bytes.NewReader(body))
	if err != nil {
		return dex.Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var r dex.Receipt
	err = c.do(req, &r)
	return r, err
}

// Receipt returns the receipt of a recently applied transaction.
func (c *Client) Receipt(hash common.Hash) (dex.Receipt, error) {
	var r dex.Receipt
	err := c.Get("/v1/txns/"+hash.Hex(), &r)
	return r, err
}

func (c *Client) Nonce(addr common.Address) (uint64, error) {
	var r struct {
		Nonce uint64 `json:"nonce"`
	}
	err := c.Get("/v1/accounts/"+addr.Hex()+"/nonce", &r)
	return r.Nonce, err
}

// Engine returns the engine address, which authorization digests
// are bound to.
func (c *Client) Engine() (common.Address, error) {
	var r struct {
		Engine common.Address `json:"engine"`
	}
	err := c.Get("/v1/settings", &r)
	return r.Engine, err
}

// Book returns the raw book of a pair, amounts as integer strings.
func (c *Client) Book(tokenA, tokenB common.Address, depth int) (BookView, error) {
	var r BookView
	err := c.Get(fmt.Sprintf("/v1/pairs/%s/%s/book?depth=%d", tokenA.Hex(), tokenB.Hex(), depth), &r)
	return r, err
}

// CanMatch reports whether the two orders can be matched.
func (c *Client) CanMatch(initiating, matched uint64) (bool, error) {
	var r struct {
		CanMatch bool `json:"can_match"`
	}
	err := c.Get(fmt.Sprintf("/v1/match/%d/%d", initiating, matched), &r)
	return r.CanMatch, err
}

