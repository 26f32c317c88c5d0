package dex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ordersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchdex_orders_created_total",
			Help: "Orders created, by side and type.",
		},
		[]string{"side", "type"},
	)
	ordersFilled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchdex_order_fills_total",
		Help: "Order fills, one per order per match step.",
	})
	ordersClosed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchdex_orders_closed_total",
		Help: "Orders fully filled.",
	})
	ordersCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchdex_orders_cancelled_total",
		Help: "Orders cancelled.",
	})
	rejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchdex_rejected_total",
			Help: "Rejected operations, by operation and error.",
		},
		[]string{"op", "error"},
	)
	feeLedger = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matchdex_fee_ledger",
			Help: "Fee ledger balance in token base units.",
		},
		[]string{"token"},
	)
)

func init() {
	prometheus.MustRegister(ordersCreated, ordersFilled, ordersClosed, ordersCancelled, rejected, feeLedger)
}

func float(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// observe updates the metrics from a committed event. The engine lock
// is held.
func (e *Engine) observe(ev Event) {
	switch ev.Type {
	case OrderCreated:
		o, ok := loadOrder(e.state, ev.OrderID)
		if ok {
			ordersCreated.WithLabelValues(o.Side.String(), o.Type.String()).Inc()
		}
	case OrderFilled:
		ordersFilled.Inc()
	case OrderClosed:
		ordersClosed.Inc()
	case OrderCancelled:
		ordersCancelled.Inc()
	}

	switch ev.Type {
	case OrderFilled, OrderCancelled:
		e.observeFee(ev.Token)
		e.observeFee(ev.CounterToken)
	case FeesWithdrawn:
		e.observeFee(ev.Token)
	}
}

func (e *Engine) observeFee(token common.Address) {
	feeLedger.WithLabelValues(token.Hex()).Set(float(loadFee(e.state, token)))
}
