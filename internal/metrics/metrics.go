package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors for the pair ledger.
type Metrics struct {
	SwapsTotal        *prometheus.CounterVec
	SwapVolume        *prometheus.CounterVec
	FeesEarned        *prometheus.CounterVec
	Corrections       *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	LiquidityDeposits *prometheus.CounterVec
	Claims            *prometheus.CounterVec
	PairsFunded       prometheus.Counter
}

// New registers the ledger collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		SwapsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairdex",
			Subsystem: "ledger",
			Name:      "swaps_total",
			Help:      "Total number of swaps executed",
		}, []string{"token_id", "direction"}),
		SwapVolume: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairdex",
			Subsystem: "ledger",
			Name:      "swap_volume_total",
			Help:      "Swap input volume in base units",
		}, []string{"token_id", "asset"}),
		FeesEarned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairdex",
			Subsystem: "ledger",
			Name:      "fees_earned_total",
			Help:      "Swap fee earnings accrued in base units, before invariant corrections",
		}, []string{"token_id", "asset"}),
		Corrections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairdex",
			Subsystem: "ledger",
			Name:      "k_corrections_total",
			Help:      "Invariant corrections applied after swaps",
		}, []string{"token_id", "kind"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairdex",
			Subsystem: "ledger",
			Name:      "rejections_total",
			Help:      "Operations rejected before any state change",
		}, []string{"operation", "kind"}),
		LiquidityDeposits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairdex",
			Subsystem: "ledger",
			Name:      "liquidity_deposited_total",
			Help:      "Liquidity deposited by the owner in base units",
		}, []string{"token_id", "asset"}),
		Claims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pairdex",
			Subsystem: "ledger",
			Name:      "payouts_total",
			Help:      "Owner payouts from withdrawals and earnings claims in base units",
		}, []string{"asset", "reason"}),
		PairsFunded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pairdex",
			Subsystem: "ledger",
			Name:      "pairs_funded_total",
			Help:      "Pairs that transitioned from Funding to Successful",
		}),
	}
}

// Add increments a counter by a big integer amount. Very large amounts lose precision.
func Add(c prometheus.Counter, amount *big.Int) {
	if c == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	v, _ := new(big.Float).SetInt(amount).Float64()
	c.Add(v)
}
