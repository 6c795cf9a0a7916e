package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics exposes counters and gauges for the claim token and vault
// engines. A nil receiver is safe everywhere so callers can skip wiring.
type VaultMetrics struct {
	deposits        *prometheus.CounterVec
	redemptions     *prometheus.CounterVec
	rollovers       prometheus.Counter
	rebalances      prometheus.Counter
	melds           prometheus.Counter
	reserveValue    *prometheus.GaugeVec
	tokenSupply     *prometheus.GaugeVec
	reserveAssets   prometheus.Gauge
	lastRebalanceAt prometheus.Gauge
	keeperFailures  *prometheus.CounterVec
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "perpvault_deposits_total",
				Help: "Count of deposit operations by module.",
			}, []string{"module"}),
			redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "perpvault_redemptions_total",
				Help: "Count of redeem operations by module.",
			}, []string{"module"}),
			rollovers: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "perpvault_rollovers_total",
				Help: "Count of executed reserve rollovers.",
			}),
			rebalances: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "perpvault_rebalances_total",
				Help: "Count of executed vault rebalances.",
			}),
			melds: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "perpvault_melds_total",
				Help: "Count of executed tranche melds.",
			}),
			reserveValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "perpvault_reserve_value",
				Help: "Total valued reserve backing per module, in underlying units.",
			}, []string{"module"}),
			tokenSupply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "perpvault_token_supply",
				Help: "Outstanding token supply per module.",
			}, []string{"module"}),
			reserveAssets: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "perpvault_reserve_assets",
				Help: "Number of assets currently registered in the claim reserve.",
			}),
			lastRebalanceAt: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "perpvault_last_rebalance_timestamp",
				Help: "Unix timestamp of the most recent vault rebalance.",
			}),
			keeperFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "perpvault_keeper_failures_total",
				Help: "Count of failed keeper maintenance runs by task.",
			}, []string{"task"}),
		}
		prometheus.MustRegister(
			vaultRegistry.deposits,
			vaultRegistry.redemptions,
			vaultRegistry.rollovers,
			vaultRegistry.rebalances,
			vaultRegistry.melds,
			vaultRegistry.reserveValue,
			vaultRegistry.tokenSupply,
			vaultRegistry.reserveAssets,
			vaultRegistry.lastRebalanceAt,
			vaultRegistry.keeperFailures,
		)
	})
	return vaultRegistry
}

func (m *VaultMetrics) ObserveDeposit(module string) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(module).Inc()
}

func (m *VaultMetrics) ObserveRedeem(module string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(module).Inc()
}

func (m *VaultMetrics) ObserveRollover() {
	if m == nil {
		return
	}
	m.rollovers.Inc()
}

func (m *VaultMetrics) ObserveRebalance(at int64) {
	if m == nil {
		return
	}
	m.rebalances.Inc()
	m.lastRebalanceAt.Set(float64(at))
}

func (m *VaultMetrics) ObserveMeld() {
	if m == nil {
		return
	}
	m.melds.Inc()
}

func (m *VaultMetrics) SetReserveValue(module string, value *big.Int) {
	if m == nil || value == nil {
		return
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	m.reserveValue.WithLabelValues(module).Set(f)
}

func (m *VaultMetrics) SetTokenSupply(module string, supply *big.Int) {
	if m == nil || supply == nil {
		return
	}
	f, _ := new(big.Float).SetInt(supply).Float64()
	m.tokenSupply.WithLabelValues(module).Set(f)
}

func (m *VaultMetrics) SetReserveAssets(n int) {
	if m == nil {
		return
	}
	m.reserveAssets.Set(float64(n))
}

func (m *VaultMetrics) IncKeeperFailure(task string) {
	if m == nil {
		return
	}
	if task == "" {
		task = "unknown"
	}
	m.keeperFailures.WithLabelValues(task).Inc()
}
