package keeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"perpvault/native/bond"
	"perpvault/native/perp"
	"perpvault/native/vault"
	"perpvault/observability/metrics"
)

// Config drives the maintenance cadence. Zero intervals disable the task.
type Config struct {
	IssueInterval       time.Duration
	UpdateStateInterval time.Duration
	RecoverInterval     time.Duration
	RebalanceInterval   time.Duration
}

// Keeper runs the periodic maintenance the protocol needs but no user
// transaction triggers: bond issuance, reserve upkeep, vault recovery and
// rebalancing.
type Keeper struct {
	cfg     Config
	issuer  *bond.Issuer
	claim   *perp.Engine
	vault   *vault.Engine
	logger  *slog.Logger
	metrics *metrics.VaultMetrics
}

func New(cfg Config, issuer *bond.Issuer, claim *perp.Engine, v *vault.Engine, logger *slog.Logger) *Keeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{
		cfg:     cfg,
		issuer:  issuer,
		claim:   claim,
		vault:   v,
		logger:  logger.With("component", "keeper"),
		metrics: metrics.Vault(),
	}
}

// Run blocks until the context is cancelled, servicing every enabled task on
// its own ticker. A failed run is logged and retried on the next tick.
func (k *Keeper) Run(ctx context.Context) {
	tick := func(interval time.Duration, task string, fn func() error) {
		if interval <= 0 {
			return
		}
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := fn(); err != nil {
						k.metrics.IncKeeperFailure(task)
						k.logger.Error("keeper task failed", "task", task, "error", err)
					}
				}
			}
		}()
	}

	tick(k.cfg.IssueInterval, "issue", k.issue)
	tick(k.cfg.UpdateStateInterval, "update_state", k.updateState)
	tick(k.cfg.RecoverInterval, "recover", k.recover)
	tick(k.cfg.RebalanceInterval, "rebalance", k.rebalance)

	<-ctx.Done()
}

// issue mints the next bond once the previous one has been outstanding for a
// full issuance interval.
func (k *Keeper) issue() error {
	latest, err := k.issuer.Latest()
	switch {
	case errors.Is(err, bond.ErrNoBondIssued):
	case err != nil:
		return err
	default:
		if time.Since(time.Unix(latest.CreatedAt, 0)) < k.cfg.IssueInterval {
			return nil
		}
	}
	b, err := k.issuer.Issue()
	if err != nil {
		return err
	}
	k.logger.Info("issued bond", "bond", b.ID.Hex(), "maturity", b.Maturity)
	return nil
}

func (k *Keeper) updateState() error {
	if err := k.claim.UpdateState(); err != nil {
		return err
	}
	k.refreshGauges()
	return nil
}

func (k *Keeper) recover() error {
	res, err := k.vault.RecoverAndRedeploy()
	if err != nil {
		return err
	}
	if res != nil {
		k.logger.Info("redeployed vault capital", "bond", res.Bond.Hex(), "tranched", res.Tranched.String())
	}
	k.refreshGauges()
	return nil
}

func (k *Keeper) rebalance() error {
	res, err := k.vault.Rebalance()
	if errors.Is(err, vault.ErrRebalanceTooRecent) {
		return nil
	}
	if err != nil {
		return err
	}
	if res != nil {
		k.metrics.ObserveRebalance(time.Now().Unix())
		k.logger.Info("rebalanced", "amount", res.Amount.String(), "moved", res.ValueMoved.String())
	}
	k.refreshGauges()
	return nil
}

func (k *Keeper) refreshGauges() {
	if supply, err := k.claim.Supply(); err == nil {
		k.metrics.SetTokenSupply("perp", supply)
	}
	if value, err := k.claim.TotalValue(); err == nil {
		k.metrics.SetReserveValue("perp", value)
	}
	if assets, err := k.claim.ReserveAssets(); err == nil {
		k.metrics.SetReserveAssets(len(assets))
	}
	if supply, err := k.vault.Supply(); err == nil {
		k.metrics.SetTokenSupply("vault", supply)
	}
	if value, err := k.vault.TotalValue(); err == nil {
		k.metrics.SetReserveValue("vault", value)
	}
}
