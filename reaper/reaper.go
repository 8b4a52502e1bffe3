package reaper

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"vitrine/globals"
	"vitrine/models"
)

const sweepLockKey = "reaper:sweep-lock"

type TxnRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type OrderStore interface {
	// StalePending lists PENDING orders created before the cutoff.
	StalePending(ctx context.Context, before time.Time) ([]models.Order, error)
	// CancelPending cancels the order only if it is still PENDING, reporting
	// whether this call performed the transition.
	CancelPending(ctx context.Context, orderID string) (bool, error)
}

type StockLedger interface {
	Restore(ctx context.Context, variantID string, qty int) error
}

type Notifier interface {
	OrderCancelled(ctx context.Context, order *models.Order)
}

type Locker interface {
	TryLock(key, value string, ttl time.Duration) (bool, error)
}

// Sweeper cancels orders abandoned at the payment step and returns their
// reserved stock. Each order is handled in its own transaction; the
// conditional PENDING check makes a sweep safe to repeat and safe to race
// against the webhook reconciler.
type Sweeper struct {
	Txn      TxnRunner
	Orders   OrderStore
	Stock    StockLedger
	Notifier Notifier
	Locker   Locker

	// MaxAge is how long an order may stay PENDING before the sweep takes it.
	MaxAge time.Duration
}

// MaxAgeFromEnv reads STALE_ORDER_HOURS, defaulting to 24.
func MaxAgeFromEnv() time.Duration {
	hours, err := strconv.Atoi(globals.Getenv("STALE_ORDER_HOURS", "24"))
	if err != nil || hours < 1 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// SweepOnce cancels every stale pending order and returns how many it
// actually transitioned. An order that a concurrent webhook or sweep already
// moved is skipped silently.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.MaxAge)
	stale, err := s.Orders.StalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale orders: %w", err)
	}

	cancelled := 0
	for i := range stale {
		order := stale[i]
		var did bool
		err := s.Txn(ctx, func(ctx context.Context) error {
			did = false
			ok, err := s.Orders.CancelPending(ctx, order.ID)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			for _, item := range order.Items {
				if err := s.Stock.Restore(ctx, item.VariantID, item.Quantity); err != nil {
					return fmt.Errorf("restore stock for %s: %w", item.VariantID, err)
				}
			}
			did = true
			return nil
		})
		if err != nil {
			// One bad order must not stall the rest of the sweep.
			log.Printf("[Reaper] cancel order %s failed: %v", order.OrderNumber, err)
			continue
		}
		if did {
			cancelled++
			order.Status = models.OrderCancelled
			go s.Notifier.OrderCancelled(context.WithoutCancel(ctx), &order)
		}
	}
	return cancelled, nil
}

// Run sweeps on the given interval until the context is cancelled. The redis
// lock keeps concurrent instances from sweeping the same window; losing the
// lock just skips a round.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[Reaper] started: interval=%s maxAge=%s", interval, s.MaxAge)
	for {
		select {
		case <-ctx.Done():
			log.Println("[Reaper] stopped")
			return
		case <-ticker.C:
			got, err := s.Locker.TryLock(sweepLockKey, "1", interval)
			if err != nil {
				log.Printf("[Reaper] lock attempt failed: %v", err)
				continue
			}
			if !got {
				continue
			}
			n, err := s.SweepOnce(ctx)
			if err != nil {
				log.Printf("[Reaper] sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[Reaper] cancelled %d stale orders", n)
			}
		}
	}
}
