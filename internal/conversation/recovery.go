package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
	"github.com/wolfman30/creditsales-ai-platform/internal/events"
)

// RecoverySweeper retries eligibility for customers parked in
// waiting_for_recovery and resumes their conversation once a provider answers.
type RecoverySweeper struct {
	service *Service
	checker EligibilityChecker
}

func NewRecoverySweeper(service *Service, checker EligibilityChecker) *RecoverySweeper {
	if service == nil {
		panic("conversation: service cannot be nil")
	}
	if checker == nil {
		panic("conversation: eligibility checker cannot be nil")
	}
	if service.parking == nil {
		panic("conversation: service has no parking lot")
	}
	return &RecoverySweeper{service: service, checker: checker}
}

// Sweep walks the parking lot once and returns how many customers resumed.
func (r *RecoverySweeper) Sweep(ctx context.Context) int {
	s := r.service
	parked, err := s.parking.Parked(ctx)
	if err != nil {
		s.logger.Error("failed to list parked customers", "error", err)
		return 0
	}
	resumed := 0
	for _, p := range parked {
		if ctx.Err() != nil {
			return resumed
		}
		var ok bool
		err := s.locks.WithLock(ctx, p.CustomerKey, s.cfg.LockTimeout, func(ctx context.Context) error {
			var err error
			ok, err = r.retry(ctx, p)
			return err
		})
		if err != nil {
			s.logger.Warn("recovery retry failed", "customer", p.CustomerKey, "error", err)
			continue
		}
		if ok {
			resumed++
		}
	}
	return resumed
}

// Start runs Sweep every interval until ctx is done.
func (r *RecoverySweeper) Start(ctx context.Context, interval time.Duration) {
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
				if n := r.Sweep(ctx); n > 0 {
					r.service.logger.Info("resumed parked customers", "count", n)
				}
			}
		}
	}()
}

func (r *RecoverySweeper) retry(ctx context.Context, p ParkedCustomer) (bool, error) {
	s := r.service
	session, err := s.sessions.Get(ctx, p.CustomerKey)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, s.parking.Unpark(ctx, p.CustomerKey)
		}
		return false, err
	}
	waiting, ok := session.Phase.(WaitingForRecovery)
	if !ok {
		// The customer moved on (expiry or a later turn); nothing to resume.
		return false, s.parking.Unpark(ctx, p.CustomerKey)
	}
	dni := waiting.DNI
	if dni == "" {
		dni = p.DNI
	}

	res := r.checker.Check(ctx, dni, p.CustomerKey)
	if res.Status == eligibility.StatusNeedsHuman && res.HandoffReason == eligibility.HandoffBothProvidersDown {
		return false, nil
	}

	result := s.loop.Resume(ctx, p.CustomerKey, waiting, session.Metadata, EligibilityChecked{DNI: dni, Result: res})
	s.events.PhaseTransition(ctx, p.CustomerKey, waiting, result.Phase)
	session.Phase = result.Phase
	session.Metadata = result.Metadata
	session.Metadata.LastActivityAt = s.now().UTC()
	if err := s.sessions.Update(ctx, session); err != nil {
		return false, err
	}
	s.syncParking(ctx, p.CustomerKey, waiting, result.Phase)
	s.emitter.Emit(ctx, events.ProviderRecovered, p.CustomerKey, events.ProviderRecoveredV1{
		CustomerKey: p.CustomerKey,
		Provider:    res.Provider,
		OccurredAt:  s.now().UTC(),
	})

	if _, err := s.executor.Execute(ctx, p.CustomerKey, result.Phase, result.Commands); err != nil {
		s.logger.Warn("some recovery commands failed", "customer", p.CustomerKey, "error", err)
	}
	return true, nil
}
