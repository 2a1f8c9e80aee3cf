package application

import (
	"context"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"
)

// Admission descreve o resultado de uma tentativa de admissão.
type Admission struct {
	Outcome domain.Outcome
	Waited  time.Duration
}

func (a Admission) Granted() bool { return a.Outcome == domain.OutcomeGranted }

// AdmissionService concentra a regra de espera por permissão com timeout opcional,
// sem saber nada sobre HTTP.
type AdmissionService struct {
	Store          domain.LimiterStore
	AcquireTimeout time.Duration
}

// Admit espera uma permissão para a chave.
// - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar ou o store fechar).
// - Se `AcquireTimeout > 0`, espera até o timeout.
// Em caso de erro nenhuma permissão foi consumida.
func (s AdmissionService) Admit(ctx context.Context, key domain.Key) (Admission, error) {
	if s.Store == nil {
		return Admission{Outcome: domain.OutcomeGranted}, nil
	}

	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	start := time.Now()
	err := s.Store.Acquire(ctx, key)
	return Admission{Outcome: domain.OutcomeOf(err), Waited: time.Since(start)}, err
}
