package domain

import (
	"context"
	"time"
)

// Outcome é o resultado de uma tentativa de admissão.
type Outcome string

const (
	OutcomeGranted     Outcome = "granted"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeCancelled   Outcome = "cancelled"
)

// OutcomeOf traduz o erro retornado por Acquire.
// Erros desconhecidos são tratados como interrupção.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeGranted
	case IsCancelled(err):
		return OutcomeCancelled
	default:
		return OutcomeInterrupted
	}
}

// StatsEvent representa um evento de admissão.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key     Key
	Outcome Outcome
	// Waited é quanto tempo o chamador ficou bloqueado esperando a janela.
	Waited time.Duration

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações podem armazenar em Redis, memória, etc.
// Quem chama deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
