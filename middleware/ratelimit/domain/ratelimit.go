package domain

// Camada de domínio do controle de admissão.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// Acquirer representa algo que entrega permissões (permits) para executar uma ação.
//
// A semântica é: Acquire bloqueia até existir uma permissão na janela corrente,
// consome exatamente uma e retorna nil. Se o ctx encerrar antes disso, retorna
// ErrInterrupted; se o limiter foi fechado, ErrCancelled. Em caso de erro nenhuma
// permissão é consumida.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// LimiterStore entrega permissões por chave (ex: IP, API key, cliente lógico).
// Cada chave tem sua própria janela e seu próprio contador.
type LimiterStore interface {
	Acquire(ctx context.Context, key Key) error
}

// WindowConfig é a configuração imutável de uma janela fixa.
type WindowConfig struct {
	Window     time.Duration
	MaxPermits int
}

// Validate retorna ErrInvalidConfiguration se a janela ou o máximo não forem positivos.
func (c WindowConfig) Validate() error {
	if c.Window <= 0 {
		return invalidConfig("window must be > 0, got %s", c.Window)
	}
	if c.MaxPermits < 1 {
		return invalidConfig("max permits must be >= 1, got %d", c.MaxPermits)
	}
	return nil
}
