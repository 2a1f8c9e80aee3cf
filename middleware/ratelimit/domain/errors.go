package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration indica janela ou máximo de permissões não positivos.
	ErrInvalidConfiguration = errors.New("invalid rate limiter configuration")
	// ErrInterrupted indica que o contexto do chamador encerrou enquanto esperava.
	ErrInterrupted = errors.New("acquire interrupted")
	// ErrCancelled indica que o limiter foi fechado.
	ErrCancelled = errors.New("rate limiter closed")
)

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// Interrupted embrulha o erro do contexto, preservando errors.Is para ambos.
func Interrupted(ctxErr error) error {
	if ctxErr == nil {
		return ErrInterrupted
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, ctxErr)
}

func IsInvalidConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
