package crpt

import (
	"errors"
	"fmt"
)

const (
	StageBeforeRequest = "before-request"
	StageRequest       = "request"
	StageAfterRequest  = "after-request"
)

// APIError descreve uma chamada à API da CRPT que falhou depois de obter a permissão
// (ou na preparação da request, antes dela).
type APIError struct {
	Stage      string
	StatusCode int
	Body       []byte
	Err        error
}

var _ error = &APIError{}

func (e *APIError) Error() string {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	} else {
		cause = string(e.Body)
	}
	return fmt.Sprintf(
		"crpt request failed during '%s' stage, httpStatus: '%d'; original err: %v",
		e.Stage, e.StatusCode, cause,
	)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsAPIError informa se err (ou algum erro embrulhado) é um *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
