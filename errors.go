package smarthandles

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound              = errors.New("utxo not found")
	ErrMissingDatum          = errors.New("missing datum")
	ErrInvalidDatum          = errors.New("invalid datum")
	ErrKindMismatch          = errors.New("datum kind mismatch")
	ErrUnauthorized          = errors.New("signer is not the owner")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrConfigMismatch        = errors.New("route config does not match utxo")
	ErrUnsupportedCredential = errors.New("unsupported credential")
	ErrBuildFailure          = errors.New("transaction build failed")
	ErrAggregate             = errors.New("one or more batch entries failed")
)

// AggregateError carries every per-item failure message of a batch call.
type AggregateError struct {
	Messages []string
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf(
		"%d batch entries failed: %s",
		len(e.Messages),
		strings.Join(e.Messages, ", "),
	)
}

func (e *AggregateError) Is(target error) bool {
	return target == ErrAggregate
}

// newAggregateError returns nil when there is nothing to report.
func newAggregateError(messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	return &AggregateError{Messages: messages}
}

type EvaluationError struct {
	EvalError EvalError
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("Evaluation failed: %s", e.EvalError.ErrorType)
}

func (e *EvaluationError) Unwrap() error {
	return ErrBuildFailure
}

// buildFailure wraps a collaborator error so it matches ErrBuildFailure.
func buildFailure(err error) error {
	if err == nil || errors.Is(err, ErrBuildFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBuildFailure, err)
}
