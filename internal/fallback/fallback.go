// Package fallback runs ordered alternatives until one succeeds.
package fallback

import (
	"context"
	"errors"
	"fmt"
)

// ErrExhausted matches the error returned when every attempt failed.
var ErrExhausted = errors.New("all attempts failed")

// Attempt is one alternative of a chain.
type Attempt[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Result carries the value of the winning attempt.
type Result[T any] struct {
	Name  string
	Value T
	// Tried counts attempts run, including the winner.
	Tried int
}

// ExhaustedError reports that no attempt succeeded. It unwraps to both
// ErrExhausted and the last recorded failure.
type ExhaustedError struct {
	Tried    int
	LastName string
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return ErrExhausted.Error()
	}
	return fmt.Sprintf("all %d attempts failed, last (%s): %v", e.Tried, e.LastName, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrExhausted}
	}
	return []error{ErrExhausted, e.Last}
}

// FirstSuccess runs attempts in order and returns as soon as one succeeds.
// onFailure, when set, observes every failed attempt. A cancelled context
// stops the chain before the next attempt starts.
func FirstSuccess[T any](ctx context.Context, attempts []Attempt[T], onFailure func(name string, err error)) (Result[T], error) {
	exhausted := &ExhaustedError{}
	for _, attempt := range attempts {
		if err := ctx.Err(); err != nil {
			if exhausted.Last == nil {
				return Result[T]{Tried: exhausted.Tried}, err
			}
			return Result[T]{Tried: exhausted.Tried}, fmt.Errorf("%w (stopped: %v)", exhausted, err)
		}
		exhausted.Tried++
		value, err := attempt.Run(ctx)
		if err == nil {
			return Result[T]{Name: attempt.Name, Value: value, Tried: exhausted.Tried}, nil
		}
		exhausted.LastName = attempt.Name
		exhausted.Last = err
		if onFailure != nil {
			onFailure(attempt.Name, err)
		}
	}
	return Result[T]{Tried: exhausted.Tried}, exhausted
}
