package fallback

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func attempt(name string, value int, err error, calls *[]string) Attempt[int] {
	return Attempt[int]{
		Name: name,
		Run: func(context.Context) (int, error) {
			*calls = append(*calls, name)
			return value, err
		},
	}
}

func TestFirstSuccessShortCircuits(t *testing.T) {
	var calls []string
	res, err := FirstSuccess(context.Background(), []Attempt[int]{
		attempt("a", 0, errors.New("boom"), &calls),
		attempt("b", 2, nil, &calls),
		attempt("c", 3, nil, &calls),
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Name != "b" || res.Value != 2 || res.Tried != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if strings.Join(calls, ",") != "a,b" {
		t.Fatalf("expected c to be skipped, calls=%v", calls)
	}
}

func TestFirstSuccessExhausted(t *testing.T) {
	var calls []string
	var failures []string
	last := errors.New("second failure")
	_, err := FirstSuccess(context.Background(), []Attempt[int]{
		attempt("a", 0, errors.New("first failure"), &calls),
		attempt("b", 0, last, &calls),
	}, func(name string, _ error) { failures = append(failures, name) })
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, last) {
		t.Fatalf("expected last failure to be wrapped, got %v", err)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Tried != 2 || exhausted.LastName != "b" {
		t.Fatalf("unexpected exhausted error %+v", exhausted)
	}
	if strings.Join(failures, ",") != "a,b" {
		t.Fatalf("expected both failures observed, got %v", failures)
	}
}

func TestFirstSuccessEmpty(t *testing.T) {
	_, err := FirstSuccess[int](context.Background(), nil, nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted for empty chain, got %v", err)
	}
}

func TestFirstSuccessStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	_, err := FirstSuccess(ctx, []Attempt[int]{
		{Name: "a", Run: func(context.Context) (int, error) {
			calls = append(calls, "a")
			cancel()
			return 0, errors.New("interrupted")
		}},
		attempt("b", 1, nil, &calls),
	}, nil)
	if err == nil {
		t.Fatal("expected error after cancel")
	}
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected exhausted error to be kept, got %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected chain to stop, calls=%v", calls)
	}
}
