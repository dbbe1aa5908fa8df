package chatmodel

import (
	"errors"
	"testing"
)

func TestProviderErrorRetriableNetwork(t *testing.T) {
	err := &ProviderError{Kind: ProviderErrorNetwork, Err: errors.New("dial tcp: timeout")}
	if !err.Retriable() {
		t.Fatal("expected network error to be retriable")
	}
}

func TestProviderErrorRetriable5xxStatus(t *testing.T) {
	err := &ProviderError{Kind: ProviderErrorStatus, StatusCode: 503, Err: errors.New("service unavailable")}
	if !err.Retriable() {
		t.Fatal("expected 503 status error to be retriable")
	}
}

func TestProviderErrorNotRetriable4xxStatus(t *testing.T) {
	err := &ProviderError{Kind: ProviderErrorStatus, StatusCode: 400, Err: errors.New("bad request")}
	if err.Retriable() {
		t.Fatal("expected 400 status error to be terminal")
	}
}

func TestProviderErrorNotRetriableOtherKinds(t *testing.T) {
	for _, kind := range []ProviderErrorKind{ProviderErrorParse, ProviderErrorRefusal, ProviderErrorConfig} {
		err := &ProviderError{Kind: kind, Err: errors.New("x")}
		if err.Retriable() {
			t.Fatalf("expected %s to be terminal", kind)
		}
	}
}
