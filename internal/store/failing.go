package store

import (
	"context"
	"time"
)

// FailingStore is a Store whose every call fails with ErrUnavailable. It
// backs fail-open drills (`gatekeeper simulate --store-down`) and tests.
type FailingStore struct{}

func (FailingStore) Update(context.Context, string, time.Duration, UpdateFunc) error {
	return ErrUnavailable
}

func (FailingStore) Get(context.Context, string) ([]byte, error) {
	return nil, ErrUnavailable
}

func (FailingStore) Close() error { return nil }
