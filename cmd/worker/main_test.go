package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"replenix/internal/config"
	"replenix/internal/core/id"
	"replenix/internal/domain/audit"
	"replenix/pkg/logger"
)

type countingVerifier struct {
	calls atomic.Int32
	err   error
}

func (v *countingVerifier) VerifyAll(context.Context) ([]audit.TenantReport, error) {
	v.calls.Add(1)
	return []audit.TenantReport{
		{TenantID: id.New(), Verified: 3},
		{TenantID: id.New(), Verified: 1, Break: &audit.ChainBreakError{SequenceNumber: 2}},
	}, v.err
}

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) CleanupExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 4, c.err
}

func TestWorker_RunsJobsUntilCancelled(t *testing.T) {
	verifier := &countingVerifier{}
	cleaner := &countingCleaner{}
	w := NewWorker(verifier, cleaner, config.WorkerConfig{
		VerifyInterval:  10 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
	}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return verifier.calls.Load() >= 2 && cleaner.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_ToleratesJobErrors(t *testing.T) {
	verifier := &countingVerifier{err: errors.New("db down")}
	cleaner := &countingCleaner{err: errors.New("db down")}
	w := NewWorker(verifier, cleaner, config.WorkerConfig{}, logger.Nop())

	assert.NotPanics(t, func() {
		w.verifyChains(context.Background())
		w.cleanupIdempotency(context.Background())
	})
	assert.Equal(t, 15*time.Minute, w.cfg.VerifyInterval)
	assert.Equal(t, time.Hour, w.cfg.CleanupInterval)
}
