package vaultlock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/castsync/cast/internal/vault"
)

func TestTryAcquire_SecondAttemptFails(t *testing.T) {
	dir := t.TempDir()

	lock, err := TryAcquire(dir)
	require.NoError(t, err)
	require.NotNil(t, lock)

	_, err = TryAcquire(dir)
	require.Error(t, err)
	var verr *vault.Error
	require.True(t, errors.As(err, &verr))
	require.Equal(t, vault.ErrLockBusy, verr.Code)

	require.NoError(t, lock.Release())
}

func TestTryAcquire_AfterReleaseSucceeds(t *testing.T) {
	dir := t.TempDir()

	lock, err := TryAcquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	lock2, err := TryAcquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestAcquire_TimesOutWhenBusy(t *testing.T) {
	dir := t.TempDir()

	held, err := TryAcquire(dir)
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err = Acquire(ctx, dir)
	require.Error(t, err)
}

func TestRelease_NilLockIsNoOp(t *testing.T) {
	var l *Lock
	require.NoError(t, l.Release())
}

func TestLockPath_IsInsideControlDir(t *testing.T) {
	dir := t.TempDir()
	lock, err := TryAcquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	_, err = os.Stat(lockPath(dir))
	require.NoError(t, err)
}
