package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunMineOnceExits(t *testing.T) {
	t.Setenv("MINER_REGISTRY_PATH", filepath.Join(t.TempDir(), "registry.json"))
	t.Setenv("MINER_STATUS_PORT", "18973")

	done := make(chan error, 1)
	go func() {
		done <- runMine(context.Background(), mineFlags{once: true})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("single-pass run did not exit")
	}
}

func TestRunMineOnceExitsWithStatusDisabled(t *testing.T) {
	t.Setenv("MINER_REGISTRY_PATH", filepath.Join(t.TempDir(), "registry.json"))
	t.Setenv("MINER_STATUS_ENABLED", "false")

	done := make(chan error, 1)
	go func() {
		done <- runMine(context.Background(), mineFlags{once: true})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("single-pass run did not exit")
	}
}
