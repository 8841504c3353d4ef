// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"rinkreel/internal/config"
	"rinkreel/internal/store"
)

// NewConfig returns a config rooted in a per-test temp directory with
// placeholder provider credentials.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(root, "staging")
	cfg.Paths.OutputDir = filepath.Join(root, "output")
	cfg.Paths.LogDir = filepath.Join(root, "log")
	cfg.Provider.BaseURL = "http://provider.test"
	cfg.Provider.Email = "coach@example.com"
	cfg.Provider.Password = "test-password"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a store against the test config and closes it when the
// test finishes.
func MustOpenStore(t *testing.T, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// SeedSession creates a session with a rink and the provided comment
// timestamps, one comment per timestamp in the given order.
func SeedSession(t *testing.T, st *store.Store, timestamps ...int64) *store.Session {
	t.Helper()

	ctx := context.Background()
	session, err := st.CreateSession(ctx, &store.Session{
		Rink: store.RinkLocation{
			Name:           "Test Arena",
			ProviderRinkID: "feed-1001",
		},
		GameDate: time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC),
		HomeTeam: "Home",
		AwayTeam: "Away",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for _, ts := range timestamps {
		if _, err := st.AddComment(ctx, &store.Comment{
			SessionID:   session.ID,
			TimestampMS: ts,
			Text:        "note",
		}); err != nil {
			t.Fatalf("add comment: %v", err)
		}
	}
	reloaded, err := st.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	return reloaded
}
