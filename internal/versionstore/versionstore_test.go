package versionstore

import (
	"context"
	"testing"

	local "ronin/internal/shared/storage/object/local"
)

func TestPutAndCurrentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	vs := New(local.New(dir))
	ctx := context.Background()

	if _, err := vs.Put(ctx, "builder", "v3", []byte("%PDF-1.4 fake")); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := vs.Current(ctx, "builder")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if got != "v3" {
		t.Fatalf("expected current version v3, got %q", got)
	}
}

func TestCurrentPointerAdvancesOnNewPut(t *testing.T) {
	dir := t.TempDir()
	vs := New(local.New(dir))
	ctx := context.Background()

	if _, err := vs.Put(ctx, "fixer", "v1", []byte("old")); err != nil {
		t.Fatalf("put v1: %v", err)
	}
	if _, err := vs.Put(ctx, "fixer", "v2", []byte("new")); err != nil {
		t.Fatalf("put v2: %v", err)
	}

	got, err := vs.Current(ctx, "fixer")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if got != "v2" {
		t.Fatalf("expected current to advance to v2, got %q", got)
	}

	old, err := vs.Get(ctx, "fixer", "v1")
	if err != nil {
		t.Fatalf("get historical version: %v", err)
	}
	if string(old) != "old" {
		t.Fatalf("expected historical v1 bytes preserved, got %q", string(old))
	}
}

func TestGetMissingVersionErrors(t *testing.T) {
	dir := t.TempDir()
	vs := New(local.New(dir))

	if _, err := vs.Get(context.Background(), "operator", "nope"); err == nil {
		t.Fatalf("expected an error for a version that was never committed")
	}
}

