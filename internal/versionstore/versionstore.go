// Package versionstore implements the external Version Store collaborator
// named in spec.md §6: it addresses résumé variant files by
// (archetype, version identifier), resolves the current version for an
// archetype, and retrieves any prior version by identifier. The core never
// mutates this store — rewrites are committed externally and only recorded
// back via Store.UpsertResumeVariant.
package versionstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"ronin/internal/shared/storage/object"
)

const currentPointerKey = "current"

// VersionStore resolves and retrieves résumé variant files keyed by
// (archetype, version identifier), backed by an object.ObjectStore.
type VersionStore struct {
	objects object.ObjectStore
}

// New wraps an object store as a VersionStore.
func New(objects object.ObjectStore) *VersionStore {
	return &VersionStore{objects: objects}
}

// Put commits a new version of an archetype's résumé: it lands the PDF
// bytes under the (archetype, version identifier) key and rewrites the
// archetype's "current" pointer to that identifier. Committing a version is
// an externally-driven action — the core calls this only from the CLI's
// rewrite-commit flow, never automatically.
func (v *VersionStore) Put(ctx context.Context, archetype, versionIdentifier string, pdfBytes []byte) (path string, err error) {
	key := objectKey(archetype, versionIdentifier)
	if _, err := v.objects.SaveWithKey(ctx, key, "application/pdf", bytes.NewReader(pdfBytes)); err != nil {
		return "", fmt.Errorf("put variant archetype=%s version=%s: %w", archetype, versionIdentifier, err)
	}
	pointerKey := pointerObjectKey(archetype)
	if _, err := v.objects.SaveWithKey(ctx, pointerKey, "text/plain; charset=utf-8", strings.NewReader(versionIdentifier)); err != nil {
		return "", fmt.Errorf("update current pointer archetype=%s: %w", archetype, err)
	}
	return key, nil
}

// Current resolves the current version identifier on file for archetype.
func (v *VersionStore) Current(ctx context.Context, archetype string) (versionIdentifier string, err error) {
	r, err := v.objects.Open(ctx, pointerObjectKey(archetype))
	if err != nil {
		return "", fmt.Errorf("resolve current version archetype=%s: %w", archetype, err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read current pointer archetype=%s: %w", archetype, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Get retrieves the raw PDF bytes for a specific (archetype, version
// identifier) pair, for historical retrieval by version identifier.
func (v *VersionStore) Get(ctx context.Context, archetype, versionIdentifier string) ([]byte, error) {
	r, err := v.objects.Open(ctx, objectKey(archetype, versionIdentifier))
	if err != nil {
		return nil, fmt.Errorf("get variant archetype=%s version=%s: %w", archetype, versionIdentifier, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ExtractText retrieves and extracts the plain text of the given version's
// PDF, for re-embedding when the rewrite trigger fires and a new version is
// committed.
func (v *VersionStore) ExtractText(ctx context.Context, archetype, versionIdentifier string) (string, error) {
	data, err := v.Get(ctx, archetype, versionIdentifier)
	if err != nil {
		return "", err
	}
	return extractPDFText(data)
}

func extractPDFText(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return buf.String(), nil
}

func objectKey(archetype, versionIdentifier string) string {
	return fmt.Sprintf("resume-variants/%s/%s.pdf", archetype, versionIdentifier)
}

func pointerObjectKey(archetype string) string {
	return fmt.Sprintf("resume-variants/%s/%s.txt", archetype, currentPointerKey)
}
