package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragingest/internal/errors"
	"github.com/Aman-CERP/ragingest/internal/event"
	"github.com/Aman-CERP/ragingest/internal/notify"
	"github.com/Aman-CERP/ragingest/internal/registry"
)

func fingerprintOf(t *testing.T, owner, content string) string {
	t.Helper()
	fp, err := registry.Fingerprint(owner, strings.NewReader(content))
	require.NoError(t, err)
	return fp
}

func TestCreate_NewDocument_IndexesAndNotifies(t *testing.T) {
	h := newHarness(t)
	h.put(t, "private/userA/doc.pdf", "bytes B")
	ctx := context.Background()

	out := NewIngester(h.cfg).Create(ctx, event.Created(testBucket, "private/userA/doc.pdf"))

	require.True(t, out.OK(), out.Error)
	assert.Equal(t, DetailIndexed, out.Detail)
	assert.Equal(t, 3, out.Chunks)

	fp := fingerprintOf(t, "userA", "bytes B")
	assert.Equal(t, fp, out.Fingerprint)
	exists, err := h.registry.Exists(ctx, fp)
	require.NoError(t, err)
	assert.True(t, exists, "registry still holds F after indexing")

	require.Len(t, h.indexer.indexed, 1)
	assert.Equal(t, Document{Source: "s3://uploads/private/userA/doc.pdf", Name: "doc.pdf", Content: []byte("bytes B")}, h.indexer.indexed[0])

	assert.Equal(t, []string{"Started ingesting doc.pdf", "Finished ingesting doc.pdf"}, h.notifier.texts())
	assert.Equal(t, []notify.Level{notify.LevelInfo, notify.LevelSuccess}, h.notifier.levels())
}

func TestCreate_SameBytesTwice_IndexesOnce(t *testing.T) {
	h := newHarness(t)
	h.put(t, "private/userA/doc.pdf", "bytes B")
	ctx := context.Background()
	w := NewIngester(h.cfg)

	first := w.Create(ctx, event.Created(testBucket, "private/userA/doc.pdf"))
	require.True(t, first.OK())
	h.notifier.sent = nil

	second := w.Create(ctx, event.Created(testBucket, "private/userA/doc.pdf"))

	require.True(t, second.OK())
	assert.Equal(t, DetailAlreadyIndexed, second.Detail)
	assert.Equal(t, 1, h.indexer.calls(), "indexing collaborator is never invoked for a duplicate")
	assert.Equal(t, []string{"private/userA/doc.pdf has already been processed"}, h.notifier.texts())

	entries, err := h.registry.List(ctx, "userA")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCreate_SameBytesDifferentOwners_BothIndexed(t *testing.T) {
	h := newHarness(t)
	h.put(t, "private/userA/doc.pdf", "shared")
	h.put(t, "private/userB/doc.pdf", "shared")
	w := NewIngester(h.cfg)

	a := w.Create(context.Background(), event.Created(testBucket, "private/userA/doc.pdf"))
	b := w.Create(context.Background(), event.Created(testBucket, "private/userB/doc.pdf"))

	require.True(t, a.OK())
	require.True(t, b.OK())
	assert.Equal(t, DetailIndexed, b.Detail)
	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
}

func TestCreate_OwnerPrefixOfAnother_BothIndexed(t *testing.T) {
	h := newHarness(t)
	h.put(t, "private/ab/doc.txt", "cX")
	h.put(t, "private/a/doc.txt", "bcX")
	w := NewIngester(h.cfg)

	first := w.Create(context.Background(), event.Created(testBucket, "private/ab/doc.txt"))
	second := w.Create(context.Background(), event.Created(testBucket, "private/a/doc.txt"))

	require.True(t, first.OK(), first.Error)
	require.True(t, second.OK(), second.Error)
	assert.Equal(t, DetailIndexed, second.Detail)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 2, h.indexer.calls())
}

func TestCreate_IndexFailure_RollsBackRegistration(t *testing.T) {
	h := newHarness(t)
	h.put(t, "private/userA/doc.pdf", "bytes B")
	h.indexer.indexErr = errBoom
	ctx := context.Background()

	out := NewIngester(h.cfg).Create(ctx, event.Created(testBucket, "private/userA/doc.pdf"))

	require.False(t, out.OK())
	assert.Equal(t, errors.ErrCodeIndexFailed, errors.GetCode(out.Err))
	assert.ErrorIs(t, out.Err, errBoom)

	exists, err := h.registry.Exists(ctx, out.Fingerprint)
	require.NoError(t, err)
	assert.False(t, exists, "no registry entry survives a failed index")

	assert.Equal(t, []string{"Started ingesting doc.pdf", "Failed to ingest doc.pdf"}, h.notifier.texts())
	assert.Empty(t, h.alerts)
}

func TestCreate_IndexFailure_KeepsCodedIndexerError(t *testing.T) {
	h := newHarness(t)
	h.put(t, "private/userA/doc.pdf", "bytes B")
	h.indexer.indexErr = errors.New(errors.ErrCodeEmbeddingFailed, "embedder down", nil)

	out := NewIngester(h.cfg).Create(context.Background(), event.Created(testBucket, "private/userA/doc.pdf"))

	assert.Equal(t, errors.ErrCodeEmbeddingFailed, errors.GetCode(out.Err))
}

func TestCreate_RollbackFailure_IsInconsistentState(t *testing.T) {
	h := newHarness(t)
	h.put(t, "private/userA/doc.pdf", "bytes B")
	h.indexer.indexErr = errBoom
	h.registry.deleteErr = errors.RegistryWriteError("table unavailable", nil)

	out := NewIngester(h.cfg).Create(context.Background(), event.Created(testBucket, "private/userA/doc.pdf"))

	require.False(t, out.OK())
	assert.Equal(t, errors.ErrCodeInconsistentState, errors.GetCode(out.Err))
	assert.True(t, errors.IsFatal(out.Err))
	require.Len(t, h.alerts, 1)
	assert.Same(t, out.Err, h.alerts[0])
	assert.Equal(t, "Failed to ingest doc.pdf", h.notifier.texts()[len(h.notifier.texts())-1])
}

func TestCreate_FetchFailure(t *testing.T) {
	h := newHarness(t)

	out := NewIngester(h.cfg).Create(context.Background(), event.Created(testBucket, "private/userA/missing.pdf"))

	require.False(t, out.OK())
	assert.Equal(t, errors.ErrCodeFetchFailed, errors.GetCode(out.Err))
	assert.True(t, errors.IsRetryable(out.Err))
	assert.Equal(t, []string{"Error ingesting object: private/userA/missing.pdf"}, h.notifier.texts())
	assert.Zero(t, h.indexer.calls())
}

func TestCreate_ObjectTooLarge(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxObjectBytes = 4
	h.put(t, "private/userA/big.txt", "more than four bytes")

	out := NewIngester(h.cfg).Create(context.Background(), event.Created(testBucket, "private/userA/big.txt"))

	assert.Equal(t, errors.ErrCodeObjectTooLarge, errors.GetCode(out.Err))
}

func TestCreate_MalformedPath(t *testing.T) {
	h := newHarness(t)

	out := NewIngester(h.cfg).Create(context.Background(), event.Created(testBucket, "orphan.pdf"))

	require.False(t, out.OK())
	assert.Equal(t, errors.ErrCodeInvalidPath, errors.GetCode(out.Err))
	assert.Empty(t, h.notifier.texts())
}

func TestCreate_DedupCheckFailure(t *testing.T) {
	h := newHarness(t)
	h.put(t, "private/userA/doc.pdf", "bytes B")
	h.registry.existsErr = errors.RegistryReadError("throttled", nil)

	out := NewIngester(h.cfg).Create(context.Background(), event.Created(testBucket, "private/userA/doc.pdf"))

	assert.Equal(t, errors.ErrCodeRegistryRead, errors.GetCode(out.Err))
	assert.Equal(t, []string{"Error checking if file private/userA/doc.pdf has been processed"}, h.notifier.texts())
	assert.Zero(t, h.indexer.calls())
}

func TestCreate_RegisterFailure(t *testing.T) {
	h := newHarness(t)
	h.put(t, "private/userA/doc.pdf", "bytes B")
	h.registry.claimErr = errors.RegistryWriteError("throttled", nil)

	out := NewIngester(h.cfg).Create(context.Background(), event.Created(testBucket, "private/userA/doc.pdf"))

	assert.Equal(t, errors.ErrCodeRegistryWrite, errors.GetCode(out.Err))
	assert.Equal(t, []string{"Started ingesting doc.pdf", "Failed to ingest doc.pdf"}, h.notifier.texts())
	assert.Zero(t, h.indexer.calls())
}

func TestCreate_LostClaim_IsRetryableAndSkipsIndexing(t *testing.T) {
	h := newHarness(t)
	h.put(t, "private/userA/doc.pdf", "bytes B")
	h.registry.loseClaim = true

	out := NewIngester(h.cfg).Create(context.Background(), event.Created(testBucket, "private/userA/doc.pdf"))

	require.False(t, out.OK())
	assert.Equal(t, errors.ErrCodeClaimContended, errors.GetCode(out.Err))
	assert.True(t, errors.IsRetryable(out.Err))
	assert.Zero(t, h.indexer.calls())
}

func TestCreate_OverwriteWithNewContent_PrunesStaleEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := NewIngester(h.cfg)

	h.put(t, "private/userA/doc.pdf", "version 1")
	v1 := w.Create(ctx, event.Created(testBucket, "private/userA/doc.pdf"))
	require.True(t, v1.OK())

	h.put(t, "private/userA/doc.pdf", "version 2")
	v2 := w.Create(ctx, event.Created(testBucket, "private/userA/doc.pdf"))
	require.True(t, v2.OK())
	assert.Equal(t, DetailIndexed, v2.Detail)

	entries, err := h.registry.ListByPath(ctx, "s3://uploads/private/userA/doc.pdf")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, v2.Fingerprint, entries[0].Fingerprint)
}

func TestCreate_NoLiveSession_RunsBlind(t *testing.T) {
	h := newHarness(t)
	h.cfg.Resolver = staticResolver{err: errBoom}
	h.put(t, "private/userA/doc.pdf", "bytes B")

	out := NewIngester(h.cfg).Create(context.Background(), event.Created(testBucket, "private/userA/doc.pdf"))

	require.True(t, out.OK())
	assert.Empty(t, h.notifier.texts())
}

func TestCreate_EncodedKey_DecodedOnce(t *testing.T) {
	h := newHarness(t)
	h.put(t, "private/us-east-1:abc/My Report.pdf", "bytes")

	out := NewIngester(h.cfg).Create(context.Background(), event.Created(testBucket, "private/us-east-1%3Aabc/My+Report.pdf"))

	require.True(t, out.OK(), out.Error)
	require.Len(t, h.indexer.indexed, 1)
	assert.Equal(t, "s3://uploads/private/us-east-1:abc/My Report.pdf", h.indexer.indexed[0].Source)
	assert.Equal(t, 3, h.indexer.rowCount("us-east-1:abc", "s3://uploads/private/us-east-1:abc/My Report.pdf"))
}

func TestCreate_EncodedColonInFileName_FetchesLiteralKey(t *testing.T) {
	h := newHarness(t)
	h.put(t, "private/userA/report%3A1.txt", "bytes")

	out := NewIngester(h.cfg).Create(context.Background(), event.Created(testBucket, "private/userA/report%253A1.txt"))

	require.True(t, out.OK(), out.Error)
	require.Len(t, h.indexer.indexed, 1)
	assert.Equal(t, "s3://uploads/private/userA/report%3A1.txt", h.indexer.indexed[0].Source)
}
