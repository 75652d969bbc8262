package documents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/events"
	"github.com/poiesic/vellum/metrics"
	"github.com/poiesic/vellum/storage"
	"github.com/poiesic/vellum/wal"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CreateIssuesSinglePut(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, &core.Document{DocumentID: "aDocument"})

	puts := f.recorder.recordedPuts()
	require.Len(t, puts, 1)
	assert.Equal(t, core.VersionNew, puts[0].expected)
	assert.True(t, strings.HasPrefix(puts[0].name, "documents/aDocument/"))

	got, err := f.svc.GetDocument(context.Background(), "aDocument")
	require.NoError(t, err)
	assert.Equal(t, "aDocument", got.DocumentID)
	require.NotNil(t, got.VersionTimestamp)
	assert.True(t, created.VersionTimestamp.Equal(*got.VersionTimestamp))
	assert.Equal(t, []string{"create:aDocument"}, f.events.tags())
}

func TestService_RoundTrip(t *testing.T) {
	f := newFixture(t)

	in := &core.Document{
		ContentElements: []core.ContentElement{{ID: "c1", MediaType: "text/plain", Length: 3}},
		Facets:          map[string]jsontext.Value{"owner": jsontext.Value(`{"name":"ada"}`)},
	}
	created := f.create(t, in)
	require.NotEmpty(t, created.DocumentID)

	got, err := f.svc.GetDocument(context.Background(), created.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, created.DocumentID, got.DocumentID)
	assert.Equal(t, in.ContentElements, got.ContentElements)
	assert.Equal(t, `{"name":"ada"}`, string(got.Facets["owner"]))
	assert.False(t, got.DateCreated.IsZero())
	assert.Equal(t, got.DateCreated, got.DateModified)
	assert.False(t, got.Deleted)
}

func TestService_OptimisticConcurrency(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, &core.Document{DocumentID: "aDocument"})
	t1 := *created.VersionTimestamp

	update := created.Clone()
	updated, err := f.update(t, update)
	require.NoError(t, err)
	t2 := *updated.VersionTimestamp
	assert.True(t, t2.After(t1))

	stale := created.Clone()
	_, err = f.update(t, stale)
	require.ErrorIs(t, err, core.ErrVersionMismatch)

	var mismatch *core.VersionMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "aDocument", mismatch.DocumentID)
	assert.True(t, mismatch.Expected.Equal(t2))
	assert.True(t, mismatch.Actual.Equal(t1))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VersionMismatches.WithLabelValues(metrics.StageInProcess)))

	// No version disables the check.
	blind := created.Clone()
	blind.VersionTimestamp = nil
	_, err = f.update(t, blind)
	require.NoError(t, err)
}

func TestService_VersionsAreSortedAndHeadIsLatest(t *testing.T) {
	f := newFixture(t)
	f.recorder.reverseList = true

	created := f.create(t, &core.Document{DocumentID: "aDocument"})
	second, err := f.update(t, created)
	require.NoError(t, err)
	third, err := f.update(t, second)
	require.NoError(t, err)

	versions, err := f.svc.GetVersions(context.Background(), "aDocument")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.True(t, versions[0].Equal(*created.VersionTimestamp))
	assert.True(t, versions[1].Equal(*second.VersionTimestamp))
	assert.True(t, versions[2].Equal(*third.VersionTimestamp))

	head, err := f.svc.GetDocument(context.Background(), "aDocument")
	require.NoError(t, err)
	assert.True(t, head.VersionTimestamp.Equal(*third.VersionTimestamp))

	old, err := f.svc.GetDocumentVersion(context.Background(), "aDocument", versions[0])
	require.NoError(t, err)
	assert.True(t, old.VersionTimestamp.Equal(versions[0]))
}

func TestService_RollbackLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t)
	existing := f.create(t, &core.Document{DocumentID: "existing"})
	f.create(t, &core.Document{DocumentID: "doomed"})
	before := f.dump(t)
	eventsBefore := len(f.events.tags())

	ctx, tx := f.coord.Begin(context.Background())
	_, err := f.svc.CreateDocument(ctx, &core.Document{DocumentID: "fresh"})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, existing)
	require.NoError(t, err)
	require.NoError(t, f.svc.StoreFacet(ctx, "existing", "tag", jsontext.Value(`"x"`)))
	require.NoError(t, f.svc.DeleteDocument(ctx, "doomed"))
	require.NoError(t, tx.Rollback(ctx))

	assert.Equal(t, before, f.dump(t))
	assert.Len(t, f.events.tags(), eventsBefore)

	got, err := f.svc.GetDocument(context.Background(), "existing")
	require.NoError(t, err)
	assert.True(t, got.VersionTimestamp.Equal(*existing.VersionTimestamp))
	_, err = f.svc.GetDocument(context.Background(), "fresh")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestService_FailedFlushIsRolledBack(t *testing.T) {
	f := newFixture(t)
	f.create(t, &core.Document{DocumentID: "a"})
	b := f.create(t, &core.Document{DocumentID: "b"})
	before := f.dump(t)

	ctx, tx := f.coord.Begin(context.Background())
	_, err := f.svc.CreateDocument(ctx, &core.Document{DocumentID: "c"})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, b)
	require.NoError(t, err)

	// Another writer gets in first on b.
	_, err = f.update(t, b)
	require.NoError(t, err)
	afterConcurrent := f.dump(t)
	require.NotEqual(t, before, afterConcurrent)

	err = tx.Commit(ctx)
	require.ErrorIs(t, err, core.ErrVersionMismatch)
	assert.Equal(t, wal.StateRolledBack, tx.State())
	assert.Equal(t, afterConcurrent, f.dump(t))
}

func TestService_MidAirCollision(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, &core.Document{DocumentID: "aDocument"})
	t1 := *created.VersionTimestamp

	ctx1, tx1 := f.coord.Begin(context.Background())
	ctx2, tx2 := f.coord.Begin(context.Background())

	// Both transactions snapshot T1.
	doc1, err := f.svc.GetDocument(ctx1, "aDocument")
	require.NoError(t, err)
	doc2, err := f.svc.GetDocument(ctx2, "aDocument")
	require.NoError(t, err)

	won, err := f.svc.Update(ctx1, doc1)
	require.NoError(t, err)
	require.NoError(t, tx1.Commit(ctx1))

	// The in-process check passes against the stale snapshot.
	_, err = f.svc.Update(ctx2, doc2)
	require.NoError(t, err)

	err = tx2.Commit(ctx2)
	require.ErrorIs(t, err, core.ErrVersionMismatch)
	var mismatch *core.VersionMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.True(t, mismatch.Expected.Equal(*won.VersionTimestamp))
	assert.True(t, mismatch.Actual.Equal(t1))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VersionMismatches.WithLabelValues(metrics.StageMidAir)))

	versions, err := f.svc.GetVersions(context.Background(), "aDocument")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestService_VersionListInvalidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, &core.Document{DocumentID: "a"})

	versions, err := f.svc.GetVersions(ctx, "a")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	f.svc.cache.Wait()

	_, err = f.update(t, created)
	require.NoError(t, err)
	versions, err = f.svc.GetVersions(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
	f.svc.cache.Wait()

	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		return f.svc.DeleteDocument(ctx, "a")
	}))
	versions, err = f.svc.GetVersions(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, versions, 3, "the tombstone is a version")

	_, err = f.svc.GetDocument(ctx, "a")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestService_OneEventPerDocument(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, &core.Document{DocumentID: "c"})
	f.create(t, &core.Document{DocumentID: "d"})
	baseline := len(f.events.tags())

	err := f.inTx(t, func(ctx context.Context) error {
		a, err := f.svc.CreateDocument(ctx, &core.Document{DocumentID: "a"})
		if err != nil {
			return err
		}
		a, err = f.svc.Update(ctx, a)
		if err != nil {
			return err
		}
		if _, err := f.svc.Update(ctx, a); err != nil {
			return err
		}
		if _, err := f.svc.CreateDocument(ctx, &core.Document{DocumentID: "b"}); err != nil {
			return err
		}
		if err := f.svc.DeleteDocument(ctx, "b"); err != nil {
			return err
		}
		next, err := f.svc.Update(ctx, c)
		if err != nil {
			return err
		}
		if _, err := f.svc.Update(ctx, next); err != nil {
			return err
		}
		return f.svc.DeleteDocument(ctx, "d")
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"create:a", "update:c", "delete:d"}, f.events.tags()[baseline:])

	versions, err := f.svc.GetVersions(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, versions, 1, "in-transaction updates collapse into one version")
	_, err = f.svc.GetDocument(context.Background(), "b")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestService_RepeatedUpdatesInOneTransaction(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, &core.Document{DocumentID: "a"})

	err := f.inTx(t, func(ctx context.Context) error {
		first, err := f.svc.Update(ctx, created)
		require.NoError(t, err)
		second, err := f.svc.Update(ctx, first)
		require.NoError(t, err)
		assert.True(t, second.VersionTimestamp.After(*first.VersionTimestamp))

		// Each update hands back the version the next one must present.
		third, err := f.svc.Update(ctx, second)
		require.NoError(t, err)
		assert.True(t, third.VersionTimestamp.After(*second.VersionTimestamp))

		// Only the final state is persisted.
		_, err = f.svc.GetDocumentVersion(ctx, "a", *first.VersionTimestamp)
		assert.ErrorIs(t, err, core.ErrVersionNotFound)
		return nil
	})
	require.NoError(t, err)

	versions, err := f.svc.GetVersions(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestService_Facets(t *testing.T) {
	f := newFixture(t)
	f.create(t, &core.Document{
		DocumentID: "a",
		Facets:     map[string]jsontext.Value{"keep": jsontext.Value(`1`), "drop": jsontext.Value(`2`)},
	})

	err := f.inTx(t, func(ctx context.Context) error {
		require.NoError(t, f.svc.StoreFacet(ctx, "a", "new", jsontext.Value(`"first"`)))
		require.NoError(t, f.svc.StoreFacet(ctx, "a", "new", jsontext.Value(`"second"`)))
		require.NoError(t, f.svc.RemoveFacet(ctx, "a", "drop"))

		v, ok, err := f.svc.RetrieveFacet(ctx, "a", "new")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, `"second"`, string(v))

		_, ok, err = f.svc.RetrieveFacet(ctx, "a", "drop")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	got, err := f.svc.GetDocument(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, `1`, string(got.Facets["keep"]))
	assert.Equal(t, `"second"`, string(got.Facets["new"]))
	assert.NotContains(t, got.Facets, "drop")

	versions, err := f.svc.GetVersions(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	assert.Error(t, f.inTx(t, func(ctx context.Context) error {
		return f.svc.StoreFacet(ctx, "a", "bad", jsontext.Value(`{`))
	}))
}

func TestService_FacetsOnDeletedDocument(t *testing.T) {
	f := newFixture(t)
	f.create(t, &core.Document{DocumentID: "a"})

	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		if err := f.svc.DeleteDocument(ctx, "a"); err != nil {
			return err
		}
		return f.svc.StoreFacet(ctx, "a", "reason", jsontext.Value(`"obsolete"`))
	}))

	versions, err := f.svc.GetVersions(context.Background(), "a")
	require.NoError(t, err)
	tombstone, err := f.svc.loadVersion(context.Background(), "a", versions[len(versions)-1])
	require.NoError(t, err)
	assert.True(t, tombstone.Deleted)
	assert.Equal(t, `"obsolete"`, string(tombstone.Facets["reason"]))

	err = f.inTx(t, func(ctx context.Context) error {
		return f.svc.StoreFacet(ctx, "a", "late", jsontext.Value(`1`))
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestService_IdentityErrors(t *testing.T) {
	f := newFixture(t)
	f.create(t, &core.Document{DocumentID: "a"})

	err := f.inTx(t, func(ctx context.Context) error {
		_, err := f.svc.CreateDocument(ctx, &core.Document{DocumentID: "a"})
		return err
	})
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	_, err = f.update(t, &core.Document{DocumentID: "missing"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = f.inTx(t, func(ctx context.Context) error {
		return f.svc.DeleteDocument(ctx, "missing")
	})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.svc.GetDocument(context.Background(), "a/b")
	assert.ErrorIs(t, err, core.ErrInvalidObjectName)
}

func TestService_RecreateAfterDelete(t *testing.T) {
	f := newFixture(t)
	f.create(t, &core.Document{DocumentID: "a"})
	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		return f.svc.DeleteDocument(ctx, "a")
	}))

	again := f.create(t, &core.Document{DocumentID: "a"})
	got, err := f.svc.GetDocument(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, got.VersionTimestamp.Equal(*again.VersionTimestamp))

	versions, err := f.svc.GetVersions(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, versions, 3)
}

func TestService_MutationsNeedTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateDocument(ctx, &core.Document{DocumentID: "a"})
	assert.ErrorIs(t, err, wal.ErrNoTransaction)
	_, err = f.svc.Update(ctx, &core.Document{DocumentID: "a"})
	assert.ErrorIs(t, err, wal.ErrNoTransaction)
	assert.ErrorIs(t, f.svc.DeleteDocument(ctx, "a"), wal.ErrNoTransaction)
	assert.ErrorIs(t, f.svc.StoreFacet(ctx, "a", "k", jsontext.Value(`1`)), wal.ErrNoTransaction)
	_, err = f.svc.PutContent(ctx, "a", ContentInfo{}, strings.NewReader("x"))
	assert.ErrorIs(t, err, wal.ErrNoTransaction)
}

func TestService_GetAllDocumentIDs(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"c", "a", "b"} {
		f.create(t, &core.Document{DocumentID: id})
	}

	var ids []string
	for id, err := range f.svc.GetAllDocumentIDs(context.Background()) {
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
}

func TestService_SingleVersioning(t *testing.T) {
	f := newFixture(t, WithMultiVersioning(false))
	ctx := context.Background()

	created := f.create(t, &core.Document{DocumentID: "a"})
	assert.Nil(t, created.VersionTimestamp)

	created.Facets = map[string]jsontext.Value{"k": jsontext.Value(`1`)}
	_, err := f.update(t, created)
	require.NoError(t, err)
	assert.Contains(t, f.dump(t), "documents/a")
	assert.Len(t, f.dump(t), 1)

	got, err := f.svc.GetDocument(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, `1`, string(got.Facets["k"]))

	_, err = f.svc.GetVersions(ctx, "a")
	assert.ErrorIs(t, err, ErrSingleVersion)

	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		return f.svc.DeleteDocument(ctx, "a")
	}))
	assert.Empty(t, f.dump(t))
	_, err = f.svc.GetDocument(ctx, "a")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestService_SingleVersionStaleDelete(t *testing.T) {
	f := newFixture(t, WithMultiVersioning(false))
	f.create(t, &core.Document{DocumentID: "a"})

	ctx1, tx1 := f.coord.Begin(context.Background())
	_, err := f.svc.GetDocument(ctx1, "a")
	require.NoError(t, err)

	current, err := f.svc.GetDocument(context.Background(), "a")
	require.NoError(t, err)
	current.Facets = map[string]jsontext.Value{"k": jsontext.Value(`"newer"`)}
	_, err = f.update(t, current)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteDocument(ctx1, "a"))
	err = tx1.Commit(ctx1)
	require.ErrorIs(t, err, core.ErrVersionMismatch)
	assert.Equal(t, wal.StateRolledBack, tx1.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.VersionMismatches.WithLabelValues(metrics.StageMidAir)))

	got, err := f.svc.GetDocument(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, `"newer"`, string(got.Facets["k"]))
}

func TestService_VersionReadInsideTransaction(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, &core.Document{DocumentID: "a"})
	t1 := *created.VersionTimestamp

	err := f.inTx(t, func(ctx context.Context) error {
		next := created.Clone()
		next.Facets = map[string]jsontext.Value{"step": jsontext.Value(`1`)}
		u1, err := f.svc.Update(ctx, next)
		require.NoError(t, err)
		u1.Facets["step"] = jsontext.Value(`2`)
		u2, err := f.svc.Update(ctx, u1)
		require.NoError(t, err)

		old, err := f.svc.GetDocumentVersion(ctx, "a", t1)
		require.NoError(t, err)
		require.NotNil(t, old.VersionTimestamp)
		assert.True(t, old.VersionTimestamp.Equal(t1))
		assert.Empty(t, old.Facets)

		inFlight, err := f.svc.GetDocumentVersion(ctx, "a", *u2.VersionTimestamp)
		require.NoError(t, err)
		assert.Equal(t, `2`, string(inFlight.Facets["step"]))

		// Intermediate states are never persisted.
		_, err = f.svc.GetDocumentVersion(ctx, "a", *u1.VersionTimestamp)
		assert.ErrorIs(t, err, core.ErrVersionNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestService_Content(t *testing.T) {
	f := newFixture(t)
	f.create(t, &core.Document{DocumentID: "a"})
	payload := strings.Repeat("0123456789", 50)

	var element core.ContentElement
	require.NoError(t, f.inTx(t, func(ctx context.Context) error {
		var err error
		element, err = f.svc.PutContent(ctx, "a", ContentInfo{MediaType: "text/plain"}, strings.NewReader(payload))
		return err
	}))
	assert.NotEmpty(t, element.ID)
	assert.Equal(t, int64(len(payload)), element.Length)

	digest := core.NewDigest()
	digest.Write([]byte(payload))
	assert.Equal(t, core.FormatDigest(digest.Sum(nil)), element.Digest)

	doc, err := f.svc.GetDocument(context.Background(), "a")
	require.NoError(t, err)
	recorded, ok := doc.ContentElement(element.ID)
	require.True(t, ok)
	assert.Equal(t, element, recorded)

	obj, err := f.svc.GetContent(context.Background(), "a", element.ID)
	require.NoError(t, err)
	data, err := obj.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	_, err = f.svc.GetContent(context.Background(), "a", "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestService_ContentReplacementKeepsHistory(t *testing.T) {
	f := newFixture(t)
	f.create(t, &core.Document{DocumentID: "a"})
	bg := context.Background()

	upload := func(payload string) time.Time {
		require.NoError(t, f.inTx(t, func(ctx context.Context) error {
			_, err := f.svc.PutContent(ctx, "a", ContentInfo{ID: "c1"}, strings.NewReader(payload))
			return err
		}))
		doc, err := f.svc.GetDocument(bg, "a")
		require.NoError(t, err)
		return *doc.VersionTimestamp
	}
	read := func(obj *storage.StoreObject, err error) string {
		require.NoError(t, err)
		data, err := obj.ReadAll()
		require.NoError(t, err)
		return string(data)
	}

	first := upload("first")
	upload("second")

	assert.Equal(t, "second", read(f.svc.GetContent(bg, "a", "c1")))
	assert.Equal(t, "first", read(f.svc.GetContentVersion(bg, "a", first, "c1")))

	old, err := f.svc.GetDocumentVersion(bg, "a", first)
	require.NoError(t, err)
	element, ok := old.ContentElement("c1")
	require.True(t, ok)
	assert.Equal(t, int64(len("first")), element.Length)
}

func TestService_SingleVersionContentReplacedInPlace(t *testing.T) {
	f := newFixture(t, WithMultiVersioning(false))
	f.create(t, &core.Document{DocumentID: "a"})

	for _, payload := range []string{"first", "second"} {
		require.NoError(t, f.inTx(t, func(ctx context.Context) error {
			_, err := f.svc.PutContent(ctx, "a", ContentInfo{ID: "c1"}, strings.NewReader(payload))
			return err
		}))
	}
	dump := f.dump(t)
	assert.Len(t, dump, 2)
	assert.Equal(t, "second", dump["content/a/c1"])
}

func TestService_ContentRollback(t *testing.T) {
	f := newFixture(t)
	f.create(t, &core.Document{DocumentID: "a"})
	before := f.dump(t)

	ctx, tx := f.coord.Begin(context.Background())
	_, err := f.svc.PutContent(ctx, "a", ContentInfo{ID: "c1"}, strings.NewReader("payload"))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	assert.Equal(t, before, f.dump(t))
}

func TestService_ReadsOutsideTransactionDoNotWrite(t *testing.T) {
	f := newFixture(t)
	f.create(t, &core.Document{DocumentID: "a"})
	n := f.recorder.mutations()

	for i := 0; i < 3; i++ {
		_, err := f.svc.GetDocument(context.Background(), "a")
		require.NoError(t, err)
	}
	_, err := f.svc.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, n, f.recorder.mutations())
}

func TestService_EventsAfterPersist(t *testing.T) {
	f := newFixture(t)
	var seen error
	f.svc.Bus().Subscribe(func(ctx context.Context, e events.Event) {
		// Handlers may read the persisted state right away.
		_, seen = f.svc.GetDocument(context.Background(), e.DocumentID())
	})
	f.create(t, &core.Document{DocumentID: "a"})
	assert.NoError(t, seen)
}

func TestClock_Monotonic(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &MonotonicClock{now: func() time.Time { return fixed }}

	a := c.Now()
	b := c.Now()
	assert.True(t, b.After(a))

	prev := fixed.Add(time.Hour)
	assert.True(t, after(c, &prev).After(prev))
}
