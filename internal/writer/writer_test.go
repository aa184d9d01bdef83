package writer_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tbserrors "github.com/NamanBalaji/tbs/internal/errors"
	"github.com/NamanBalaji/tbs/internal/progress"
	"github.com/NamanBalaji/tbs/internal/reconcile"
	"github.com/NamanBalaji/tbs/internal/testutil"
	"github.com/NamanBalaji/tbs/internal/writer"
)

func TestApplyPlan_CreatesAndCopies(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "src.bin")
	data := testutil.RandomBytes(1, 100*1024)
	testutil.WriteFile(t, source, data)

	dest := filepath.Join(dir, "export", "nested", "out.bin")
	plan := &reconcile.CopyPlan{
		ExportPath:     dest,
		DeclaredLength: int64(len(data)),
		TargetLength:   int64(len(data)),
		Create:         true,
		Segments: []reconcile.CopySegment{
			{Source: source, SourceOffset: 0, DestOffset: 0, Length: 40 * 1024},
			{Source: source, SourceOffset: 60 * 1024, DestOffset: 60 * 1024, Length: 40 * 1024},
		},
	}

	rec := progress.NewRecorder()
	res := writer.New(writer.Options{Threads: 2, Observer: rec}).ApplyPlan(context.Background(), plan)

	assert.Empty(t, res.Issues)
	assert.True(t, res.Resized)
	assert.Equal(t, 2, res.SegmentsApplied)
	assert.Equal(t, int64(80*1024), res.BytesWritten)
	assert.Len(t, rec.Events(progress.StageWrite), 2)

	got := testutil.ReadFile(t, dest)
	require.Len(t, got, len(data))
	assert.Equal(t, data[:40*1024], got[:40*1024])
	assert.Equal(t, make([]byte, 20*1024), got[40*1024:60*1024])
	assert.Equal(t, data[60*1024:], got[60*1024:])
}

func TestApplyPlan_UntouchedRangesSurvive(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "src.bin")
	testutil.WriteFile(t, source, testutil.Fill('S', 64))

	dest := filepath.Join(dir, "out.bin")
	sentinel := testutil.Fill('#', 64)
	testutil.WriteFile(t, dest, sentinel)

	plan := &reconcile.CopyPlan{
		ExportPath:    dest,
		CurrentLength: 64,
		Exists:        true,
		Segments:      []reconcile.CopySegment{{Source: source, SourceOffset: 16, DestOffset: 16, Length: 16}},
	}
	res := writer.New(writer.Options{Threads: 1}).ApplyPlan(context.Background(), plan)
	require.Empty(t, res.Issues)

	got := testutil.ReadFile(t, dest)
	assert.Equal(t, sentinel[:16], got[:16])
	assert.Equal(t, testutil.Fill('S', 16), got[16:32])
	assert.Equal(t, sentinel[32:], got[32:])
}

func TestApplyPlan_StaleSourceSkipsOnlyItsSegment(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.bin")
	short := filepath.Join(dir, "short.bin")
	testutil.WriteFile(t, good, testutil.Fill('G', 32))
	testutil.WriteFile(t, short, testutil.Fill('X', 8))

	dest := filepath.Join(dir, "out.bin")
	plan := &reconcile.CopyPlan{
		ExportPath:   dest,
		TargetLength: 96,
		Create:       true,
		Segments: []reconcile.CopySegment{
			{Source: good, SourceOffset: 0, DestOffset: 0, Length: 32},
			{Source: filepath.Join(dir, "gone.bin"), SourceOffset: 0, DestOffset: 32, Length: 32},
			{Source: short, SourceOffset: 0, DestOffset: 64, Length: 32},
		},
	}

	res := writer.New(writer.Options{Threads: 3}).ApplyPlan(context.Background(), plan)

	assert.False(t, res.Failed)
	assert.Equal(t, 1, res.SegmentsApplied)
	assert.Equal(t, 2, res.SegmentsSkipped)
	require.Len(t, res.Issues, 2)
	offsets := map[int64]bool{}
	for _, err := range res.Issues {
		assert.True(t, tbserrors.IsKind(err, tbserrors.KindStaleSource))
		assert.True(t, errors.Is(err, tbserrors.ErrSourceChanged))

		var re *tbserrors.ReconcileError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, dest, re.Details["exportPath"])
		assert.Equal(t, int64(32), re.Details["length"])
		offsets[re.Details["destOffset"].(int64)] = true
	}
	assert.Equal(t, map[int64]bool{32: true, 64: true}, offsets)

	got := testutil.ReadFile(t, dest)
	require.Len(t, got, 96)
	assert.Equal(t, testutil.Fill('G', 32), got[:32])
	assert.Equal(t, make([]byte, 64), got[32:])
}

func TestApplyPlan_EmptyPlanDoesNothing(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "missing", "out.bin")

	res := writer.New(writer.Options{}).ApplyPlan(context.Background(), &reconcile.CopyPlan{ExportPath: dest})

	assert.Empty(t, res.Issues)
	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
}

func TestApplyPlan_NeverShrinks(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	testutil.WriteFile(t, dest, testutil.Fill('A', 100))

	res := writer.New(writer.Options{}).ApplyPlan(context.Background(), &reconcile.CopyPlan{
		ExportPath:   dest,
		TargetLength: 50,
	})

	assert.False(t, res.Resized)
	assert.Equal(t, testutil.Fill('A', 100), testutil.ReadFile(t, dest))
}

func TestApplyPlan_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	testutil.WriteFile(t, blocker, []byte("file, not a directory"))

	res := writer.New(writer.Options{}).ApplyPlan(context.Background(), &reconcile.CopyPlan{
		ExportPath:   filepath.Join(blocker, "out.bin"),
		TargetLength: 10,
		Create:       true,
	})

	assert.True(t, res.Failed)
	require.Len(t, res.Issues, 1)
	assert.True(t, tbserrors.IsKind(res.Issues[0], tbserrors.KindWriteFailure))
}

func TestApply_IsolatesFailuresAndKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "src.bin")
	testutil.WriteFile(t, source, testutil.Fill('Z', 16))
	blocker := filepath.Join(dir, "blocker")
	testutil.WriteFile(t, blocker, nil)

	plans := []*reconcile.CopyPlan{
		{ExportPath: filepath.Join(blocker, "a.bin"), TargetLength: 16, Create: true},
		{ExportPath: filepath.Join(dir, "b.bin"), TargetLength: 16, Create: true,
			Segments: []reconcile.CopySegment{{Source: source, Length: 16}}},
		{ExportPath: filepath.Join(dir, "c.bin")},
	}

	results, err := writer.New(writer.Options{Threads: 2}).Apply(context.Background(), plans)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Failed)
	assert.Same(t, plans[1], results[1].Plan)
	assert.False(t, results[1].Failed)
	assert.True(t, bytes.Equal(testutil.Fill('Z', 16), testutil.ReadFile(t, filepath.Join(dir, "b.bin"))))
	assert.Same(t, plans[2], results[2].Plan)
}

func TestApply_Idempotent(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "src.bin")
	data := testutil.RandomBytes(9, 48)
	testutil.WriteFile(t, source, data)

	dest := filepath.Join(dir, "out.bin")
	plan := &reconcile.CopyPlan{
		ExportPath:   dest,
		TargetLength: 48,
		Create:       true,
		Segments:     []reconcile.CopySegment{{Source: source, Length: 48}},
	}

	w := writer.New(writer.Options{Threads: 2})
	for i := 0; i < 2; i++ {
		results, err := w.Apply(context.Background(), []*reconcile.CopyPlan{plan})
		require.NoError(t, err)
		require.Empty(t, results[0].Issues)
	}

	assert.Equal(t, data, testutil.ReadFile(t, dest))
}

func TestApply_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "out.bin")
	_, err := writer.New(writer.Options{}).Apply(ctx, []*reconcile.CopyPlan{{ExportPath: dest, TargetLength: 1, Create: true}})
	assert.ErrorIs(t, err, context.Canceled)
}
