package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shifpost/internal/config"
	"shifpost/internal/metrics"
	"shifpost/internal/store"
)

type fakePDF struct {
	err   error
	calls int
}

func (f *fakePDF) RenderPDF(_ context.Context, html []byte) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("%PDF-1.4\n"), html[:10]...), nil
}

type fixture struct {
	cfg     *config.Config
	store   *store.Store
	metrics *metrics.Metrics
	loc     *time.Location
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Export.Dir = t.TempDir()
	cfg.Export.Users = []string{"alice"}

	now := time.Date(2024, 12, 10, 9, 0, 0, 0, loc)
	st := store.New(loc, store.WithClock(func() time.Time { return now }))
	st.Upsert("alice", time.Date(2024, 12, 15, 0, 0, 0, 0, loc), []string{"09:00-13:00", "bogus"})
	st.Upsert("alice", time.Date(2024, 12, 21, 0, 0, 0, 0, loc), []string{"終日"})
	st.Upsert("alice", time.Date(2025, 1, 4, 0, 0, 0, 0, loc), []string{"10:00-14:00"})

	return &fixture{cfg: cfg, store: st, metrics: metrics.New(), loc: loc, now: now}
}

func (f *fixture) exporter(pdf *fakePDF) *Exporter {
	var e *Exporter
	if pdf == nil {
		e = New(f.cfg, f.store, nil, f.metrics, WithClock(func() time.Time { return f.now }))
	} else {
		e = New(f.cfg, f.store, pdf, f.metrics, WithClock(func() time.Time { return f.now }))
	}
	return e
}

func TestCalendar(t *testing.T) {
	f := newFixture(t)
	doc, err := f.exporter(nil).Calendar("alice", time.Date(2024, 12, 1, 0, 0, 0, 0, f.loc))
	require.NoError(t, err)

	assert.Equal(t, "shif-post-2024-12.ics", doc.Filename)
	assert.Equal(t, 2, doc.Events)
	assert.Equal(t, 1, doc.Skipped)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Exports.WithLabelValues(metrics.FormatICS)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SkippedSlots))
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	sum := f.exporter(nil).Summary("alice", time.Date(2024, 12, 1, 0, 0, 0, 0, f.loc), 1000)
	assert.Equal(t, 12.0, sum.TotalHours)
	assert.Equal(t, 12000.0, sum.ProjectedIncome)
}

func TestReportFormats(t *testing.T) {
	f := newFixture(t)
	month := time.Date(2024, 12, 1, 0, 0, 0, 0, f.loc)

	t.Run("html", func(t *testing.T) {
		file, err := f.exporter(nil).Report(context.Background(), "alice", month, 1000, "")
		require.NoError(t, err)
		assert.Equal(t, "shif-post-2024-12.html", file.Filename)
		assert.False(t, file.Fallback)
		assert.Contains(t, string(file.Body), "¥12,000")
	})

	t.Run("pdf", func(t *testing.T) {
		pdf := &fakePDF{}
		file, err := f.exporter(pdf).Report(context.Background(), "alice", month, 1000, FormatPDF)
		require.NoError(t, err)
		assert.Equal(t, 1, pdf.calls)
		assert.Equal(t, "shif-post-2024-12.pdf", file.Filename)
		assert.Equal(t, "application/pdf", file.ContentType)
		assert.True(t, strings.HasPrefix(string(file.Body), "%PDF"))
	})

	t.Run("pdf failure falls back to html", func(t *testing.T) {
		pdf := &fakePDF{err: errors.New("no browser")}
		file, err := f.exporter(pdf).Report(context.Background(), "alice", month, 1000, FormatPDF)
		require.NoError(t, err)
		assert.True(t, file.Fallback)
		assert.Equal(t, "shif-post-2024-12.html", file.Filename)
	})

	t.Run("pdf disabled falls back to html", func(t *testing.T) {
		file, err := f.exporter(nil).Report(context.Background(), "alice", month, 1000, FormatPDF)
		require.NoError(t, err)
		assert.True(t, file.Fallback)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := f.exporter(nil).Report(context.Background(), "alice", month, 1000, "docx")
		assert.ErrorIs(t, err, ErrUnknownFormat)
	})
}

func TestRunOnceWritesFiles(t *testing.T) {
	f := newFixture(t)
	f.cfg.Export.Users = []string{"alice", "../bob"}

	require.NoError(t, f.exporter(nil).RunOnce(context.Background()))

	ics, err := os.ReadFile(filepath.Join(f.cfg.Export.Dir, "alice", "shif-post-2024-12.ics"))
	require.NoError(t, err)
	assert.Contains(t, string(ics), "BEGIN:VCALENDAR")

	html, err := os.ReadFile(filepath.Join(f.cfg.Export.Dir, "alice", "shif-post-2024-12.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "2024年12月")

	// A user with no shifts still gets (empty) documents, inside the export dir.
	_, err = os.Stat(filepath.Join(f.cfg.Export.Dir, ".._bob", "shif-post-2024-12.ics"))
	assert.NoError(t, err)
}

func TestRunOnceUsesPDFWhenEnabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.PDF.Enabled = true
	pdf := &fakePDF{}

	require.NoError(t, f.exporter(pdf).RunOnce(context.Background()))
	assert.Equal(t, 1, pdf.calls)
	_, err := os.Stat(filepath.Join(f.cfg.Export.Dir, "alice", "shif-post-2024-12.pdf"))
	assert.NoError(t, err)
}

func TestRunOnceNoop(t *testing.T) {
	f := newFixture(t)
	f.cfg.Export.Dir = ""
	require.NoError(t, f.exporter(nil).RunOnce(context.Background()))

	f = newFixture(t)
	f.cfg.Export.Users = nil
	require.NoError(t, f.exporter(nil).RunOnce(context.Background()))
	entries, err := os.ReadDir(f.cfg.Export.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExportUsersWildcard(t *testing.T) {
	f := newFixture(t)
	f.store.Upsert("carol", time.Date(2024, 12, 2, 0, 0, 0, 0, f.loc), []string{"終日"})
	f.cfg.Export.Users = []string{"zed", AllUsers, "alice"}

	assert.Equal(t, []string{"alice", "carol", "zed"}, f.exporter(nil).exportUsers())

	require.NoError(t, f.exporter(nil).RunOnce(context.Background()))
	_, err := os.Stat(filepath.Join(f.cfg.Export.Dir, "carol", "shif-post-2024-12.ics"))
	assert.NoError(t, err)
}

func TestRunOnceHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.exporter(nil).RunOnce(ctx), context.Canceled)
}

func TestSchedule(t *testing.T) {
	f := newFixture(t)
	e := f.exporter(nil)

	_, err := e.Schedule(context.Background(), "not a cron")
	assert.Error(t, err)

	s, err := e.Schedule(context.Background(), f.cfg.Export.Cron)
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.NoError(t, ctx.Err())
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "alice", safeName("alice"))
	assert.Equal(t, "a_b", safeName("a/b"))
	assert.Equal(t, "_", safeName(".."))
	assert.Equal(t, "_", safeName(""))
}
