// Package export builds calendar and report documents from the store and
// writes them to disk on a schedule.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"shifpost/internal/capture"
	"shifpost/internal/config"
	"shifpost/internal/ics"
	appLog "shifpost/internal/log"
	"shifpost/internal/metrics"
	"shifpost/internal/model"
	"shifpost/internal/report"
	"shifpost/internal/store"
	"shifpost/internal/summary"
)

// Report formats.
const (
	FormatHTML = "html"
	FormatPDF  = "pdf"
)

// AllUsers in export.users stands for every user holding shifts.
const AllUsers = "*"

// ErrUnknownFormat is returned for a report format other than html or pdf.
var ErrUnknownFormat = errors.New("export: unknown report format")

// File is a document ready to be served or written.
type File struct {
	Body        []byte
	Filename    string
	ContentType string
	// Fallback is set when a PDF was asked for but HTML was produced.
	Fallback bool
}

// Exporter renders documents for one user and month out of a Store.
type Exporter struct {
	cfg     *config.Config
	store   *store.Store
	loc     *time.Location
	pdf     capture.Renderer
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock overrides time.Now for DTSTAMP, footers and "current month".
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// New creates an Exporter. A nil pdf renderer disables PDF output and nil
// metrics get a private registry.
func New(cfg *config.Config, st *store.Store, pdf capture.Renderer, m *metrics.Metrics, opts ...Option) *Exporter {
	if pdf == nil {
		pdf = capture.Disabled{}
	}
	if m == nil {
		m = metrics.New()
	}
	e := &Exporter{
		cfg:     cfg,
		store:   st,
		loc:     st.Location(),
		pdf:     pdf,
		metrics: m,
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Now returns the exporter clock in the store's zone.
func (e *Exporter) Now() time.Time {
	return e.now().In(e.loc)
}

// MonthShifts returns the user's records inside month, oldest first.
func (e *Exporter) MonthShifts(userID string, month time.Time) []model.Shift {
	start, end := summary.MonthRange(month, e.loc)
	return e.store.QueryRange(userID, start, end)
}

// Summary aggregates the user's month at wage.
func (e *Exporter) Summary(userID string, month time.Time, wage float64) model.MonthlySummary {
	return summary.Compute(e.MonthShifts(userID, month), wage)
}

// Calendar exports the user's month as an iCalendar file.
func (e *Exporter) Calendar(userID string, month time.Time) (ics.Document, error) {
	opts := ics.DefaultExportOptions(e.loc)
	opts.Product = e.cfg.Product
	opts.CalendarName = e.cfg.CalendarName
	opts.Description = e.cfg.CalendarDescription
	opts.Now = e.now

	doc, err := ics.Export(e.MonthShifts(userID, month), month, opts)
	if err != nil {
		return ics.Document{}, fmt.Errorf("export calendar: %w", err)
	}
	e.metrics.Exported(metrics.FormatICS)
	e.metrics.SkippedSlots.Add(float64(doc.Skipped))
	return doc, nil
}

// Report renders the user's month as HTML, or as PDF when format is
// FormatPDF. A PDF that cannot be produced falls back to the HTML document.
func (e *Exporter) Report(ctx context.Context, userID string, month time.Time, wage float64, format string) (File, error) {
	if format == "" {
		format = FormatHTML
	}
	if format != FormatHTML && format != FormatPDF {
		return File{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	records := e.MonthShifts(userID, month)
	sum := summary.Compute(records, wage)
	doc, err := report.Render(records, month, wage, sum.TotalHours, sum.ProjectedIncome, report.Options{
		Product:  e.cfg.Product,
		Location: e.loc,
		Now:      e.now,
	})
	if err != nil {
		return File{}, err
	}
	html := File{Body: doc.Body, Filename: doc.Filename, ContentType: doc.ContentType}

	if format == FormatHTML {
		e.metrics.Exported(metrics.FormatHTML)
		return html, nil
	}

	pdf, err := e.pdf.RenderPDF(ctx, doc.Body)
	if err != nil {
		if errors.Is(err, capture.ErrDisabled) {
			appLog.Info("pdf rendering disabled; serving html report", "user", userID)
		} else {
			appLog.Error("pdf render failed; serving html report", err, "user", userID)
		}
		html.Fallback = true
		e.metrics.Exported(metrics.FormatHTML)
		return html, nil
	}
	e.metrics.Exported(metrics.FormatPDF)
	return File{
		Body:        pdf,
		Filename:    report.Filename(e.cfg.Product, model.MonthStart(month, e.loc), "pdf"),
		ContentType: "application/pdf",
	}, nil
}

// RunOnce writes the current month's calendar and report for every
// configured user into the export directory. Without a directory or users
// it only logs.
func (e *Exporter) RunOnce(ctx context.Context) error {
	dir := e.cfg.Export.Dir
	users := e.exportUsers()
	if dir == "" || len(users) == 0 {
		appLog.Info("scheduled export skipped", "dir", dir, "users", len(users))
		return nil
	}

	month := model.MonthStart(e.Now(), e.loc)
	format := FormatHTML
	if e.cfg.PDF.Enabled {
		format = FormatPDF
	}

	var errs []error
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.exportUser(ctx, dir, user, month, format); err != nil {
			appLog.Error("scheduled export failed", err, "user", user)
			errs = append(errs, fmt.Errorf("user %s: %w", user, err))
		}
	}
	return errors.Join(errs...)
}

// exportUsers expands the "*" entry to every user currently holding shifts.
func (e *Exporter) exportUsers() []string {
	var out []string
	for _, u := range e.cfg.Export.Users {
		if u == AllUsers {
			out = append(out, e.store.Users()...)
			continue
		}
		out = append(out, u)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (e *Exporter) exportUser(ctx context.Context, dir, user string, month time.Time, format string) error {
	userDir := filepath.Join(dir, safeName(user))

	cal, err := e.Calendar(user, month)
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(filepath.Join(userDir, cal.Filename), cal.Body, 0o644); err != nil {
		return fmt.Errorf("write calendar: %w", err)
	}

	rep, err := e.Report(ctx, user, month, e.cfg.HourlyWage, format)
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(filepath.Join(userDir, rep.Filename), rep.Body, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	appLog.Info("scheduled export written",
		"user", user,
		"dir", userDir,
		"calendar", cal.Filename,
		"report", rep.Filename,
		"events", cal.Events,
	)
	return nil
}

// safeName maps a user id onto a single path element.
func safeName(user string) string {
	out := []rune(user)
	for i, r := range out {
		if r == '/' || r == '\\' || r == os.PathSeparator || r < 0x20 {
			out[i] = '_'
		}
	}
	name := string(out)
	if name == "." || name == ".." || name == "" {
		return "_"
	}
	return name
}
