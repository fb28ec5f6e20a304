// Package report renders a month of shifts as a printable HTML document.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"slices"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"shifpost/internal/model"
	"shifpost/internal/slot"
	"shifpost/internal/summary"
)

// ContentType is the MIME type of a rendered report.
const ContentType = "text/html; charset=utf-8"

//go:embed report.html.tmpl
var pageSource string

var page = template.Must(template.New("report").Parse(pageSource))

var weekdayLabels = [7]string{"日", "月", "火", "水", "木", "金", "土"}

// Options carries presentation settings that do not come from the data.
type Options struct {
	// Product prefixes the file name. Default "shif-post".
	Product string
	// Title is the page heading. Default "シフト表".
	Title string
	// Location is the zone dates are shown in. Default time.Local.
	Location *time.Location
	// Now stamps the footer. Default time.Now.
	Now func() time.Time
}

func (o *Options) normalize() {
	if o.Product == "" {
		o.Product = "shif-post"
	}
	if o.Title == "" {
		o.Title = "シフト表"
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Document is a rendered report.
type Document struct {
	Body        []byte
	Filename    string
	ContentType string
}

// Filename returns "<product>-<year>-<MM>.<ext>".
func Filename(product string, month time.Time, ext string) string {
	return fmt.Sprintf("%s-%04d-%02d.%s", product, month.Year(), int(month.Month()), ext)
}

type row struct {
	Day     int
	Weekday string
	Class   string
	Slots   []string
	Hours   string
	Wage    string
}

type pageData struct {
	Title       string
	MonthLabel  string
	TotalHours  string
	HourlyWage  string
	Income      string
	Rows        []row
	GeneratedAt string
}

// Render lays out the records of month with the precomputed totals.
// Records outside month are dropped and the rest are listed by ascending
// date. Slot strings are HTML-escaped by the template.
func Render(records []model.Shift, month time.Time, hourlyWage, totalHours, income float64, opts Options) (Document, error) {
	opts.normalize()
	loc := opts.Location
	p := message.NewPrinter(language.Japanese)

	rows := summary.InMonth(records, month, loc)
	slices.SortStableFunc(rows, func(a, b model.Shift) int {
		return a.Date.Compare(b.Date)
	})

	data := pageData{
		Title:       opts.Title,
		MonthLabel:  fmt.Sprintf("%d年%d月", month.In(loc).Year(), int(month.In(loc).Month())),
		TotalHours:  hours(p, totalHours),
		HourlyWage:  yen(p, hourlyWage),
		Income:      yen(p, income),
		Rows:        make([]row, 0, len(rows)),
		GeneratedAt: opts.Now().In(loc).Format("2006/01/02 15:04"),
	}
	for _, r := range rows {
		d := model.DateOf(r.Date, loc)
		h := slot.TotalHours(r.TimeSlots)
		data.Rows = append(data.Rows, row{
			Day:     d.Day(),
			Weekday: weekdayLabels[d.Weekday()],
			Class:   weekdayClass(d.Weekday()),
			Slots:   r.TimeSlots,
			Hours:   hours(p, h),
			Wage:    yen(p, h*hourlyWage),
		})
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return Document{}, fmt.Errorf("report: render: %w", err)
	}
	return Document{
		Body:        buf.Bytes(),
		Filename:    Filename(opts.Product, model.MonthStart(month, loc), "html"),
		ContentType: ContentType,
	}, nil
}

func weekdayClass(wd time.Weekday) string {
	switch wd {
	case time.Sunday:
		return "sunday"
	case time.Saturday:
		return "saturday"
	}
	return ""
}

func hours(p *message.Printer, h float64) string {
	return p.Sprint(number.Decimal(h, number.MaxFractionDigits(2)))
}

func yen(p *message.Printer, v float64) string {
	return p.Sprint(number.Decimal(v, number.MaxFractionDigits(0)))
}
