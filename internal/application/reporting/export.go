// Package reporting exports the deadline table as an Excel workbook.
package reporting

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/turtacn/edefter-tracker/internal/application/tracking"
	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

const (
	// SheetName is the single sheet of the export.
	SheetName   = "Beyan Takvimi"
	formatXLSX  = "xlsx"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var headers = []string{"Firma", "VKN/TCKN", "Vergi Türü", "Dönem Tipi", "Dönem", "Son Gün", "Kalan Gün", "Durum"}

var columnWidths = map[string]float64{
	"A": 36, "B": 14, "C": 18, "D": 12, "E": 10, "F": 12, "G": 10, "H": 14,
}

// Status fill colours.
var statusFills = map[deadline.Status]string{
	deadline.StatusOverdue: "F8CBAD",
	deadline.StatusDueSoon: "FFE699",
	deadline.StatusPending: "C6EFCE",
}

// FileName returns the default export file name for date.
func FileName(date time.Time) string {
	return fmt.Sprintf("edefter-takvim-%s.xlsx", date.Format("2006-01-02"))
}

type Option func(*Exporter)

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(e *Exporter) { e.metrics = m }
}

// Exporter writes deadline rows as XLSX.
type Exporter struct {
	logger  logging.Logger
	metrics *prometheus.AppMetrics
}

func NewExporter(logger logging.Logger, opts ...Option) *Exporter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	e := &Exporter{logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExportDeadlines writes rows to w in the given order, one per company.
func (e *Exporter) ExportDeadlines(ctx context.Context, w io.Writer, rows []tracking.Row) (err error) {
	defer func() { prometheus.RecordExport(e.metrics, formatXLSX, err) }()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to name sheet")
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to write header")
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, styles.header); err != nil {
		return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to style header")
	}

	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := i + 2
		values := []interface{}{
			r.CompanyName,
			r.CompanyKey,
			tracking.RegimeLabel(r.Regime),
			tracking.CadenceLabel(r.Cadence),
			r.PeriodLabel,
			r.DeadlineDate,
			r.RemainingDays,
			tracking.StatusLabel(r.Status),
		}
		start, _ := excelize.CoordinatesToCellName(1, line)
		if err := f.SetSheetRow(SheetName, start, &values); err != nil {
			return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to write row").WithDetail(r.CompanyKey)
		}
		end, _ := excelize.CoordinatesToCellName(len(headers), line)
		if err := f.SetCellStyle(SheetName, start, end, styles.body); err != nil {
			return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to style row")
		}
		dateCell := fmt.Sprintf("F%d", line)
		if err := f.SetCellStyle(SheetName, dateCell, dateCell, styles.date); err != nil {
			return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to style date")
		}
		if st, ok := styles.status[r.Status]; ok {
			statusCell := fmt.Sprintf("H%d", line)
			if err := f.SetCellStyle(SheetName, statusCell, statusCell, st); err != nil {
				return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to style status")
			}
		}
	}

	for col, width := range columnWidths {
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to size column")
		}
	}
	if len(rows) > 0 {
		lastCell, _ := excelize.CoordinatesToCellName(len(headers), len(rows)+1)
		if err := f.AutoFilter(SheetName, "A1:"+lastCell, nil); err != nil {
			return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to add filter")
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to freeze header")
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to write workbook")
	}
	e.logger.Info("deadline report exported", logging.Int("rows", len(rows)))
	return nil
}

type styleSet struct {
	header int
	body   int
	date   int
	status map[deadline.Status]int
}

func border() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "BFBFBF", Style: 1},
		{Type: "top", Color: "BFBFBF", Style: 1},
		{Type: "right", Color: "BFBFBF", Style: 1},
		{Type: "bottom", Color: "BFBFBF", Style: 1},
	}
}

func newStyles(f *excelize.File) (*styleSet, error) {
	s := &styleSet{status: make(map[deadline.Status]int, len(statusFills))}
	var err error

	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"305496"}, Pattern: 1},
		Border:    border(),
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExportFailed, "failed to create header style")
	}

	s.body, err = f.NewStyle(&excelize.Style{Border: border()})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExportFailed, "failed to create body style")
	}

	dateFmt := "dd.mm.yyyy"
	s.date, err = f.NewStyle(&excelize.Style{Border: border(), CustomNumFmt: &dateFmt})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExportFailed, "failed to create date style")
	}

	for status, color := range statusFills {
		id, err := f.NewStyle(&excelize.Style{
			Font:   &excelize.Font{Bold: true},
			Fill:   excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Border: border(),
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeExportFailed, "failed to create status style")
		}
		s.status[status] = id
	}
	return s, nil
}
