package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/internal/domain/upload"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/database/sqlite"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

const uploadColumns = `company_key, year, month, has_kb, has_yb, complete, files, detected_at`

type uploadRow struct {
	CompanyKey string       `db:"company_key"`
	Year       int          `db:"year"`
	Month      int          `db:"month"`
	HasKB      bool         `db:"has_kb"`
	HasYB      bool         `db:"has_yb"`
	Complete   bool         `db:"complete"`
	Files      string       `db:"files"`
	DetectedAt sql.NullTime `db:"detected_at"`
}

func toUploadRow(r *upload.Record) (uploadRow, error) {
	files := r.Files
	if files == nil {
		files = []string{}
	}
	raw, err := json.Marshal(files)
	if err != nil {
		return uploadRow{}, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode upload files")
	}
	return uploadRow{
		CompanyKey: r.CompanyKey,
		Year:       r.Year,
		Month:      r.Month,
		HasKB:      r.HasKB,
		HasYB:      r.HasYB,
		Complete:   r.Complete,
		Files:      string(raw),
		DetectedAt: sql.NullTime{Time: r.DetectedAt, Valid: !r.DetectedAt.IsZero()},
	}, nil
}

func (row uploadRow) record() (*upload.Record, error) {
	rec := &upload.Record{
		CompanyKey: row.CompanyKey,
		Year:       row.Year,
		Month:      row.Month,
		HasKB:      row.HasKB,
		HasYB:      row.HasYB,
		Complete:   row.Complete,
	}
	if row.DetectedAt.Valid {
		rec.DetectedAt = row.DetectedAt.Time.UTC()
	}
	if row.Files != "" {
		if err := json.Unmarshal([]byte(row.Files), &rec.Files); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode upload files")
		}
	}
	return rec, nil
}

type sqliteUploadRepo struct {
	baseRepo
}

// NewUploadRepo returns an upload.Repository backed by conn.
func NewUploadRepo(conn *sqlite.Connection, log logging.Logger) upload.Repository {
	return &sqliteUploadRepo{baseRepo: newBaseRepo(conn, log)}
}

func (r *sqliteUploadRepo) Upsert(ctx context.Context, rec *upload.Record) error {
	if rec == nil {
		return errors.InvalidParam("upload record is nil")
	}
	if _, err := deadline.NewPeriod(rec.Year, rec.Month); err != nil {
		return err
	}
	row, err := toUploadRow(rec)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO uploads (` + uploadColumns + `)
		VALUES (:company_key, :year, :month, :has_kb, :has_yb, :complete, :files, :detected_at)
		ON CONFLICT(company_key, year, month) DO UPDATE SET
			has_kb      = excluded.has_kb,
			has_yb      = excluded.has_yb,
			complete    = excluded.complete,
			files       = excluded.files,
			detected_at = excluded.detected_at
	`
	if _, err := r.executor().NamedExecContext(ctx, q, row); err != nil {
		return dbError(err, "failed to upsert upload record")
	}
	return nil
}

func (r *sqliteUploadRepo) Find(ctx context.Context, companyKey string, period deadline.Period) (*upload.Record, error) {
	var row uploadRow
	err := r.executor().GetContext(ctx, &row,
		`SELECT `+uploadColumns+` FROM uploads WHERE company_key = ? AND year = ? AND month = ?`,
		companyKey, period.Year, period.Month)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.CodeUploadNotFound, "upload record not found").
				WithDetail(companyKey + " " + period.String())
		}
		return nil, dbError(err, "failed to load upload record")
	}
	return row.record()
}

func (r *sqliteUploadRepo) ListByCompany(ctx context.Context, companyKey string) ([]*upload.Record, error) {
	return r.list(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE company_key = ? ORDER BY year DESC, month DESC`,
		companyKey)
}

func (r *sqliteUploadRepo) FiledPeriods(ctx context.Context, companyKey string) ([]deadline.Period, error) {
	var periods []deadline.Period
	err := r.executor().SelectContext(ctx, &periods,
		`SELECT year, month FROM uploads WHERE company_key = ? AND complete = 1 ORDER BY year DESC, month DESC`,
		companyKey)
	if err != nil {
		return nil, dbError(err, "failed to load filed periods")
	}
	return periods, nil
}

func (r *sqliteUploadRepo) ListAll(ctx context.Context) ([]*upload.Record, error) {
	return r.list(ctx, `SELECT `+uploadColumns+` FROM uploads ORDER BY company_key, year DESC, month DESC`)
}

func (r *sqliteUploadRepo) list(ctx context.Context, q string, args ...interface{}) ([]*upload.Record, error) {
	var rows []uploadRow
	if err := r.executor().SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, dbError(err, "failed to list upload records")
	}
	out := make([]*upload.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
