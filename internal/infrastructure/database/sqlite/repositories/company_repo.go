package repositories

import (
	"context"
	"database/sql"
	"strings"

	"github.com/turtacn/edefter-tracker/internal/domain/company"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/database/sqlite"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

const companyColumns = `id, name, tax_number, national_id, regime, cadence, email, notes, active, created_at, updated_at`

// companyRow adds the derived matching key to the stored company.
type companyRow struct {
	company.Company
	CompanyKey string `db:"company_key"`
}

type sqliteCompanyRepo struct {
	baseRepo
}

// NewCompanyRepo returns a company.Repository backed by conn.
func NewCompanyRepo(conn *sqlite.Connection, log logging.Logger) company.Repository {
	return &sqliteCompanyRepo{baseRepo: newBaseRepo(conn, log)}
}

func (r *sqliteCompanyRepo) Save(ctx context.Context, c *company.Company) error {
	if c == nil {
		return errors.InvalidParam("company is nil")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	const q = `
		INSERT INTO companies (` + companyColumns + `, company_key)
		VALUES (:id, :name, :tax_number, :national_id, :regime, :cadence, :email, :notes, :active, :created_at, :updated_at, :company_key)
		ON CONFLICT(id) DO UPDATE SET
			name        = excluded.name,
			tax_number  = excluded.tax_number,
			national_id = excluded.national_id,
			company_key = excluded.company_key,
			regime      = excluded.regime,
			cadence     = excluded.cadence,
			email       = excluded.email,
			notes       = excluded.notes,
			active      = excluded.active,
			updated_at  = excluded.updated_at
	`
	row := companyRow{Company: *c, CompanyKey: c.Key()}
	if _, err := r.executor().NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err) {
			return errors.New(errors.CodeCompanyAlreadyExists, "a company with this identifier already exists").WithDetail(c.Key())
		}
		return dbError(err, "failed to save company")
	}
	r.log.Debug("company saved", logging.String("id", c.ID), logging.String("company_key", c.Key()))
	return nil
}

func (r *sqliteCompanyRepo) FindByID(ctx context.Context, id string) (*company.Company, error) {
	return r.findOne(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = ?`, id)
}

func (r *sqliteCompanyRepo) FindByKey(ctx context.Context, key string) (*company.Company, error) {
	return r.findOne(ctx, `SELECT `+companyColumns+` FROM companies WHERE company_key = ?`, key)
}

func (r *sqliteCompanyRepo) findOne(ctx context.Context, q string, arg string) (*company.Company, error) {
	var c company.Company
	if err := r.executor().GetContext(ctx, &c, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.CodeCompanyNotFound, "company not found").WithDetail(arg)
		}
		return nil, dbError(err, "failed to load company")
	}
	return &c, nil
}

// List returns companies sorted by name in Turkish collation.  Query matching
// happens in Go because SQLite's LIKE folds ASCII only.
func (r *sqliteCompanyRepo) List(ctx context.Context, opts company.ListOptions) ([]*company.Company, error) {
	q := `SELECT ` + companyColumns + ` FROM companies`
	if opts.ActiveOnly {
		q += ` WHERE active = 1`
	}
	var rows []company.Company
	if err := r.executor().SelectContext(ctx, &rows, q); err != nil {
		return nil, dbError(err, "failed to list companies")
	}

	query := strings.TrimSpace(opts.Query)
	out := make([]*company.Company, 0, len(rows))
	for i := range rows {
		c := &rows[i]
		if query != "" && !c.Matches(query) {
			continue
		}
		out = append(out, c)
	}
	company.SortByName(out)
	return out, nil
}

func (r *sqliteCompanyRepo) Delete(ctx context.Context, id string) error {
	res, err := r.executor().ExecContext(ctx, `DELETE FROM companies WHERE id = ?`, id)
	if err != nil {
		return dbError(err, "failed to delete company")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "failed to delete company")
	}
	if n == 0 {
		return errors.New(errors.CodeCompanyNotFound, "company not found").WithDetail(id)
	}
	return nil
}
