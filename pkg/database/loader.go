package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	apperr "churngen/pkg/errors"
	"churngen/pkg/models"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// batchRows keeps multi-row inserts well under MySQL's 65535 placeholder limit.
const batchRows = 500

var identRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var (
	customerColumns = []string{"CUSTOMER_ID", "SEGMENT", "REGISTRATION_DATE", "REGION"}
	orderColumns    = []string{"ORDER_ID", "CUSTOMER_ID", "ORDER_DATE", "ORDER_AMOUNT", "STATUS"}
)

// Tables names the two destination tables.
type Tables struct {
	Customers string
	Orders    string
}

// DefaultTables matches the column names of the flat files.
func DefaultTables() Tables {
	return Tables{Customers: "CUSTOMERS", Orders: "ORDERS"}
}

func (t Tables) validate() error {
	for _, name := range []string{t.Customers, t.Orders} {
		if !identRe.MatchString(name) {
			return apperr.Newf(apperr.ErrConfig, "invalid table name %q", name)
		}
	}
	return nil
}

// Open accepts mariadb:// or mysql:// URLs as well as native driver DSNs.
func Open(dsn string) (*sql.DB, string, error) {
	mysqlDSN, err := toMySQLDSN(dsn)
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.ErrConfig, "dsn")
	}
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.ErrDatabase, "open")
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, mysqlDSN, nil
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pw, _ := u.User.Password()
			pass = pw
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", fmt.Errorf("incomplete dsn (user/host/db)")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&interpolateParams=true",
			user, pass, host, db), nil
	}
	// Native DSNs keep their options but always scan and compare dates in UTC.
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// Loader copies a generated dataset into MySQL and re-derives churn there.
type Loader struct {
	db     *sql.DB
	tables Tables
	log    *zap.Logger
}

// NewLoader validates table names up front.
func NewLoader(db *sql.DB, tables Tables, log *zap.Logger) (*Loader, error) {
	if err := tables.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{db: db, tables: tables, log: log}, nil
}

// LoadDataset creates the tables if needed and replaces their contents in a
// single transaction. Previous rows are deleted, not merged.
func (l *Loader) LoadDataset(ctx context.Context, ds models.Dataset) error {
	for _, stmt := range l.schema() {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return apperr.Wrap(err, apperr.ErrDatabase, "create schema")
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "begin")
	}
	defer tx.Rollback()

	for _, table := range []string{l.tables.Orders, l.tables.Customers} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return apperr.Wrap(err, apperr.ErrDatabase, "clear "+table)
		}
	}

	custArgs := make([][]any, 0, len(ds.Customers))
	for _, c := range ds.Customers {
		custArgs = append(custArgs, []any{
			c.ID, c.Segment.String(), c.RegistrationDate.Format(models.DateLayout), c.Region.String(),
		})
	}
	if err := insertBatches(ctx, tx, l.tables.Customers, customerColumns, custArgs); err != nil {
		return err
	}

	ordArgs := make([][]any, 0, len(ds.Orders))
	for _, o := range ds.Orders {
		ordArgs = append(ordArgs, []any{
			o.ID, o.CustomerID, o.OrderDate.Format(models.DateLayout),
			fmt.Sprintf("%.2f", o.Amount), o.Status.String(),
		})
	}
	if err := insertBatches(ctx, tx, l.tables.Orders, orderColumns, ordArgs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "commit")
	}
	l.log.Info("dataset loaded",
		zap.String("customers_table", l.tables.Customers),
		zap.Int("customers", len(ds.Customers)),
		zap.String("orders_table", l.tables.Orders),
		zap.Int("orders", len(ds.Orders)),
	)
	return nil
}

// DeriveChurn runs the two-window set difference against the loaded orders.
func (l *Loader) DeriveChurn(ctx context.Context, cal models.Calendar) (models.ChurnReport, error) {
	rows, err := l.db.QueryContext(ctx, l.churnQuery(),
		cal.FirstHalfStart.Format(models.DateLayout),
		cal.Cutoff.Format(models.DateLayout),
		cal.Cutoff.Format(models.DateLayout),
	)
	if err != nil {
		return models.ChurnReport{}, apperr.Wrap(err, apperr.ErrDatabase, "derive churn")
	}
	defer rows.Close()

	report := models.ChurnReport{Labels: map[string]bool{}}
	for rows.Next() {
		var (
			id      string
			churned bool
		)
		if err := rows.Scan(&id, &churned); err != nil {
			return models.ChurnReport{}, apperr.Wrap(err, apperr.ErrDatabase, "scan churn row")
		}
		report.Labels[id] = churned
		report.FirstHalfCustomers++
		if churned {
			report.Churned++
		}
	}
	if err := rows.Err(); err != nil {
		return models.ChurnReport{}, apperr.Wrap(err, apperr.ErrDatabase, "derive churn")
	}
	if report.FirstHalfCustomers > 0 {
		report.Rate = float64(report.Churned) / float64(report.FirstHalfCustomers)
	}
	l.log.Debug("churn derived in database",
		zap.Int("first_half_customers", report.FirstHalfCustomers),
		zap.Int("churned", report.Churned),
	)
	return report, nil
}

func (l *Loader) schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			CUSTOMER_ID VARCHAR(32) NOT NULL PRIMARY KEY,
			SEGMENT VARCHAR(16) NOT NULL,
			REGISTRATION_DATE DATE NOT NULL,
			REGION VARCHAR(16) NOT NULL
		)`, l.tables.Customers),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ORDER_ID VARCHAR(32) NOT NULL PRIMARY KEY,
			CUSTOMER_ID VARCHAR(32) NOT NULL,
			ORDER_DATE DATE NOT NULL,
			ORDER_AMOUNT DECIMAL(12,2) NOT NULL,
			STATUS VARCHAR(16) NOT NULL,
			KEY idx_customer_date (CUSTOMER_ID, ORDER_DATE)
		)`, l.tables.Orders),
	}
}

// churnQuery: first-half customers LEFT JOIN after-cutoff customers; a NULL
// on the right side means churned.
func (l *Loader) churnQuery() string {
	return fmt.Sprintf(`
		SELECT h1.CUSTOMER_ID, h2.CUSTOMER_ID IS NULL AS churned
		FROM (
			SELECT DISTINCT CUSTOMER_ID FROM %[1]s
			WHERE ORDER_DATE >= ? AND ORDER_DATE <= ?
		) h1
		LEFT JOIN (
			SELECT DISTINCT CUSTOMER_ID FROM %[1]s
			WHERE ORDER_DATE > ?
		) h2 ON h2.CUSTOMER_ID = h1.CUSTOMER_ID
	`, l.tables.Orders)
}

func insertBatches(ctx context.Context, tx *sql.Tx, table string, cols []string, rows [][]any) error {
	for start := 0; start < len(rows); start += batchRows {
		end := min(start+batchRows, len(rows))
		chunk := rows[start:end]
		args := make([]any, 0, len(chunk)*len(cols))
		for _, r := range chunk {
			args = append(args, r...)
		}
		if _, err := tx.ExecContext(ctx, buildInsert(table, cols, len(chunk)), args...); err != nil {
			return apperr.Wrap(err, apperr.ErrDatabase, fmt.Sprintf("insert %s rows %d-%d", table, start+1, end))
		}
	}
	return nil
}

// buildInsert renders INSERT INTO t (a,b) VALUES (?,?),(?,?) for n rows.
func buildInsert(table string, cols []string, n int) string {
	one := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ","))
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(one)
	}
	return b.String()
}
