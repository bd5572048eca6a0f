package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the SQLite database holding one entity's invoice lines.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path and runs pending
// migrations. Pass ":memory:" for an in-memory database (used by tests).
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that have not been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Invoice lines ---

// HasInvoice reports whether any line of the invoice number is stored.
func (s *Store) HasInvoice(number string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM invoice_lines WHERE invoice_number = ?`, number).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveInvoice stores every item of inv in one transaction and returns the
// number of rows written. An invoice whose number and issue date are
// already registered is left untouched and 0 is returned.
func (s *Store) SaveInvoice(inv Invoice) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO invoices (invoice_number, issue_date) VALUES (?, ?)
		ON CONFLICT (invoice_number, issue_date) DO NOTHING`, inv.Number, inv.IssueDate)
	if err != nil {
		return 0, fmt.Errorf("registering invoice: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, err
	} else if n == 0 {
		return 0, nil
	}

	stmt, err := tx.Prepare(`INSERT INTO invoice_lines
		(invoice_number, issue_date, product_name, quantity, unit_price, line_total, invoice_total)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, it := range inv.Items {
		if _, err := stmt.Exec(inv.Number, inv.IssueDate, it.ProductName, it.Quantity, it.UnitPrice, it.LineTotal, inv.Total); err != nil {
			return 0, fmt.Errorf("inserting line %q: %w", it.ProductName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(inv.Items), nil
}

// Lines returns the stored lines matching f, ordered by id.
func (s *Store) Lines(f Filter) ([]Line, error) {
	q := `SELECT id, invoice_number, issue_date, product_name, quantity, unit_price, line_total, invoice_total
		FROM invoice_lines`
	var (
		where []string
		args  []any
	)
	if f.Product != "" {
		where = append(where, "product_name = ?")
		args = append(args, f.Product)
	}
	if f.Invoice != "" {
		where = append(where, "invoice_number = ?")
		args = append(args, f.Invoice)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id ASC"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.InvoiceNumber, &l.IssueDate, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.LineTotal, &l.InvoiceTotal); err != nil {
			return nil, err
		}
		if f.matchesDate(l) {
			lines = append(lines, l)
		}
	}
	return lines, rows.Err()
}

// DeleteLine removes the line with the given id and returns the number of
// rows removed. When the last line of an invoice goes, its registration
// goes too, so the invoice can be ingested again.
func (s *Store) DeleteLine(id int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var number, date string
	err = tx.QueryRow(`SELECT invoice_number, issue_date FROM invoice_lines WHERE id = ?`, id).Scan(&number, &date)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	res, err := tx.Exec(`DELETE FROM invoice_lines WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(`DELETE FROM invoices WHERE invoice_number = ? AND issue_date = ?
		AND NOT EXISTS (SELECT 1 FROM invoice_lines WHERE invoice_number = ? AND issue_date = ?)`,
		number, date, number, date); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}
