// Package store implements the CSV table store backing the pharmacy
// repositories. Each table is a single CSV file whose header row is the
// on-disk contract; Save replaces the whole file.
package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Table names a CSV file and fixes its column order.
type Table struct {
	Name    string
	Columns []string
}

var (
	TableStock = Table{
		Name: "medicine_stock",
		Columns: []string{
			"product_name", "hsn", "mrp", "batch", "exp", "qty",
			"manufacturer", "rate", "gtin", "last_update",
		},
	}
	TableAlerts = Table{
		Name: "alerts",
		Columns: []string{
			"alert_id", "product_name", "batch", "exp", "days_to_expiry",
			"alert_type", "created_at", "last_sent_at", "resolved",
			"resolved_by", "resolved_at",
		},
	}
	TablePrescriptions = Table{
		Name: "prescriptions",
		Columns: []string{
			"prescription_id", "patient_id", "doctor_name", "pharmacy_id",
			"medications_json", "created_at", "qr_path", "status",
		},
	}
	TablePatients = Table{
		Name: "patients",
		Columns: []string{
			"patient_id", "name", "age", "gender", "contact", "email",
			"notes", "registered_at",
		},
	}
	TableSales = Table{
		Name: "sales",
		Columns: []string{
			"sale_id", "prescription_id", "product_name", "batch", "qty",
			"sold_at", "pharmacy_id",
		},
	}
)

// Row is one record keyed by column name. Values are untyped strings;
// type interpretation happens at the repository boundary.
type Row map[string]string

// Store reads and writes whole CSV tables under a data directory.
// Load and Save on the same table are serialized by a per-table mutex;
// callers owning a read-modify-write cycle must hold their own lock
// across the pair.
type Store struct {
	dir string

	mu     sync.Mutex
	tables map[string]*sync.Mutex
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{
		dir:    dir,
		tables: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) lockFor(table Table) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tables[table.Name]
	if !ok {
		m = &sync.Mutex{}
		s.tables[table.Name] = m
	}
	return m
}

func (s *Store) path(table Table) string {
	return filepath.Join(s.dir, table.Name+".csv")
}

// Load reads all rows of a table. A missing or empty file is initialized
// with a header row and yields no rows. Columns absent from the file are
// filled with the empty string.
func (s *Store) Load(table Table) ([]Row, error) {
	lock := s.lockFor(table)
	lock.Lock()
	defer lock.Unlock()

	return s.load(table)
}

func (s *Store) load(table Table) ([]Row, error) {
	path := s.path(table)

	info, err := os.Stat(path)
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		if err := s.writeFile(table, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(table.Columns))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		for _, col := range table.Columns {
			if _, ok := row[col]; !ok {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Save replaces the entire table with the given rows. The write goes to a
// temp file first and is renamed into place, so readers never observe a
// partially written table.
func (s *Store) Save(table Table, rows []Row) error {
	lock := s.lockFor(table)
	lock.Lock()
	defer lock.Unlock()

	return s.writeFile(table, rows)
}

func (s *Store) writeFile(table Table, rows []Row) error {
	path := s.path(table)

	tmp, err := os.CreateTemp(s.dir, table.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(table.Columns); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		rec := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			rec[i] = row[col]
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
