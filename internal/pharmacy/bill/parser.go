// Package bill parses uploaded supplier bills (XLSX or CSV) into stock rows.
// Column mapping is header-driven with positional fallback, since supplier
// exports rarely agree on naming.
package bill

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lifetag/lifetag-backend/internal/pharmacy/repository"
)

// Column order used when the file carries no recognizable header.
var defaultColumns = []string{"product_name", "hsn", "mrp", "batch", "exp", "qty", "manufacturer", "rate", "gtin"}

// Parse reads a bill in the given format ("xlsx" or "csv") and returns the
// stock rows it contains. Rows missing both product name and batch, or with
// an unreadable quantity, are dropped here; quantity and merge policy are
// the ledger's job.
func Parse(data []byte, format string) ([]repository.StockEntry, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "xlsx", "xls":
		return parseXLSX(data)
	case "csv", "":
		return parseCSV(data)
	default:
		return nil, fmt.Errorf("unsupported bill format %q", format)
	}
}

func parseXLSX(data []byte) ([]repository.StockEntry, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}

	return fromRows(rows), nil
}

func parseCSV(data []byte) ([]repository.StockEntry, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, record)
	}

	return fromRows(rows), nil
}

// fromRows converts raw cell rows into stock entries using the header row
// when one is present.
func fromRows(rows [][]string) []repository.StockEntry {
	if len(rows) == 0 {
		return nil
	}

	columns, start := mapColumns(rows[0])
	col := func(name string) int {
		if i, ok := columns[name]; ok {
			return i
		}
		return -1
	}

	var entries []repository.StockEntry
	for i := start; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}

		entry := repository.StockEntry{
			ProductName:  cell(row, col("product_name")),
			HSN:          cell(row, col("hsn")),
			MRP:          cell(row, col("mrp")),
			Batch:        cell(row, col("batch")),
			Exp:          cell(row, col("exp")),
			Manufacturer: cell(row, col("manufacturer")),
			Rate:         cell(row, col("rate")),
			GTIN:         cell(row, col("gtin")),
		}
		if entry.ProductName == "" && entry.Batch == "" {
			continue
		}

		qty, err := strconv.Atoi(strings.TrimSpace(cell(row, col("qty"))))
		if err != nil {
			continue
		}
		entry.Qty = qty

		entries = append(entries, entry)
	}

	return entries
}

// mapColumns resolves field positions from the header row. When the header
// is unrecognizable the row is treated as data and the default positional
// layout applies.
func mapColumns(header []string) (map[string]int, int) {
	columns := make(map[string]int)

	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case containsAny(name, "product", "name", "item", "medicine", "drug"):
			setOnce(columns, "product_name", i)
		case containsAny(name, "hsn"):
			setOnce(columns, "hsn", i)
		case containsAny(name, "mrp"):
			setOnce(columns, "mrp", i)
		case containsAny(name, "batch", "lot"):
			setOnce(columns, "batch", i)
		case containsAny(name, "exp", "expiry", "expire"):
			setOnce(columns, "exp", i)
		case containsAny(name, "qty", "quantity", "units", "count"):
			setOnce(columns, "qty", i)
		case containsAny(name, "manufacturer", "mfr", "maker", "company"):
			setOnce(columns, "manufacturer", i)
		case containsAny(name, "rate", "price", "cost"):
			setOnce(columns, "rate", i)
		case containsAny(name, "gtin", "barcode", "ean", "upc"):
			setOnce(columns, "gtin", i)
		}
	}

	// A usable header needs at least product/batch and qty mapped.
	if _, hasQty := columns["qty"]; hasQty {
		if _, hasName := columns["product_name"]; hasName {
			return columns, 1
		}
		if _, hasBatch := columns["batch"]; hasBatch {
			return columns, 1
		}
	}

	columns = make(map[string]int)
	for i, name := range defaultColumns {
		columns[name] = i
	}
	return columns, 0
}

func setOnce(columns map[string]int, key string, idx int) {
	if _, ok := columns[key]; !ok {
		columns[key] = idx
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
