package repository

import (
	"strings"
	"time"
)

// Alert types, in classification priority order.
const (
	AlertExpired      = "expired"
	AlertExpiringSoon = "expiring_soon"
	AlertLowStock     = "low_stock"
)

// Prescription statuses.
const (
	PrescriptionCreated   = "created"
	PrescriptionDispensed = "dispensed"
)

// StockEntry is one lot of medicine stock. Entries whose identity key
// (every descriptive field except qty and last_update) matches are the same
// logical lot and their quantities add.
type StockEntry struct {
	ProductName  string    `db:"product_name" json:"product_name"`
	HSN          string    `db:"hsn" json:"hsn"`
	MRP          string    `db:"mrp" json:"mrp"`
	Batch        string    `db:"batch" json:"batch"`
	Exp          string    `db:"exp" json:"exp"`
	Qty          int       `db:"qty" json:"qty"`
	Manufacturer string    `db:"manufacturer" json:"manufacturer"`
	Rate         string    `db:"rate" json:"rate"`
	GTIN         string    `db:"gtin" json:"gtin"`
	LastUpdate   time.Time `db:"last_update" json:"last_update"`
}

// StockKey is the case-insensitive, trimmed identity tuple of a lot.
type StockKey struct {
	ProductName  string
	HSN          string
	MRP          string
	Batch        string
	Exp          string
	Manufacturer string
	Rate         string
	GTIN         string
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Key returns the entry's identity key for merge comparison.
func (s *StockEntry) Key() StockKey {
	return StockKey{
		ProductName:  fold(s.ProductName),
		HSN:          fold(s.HSN),
		MRP:          fold(s.MRP),
		Batch:        fold(s.Batch),
		Exp:          fold(s.Exp),
		Manufacturer: fold(s.Manufacturer),
		Rate:         fold(s.Rate),
		GTIN:         fold(s.GTIN),
	}
}

// Alert is one expiry or low-stock alert. At most one unresolved alert may
// exist per (product_name, batch, alert_type), compared case-insensitively.
type Alert struct {
	AlertID      string     `db:"alert_id" json:"alert_id"`
	ProductName  string     `db:"product_name" json:"product_name"`
	Batch        string     `db:"batch" json:"batch"`
	Exp          string     `db:"exp" json:"exp"`
	DaysToExpiry *int       `db:"days_to_expiry" json:"days_to_expiry,omitempty"`
	AlertType    string     `db:"alert_type" json:"alert_type"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	LastSentAt   *time.Time `db:"last_sent_at" json:"last_sent_at,omitempty"`
	Resolved     bool       `db:"resolved" json:"resolved"`
	ResolvedBy   string     `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Matches reports whether this alert is for the given product and batch,
// case-insensitively. A blank field matches anything, so bulk resolution can
// target a product or a batch alone.
func (a *Alert) Matches(productName, batch string) bool {
	if p := fold(productName); p != "" && fold(a.ProductName) != p {
		return false
	}
	if b := fold(batch); b != "" && fold(a.Batch) != b {
		return false
	}
	return true
}

// Medication is one line of a prescription.
type Medication struct {
	ProductName string `json:"product_name"`
	Batch       string `json:"batch"`
	Qty         int    `json:"qty"`
}

// Prescription links a patient to an ordered list of medications.
// Status transitions created -> dispensed exactly once.
type Prescription struct {
	PrescriptionID string       `db:"prescription_id" json:"prescription_id"`
	PatientID      string       `db:"patient_id" json:"patient_id"`
	DoctorName     string       `db:"doctor_name" json:"doctor_name"`
	PharmacyID     string       `db:"pharmacy_id" json:"pharmacy_id"`
	Medications    []Medication `db:"-" json:"medications"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	QRPath         string       `db:"qr_path" json:"qr_path,omitempty"`
	Status         string       `db:"status" json:"status"`
}

// Contains reports whether the prescription lists the given medication,
// case-insensitively.
func (p *Prescription) Contains(productName, batch string) bool {
	for _, m := range p.Medications {
		if fold(m.ProductName) == fold(productName) && fold(m.Batch) == fold(batch) {
			return true
		}
	}
	return false
}

// Patient is a recipient-resolution lookup record.
type Patient struct {
	PatientID    string    `db:"patient_id" json:"patient_id"`
	Name         string    `db:"name" json:"name"`
	Age          string    `db:"age" json:"age,omitempty"`
	Gender       string    `db:"gender" json:"gender,omitempty"`
	Contact      string    `db:"contact" json:"contact,omitempty"`
	Email        string    `db:"email" json:"email,omitempty"`
	Notes        string    `db:"notes" json:"notes,omitempty"`
	RegisteredAt time.Time `db:"registered_at" json:"registered_at"`
}

// Address returns the patient's notification address: email when present,
// contact otherwise.
func (p *Patient) Address() string {
	if addr := strings.TrimSpace(p.Email); addr != "" {
		return addr
	}
	return strings.TrimSpace(p.Contact)
}

// Sale records one dispensed medication line.
type Sale struct {
	SaleID         string    `db:"sale_id" json:"sale_id"`
	PrescriptionID string    `db:"prescription_id" json:"prescription_id"`
	ProductName    string    `db:"product_name" json:"product_name"`
	Batch          string    `db:"batch" json:"batch"`
	Qty            int       `db:"qty" json:"qty"`
	SoldAt         time.Time `db:"sold_at" json:"sold_at"`
	PharmacyID     string    `db:"pharmacy_id" json:"pharmacy_id"`
}
