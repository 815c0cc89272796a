// Package repository defines the typed row models of the pharmacy tables and
// the persistence interfaces over them, with paired CSV and PostgreSQL
// implementations behind the same whole-table load/save contract.
package repository

import (
	"context"
	"time"
)

// StockRepository persists the medicine stock table. The table is owned
// exclusively by the Stock Ledger, which mutates it through List/ReplaceAll
// read-modify-write cycles under its own lock.
type StockRepository interface {
	List(ctx context.Context) ([]StockEntry, error)
	ReplaceAll(ctx context.Context, entries []StockEntry) error
}

// AlertRepository persists alert rows. Alerts are created and resolved,
// never deleted.
type AlertRepository interface {
	List(ctx context.Context) ([]Alert, error)
	// ListActive returns unresolved alerts only.
	ListActive(ctx context.Context) ([]Alert, error)
	GetByID(ctx context.Context, alertID string) (*Alert, error)
	Create(ctx context.Context, alert *Alert) error
	// ExistsUnresolved reports whether an unresolved alert exists for the
	// (product, batch, alertType) key, compared case-insensitively.
	ExistsUnresolved(ctx context.Context, productName, batch, alertType string) (bool, error)
	// Resolve marks an alert resolved by the given actor. Returns false
	// without mutating when the id is unknown or the alert is already
	// resolved.
	Resolve(ctx context.Context, alertID, actor string, at time.Time) (bool, error)
	// ResolveByMatch resolves all unresolved alerts for the product/batch
	// key and returns how many it touched.
	ResolveByMatch(ctx context.Context, productName, batch, actor string, at time.Time) (int, error)
	// TouchLastSent records that a notification went out for the alert.
	TouchLastSent(ctx context.Context, alertID string, at time.Time) error
}

// PrescriptionRepository persists prescriptions.
type PrescriptionRepository interface {
	// Create fails with ErrConflict when the prescription id is already taken.
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, prescriptionID string) (*Prescription, error)
	List(ctx context.Context) ([]Prescription, error)
	// ListByMedication returns prescriptions containing the given
	// product/batch line, compared case-insensitively.
	ListByMedication(ctx context.Context, productName, batch string) ([]Prescription, error)
	// MarkDispensed transitions created -> dispensed. Fails with ErrNotFound
	// for an unknown id and ErrConflict when already dispensed.
	MarkDispensed(ctx context.Context, prescriptionID string) error
}

// PatientRepository persists patient lookup records.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, patientID string) (*Patient, error)
	List(ctx context.Context) ([]Patient, error)
}

// SaleRepository records dispensed medication lines.
type SaleRepository interface {
	Create(ctx context.Context, s *Sale) error
	ListByPrescription(ctx context.Context, prescriptionID string) ([]Sale, error)
}
