// Package models - lookup.go defines the reference tables used to build PWD numbers.
package models

// Barangay is a row of barangays
type Barangay struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Code string `db:"code" json:"code"`
}

// DisabilityType is a row of disability_types
type DisabilityType struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Code string `db:"code" json:"code"`
}
