package visitors

import (
	"strings"
)

const (
	// UnknownVisitor is used when the visitor cell is missing or blank
	UnknownVisitor = "Unknown"
	// UndefinedStatus is used when the status cell is missing or blank
	UndefinedStatus = "Undefined"
	// IrregularStatus is the canonical form of any status mentioning "irregular"
	IrregularStatus = "Irregular"
)

// RawRow is one row as read from the remote table: id, visitor, status, reason.
// Only the id cell is guaranteed to be present.
type RawRow []string

// Record is a sanitized registration entry
type Record struct {
	Visitor string `json:"visitor"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
}

// IsIrregular reports whether the record carries the irregular status
func (r Record) IsIrregular() bool {
	return r.Status == IrregularStatus
}

// SanitizeVisitor trims the visitor name, falling back to UnknownVisitor
func SanitizeVisitor(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return UnknownVisitor
	}
	return v
}

// SanitizeStatus trims the status, folding any mention of "irregular" to IrregularStatus
func SanitizeStatus(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return UndefinedStatus
	}
	if strings.Contains(strings.ToLower(s), "irregular") {
		return IrregularStatus
	}
	return s
}

// SanitizeReason collapses line breaks and whitespace runs into single spaces
func SanitizeReason(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// ParseRow builds a Record from the optional cells of row
func ParseRow(row RawRow) Record {
	return Record{
		Visitor: SanitizeVisitor(cell(row, 1)),
		Status:  SanitizeStatus(cell(row, 2)),
		Reason:  SanitizeReason(cell(row, 3)),
	}
}

// ID returns the raw identifier cell, or "" for an empty row
func (r RawRow) ID() string {
	return cell(r, 0)
}

func cell(row RawRow, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
