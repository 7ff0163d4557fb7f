package models

import (
	"fmt"
	"strings"
)

// SortOrder is the direction of a sort
type SortOrder string

const (
	// SortAscending sorts smallest first
	SortAscending SortOrder = "ASC"

	// SortDescending sorts largest first
	SortDescending SortOrder = "DESC"
)

// Flow field names valid for sorting and searching
const (
	FieldIdentifier       = "identifier"
	FieldName             = "name"
	FieldDescription      = "description"
	FieldBucketIdentifier = "bucket_identifier"
	FieldCreated          = "created"
	FieldModified         = "modified"
)

// FlowFields returns the field names that can be used for sorting or
// searching flows.
func FlowFields() []string {
	return []string{
		FieldIdentifier,
		FieldName,
		FieldDescription,
		FieldBucketIdentifier,
		FieldCreated,
		FieldModified,
	}
}

// IsFlowField reports whether name is a sortable flow field.
func IsFlowField(name string) bool {
	for _, f := range FlowFields() {
		if f == name {
			return true
		}
	}
	return false
}

// SortParameter is a single field/order pair
type SortParameter struct {
	// Field to sort by
	Field string `json:"field"`

	// Order to sort in
	Order SortOrder `json:"order"`
}

// ParseSortParameter parses a "field:order" string such as "name:ASC".
// The order defaults to ascending when omitted.
func ParseSortParameter(raw string) (SortParameter, error) {
	if raw == "" {
		return SortParameter{}, fmt.Errorf("sort parameter cannot be empty")
	}

	field := raw
	order := SortAscending

	if idx := strings.Index(raw, ":"); idx >= 0 {
		field = raw[:idx]
		switch strings.ToUpper(raw[idx+1:]) {
		case string(SortAscending):
			order = SortAscending
		case string(SortDescending):
			order = SortDescending
		default:
			return SortParameter{}, fmt.Errorf("invalid sort order %q, expected ASC or DESC", raw[idx+1:])
		}
	}

	if !IsFlowField(field) {
		return SortParameter{}, fmt.Errorf("invalid sort field %q", field)
	}

	return SortParameter{Field: field, Order: order}, nil
}

// QueryParameters holds the caller-supplied parameters for a flow listing
type QueryParameters struct {
	// Sorts are applied in order; earlier entries take precedence
	Sorts []SortParameter `json:"sorts,omitempty"`
}
