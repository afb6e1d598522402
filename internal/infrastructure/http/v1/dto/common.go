// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"replenix/internal/core/apperror"
	"replenix/internal/core/id"
)

// ListResponse wraps list results.
type ListResponse struct {
	Items any `json:"items"`
	Count int `json:"count"`
}

// parseID parses a validated uuid field, reporting the field on failure.
func parseID(field, value string) (id.ID, error) {
	v, err := id.Parse(value)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid id").WithDetail("field", field)
	}
	return v, nil
}

func parseOptionalID(field, value string) (*id.ID, error) {
	v, err := id.ParseOptional(value)
	if err != nil {
		return nil, apperror.NewValidation("invalid id").WithDetail("field", field)
	}
	return v, nil
}
