package common

import (
	"net/http"
	"strconv"
)

// PaginationParams represents pagination parameters extracted from a request.
type PaginationParams struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// PaginationDefaults carries the configured bounds for page sizes.
type PaginationDefaults struct {
	DefaultLimit int
	MaxLimit     int
}

// ExtractPaginationParams extracts pagination parameters from a request,
// clamping the limit to the configured maximum.
func ExtractPaginationParams(r *http.Request, defaults PaginationDefaults) PaginationParams {
	params := PaginationParams{
		Page:  1,
		Limit: defaults.DefaultLimit,
	}

	if page := r.URL.Query().Get("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			params.Page = p
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			if l > defaults.MaxLimit {
				l = defaults.MaxLimit
			}
			params.Limit = l
		}
	}

	return params
}

// Offset calculates the skip count for store queries.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// PaginationInfo describes one page of a result set.
type PaginationInfo struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

// BuildPaginationInfo builds pagination metadata for a result set.
func BuildPaginationInfo(page, limit, total int) PaginationInfo {
	pages := 0
	if limit > 0 {
		pages = total / limit
		if total%limit > 0 {
			pages++
		}
	}

	return PaginationInfo{
		Total:   total,
		Page:    page,
		Limit:   limit,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
	}
}

// PaginatedResult is the uniform list-response shape.
type PaginatedResult struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationInfo `json:"pagination"`
}

// NewPaginatedResult creates a paginated result.
func NewPaginatedResult(data interface{}, page, limit, total int) *PaginatedResult {
	return &PaginatedResult{
		Data:       data,
		Pagination: BuildPaginationInfo(page, limit, total),
	}
}
