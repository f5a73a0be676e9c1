package pagination

import "strconv"

// Params holds sanitized pagination parameters
type Params struct {
	Limit  int
	Offset int
}

// Meta describes the page served alongside the items
type Meta struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// builds page metadata from params and the total item count
func NewMeta(params Params, total int) Meta {
	return Meta{
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
		HasMore: params.Offset+params.Limit < total,
	}
}

// clamps raw pagination values into a usable range
func DefaultParams(limit, offset, defaultLimit, maxLimit int) Params {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	return Params{
		Limit:  limit,
		Offset: offset,
	}
}

// parses raw query values; anything unparseable falls back to defaults
func ParseParams(limitRaw, offsetRaw string, defaultLimit, maxLimit int) Params {
	limit, err := strconv.Atoi(limitRaw)
	if err != nil {
		limit = 0
	}

	offset, err := strconv.Atoi(offsetRaw)
	if err != nil {
		offset = 0
	}

	return DefaultParams(limit, offset, defaultLimit, maxLimit)
}

// bounds a window [offset, offset+limit) to a slice of length total
func (p Params) Window(total int) (int, int) {
	start := p.Offset
	if start > total {
		start = total
	}

	end := start + p.Limit
	if end > total {
		end = total
	}

	return start, end
}
