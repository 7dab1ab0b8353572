// Tooling for response pagination.
package common

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	LimitKey  = "limit"
	OffsetKey = "offset"

	// By default, just order by the first returned column so
	// we always have a deterministic ordering.
	DefaultOrder  = "1"
	DefaultLimit  = uint64(100)
	DefaultOffset = uint64(0)

	MaximumLimit = uint64(1000)
)

// Pagination is used to define parameters for pagination.
type Pagination struct {
	Limit  uint64
	Offset uint64
	Order  string
}

// NewPagination extracts pagination parameters from an http request.
func NewPagination(r *http.Request) (Pagination, error) {
	values := r.URL.Query()
	p := Pagination{
		Limit:  DefaultLimit,
		Offset: DefaultOffset,
		Order:  DefaultOrder,
	}

	if v := values.Get(LimitKey); v != "" {
		limit, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return p, fmt.Errorf("%w: limit: %v", ErrBadRequest, err)
		}
		p.Limit = limit
	}
	if p.Limit > MaximumLimit {
		p.Limit = MaximumLimit
	}

	if v := values.Get(OffsetKey); v != "" {
		offset, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return p, fmt.Errorf("%w: offset: %v", ErrBadRequest, err)
		}
		p.Offset = offset
	}
	return p, nil
}
