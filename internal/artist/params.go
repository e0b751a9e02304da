package artist

import (
	"fmt"

	"github.com/sydlexius/artpersona/internal/taxonomy"
)

// Filters accepted by ListParams.Filter.
const (
	FilterClassified   = "classified"
	FilterUnclassified = "unclassified"
)

// Page size bounds for List.
const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

// ListParams configures paginated, sortable, filterable artist queries.
type ListParams struct {
	Page     int
	PageSize int
	Sort     string
	Order    string
	// Search matches a substring of the name.
	Search string
	// Filter is "", FilterClassified or FilterUnclassified.
	Filter string
	// Code keeps only artists whose current top-1 is this code.
	Code taxonomy.Code
}

// Validate fills defaults for paging and sorting and rejects an unknown
// filter or code.
func (p *ListParams) Validate() error {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		p.PageSize = DefaultPageSize
	}
	switch p.Sort {
	case "name", "era", "birth_year", "updated_at", "created_at":
	default:
		p.Sort = "name"
	}
	if p.Order != "desc" {
		p.Order = "asc"
	}
	switch p.Filter {
	case "", FilterClassified, FilterUnclassified:
	default:
		return fmt.Errorf("unknown filter %q: want %s or %s", p.Filter, FilterClassified, FilterUnclassified)
	}
	if p.Code != "" && !taxonomy.IsValid(p.Code) {
		return &taxonomy.UnknownCodeError{Code: string(p.Code)}
	}
	return nil
}
