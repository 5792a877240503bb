package persistence

import (
	"strings"

	"gorm.io/gorm/clause"
)

// SortColumns maps the sort keys a client may send to table columns
type SortColumns map[string]string

// productSortColumns is the whitelist for the catalog. Stock is absent
// because a variant product's stock is derived at query time.
var productSortColumns = SortColumns{
	"id":           "id",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"name":         "name",
	"sku":          "sku",
	"price":        "price_amount",
	"price_amount": "price_amount",
}

// sortDescending reads a client direction. Only an explicit "asc" sorts
// ascending.
func sortDescending(dir string) bool {
	return !strings.EqualFold(strings.TrimSpace(dir), "asc")
}

// OrderBy resolves key against the whitelist and returns the ORDER BY
// columns, ending with id so pages are stable. An empty key sorts by id
// ascending. A key outside the whitelist sorts by id in the requested
// direction and reports ok=false.
func (s SortColumns) OrderBy(key, dir string) (order clause.OrderBy, ok bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return orderColumns(clause.OrderByColumn{Column: clause.Column{Name: "id"}}), true
	}
	column, ok := s[key]
	if !ok {
		column = "id"
	}
	primary := clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: sortDescending(dir)}
	if column == "id" {
		return orderColumns(primary), ok
	}
	return orderColumns(primary, clause.OrderByColumn{Column: clause.Column{Name: "id"}}), ok
}

func orderColumns(cols ...clause.OrderByColumn) clause.OrderBy {
	return clause.OrderBy{Columns: cols}
}
