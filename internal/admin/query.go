package admin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"timeclock/internal/db/models"

	"github.com/google/uuid"
)

// ErrInvalidQuery reports an unknown sort field or order.
var ErrInvalidQuery = errors.New("invalid query")

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(s)); o {
	case "":
		return Desc, nil
	case Asc, Desc:
		return o, nil
	}
	return "", fmt.Errorf("%w: sort order %q", ErrInvalidQuery, s)
}

// Page selects a 1-based page.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"page_size"`
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

type PageResult[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Pages    int `json:"pages"`
}

// Paginate slices items. A page past the end yields no items.
func Paginate[T any](items []T, p Page) PageResult[T] {
	p = p.normalize()
	total := len(items)
	pages := (total + p.Size - 1) / p.Size

	start := (p.Number - 1) * p.Size
	if start > total {
		start = total
	}
	end := start + p.Size
	if end > total {
		end = total
	}

	return PageResult[T]{
		Items:    append([]T{}, items[start:end]...),
		Total:    total,
		Page:     p.Number,
		PageSize: p.Size,
		Pages:    pages,
	}
}

const (
	SortName    = "name"
	SortEmail   = "email"
	SortCreated = "created"
	SortClockIn = "clock_in"
	SortWorked  = "worked"
)

type EmployeeQuery struct {
	Search string
	SortBy string
	Order  Order
	Page   Page
}

// FilterEmployees applies search, sort and pagination. Search matches the
// full name or email, case-insensitively.
func FilterEmployees(list []*models.Employee, q EmployeeQuery) (PageResult[*models.Employee], error) {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	filtered := make([]*models.Employee, 0, len(list))
	for _, e := range list {
		if search != "" &&
			!strings.Contains(strings.ToLower(e.FullName()), search) &&
			!strings.Contains(strings.ToLower(e.Email), search) {
			continue
		}
		filtered = append(filtered, e)
	}

	var less func(a, b *models.Employee) bool
	switch q.SortBy {
	case SortName:
		less = func(a, b *models.Employee) bool {
			return strings.ToLower(a.FullName()) < strings.ToLower(b.FullName())
		}
	case SortEmail:
		less = func(a, b *models.Employee) bool {
			return strings.ToLower(a.Email) < strings.ToLower(b.Email)
		}
	case SortCreated, "":
		less = func(a, b *models.Employee) bool {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	default:
		return PageResult[*models.Employee]{}, fmt.Errorf("%w: sort field %q", ErrInvalidQuery, q.SortBy)
	}
	sortBy(filtered, less, q.Order)

	return Paginate(filtered, q.Page), nil
}

type HistoryQuery struct {
	EmployeeID uuid.UUID
	From       time.Time
	To         time.Time
	SortBy     string
	Order      Order
	Page       Page
}

// FilterHistory keeps entries of one employee (when set) whose clock-in is
// within [From, To), then sorts and paginates them.
func FilterHistory(list []*models.HistoryEntry, q HistoryQuery, now time.Time) (PageResult[*models.HistoryEntry], error) {
	filtered := SelectHistory(list, q)

	var less func(a, b *models.HistoryEntry) bool
	switch q.SortBy {
	case SortClockIn, "":
		less = func(a, b *models.HistoryEntry) bool {
			return a.ClockIn.Before(b.ClockIn)
		}
	case SortName:
		less = func(a, b *models.HistoryEntry) bool {
			return strings.ToLower(a.EmployeeName) < strings.ToLower(b.EmployeeName)
		}
	case SortWorked:
		less = func(a, b *models.HistoryEntry) bool {
			return a.Worked(now) < b.Worked(now)
		}
	default:
		return PageResult[*models.HistoryEntry]{}, fmt.Errorf("%w: sort field %q", ErrInvalidQuery, q.SortBy)
	}
	sortBy(filtered, less, q.Order)

	return Paginate(filtered, q.Page), nil
}

// SelectHistory applies only the employee and date filters.
func SelectHistory(list []*models.HistoryEntry, q HistoryQuery) []*models.HistoryEntry {
	filtered := make([]*models.HistoryEntry, 0, len(list))
	for _, h := range list {
		if q.EmployeeID != uuid.Nil && h.EmployeeID != q.EmployeeID {
			continue
		}
		if !q.From.IsZero() && h.ClockIn.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !h.ClockIn.Before(q.To) {
			continue
		}
		filtered = append(filtered, h)
	}
	return filtered
}

func sortBy[T any](items []T, less func(a, b T) bool, order Order) {
	sort.SliceStable(items, func(i, j int) bool {
		if order == Asc {
			return less(items[i], items[j])
		}
		return less(items[j], items[i])
	})
}
