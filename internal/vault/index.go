package vault

import (
	"sort"
	"strings"
)

// indexVersion is the on-disk format version of the index document.
const indexVersion = 1

// Meta is the lightweight per-conversation entry in the index. The full body
// never lives here; listing and search work against Meta alone.
type Meta struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	CreateTime   *float64 `json:"create_time,omitempty"`
	UpdateTime   *float64 `json:"update_time,omitempty"`
	MessageCount int      `json:"message_count"`
	Dirty        bool     `json:"dirty,omitempty"`
}

// IndexDocument is the persisted metadata index. TotalConversations always
// equals len(Conversations) once a mutation has completed.
type IndexDocument struct {
	Version            int     `json:"version"`
	LastModified       float64 `json:"last_modified"`
	TotalConversations int     `json:"total_conversations"`
	Conversations      []*Meta `json:"conversations"`
}

// SortField selects the meta field List orders by.
type SortField string

const (
	SortByUpdateTime SortField = "update_time"
	SortByCreateTime SortField = "create_time"
	SortByTitle      SortField = "title"
)

// SortOrder selects ascending or descending ordering.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ListOptions controls filtering, ordering, and pagination of List. The zero
// value lists everything, update_time descending.
type ListOptions struct {
	// Query filters by case-insensitive substring match on the title.
	Query string

	SortBy SortField
	Order  SortOrder

	// Offset/Limit paginate the filtered, sorted result. Limit <= 0 means
	// no limit.
	Offset int
	Limit  int
}

// ListResult is one page of the filtered index plus the filtered total.
type ListResult struct {
	Items []Meta `json:"items"`
	Total int    `json:"total"`
}

func (f SortField) valid() bool {
	switch f {
	case SortByUpdateTime, SortByCreateTime, SortByTitle:
		return true
	}
	return false
}

// listMetas applies ListOptions to the given metas: filter, stable sort,
// paginate. Pure in-memory; the input slice is not modified.
func listMetas(metas []*Meta, opts ListOptions) ListResult {
	sortBy := opts.SortBy
	if !sortBy.valid() {
		sortBy = SortByUpdateTime
	}
	order := opts.Order
	if order != OrderAsc && order != OrderDesc {
		order = OrderDesc
	}

	filtered := make([]*Meta, 0, len(metas))
	if query := strings.ToLower(strings.TrimSpace(opts.Query)); query != "" {
		for _, meta := range metas {
			if strings.Contains(strings.ToLower(meta.Title), query) {
				filtered = append(filtered, meta)
			}
		}
	} else {
		filtered = append(filtered, metas...)
	}

	// Stable sort so equal keys keep their prior relative order.
	sort.SliceStable(filtered, func(i, j int) bool {
		less := metaLess(filtered[i], filtered[j], sortBy)
		if order == OrderDesc {
			return metaLess(filtered[j], filtered[i], sortBy)
		}
		return less
	})

	total := len(filtered)
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	items := make([]Meta, 0, end-start)
	for _, meta := range filtered[start:end] {
		items = append(items, *meta)
	}
	return ListResult{Items: items, Total: total}
}

func metaLess(a, b *Meta, field SortField) bool {
	switch field {
	case SortByTitle:
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	case SortByCreateTime:
		return epochOrZero(a.CreateTime) < epochOrZero(b.CreateTime)
	default:
		return epochOrZero(a.UpdateTime) < epochOrZero(b.UpdateTime)
	}
}

func epochOrZero(t *float64) float64 {
	if t == nil {
		return 0
	}
	return *t
}
