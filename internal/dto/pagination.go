package dto

// PageLink points at an adjacent page in a paginated listing.
type PageLink struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Pagination describes the window a list response covers. Next and Prev
// are present only when the corresponding page exists.
type Pagination struct {
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Pages int       `json:"pages"`
	Limit int       `json:"limit"`
	Count int       `json:"count"`
	Next  *PageLink `json:"next,omitempty"`
	Prev  *PageLink `json:"prev,omitempty"`
}

// NewPagination assembles the pagination block for a list response.
func NewPagination(total int64, page, limit, count int) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}

	pagination := Pagination{
		Total: total,
		Page:  page,
		Pages: pages,
		Limit: limit,
		Count: count,
	}

	skip := (page - 1) * limit
	if int64(skip+count) < total {
		pagination.Next = &PageLink{Page: page + 1, Limit: limit}
	}
	if skip > 0 {
		pagination.Prev = &PageLink{Page: page - 1, Limit: limit}
	}

	return pagination
}
