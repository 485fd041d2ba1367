package store

// PerPage is the console's message page size.
const PerPage = 20

// Page is one window of the message log.
type Page struct {
	Messages   []*Message `json:"messages"`
	Page       int        `json:"page"`
	PerPage    int        `json:"per_page"`
	Total      int        `json:"total"`
	TotalPages int        `json:"total_pages"`
}

// Paginate returns the 1-indexed page of msgs. Pages below 1 are treated as 1;
// a page past the end yields an empty, non-nil list.
func Paginate(msgs []*Message, page, perPage int) Page {
	if perPage <= 0 {
		perPage = PerPage
	}
	if page < 1 {
		page = 1
	}
	total := len(msgs)
	p := Page{
		Messages:   []*Message{},
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	start := (page - 1) * perPage
	if start >= total {
		return p
	}
	end := start + perPage
	if end > total {
		end = total
	}
	p.Messages = msgs[start:end]
	return p
}
