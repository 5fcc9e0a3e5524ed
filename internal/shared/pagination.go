package shared

// PageRequest carries caller-supplied paging parameters.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps paging parameters into the supported window.
func (p PageRequest) Normalize(defaultSize, maxSize int) PageRequest {
	if p.PageSize <= 0 {
		p.PageSize = defaultSize
	}
	if p.PageSize > maxSize {
		p.PageSize = maxSize
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	return p
}

// Offset returns the row offset for the normalized request.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PagingInfo describes the position of a result page.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// NewPagingInfo computes paging metadata from a normalized request and the
// hasNext flag produced by a limit+1 window fetch.
func NewPagingInfo(req PageRequest, hasNext bool) PagingInfo {
	info := PagingInfo{Page: req.Page, PageSize: req.PageSize, HasNext: hasNext}
	if req.Page > 1 {
		info.PrevPage = req.Page - 1
	}
	if hasNext {
		info.NextPage = req.Page + 1
	}
	return info
}
