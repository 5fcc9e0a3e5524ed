package audit

import (
	"context"
	"fmt"

	"github.com/aegis-authz/aegis/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// QueryRepository defines the read access the query service needs.
type QueryRepository interface {
	ListEntries(ctx context.Context, f Filters, limit, offset int) ([]Entry, error)
}

// Result bundles a page of ledger entries with paging metadata.
type Result struct {
	Entries []Entry
	Paging  shared.PagingInfo
}

// Service answers ledger queries for reporting endpoints.
type Service struct {
	repo QueryRepository
}

// NewService builds a query service.
func NewService(repo QueryRepository) *Service {
	return &Service{repo: repo}
}

// Query returns a page of ledger entries matching the filters, most
// recent first. Callers without global administration are forcibly
// scoped to their own tenant; such a caller with no tenant gets an empty
// result rather than cross-tenant visibility.
func (s *Service) Query(ctx context.Context, caller Caller, filters Filters, page shared.PageRequest) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	page = page.Normalize(defaultPageSize, maxPageSize)
	if !caller.GlobalAdmin {
		if caller.TenantID == nil {
			return Result{Paging: shared.NewPagingInfo(page, false)}, nil
		}
		filters.TenantID = caller.TenantID
	}
	entries, err := s.repo.ListEntries(ctx, filters, page.PageSize+1, page.Offset())
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > page.PageSize
	if hasNext {
		entries = entries[:page.PageSize]
	}
	return Result{Entries: entries, Paging: shared.NewPagingInfo(page, hasNext)}, nil
}
