package console

import (
	"context"
	"sync"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/internal/realtime"
	"go.uber.org/zap"
)

// ProductState is a snapshot of the product list panel.
type ProductState struct {
	Filter     v1.ProductFilter
	Page       int
	TotalPages int
	Total      int
	Products   []v1.Product
	// DeleteStatus and DeleteError belong to the bulk delete.
	DeleteStatus string
	DeleteError  string
	// DeleteJobID is the bulk delete job being waited for.
	DeleteJobID string
}

type ProductPanel struct {
	api  API
	rt   Realtime
	opts options

	mu    sync.Mutex
	state ProductState
	ctx   context.Context
	offs  []func()
}

func NewProductPanel(api API, rt Realtime, opts ...Option) *ProductPanel {
	return &ProductPanel{
		api:   api,
		rt:    rt,
		opts:  newOptions(opts),
		state: ProductState{Page: 1, TotalPages: 1},
		ctx:   context.Background(),
	}
}

// Attach registers the realtime handlers. Refetches triggered by events use
// ctx.
func (p *ProductPanel) Attach(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offs != nil {
		return
	}
	p.ctx = ctx
	p.offs = []func(){
		p.rt.OnComplete(p.onComplete),
		p.rt.OnFailed(p.onFailed),
	}
}

func (p *ProductPanel) Detach() {
	p.mu.Lock()
	offs := p.offs
	p.offs = nil
	p.mu.Unlock()
	for _, off := range offs {
		off()
	}
}

func (p *ProductPanel) Snapshot() ProductState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	s.Products = append([]v1.Product(nil), p.state.Products...)
	return s
}

func (p *ProductPanel) update(fn func(s *ProductState)) {
	p.mu.Lock()
	fn(&p.state)
	p.mu.Unlock()
	p.opts.onChange()
}

// Refresh fetches the current page with the current filters. On error the
// table is left unchanged.
func (p *ProductPanel) Refresh(ctx context.Context) error {
	p.mu.Lock()
	filter, page := p.state.Filter, p.state.Page
	p.mu.Unlock()

	res, err := p.api.ListProducts(ctx, filter, page, p.opts.perPage)
	if err != nil {
		zap.S().Named("product_panel").Errorw("error fetching products", "error", err)
		return err
	}

	p.update(func(s *ProductState) {
		// a filter or page change while the fetch was in flight wins
		if s.Filter != filter || s.Page != page {
			return
		}
		s.Products = res.Products
		s.Total = res.Total
		s.TotalPages = res.TotalPages
		if s.TotalPages < 1 {
			s.TotalPages = 1
		}
	})
	return nil
}

func (p *ProductPanel) setFilter(ctx context.Context, fn func(f *v1.ProductFilter)) error {
	p.update(func(s *ProductState) {
		fn(&s.Filter)
		s.Page = 1
	})
	return p.Refresh(ctx)
}

func (p *ProductPanel) SetSkuFilter(ctx context.Context, sku string) error {
	return p.setFilter(ctx, func(f *v1.ProductFilter) { f.Sku = sku })
}

func (p *ProductPanel) SetNameFilter(ctx context.Context, name string) error {
	return p.setFilter(ctx, func(f *v1.ProductFilter) { f.Name = name })
}

func (p *ProductPanel) SetActiveFilter(ctx context.Context, active v1.ActiveFilter) error {
	return p.setFilter(ctx, func(f *v1.ProductFilter) { f.Active = active })
}

// GoToPage moves to page n clamped to [1, total pages] and refetches. Nothing
// is fetched when the page does not change.
func (p *ProductPanel) GoToPage(ctx context.Context, n int) error {
	changed := false
	p.update(func(s *ProductState) {
		n = min(max(n, 1), max(s.TotalPages, 1))
		changed = n != s.Page
		s.Page = n
	})
	if !changed {
		return nil
	}
	return p.Refresh(ctx)
}

func (p *ProductPanel) NextPage(ctx context.Context) error {
	return p.GoToPage(ctx, p.Snapshot().Page+1)
}

func (p *ProductPanel) PrevPage(ctx context.Context) error {
	return p.GoToPage(ctx, p.Snapshot().Page-1)
}

// Delete removes one product after confirmation, then refetches the current
// page once.
func (p *ProductPanel) Delete(ctx context.Context, id int64) error {
	if !p.opts.confirm.Confirm(MsgConfirmDelete) {
		return ErrNotConfirmed
	}
	if err := p.api.DeleteProduct(ctx, id); err != nil {
		zap.S().Named("product_panel").Errorw("error deleting product", "id", id, "error", err)
		return err
	}
	return p.Refresh(ctx)
}

// DeleteAll starts the bulk delete after confirmation and joins the room of
// the job. It returns the job id.
func (p *ProductPanel) DeleteAll(ctx context.Context) (string, error) {
	logger := zap.S().Named("product_panel")
	if !p.opts.confirm.Confirm(MsgConfirmDeleteAll) {
		return "", ErrNotConfirmed
	}

	p.update(func(s *ProductState) {
		s.DeleteStatus = MsgDeleting
		s.DeleteError = ""
	})

	job, err := p.api.DeleteAllProducts(ctx)
	if err != nil {
		logger.Errorw("failed to start bulk delete", "error", err)
		p.update(func(s *ProductState) {
			s.DeleteError = MsgBulkDeleteFailed
			s.DeleteStatus = ""
		})
		return "", err
	}

	p.update(func(s *ProductState) {
		s.DeleteJobID = job.JobId
	})
	if err := p.rt.JoinRoom(ctx, job.JobId); err != nil {
		// the job runs anyway; its outcome is only seen on the next refresh
		logger.Warnw("failed to join bulk delete room", "job_id", job.JobId, "error", err)
		return job.JobId, err
	}
	return job.JobId, nil
}

func (p *ProductPanel) onComplete(e realtime.TaskComplete) {
	p.update(func(s *ProductState) {
		if !acceptsJob(s.DeleteJobID, e.JobID) {
			return
		}
		s.DeleteStatus = e.Status
		s.DeleteError = ""
		s.DeleteJobID = ""
	})

	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	// any finished job may have changed the catalog
	_ = p.Refresh(ctx)
}

func (p *ProductPanel) onFailed(e realtime.TaskFailed) {
	p.update(func(s *ProductState) {
		if !acceptsJob(s.DeleteJobID, e.JobID) {
			return
		}
		s.DeleteError = e.Error
		s.DeleteStatus = ""
		s.DeleteJobID = ""
	})
}
