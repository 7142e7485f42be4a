package tableview

import "sync"

// LoadingObserver is told when a page load starts (true) and ends (false).
type LoadingObserver func(loading bool)

// PaginationState is a snapshot of a Pager.
type PaginationState struct {
	Page      int
	Loading   bool
	Exhausted bool
}

// Pager tracks incremental page loading. Results of a load that began before
// the last Reset are rejected through a generation counter.
type Pager struct {
	mu        sync.Mutex
	pageSize  int
	page      int
	loading   bool
	exhausted bool
	gen       int
	observer  LoadingObserver
}

func NewPager(pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Pager{pageSize: pageSize, page: 1}
}

// SetObserver installs the loading indicator hook.
func (p *Pager) SetObserver(observer LoadingObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = observer
}

func (p *Pager) PageSize() int {
	return p.pageSize
}

// Begin reserves the next page. ok is false while a load is in flight or
// after the last page.
func (p *Pager) Begin() (page, gen int, ok bool) {
	p.mu.Lock()
	if p.loading || p.exhausted {
		p.mu.Unlock()
		return 0, 0, false
	}
	p.loading = true
	page, gen = p.page, p.gen
	observer := p.observer
	p.mu.Unlock()

	notify(observer, true)
	return page, gen, true
}

// Complete applies a result of n items. It returns false when the load is stale.
func (p *Pager) Complete(gen, n int) bool {
	p.mu.Lock()
	if gen != p.gen || !p.loading {
		p.mu.Unlock()
		return false
	}
	p.loading = false
	p.page++
	if n < p.pageSize {
		p.exhausted = true
	}
	observer := p.observer
	p.mu.Unlock()

	notify(observer, false)
	return true
}

// Fail ends a load without advancing.
func (p *Pager) Fail(gen int) {
	p.mu.Lock()
	if gen != p.gen || !p.loading {
		p.mu.Unlock()
		return
	}
	p.loading = false
	observer := p.observer
	p.mu.Unlock()

	notify(observer, false)
}

// Reset returns to page 1 and invalidates any load in flight.
func (p *Pager) Reset() {
	p.mu.Lock()
	wasLoading := p.loading
	p.page = 1
	p.loading = false
	p.exhausted = false
	p.gen++
	observer := p.observer
	p.mu.Unlock()

	if wasLoading {
		notify(observer, false)
	}
}

func (p *Pager) State() PaginationState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PaginationState{Page: p.page, Loading: p.loading, Exhausted: p.exhausted}
}

func notify(observer LoadingObserver, loading bool) {
	if observer != nil {
		observer(loading)
	}
}
