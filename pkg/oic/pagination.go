package oic

import (
	"context"
	"net/url"
	"strconv"
)

const (
	defaultPageSize  = 50
	defaultMaxPages  = 1000
	statusBadRequest = 400
)

// Page is one decoded list response.
type Page struct {
	Items []Object
	// HasMore is nil when the envelope does not carry the flag.
	HasMore *bool
	// Limit is the page size reported by the server, 0 when absent.
	Limit int
	// Total is the reported total across all pages, -1 when unknown.
	Total int
	// Advance is how far the offset moves after this page.
	Advance int
}

// ParsePage decodes the envelopes the service uses for listings:
// {items, hasMore, limit}, {elements, totalResults, hasMore},
// {items, totalResults, totalRecordsCount} and a bare array (wrapped as items).
func ParsePage(body Object) Page {
	page := Page{Total: -1}

	key := "items"
	if !body.Has(key) && body.Has("elements") {
		key = "elements"
	}

	page.Items = body.Objects(key)
	if page.Items == nil {
		page.Items = []Object{}
	}

	if hasMore, ok := body.Bool("hasMore"); ok {
		page.HasMore = &hasMore
	}

	if limit, ok := body.Int("limit"); ok {
		page.Limit = limit
	}

	totalResults, hasTotalResults := body.Int("totalResults")

	if totalRecords, ok := body.Int("totalRecordsCount"); ok {
		page.Total = totalRecords
	} else if key == "elements" && hasTotalResults {
		page.Total = totalResults
	}

	switch {
	case page.Limit > 0:
		page.Advance = page.Limit
	case hasTotalResults && page.Total >= 0 && key == "items":
		page.Advance = totalResults
	default:
		page.Advance = len(page.Items)
	}

	return page
}

// PageOption configures a PageIterator.
type PageOption func(*pageConfig)

type pageConfig struct {
	pageSize  int
	maxPages  int
	maxOffset int
	logger    Logger
}

// WithPageSize sets the limit requested per page.
func WithPageSize(size int) PageOption {
	return func(c *pageConfig) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithMaxPages bounds the number of list calls.
func WithMaxPages(pages int) PageOption {
	return func(c *pageConfig) {
		if pages > 0 {
			c.maxPages = pages
		}
	}
}

// WithMaxOffset stops iteration before requesting an offset above max.
func WithMaxOffset(maxOffset int) PageOption {
	return func(c *pageConfig) {
		c.maxOffset = maxOffset
	}
}

// WithPageLogger logs termination decisions.
func WithPageLogger(logger Logger) PageOption {
	return func(c *pageConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Stop reasons reported by PageIterator.StopReason.
const (
	StopNoMore     = "has_more_false"
	StopTotal      = "reported_total_reached"
	StopEmpty      = "empty_page"
	StopShortPage  = "short_page"
	StopNoProgress = "no_new_items"
	StopMaxPages   = "max_pages"
	StopMaxOffset  = "max_offset"
	StopBadRequest = "bad_request"
)

// PageIterator drives a ListFunc through a bounded sequence of pages.
type PageIterator struct {
	fetch  ListFunc
	params url.Values
	cfg    pageConfig

	offset     int
	pages      int
	total      int
	done       bool
	stopReason string

	items []Object
	seen  map[string]struct{}
}

// NewPageIterator creates an iterator starting at the offset in params, if any.
func NewPageIterator(fetch ListFunc, params url.Values, opts ...PageOption) *PageIterator {
	cfg := pageConfig{
		pageSize: defaultPageSize,
		maxPages: defaultMaxPages,
		logger:   NoopLogger{},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	copied := url.Values{}
	for key, values := range params {
		copied[key] = append([]string(nil), values...)
	}

	if limit, err := strconv.Atoi(copied.Get("limit")); err == nil && limit > 0 {
		cfg.pageSize = limit
	}

	offset, _ := strconv.Atoi(copied.Get("offset"))

	return &PageIterator{
		fetch:  fetch,
		params: copied,
		cfg:    cfg,
		offset: offset,
		total:  -1,
		seen:   map[string]struct{}{},
	}
}

// HasNext reports whether another page may be requested.
func (it *PageIterator) HasNext() bool {
	return !it.done
}

// StopReason explains why iteration ended; empty while iterating.
func (it *PageIterator) StopReason() string {
	return it.stopReason
}

// Pages returns the number of pages fetched so far.
func (it *PageIterator) Pages() int {
	return it.pages
}

// Items returns everything accumulated so far.
func (it *PageIterator) Items() []Object {
	return it.items
}

// NextPage fetches one page and returns the items it added.
func (it *PageIterator) NextPage(ctx context.Context) ([]Object, error) {
	if it.done {
		return nil, nil
	}

	if it.pages >= it.cfg.maxPages {
		it.stop(StopMaxPages)

		return nil, nil
	}

	if it.cfg.maxOffset > 0 && it.offset > it.cfg.maxOffset {
		it.stop(StopMaxOffset)

		return nil, nil
	}

	params := url.Values{}
	for key, values := range it.params {
		params[key] = values
	}

	params.Set("limit", strconv.Itoa(it.cfg.pageSize))
	params.Set("offset", strconv.Itoa(it.offset))

	body, err := it.fetch(ctx, params)
	if err != nil {
		if it.pages > 0 && StatusCode(err) == statusBadRequest {
			it.cfg.logger.Warn("listing ended by 400 after partial results, a known limit of the service", map[string]interface{}{
				"offset":   it.offset,
				"received": len(it.items),
				"expected": it.total,
			})
			it.stop(StopBadRequest)

			return nil, nil
		}

		it.done = true

		return nil, err
	}

	it.pages++
	page := ParsePage(body)

	if page.Total >= 0 {
		it.total = page.Total
	}

	added := it.accumulate(page.Items)

	switch {
	case len(page.Items) == 0:
		it.stop(StopEmpty)
	case len(added) == 0:
		it.stop(StopNoProgress)
	case page.HasMore != nil && !*page.HasMore:
		it.stop(StopNoMore)
	case it.total >= 0 && len(it.items) >= it.total:
		it.stop(StopTotal)
	case page.HasMore == nil && it.total < 0 && len(page.Items) < it.cfg.pageSize:
		it.stop(StopShortPage)
	}

	advance := page.Advance
	if advance <= 0 {
		advance = it.cfg.pageSize
	}

	it.offset += advance

	return added, nil
}

// All drains the iterator and returns every item.
func (it *PageIterator) All(ctx context.Context) ([]Object, error) {
	for it.HasNext() {
		_, err := it.NextPage(ctx)
		if err != nil {
			return it.items, err
		}
	}

	return it.items, nil
}

func (it *PageIterator) accumulate(items []Object) []Object {
	added := make([]Object, 0, len(items))

	for _, item := range items {
		if id := item.ID(); id != "" {
			if _, dup := it.seen[id]; dup {
				continue
			}

			it.seen[id] = struct{}{}
		}

		added = append(added, item)
	}

	it.items = append(it.items, added...)

	return added
}

func (it *PageIterator) stop(reason string) {
	it.done = true
	it.stopReason = reason

	if reason == StopMaxPages || reason == StopMaxOffset {
		it.cfg.logger.Warn("listing stopped at iteration bound", map[string]interface{}{
			"reason":   reason,
			"pages":    it.pages,
			"received": len(it.items),
			"expected": it.total,
		})
	}
}

// CollectAll returns every item of a listing.
func CollectAll(ctx context.Context, fetch ListFunc, params url.Values, opts ...PageOption) ([]Object, error) {
	return NewPageIterator(fetch, params, opts...).All(ctx)
}
