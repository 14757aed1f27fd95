package adapters

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/go-resty/resty/v2"
	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/h"
	"github.com/soffa-projects/tenantdb-go/log"
)

// ------------------------------------------------------------------------------------------------------------------
// HTTP PROVIDER IMPL
// ------------------------------------------------------------------------------------------------------------------

// HttpDataSourceProvider fetches {"data_sources": [...]} from a control plane
// endpoint. The url user, when present, is sent as a bearer token.
type HttpDataSourceProvider struct {
	target   string
	bearer   string
	cacheKey string
	client   *resty.Client
	cache    h.Cache
}

func NewHttpDataSourceProvider(cfg h.Url) *HttpDataSourceProvider {
	target := cfg.Url
	if u, err := url.Parse(cfg.Url); err == nil {
		u.User = nil
		target = u.String()
	}
	return &HttpDataSourceProvider{
		bearer:   cfg.User,
		target:   target,
		cacheKey: "datasources:" + target,
		client:   resty.New(),
		cache:    h.DefaultCache(),
	}
}

// Load fetches the list and refreshes the cache.
func (p *HttpDataSourceProvider) Load(ctx context.Context) ([]f.DataSource, error) {
	list, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}
	p.cache.Set(p.cacheKey, list)
	return list, nil
}

func (p *HttpDataSourceProvider) fetch(ctx context.Context) ([]f.DataSource, error) {
	req := p.client.R().SetContext(ctx)
	if p.bearer != "" {
		req.SetAuthToken(p.bearer)
	}
	resp, err := req.Get(p.target)
	if err != nil {
		return nil, errors.ConnectionFailure(err, "failed to load data sources")
	}
	if resp.IsError() {
		return nil, errors.ConnectionFailure(nil, "failed to load data sources: %s", resp.Status())
	}
	raw := h.NewJsonValue(resp.String()).Raw("data_sources")
	if raw == "" {
		return nil, errors.BadRequest("data_sources missing from %s response", p.target)
	}
	var list []f.DataSource
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, errors.BadRequest("failed to parse data sources: %v", err)
	}
	for _, ds := range list {
		if err := ValidateDataSource(ds); err != nil {
			return nil, err
		}
	}
	list = sortDataSources(list)
	log.Info("[http-datasource] %d data sources loaded", len(list))
	return list, nil
}

func (p *HttpDataSourceProvider) List(ctx context.Context) ([]f.DataSource, error) {
	val, err := p.cache.GetOrSet(p.cacheKey, func() (any, error) {
		return p.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return val.([]f.DataSource), nil
}

// Find reloads once on a miss so sources added upstream are picked up.
func (p *HttpDataSourceProvider) Find(ctx context.Context, idOrName string) (*f.DataSource, error) {
	_, cached := p.cache.Get(p.cacheKey)
	list, err := p.List(ctx)
	if err != nil {
		return nil, err
	}
	if ds := findDataSource(list, idOrName); ds != nil {
		return ds, nil
	}
	if !cached {
		return nil, nil
	}
	if list, err = p.Load(ctx); err != nil {
		return nil, err
	}
	return findDataSource(list, idOrName), nil
}

func findDataSource(list []f.DataSource, idOrName string) *f.DataSource {
	for _, ds := range list {
		if ds.ID == idOrName {
			return &ds
		}
	}
	for _, ds := range list {
		if ds.Name == idOrName {
			return &ds
		}
	}
	return nil
}
