package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/h"
	"github.com/soffa-projects/tenantdb-go/log"
	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// NewDataSourceProvider picks the provider from the uri:
// base64:<json>, file://<path>.{json,yaml,yml,toml}, http(s)://..., redis://...
// or "db" for the admin database table.
func NewDataSourceProvider(provider string, admin *bun.DB) (f.DataSourceProvider, error) {
	if strings.HasPrefix(provider, "base64:") {
		log.Info("using base64 data source provider")
		return asProvider(NewBase64DataSourceProvider(strings.TrimPrefix(provider, "base64:")))
	}
	if provider == "db" {
		if admin == nil {
			return nil, errors.BadRequest("db data source provider requires DATABASE_URL")
		}
		log.Info("using db data source provider")
		return NewDBDataSourceProvider(admin), nil
	}

	res, err := h.ParseUrl(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to parse data source provider: %v", err)
	}
	switch res.Scheme {
	case "file":
		log.Info("using file data source provider: %s", res.Url)
		return asProvider(NewFileDataSourceProvider(strings.TrimPrefix(res.Url, "file://")))
	case "http", "https":
		log.Info("using http data source provider: %s", h.RedactUrl(res.Url))
		return NewHttpDataSourceProvider(res), nil
	case "redis", "rediss":
		log.Info("using redis data source provider: %s", h.RedactUrl(res.Url))
		return asProvider(NewRedisDataSourceProvider(res.Url))
	}
	return nil, errors.UnsupportedFeature("unsupported data source provider: %s", res.Scheme)
}

func asProvider[T f.DataSourceProvider](p T, err error) (f.DataSourceProvider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

func MustNewDataSourceProvider(provider string, admin *bun.DB) f.DataSourceProvider {
	p, err := NewDataSourceProvider(provider, admin)
	if err != nil {
		panic(err)
	}
	return p
}

func ValidateDataSource(ds f.DataSource) error {
	if err := validate.Struct(ds); err != nil {
		return errors.BadRequest("invalid data source %q: %v", ds.ID, err)
	}
	return nil
}

// ------------------------------------------------------------------------------------------------------------------
// STATIC PROVIDER IMPL
// ------------------------------------------------------------------------------------------------------------------

type StaticDataSourceProvider struct {
	mu     sync.RWMutex
	byID   map[string]f.DataSource
	byName map[string]string
}

// NewStaticDataSourceProvider keeps the given data sources in memory.
func NewStaticDataSourceProvider(sources ...f.DataSource) (*StaticDataSourceProvider, error) {
	p := &StaticDataSourceProvider{
		byID:   make(map[string]f.DataSource),
		byName: make(map[string]string),
	}
	for _, ds := range sources {
		if err := p.Create(context.Background(), ds); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *StaticDataSourceProvider) Find(_ context.Context, idOrName string) (*f.DataSource, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if ds, ok := p.byID[idOrName]; ok {
		return &ds, nil
	}
	if id, ok := p.byName[idOrName]; ok {
		ds := p.byID[id]
		return &ds, nil
	}
	return nil, nil
}

func (p *StaticDataSourceProvider) List(_ context.Context) ([]f.DataSource, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]f.DataSource, 0, len(p.byID))
	for _, id := range h.SortedKeys(p.byID) {
		out = append(out, p.byID[id])
	}
	return out, nil
}

func (p *StaticDataSourceProvider) Create(_ context.Context, ds f.DataSource) error {
	if err := ValidateDataSource(ds); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byID[ds.ID]; ok {
		return errors.Conflict("data source %s already exists", ds.ID)
	}
	if _, ok := p.byName[ds.Name]; ok {
		return errors.Conflict("data source name %s already taken", ds.Name)
	}
	p.byID[ds.ID] = ds
	p.byName[ds.Name] = ds.ID
	return nil
}

func (p *StaticDataSourceProvider) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ds, ok := p.byID[id]
	if !ok {
		return errors.SourceNotFound(id)
	}
	delete(p.byID, id)
	delete(p.byName, ds.Name)
	return nil
}

// ------------------------------------------------------------------------------------------------------------------
// BASE64 PROVIDER IMPL
// ------------------------------------------------------------------------------------------------------------------

func NewBase64DataSourceProvider(cfg string) (*StaticDataSourceProvider, error) {
	decoded, err := base64.StdEncoding.DecodeString(cfg)
	if err != nil {
		return nil, errors.BadRequest("failed to decode base64 data sources: %v", err)
	}
	var list f.DataSourceList
	if err := json.Unmarshal(decoded, &list); err != nil {
		return nil, errors.BadRequest("failed to unmarshal data sources: %v", err)
	}
	return NewStaticDataSourceProvider(list.DataSources...)
}

// ------------------------------------------------------------------------------------------------------------------
// FILE PROVIDER IMPL
// ------------------------------------------------------------------------------------------------------------------

// NewFileDataSourceProvider reads a json, yaml or toml file holding a
// data_sources list.
func NewFileDataSourceProvider(path string) (*StaticDataSourceProvider, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %v", err)
	}
	var list f.DataSourceList
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &list)
	case ".toml":
		err = toml.Unmarshal(content, &list)
	case ".json", "":
		err = json.Unmarshal(content, &list)
	default:
		return nil, errors.UnsupportedFeature("unsupported data source file format: %s", path)
	}
	if err != nil {
		return nil, errors.BadRequest("error parsing %s: %v", path, err)
	}
	p, err := NewStaticDataSourceProvider(list.DataSources...)
	if err != nil {
		return nil, err
	}
	log.Info("file data source provider initialized with %d data sources", len(list.DataSources))
	return p, nil
}

// sortDataSources orders by id, providers return stable listings.
func sortDataSources(list []f.DataSource) []f.DataSource {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
