// Package registry loads every definition in a directory, compiles each into
// a tool catalog, and proxies tool calls to the upstream HTTP APIs.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apifoundry/apibridge/internal/auth"
	"github.com/apifoundry/apibridge/internal/common"
	"github.com/apifoundry/apibridge/internal/definition"
	"github.com/apifoundry/apibridge/internal/enrich"
	"github.com/apifoundry/apibridge/internal/schema"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 50 * 1024 * 1024
)

// Options configures a Registry.
type Options struct {
	// Dir is the definitions directory. Every *.json/*.yaml/*.yml file in it
	// (customization sidecars excepted) is treated as an OpenAPI definition.
	Dir string

	// Timeout bounds each upstream request. Zero means defaultTimeout.
	Timeout time.Duration

	// MaxResponseBytes caps how much of an upstream response body is read.
	// Zero means defaultMaxResponseBytes.
	MaxResponseBytes int64

	// DefaultCredentials are applied to tools with no authentication
	// override, with the type inferred from the credential shape.
	DefaultCredentials map[string]any
}

// ToolInfo is the listing entry for one callable tool.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema *schema.Schema
}

// CatalogInfo summarizes one loaded catalog.
type CatalogInfo struct {
	Source    string
	Hash      string
	ToolCount int
}

// Result is the outcome of a proxied upstream call. Any HTTP status,
// including errors, is reported faithfully here rather than as a Go error.
type Result struct {
	Status  int
	Headers http.Header
	Body    any    // decoded JSON when the response parsed as JSON
	Raw     []byte // raw response bytes, always set
}

// fileFlight deduplicates concurrent compilations of the same definition
// file; every caller receives the single flight's outcome.
type fileFlight struct {
	once sync.Once
	def  *enrich.EnrichedDefinition
	err  error
}

// Registry owns the definition directory. Catalogs are compiled lazily on
// first use and retained until Reload.
type Registry struct {
	opts     Options
	enricher *enrich.Enricher
	logger   *common.Logger
	client   *http.Client

	mu      sync.Mutex
	flights map[string]*fileFlight
	loaded  bool
	order   []string // definition paths in scan order
}

// NewRegistry creates a Registry over a definitions directory.
func NewRegistry(opts Options, enricher *enrich.Enricher, logger *common.Logger) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = defaultMaxResponseBytes
	}
	return &Registry{
		opts:     opts,
		enricher: enricher,
		logger:   logger,
		client:   &http.Client{Timeout: opts.Timeout},
		flights:  map[string]*fileFlight{},
	}
}

// ListTools returns every callable tool across all loaded catalogs, in file
// scan order. When two files produce the same tool name, the first-loaded
// tool is listed and the later one is skipped with a warning.
func (r *Registry) ListTools() []ToolInfo {
	var tools []ToolInfo
	seen := map[string]string{}
	for _, loaded := range r.catalogs() {
		for i := range loaded.def.Tools {
			tool := &loaded.def.Tools[i]
			if origin, dup := seen[tool.Name]; dup {
				r.logger.Warn().
					Str("tool", tool.Name).
					Str("kept", origin).
					Str("skipped", loaded.path).
					Msg("duplicate tool name across definitions, first-loaded wins")
				continue
			}
			seen[tool.Name] = loaded.path
			tools = append(tools, ToolInfo{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}
	}
	return tools
}

// Catalogs reports the loaded catalogs and their provenance.
func (r *Registry) Catalogs() []CatalogInfo {
	var infos []CatalogInfo
	for _, loaded := range r.catalogs() {
		infos = append(infos, CatalogInfo{
			Source:    loaded.path,
			Hash:      loaded.def.Hash,
			ToolCount: len(loaded.def.Tools),
		})
	}
	return infos
}

// Reload discards every loaded catalog; the next call recompiles from disk.
// Cached catalog files keep unchanged definitions cheap to reload.
func (r *Registry) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flights = map[string]*fileFlight{}
	r.order = nil
	r.loaded = false
	r.logger.Info().Msg("registry reloaded, catalogs will be recompiled on next use")
}

// ExecuteTool reconstructs and performs the upstream HTTP request for one
// tool call. Required fields are validated before any network activity; any
// upstream HTTP status is returned as a Result, not an error.
func (r *Registry) ExecuteTool(ctx context.Context, name string, args map[string]any) (*Result, error) {
	tool, catalog := r.findTool(name)
	if tool == nil {
		return nil, &MissingToolError{Name: name}
	}

	if missing := missingRequired(tool, args); len(missing) > 0 {
		return nil, &ParameterValidationError{Tool: name, Missing: missing}
	}

	merged := make(map[string]any, len(tool.PredefinedParams)+len(args))
	for k, v := range tool.PredefinedParams {
		merged[k] = v
	}
	for k, v := range args {
		merged[k] = v
	}

	req, err := BuildRequest(tool, merged)
	if err != nil {
		return nil, err
	}

	if requirement := r.resolveAuth(tool, catalog); requirement != nil {
		if err := auth.Apply(req.Headers, req.Query, *requirement); err != nil {
			return nil, err
		}
	}

	r.logger.Debug().
		Str("tool", name).
		Str("method", req.Method).
		Str("url", req.URL).
		Msg("executing tool call")

	return r.execute(ctx, req)
}

// missingRequired checks declared required fields against the supplied
// arguments. A null value counts as absent.
func missingRequired(tool *enrich.ToolDefinition, args map[string]any) []string {
	if tool.InputSchema == nil {
		return nil
	}
	var missing []string
	for _, field := range tool.InputSchema.Required {
		if v, ok := args[field]; !ok || v == nil {
			missing = append(missing, field)
		}
	}
	return missing
}

// resolveAuth combines the tool's authentication override with the
// registry's default credentials, per-tool values winning per key. apiKey
// placement absent from the credentials is filled in from the definition's
// declared security schemes.
func (r *Registry) resolveAuth(tool *enrich.ToolDefinition, catalog *enrich.EnrichedDefinition) *auth.Requirement {
	override := tool.Authentication
	if override == nil && len(r.opts.DefaultCredentials) == 0 {
		return nil
	}

	creds := make(map[string]any, len(r.opts.DefaultCredentials))
	for k, v := range r.opts.DefaultCredentials {
		creds[k] = v
	}
	typ := ""
	if override != nil {
		for k, v := range override.Credentials {
			creds[k] = v
		}
		typ = override.Type
	}
	if typ == "" {
		typ = auth.InferType(creds)
	}
	if typ == "" {
		return nil
	}

	if typ == "apiKey" {
		_, hasName := creds["name"]
		_, hasIn := creds["in"]
		if !hasName || !hasIn {
			for _, scheme := range catalog.Security {
				if scheme.Type != "apiKey" || scheme.Name == "" {
					continue
				}
				if !hasName {
					creds["name"] = scheme.Name
				}
				if !hasIn && scheme.In != "" {
					creds["in"] = scheme.In
				}
				break
			}
		}
	}

	return &auth.Requirement{Type: typ, Credentials: creds}
}

// execute performs the reconstructed request against the upstream API.
func (r *Registry) execute(ctx context.Context, req *Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.FullURL(), body)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if len(req.Body) > 0 && req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, r.opts.MaxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	result := &Result{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Raw:     raw,
	}
	if decoded, ok := decodeJSON(resp.Header.Get("Content-Type"), raw); ok {
		result.Body = decoded
	} else {
		result.Body = string(raw)
	}
	return result, nil
}

// decodeJSON decodes the response body when the content type or content
// shape indicates JSON.
func decodeJSON(contentType string, raw []byte) (any, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false
	}
	looksJSON := strings.Contains(contentType, "json") ||
		trimmed[0] == '{' || trimmed[0] == '['
	if !looksJSON {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}

// loadedCatalog pairs a compiled catalog with its source path.
type loadedCatalog struct {
	path string
	def  *enrich.EnrichedDefinition
}

// catalogs returns every successfully compiled catalog in scan order,
// triggering a directory scan on first use. Invalid definitions are logged
// and skipped; they never block the rest of the directory.
func (r *Registry) catalogs() []loadedCatalog {
	paths := r.scan()

	var loaded []loadedCatalog
	for _, path := range paths {
		def, err := r.loadFile(path)
		if err != nil {
			r.logger.Warn().Str("file", path).Str("error", err.Error()).Msg("skipping definition")
			continue
		}
		loaded = append(loaded, loadedCatalog{path: path, def: def})
	}
	return loaded
}

// scan lists the definition files in the configured directory, once per load
// generation.
func (r *Registry) scan() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return r.order
	}

	entries, err := os.ReadDir(r.opts.Dir)
	if err != nil {
		r.logger.Warn().Str("dir", r.opts.Dir).Str("error", err.Error()).Msg("failed to read definitions directory")
		r.loaded = true
		return nil
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if definition.IsCustomization(name) {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json", ".yaml", ".yml":
			paths = append(paths, filepath.Join(r.opts.Dir, name))
		}
	}

	r.order = paths
	r.loaded = true
	return paths
}

// loadFile compiles one definition file, deduplicating concurrent requests
// for the same path into a single compilation.
func (r *Registry) loadFile(path string) (*enrich.EnrichedDefinition, error) {
	r.mu.Lock()
	flight, ok := r.flights[path]
	if !ok {
		flight = &fileFlight{}
		r.flights[path] = flight
	}
	r.mu.Unlock()

	flight.once.Do(func() {
		flight.def, flight.err = r.compile(path)
	})
	return flight.def, flight.err
}

// compile parses, customizes, and enriches one definition file.
func (r *Registry) compile(path string) (*enrich.EnrichedDefinition, error) {
	parsed, err := definition.Parse(path, r.logger)
	if err != nil {
		return nil, err
	}

	custom, err := definition.LoadCustomization(path, r.logger)
	if err != nil {
		// A broken sidecar degrades to no customization rather than losing
		// the definition's tools.
		r.logger.Warn().Str("file", path).Str("error", err.Error()).Msg("ignoring unreadable customization")
		custom = &definition.CustomizationConfig{}
	}

	customizationPath := definition.CustomizationPath(path)
	if _, statErr := os.Stat(customizationPath); statErr != nil {
		customizationPath = ""
	}

	return r.enricher.Enrich(parsed, custom, path, customizationPath)
}

// findTool locates a tool by final name across catalogs in scan order.
func (r *Registry) findTool(name string) (*enrich.ToolDefinition, *enrich.EnrichedDefinition) {
	for _, loaded := range r.catalogs() {
		if tool := loaded.def.Tool(name); tool != nil {
			return tool, loaded.def
		}
	}
	return nil, nil
}
