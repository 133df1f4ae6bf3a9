// Package enrich compiles a parsed definition and its customization into a
// cacheable tool catalog.
package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/apifoundry/apibridge/internal/auth"
	"github.com/apifoundry/apibridge/internal/common"
	"github.com/apifoundry/apibridge/internal/definition"
	"github.com/apifoundry/apibridge/internal/naming"
	"github.com/apifoundry/apibridge/internal/schema"
)

// ToolDefinition is one compiled, callable tool.
type ToolDefinition struct {
	Name             string                   `json:"name"`
	Description      string                   `json:"description,omitempty"`
	Method           string                   `json:"method"`
	Path             string                   `json:"path"`
	BaseURL          string                   `json:"baseUrl,omitempty"`
	InputSchema      *schema.Schema           `json:"inputSchema"`
	Mapping          *schema.ParameterMapping `json:"parameterMapping"`
	Authentication   *auth.Requirement        `json:"authentication,omitempty"`
	PredefinedParams map[string]any           `json:"predefinedParams,omitempty"`
	Security         []map[string][]string    `json:"security,omitempty"`
}

// Metadata records where a catalog came from.
type Metadata struct {
	SourcePath        string    `json:"sourcePath"`
	CustomizationPath string    `json:"customizationPath,omitempty"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

// EnrichedDefinition is the compiled catalog for one definition file, keyed
// by the combined hash of source and customization content.
type EnrichedDefinition struct {
	Hash      string                      `json:"hash"`
	ServerURL string                      `json:"serverUrl,omitempty"`
	Security  []definition.SecurityScheme `json:"security,omitempty"`
	Tools     []ToolDefinition            `json:"tools"`
	Metadata  Metadata                    `json:"metadata"`
}

// Tool returns the tool with the given final name, or nil.
func (d *EnrichedDefinition) Tool(name string) *ToolDefinition {
	for i := range d.Tools {
		if d.Tools[i].Name == name {
			return &d.Tools[i]
		}
	}
	return nil
}

// Enricher builds EnrichedDefinitions, consulting a Store keyed by combined
// hash. A nil Store disables caching entirely.
type Enricher struct {
	store  Store
	force  bool
	logger *common.Logger
}

// NewEnricher creates an Enricher. force bypasses cache reads (writes still
// happen) so a caller can demand regeneration.
func NewEnricher(store Store, force bool, logger *common.Logger) *Enricher {
	return &Enricher{store: store, force: force, logger: logger}
}

// CombinedHash derives the catalog cache key from the source content hash
// and a canonical (key-sorted) serialization of the customization. Stable
// regardless of map-key ordering in the sidecar; changes exactly when either
// input's content changes.
func CombinedHash(sourceHash string, custom *definition.CustomizationConfig) (string, error) {
	canonical, err := json.Marshal(custom)
	if err != nil {
		return "", fmt.Errorf("failed to serialize customization: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(sourceHash))
	h.Write([]byte("\n"))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Enrich compiles the catalog for one parsed definition. A cached catalog is
// reused when the combined hash matches and the recorded source (and
// customization, if any) files still exist; existence is the entire validity
// check. Cache write failures are logged and swallowed, never fatal.
func (e *Enricher) Enrich(parsed *definition.ParsedDefinition, custom *definition.CustomizationConfig, sourcePath, customizationPath string) (*EnrichedDefinition, error) {
	hash, err := CombinedHash(parsed.Hash, custom)
	if err != nil {
		return nil, err
	}

	if e.store != nil && !e.force {
		if cached, ok := e.store.Load(hash); ok && e.cacheValid(cached) {
			e.logger.Debug().Str("source", sourcePath).Str("hash", hash).Msg("catalog cache hit")
			return cached, nil
		}
	}

	enriched := e.build(parsed, custom, sourcePath, customizationPath, hash)

	if e.store != nil {
		if err := e.store.Save(enriched); err != nil {
			e.logger.Warn().Str("source", sourcePath).Str("error", err.Error()).Msg("failed to persist catalog cache")
		}
	}

	return enriched, nil
}

// cacheValid accepts a cached catalog when its recorded files still exist.
// No content re-hash or mtime check is performed; a replaced same-named file
// is served stale until its content changes the combined hash.
func (e *Enricher) cacheValid(cached *EnrichedDefinition) bool {
	if !fileExists(cached.Metadata.SourcePath) {
		return false
	}
	if cached.Metadata.CustomizationPath != "" && !fileExists(cached.Metadata.CustomizationPath) {
		return false
	}
	return true
}

// build produces a fresh EnrichedDefinition from the parsed model.
func (e *Enricher) build(parsed *definition.ParsedDefinition, custom *definition.CustomizationConfig, sourcePath, customizationPath, hash string) *EnrichedDefinition {
	serverURL := ""
	if len(parsed.Servers) > 0 {
		serverURL = parsed.Servers[0]
	}

	enriched := &EnrichedDefinition{
		Hash:      hash,
		ServerURL: serverURL,
		Security:  parsed.Security,
		Metadata: Metadata{
			SourcePath:        sourcePath,
			CustomizationPath: customizationPath,
			GeneratedAt:       time.Now().UTC(),
		},
	}

	index := map[string]int{}
	for _, op := range parsed.Paths {
		tool := e.buildTool(op, custom, serverURL)
		if at, dup := index[tool.Name]; dup {
			// Auto-generated names can collide; the operation appearing
			// last in iteration order wins.
			e.logger.Warn().
				Str("tool", tool.Name).
				Str("shadowed", enriched.Tools[at].Method+" "+enriched.Tools[at].Path).
				Str("winner", tool.Method+" "+tool.Path).
				Msg("duplicate tool name, later operation shadows earlier one")
			enriched.Tools[at] = tool
			continue
		}
		index[tool.Name] = len(enriched.Tools)
		enriched.Tools = append(enriched.Tools, tool)
	}

	return enriched
}

// buildTool compiles one operation into a ToolDefinition.
func (e *Enricher) buildTool(op definition.ParsedPath, custom *definition.CustomizationConfig, serverURL string) ToolDefinition {
	name := naming.ToolName(op.Method, op.Path, op.OperationID)
	name = naming.ApplyAlias(name, custom.ToolAliases)

	perTool := custom.PredefinedParameters.Endpoints[name]
	input, mapping := schema.BuildInput(op, custom.PredefinedParameters.Global, perTool)

	description := op.Description
	if description == "" {
		description = op.Summary
	}

	tool := ToolDefinition{
		Name:             name,
		Description:      description,
		Method:           op.Method,
		Path:             op.Path,
		BaseURL:          serverURL,
		InputSchema:      input,
		Mapping:          mapping,
		PredefinedParams: mergePredefined(custom.PredefinedParameters.Global, perTool),
		Security:         op.Security,
	}

	if req := resolveAuthentication(name, custom.AuthenticationOverrides); req != nil {
		tool.Authentication = req
	}

	return tool
}

// mergePredefined merges global and per-tool predefined parameters, per-tool
// values winning on key collision.
func mergePredefined(global, perTool map[string]any) map[string]any {
	if len(global) == 0 && len(perTool) == 0 {
		return nil
	}
	merged := make(map[string]any, len(global)+len(perTool))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range perTool {
		merged[k] = v
	}
	return merged
}

// resolveAuthentication picks the first override whose endpoint pattern is
// "*" or exactly matches the tool name, inferring the type from the
// credential shape.
func resolveAuthentication(toolName string, overrides []definition.AuthenticationOverride) *auth.Requirement {
	for _, override := range overrides {
		if override.Endpoint != "*" && override.Endpoint != toolName {
			continue
		}
		return &auth.Requirement{
			Type:        auth.InferType(override.Credentials),
			Credentials: override.Credentials,
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
