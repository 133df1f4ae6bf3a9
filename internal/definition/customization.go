package definition

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/apifoundry/apibridge/internal/common"
)

// CustomizationSuffix is the sidecar suffix appended to a definition file's
// base name, e.g. petstore.json -> petstore.custom.yaml.
const CustomizationSuffix = ".custom.yaml"

// CustomizationConfig holds per-definition overrides loaded from the sidecar.
type CustomizationConfig struct {
	ToolAliases             map[string]string        `json:"toolAliases,omitempty"`
	PredefinedParameters    PredefinedParameters     `json:"predefinedParameters,omitempty"`
	AuthenticationOverrides []AuthenticationOverride `json:"authenticationOverrides,omitempty"`
}

// PredefinedParameters carries default argument values, globally and per tool.
type PredefinedParameters struct {
	Global    map[string]any            `json:"global,omitempty"`
	Endpoints map[string]map[string]any `json:"endpoints,omitempty"`
}

// AuthenticationOverride assigns credentials to one tool or, with endpoint
// "*", to every tool in the catalog.
type AuthenticationOverride struct {
	Endpoint    string         `json:"endpoint"`
	Credentials map[string]any `json:"credentials"`
}

// IsEmpty reports whether no customization sections are present.
func (c *CustomizationConfig) IsEmpty() bool {
	return len(c.ToolAliases) == 0 &&
		len(c.PredefinedParameters.Global) == 0 &&
		len(c.PredefinedParameters.Endpoints) == 0 &&
		len(c.AuthenticationOverrides) == 0
}

// CustomizationPath derives the sidecar path for a definition file.
func CustomizationPath(definitionPath string) string {
	base := definitionPath
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		if strings.HasSuffix(base, ext) {
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	return base + CustomizationSuffix
}

// IsCustomization reports whether a file name is a customization sidecar.
func IsCustomization(name string) bool {
	return strings.HasSuffix(name, CustomizationSuffix)
}

// LoadCustomization loads and validates the sidecar for a definition file.
// An absent sidecar is not an error and yields an empty configuration.
// Malformed entries are discarded with a warning rather than failing the
// whole load. After validation, ${NAME} placeholders in every string value
// under predefinedParameters and authenticationOverrides are replaced with
// the corresponding environment value; unresolved placeholders stay verbatim.
func LoadCustomization(definitionPath string, logger *common.Logger) (*CustomizationConfig, error) {
	path := CustomizationPath(definitionPath)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &CustomizationConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read customization %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse customization %s: %w", path, err)
	}

	cfg := &CustomizationConfig{}
	cfg.ToolAliases = parseAliases(raw["toolAliases"], path, logger)
	cfg.PredefinedParameters = parsePredefined(raw["predefinedParameters"], path, logger)
	cfg.AuthenticationOverrides = parseAuthOverrides(raw["authenticationOverrides"], path, logger)

	cfg.PredefinedParameters.Global = expandEnvMap(cfg.PredefinedParameters.Global)
	for tool, params := range cfg.PredefinedParameters.Endpoints {
		cfg.PredefinedParameters.Endpoints[tool] = expandEnvMap(params)
	}
	for i := range cfg.AuthenticationOverrides {
		cfg.AuthenticationOverrides[i].Credentials = expandEnvMap(cfg.AuthenticationOverrides[i].Credentials)
	}

	return cfg, nil
}

// parseAliases validates the toolAliases section: string -> string only.
func parseAliases(section any, path string, logger *common.Logger) map[string]string {
	entries, ok := section.(map[string]any)
	if !ok {
		if section != nil {
			logger.Warn().Str("path", path).Msg("toolAliases is not a map, discarding section")
		}
		return nil
	}
	aliases := map[string]string{}
	for name, v := range entries {
		alias, ok := v.(string)
		if !ok || alias == "" {
			logger.Warn().Str("path", path).Str("tool", name).Msg("discarding non-string tool alias")
			continue
		}
		aliases[name] = alias
	}
	return aliases
}

// parsePredefined validates the predefinedParameters section: a "global" map
// plus an "endpoints" map of per-tool maps.
func parsePredefined(section any, path string, logger *common.Logger) PredefinedParameters {
	pp := PredefinedParameters{}
	entries, ok := section.(map[string]any)
	if !ok {
		if section != nil {
			logger.Warn().Str("path", path).Msg("predefinedParameters is not a map, discarding section")
		}
		return pp
	}

	if global, ok := entries["global"].(map[string]any); ok {
		pp.Global = global
	} else if entries["global"] != nil {
		logger.Warn().Str("path", path).Msg("predefinedParameters.global is not a map, discarding")
	}

	if endpoints, ok := entries["endpoints"].(map[string]any); ok {
		pp.Endpoints = map[string]map[string]any{}
		for tool, v := range endpoints {
			params, ok := v.(map[string]any)
			if !ok {
				logger.Warn().Str("path", path).Str("tool", tool).Msg("discarding non-map endpoint parameters")
				continue
			}
			pp.Endpoints[tool] = params
		}
	} else if entries["endpoints"] != nil {
		logger.Warn().Str("path", path).Msg("predefinedParameters.endpoints is not a map, discarding")
	}

	return pp
}

// parseAuthOverrides validates the authenticationOverrides section: an
// ordered list of {endpoint, credentials} entries.
func parseAuthOverrides(section any, path string, logger *common.Logger) []AuthenticationOverride {
	entries, ok := section.([]any)
	if !ok {
		if section != nil {
			logger.Warn().Str("path", path).Msg("authenticationOverrides is not a list, discarding section")
		}
		return nil
	}

	var overrides []AuthenticationOverride
	for i, v := range entries {
		entry, ok := v.(map[string]any)
		if !ok {
			logger.Warn().Str("path", path).Int("index", i).Msg("discarding non-map authentication override")
			continue
		}
		endpoint, _ := entry["endpoint"].(string)
		credentials, _ := entry["credentials"].(map[string]any)
		if endpoint == "" || len(credentials) == 0 {
			logger.Warn().Str("path", path).Int("index", i).Msg("discarding authentication override without endpoint or credentials")
			continue
		}
		overrides = append(overrides, AuthenticationOverride{
			Endpoint:    endpoint,
			Credentials: credentials,
		})
	}
	return overrides
}

// envPlaceholder matches ${NAME} environment placeholders.
var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvMap recursively substitutes ${NAME} placeholders in every string
// value. Placeholders whose variable is unset are left verbatim.
func expandEnvMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = expandEnvValue(v)
	}
	return out
}

func expandEnvValue(v any) any {
	switch val := v.(type) {
	case string:
		return envPlaceholder.ReplaceAllStringFunc(val, func(match string) string {
			name := envPlaceholder.FindStringSubmatch(match)[1]
			if resolved, ok := os.LookupEnv(name); ok {
				return resolved
			}
			return match
		})
	case map[string]any:
		return expandEnvMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandEnvValue(item)
		}
		return out
	default:
		return v
	}
}
