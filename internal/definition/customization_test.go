package definition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apifoundry/apibridge/internal/common"
)

func writeSidecar(t *testing.T, definitionPath, content string) {
	t.Helper()
	if err := os.WriteFile(CustomizationPath(definitionPath), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// --- CustomizationPath Tests ---

func TestCustomizationPath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"defs/museum.json", "defs/museum.custom.yaml"},
		{"defs/museum.yaml", "defs/museum.custom.yaml"},
		{"defs/museum.yml", "defs/museum.custom.yaml"},
		{"defs/museum", "defs/museum.custom.yaml"},
	}
	for _, tc := range cases {
		if got := CustomizationPath(tc.in); got != tc.want {
			t.Errorf("CustomizationPath(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestIsCustomization(t *testing.T) {
	if !IsCustomization("museum.custom.yaml") {
		t.Error("expected sidecar to be recognized")
	}
	if IsCustomization("museum.yaml") {
		t.Error("expected plain definition not to be recognized as sidecar")
	}
}

// --- LoadCustomization Tests ---

func TestLoadCustomization_Absent(t *testing.T) {
	defPath := filepath.Join(t.TempDir(), "museum.json")

	cfg, err := LoadCustomization(defPath, common.NewSilentLogger())
	if err != nil {
		t.Fatalf("absent sidecar must not error: %v", err)
	}
	if !cfg.IsEmpty() {
		t.Error("expected empty config for absent sidecar")
	}
}

func TestLoadCustomization_Full(t *testing.T) {
	defPath := filepath.Join(t.TempDir(), "museum.json")
	writeSidecar(t, defPath, `
toolAliases:
  get-museum-hours: opening-hours
predefinedParameters:
  global:
    page: 1
  endpoints:
    opening-hours:
      limit: 10
authenticationOverrides:
  - endpoint: "*"
    credentials:
      username: admin
      password: hunter2
`)

	cfg, err := LoadCustomization(defPath, common.NewSilentLogger())
	if err != nil {
		t.Fatalf("LoadCustomization failed: %v", err)
	}

	if cfg.ToolAliases["get-museum-hours"] != "opening-hours" {
		t.Errorf("alias not loaded: %v", cfg.ToolAliases)
	}
	if cfg.PredefinedParameters.Global["page"] != 1 {
		t.Errorf("global predefined not loaded: %v", cfg.PredefinedParameters.Global)
	}
	if cfg.PredefinedParameters.Endpoints["opening-hours"]["limit"] != 10 {
		t.Errorf("per-tool predefined not loaded: %v", cfg.PredefinedParameters.Endpoints)
	}
	if len(cfg.AuthenticationOverrides) != 1 || cfg.AuthenticationOverrides[0].Endpoint != "*" {
		t.Fatalf("auth override not loaded: %v", cfg.AuthenticationOverrides)
	}
}

func TestLoadCustomization_EnvSubstitution(t *testing.T) {
	t.Setenv("MUSEUM_TOKEN", "tok-from-env")

	defPath := filepath.Join(t.TempDir(), "museum.json")
	writeSidecar(t, defPath, `
authenticationOverrides:
  - endpoint: opening-hours
    credentials:
      token: "${MUSEUM_TOKEN}"
      other: "${UNSET_PLACEHOLDER_XYZ}"
`)

	cfg, err := LoadCustomization(defPath, common.NewSilentLogger())
	if err != nil {
		t.Fatal(err)
	}

	creds := cfg.AuthenticationOverrides[0].Credentials
	if creds["token"] != "tok-from-env" {
		t.Errorf("expected env value substituted, got %v", creds["token"])
	}
	// Unresolved placeholders stay verbatim rather than becoming empty.
	if creds["other"] != "${UNSET_PLACEHOLDER_XYZ}" {
		t.Errorf("expected unresolved placeholder verbatim, got %v", creds["other"])
	}
}

func TestLoadCustomization_MalformedEntriesDiscarded(t *testing.T) {
	defPath := filepath.Join(t.TempDir(), "museum.json")
	writeSidecar(t, defPath, `
toolAliases:
  get-museum-hours: 42
  get-tickets: buy-tickets
authenticationOverrides:
  - endpoint: ""
    credentials:
      token: abc
  - endpoint: buy-tickets
    credentials:
      token: xyz
`)

	cfg, err := LoadCustomization(defPath, common.NewSilentLogger())
	if err != nil {
		t.Fatalf("malformed entries must not fail the load: %v", err)
	}

	if _, ok := cfg.ToolAliases["get-museum-hours"]; ok {
		t.Error("expected non-string alias discarded")
	}
	if cfg.ToolAliases["get-tickets"] != "buy-tickets" {
		t.Error("expected valid alias kept")
	}
	if len(cfg.AuthenticationOverrides) != 1 || cfg.AuthenticationOverrides[0].Endpoint != "buy-tickets" {
		t.Errorf("expected only the valid override kept, got %v", cfg.AuthenticationOverrides)
	}
}

func TestLoadCustomization_UnparseableYAML(t *testing.T) {
	defPath := filepath.Join(t.TempDir(), "museum.json")
	writeSidecar(t, defPath, "toolAliases: [unclosed")

	_, err := LoadCustomization(defPath, common.NewSilentLogger())
	if err == nil {
		t.Fatal("expected error for unparseable sidecar")
	}
}
