package scenario_test

import (
	"os"
	"path/filepath"
	"testing"

	"evacsim/internal/scenario"

	"github.com/google/go-cmp/cmp"
)

func TestDefaults(t *testing.T) {
	got := scenario.Defaults()
	want := []scenario.Scenario{
		{Name: scenario.NoSupport, Commands: []string{}},
		{Name: scenario.StaffSupport, Commands: []string{scenario.EnableStaffCommand}},
		{Name: scenario.PassengerSupport, Commands: []string{scenario.EnablePassengerCommand}},
		{Name: scenario.AdaptiveSupport, Commands: []string{scenario.EnablePassengerCommand, scenario.EnableStaffCommand}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_JSONDetectedFromContent(t *testing.T) {
	data := []byte(`{"scenarios":[{"name":"a","commands":["x","y"]}]}`)
	got, err := scenario.Parse(data, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff([]string{"x", "y"}, got[0].Commands); diff != "" {
		t.Errorf("commands mismatch:\n%s", diff)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":     "scenarios: []",
		"no name":   "scenarios:\n  - commands: [setup]",
		"duplicate": "scenarios:\n  - name: a\n  - name: a",
		"bad yaml":  "scenarios: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := scenario.Parse([]byte(data), ".yaml"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fall.yml")
	data := "scenarios:\n  - name: fall-360\n    commands:\n      - set FALL_LENGTH 360\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := scenario.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if diff := cmp.Diff([]string{"fall-360"}, scenario.Names(got)); diff != "" {
		t.Errorf("names mismatch:\n%s", diff)
	}
}

func TestSelect_PreservesRequestedOrder(t *testing.T) {
	got, err := scenario.Select(scenario.Defaults(), []string{scenario.AdaptiveSupport, scenario.NoSupport})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	want := []string{scenario.AdaptiveSupport, scenario.NoSupport}
	if diff := cmp.Diff(want, scenario.Names(got)); diff != "" {
		t.Errorf("order mismatch:\n%s", diff)
	}
	if _, err := scenario.Select(scenario.Defaults(), []string{"robot-only"}); err == nil {
		t.Error("expected error for unknown scenario")
	}
}
