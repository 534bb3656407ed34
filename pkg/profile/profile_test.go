package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write profile: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeProfile(t, `
name: cryostat-bench
devices:
  - name: host-cpu
    kind: cpu
    args:
      interval: 500ms
  - name: dmm
    kind: serial
    args:
      address: 10.0.0.40:5025
      setup:
        - "CONF:VOLT:DC"
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Name != "cryostat-bench" {
		t.Errorf("Unexpected profile name: %s", p.Name)
	}
	if len(p.Devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(p.Devices))
	}
	if p.Devices[0].Args["interval"] != "500ms" {
		t.Errorf("Unexpected args: %+v", p.Devices[0].Args)
	}
	if p.Devices[1].Kind != "serial" {
		t.Errorf("Unexpected kind: %s", p.Devices[1].Kind)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{
			name: "valid",
			profile: Profile{Devices: []DeviceSpec{
				{Name: "a", Kind: "cpu"},
				{Name: "b", Kind: "serial"},
			}},
		},
		{
			name:    "missing name",
			profile: Profile{Devices: []DeviceSpec{{Kind: "cpu"}}},
			wantErr: true,
		},
		{
			name:    "missing kind",
			profile: Profile{Devices: []DeviceSpec{{Name: "a"}}},
			wantErr: true,
		},
		{
			name: "duplicate name",
			profile: Profile{Devices: []DeviceSpec{
				{Name: "a", Kind: "cpu"},
				{Name: "a", Kind: "serial"},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	p := &Profile{
		Name: "bench",
		Devices: []DeviceSpec{
			{Name: "host-cpu", Kind: "cpu", Args: map[string]interface{}{"interval": "1s"}},
		},
	}

	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != "bench" || len(loaded.Devices) != 1 || loaded.Devices[0].Name != "host-cpu" {
		t.Errorf("Round trip mismatch: %+v", loaded)
	}
}
