package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Set required env vars for all subtests
	cleanup := setEnvs(t, map[string]string{
		"DEVICES_FILE": "devices.json",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":7000" {
			t.Errorf("HTTPAddr = %q, want :7000", cfg.HTTPAddr)
		}
		if cfg.BufferSize != 10000 {
			t.Errorf("BufferSize = %d, want 10000", cfg.BufferSize)
		}
		if cfg.AssetBufferSize != 1024 {
			t.Errorf("AssetBufferSize = %d, want 1024", cfg.AssetBufferSize)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.MQTTClientID != "mtcagent" {
			t.Errorf("MQTTClientID = %q, want mtcagent", cfg.MQTTClientID)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:     "nonexistent.env",
			HTTPAddr:    ":9090",
			LogLevel:    "debug",
			DevicesFile: "other.json",
			Adapters:    "mill-1:7878",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.DevicesFile != "other.json" {
			t.Errorf("DevicesFile = %q, want other.json", cfg.DevicesFile)
		}
		if cfg.Adapters != "mill-1:7878" {
			t.Errorf("Adapters = %q, want mill-1:7878", cfg.Adapters)
		}
	})

	t.Run("rejects_non_positive_buffer", func(t *testing.T) {
		inner := setEnvs(t, map[string]string{"BUFFER_SIZE": "0"})
		defer inner()
		if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
			t.Error("expected error for BUFFER_SIZE=0")
		}
	})
}

func TestLoadMissingRequired(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{"DEVICES_FILE": ""})
	defer cleanup()
	os.Unsetenv("DEVICES_FILE")

	_, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err == nil {
		t.Error("expected error when DEVICES_FILE is missing")
	}
}

func TestAdapterSpecs(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    []AdapterSpec
		wantErr bool
	}{
		{
			name: "single_bare",
			raw:  "mill-1:7878",
			want: []AdapterSpec{{Addr: "mill-1:7878"}},
		},
		{
			name: "named_devices",
			raw:  "mill-1:7878@VMC-3Axis, lathe-2:7878@Lathe",
			want: []AdapterSpec{
				{Addr: "mill-1:7878", DeviceName: "VMC-3Axis"},
				{Addr: "lathe-2:7878", DeviceName: "Lathe"},
			},
		},
		{
			name: "empty_list",
			raw:  "",
			want: nil,
		},
		{
			name:    "missing_port",
			raw:     "mill-1",
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Adapters: tc.raw}
			specs, err := cfg.AdapterSpecs()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("AdapterSpecs: %v", err)
			}
			if len(specs) != len(tc.want) {
				t.Fatalf("got %d specs, want %d", len(specs), len(tc.want))
			}
			for i := range specs {
				if specs[i] != tc.want[i] {
					t.Errorf("spec[%d] = %+v, want %+v", i, specs[i], tc.want[i])
				}
			}
		})
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
