package schema

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const devicesXML11 = `<?xml version="1.0"?>
<MTConnectDevices xmlns="urn:mtconnect.org:MTConnectDevices:1.1"><Devices/></MTConnectDevices>`

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want string
	}{
		{name: "v11", xml: devicesXML11, want: "1.1"},
		{name: "v13", xml: `<MTConnectDevices xmlns="urn:mtconnect.org:MTConnectDevices:1.3">`, want: "1.3"},
		{name: "prefixed", xml: `<m:MTConnectDevices xmlns:m="urn:mtconnect.org:MTConnectDevices:1.2">`, want: "1.2"},
		{name: "no_namespace", xml: `<MTConnectDevices>`, want: ""},
		{name: "wrong_root", xml: `<MTConnectStreams xmlns="urn:mtconnect.org:MTConnectStreams:1.3">`, want: ""},
		{name: "empty", xml: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractVersion(tt.xml); got != tt.want {
				t.Errorf("ExtractVersion = %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeRunner struct {
	err    error
	called bool
	args   []string
}

func (f *fakeRunner) Run(_ context.Context, _ string, args ...string) error {
	f.called = true
	f.args = args
	return f.err
}

func TestValidateXML(t *testing.T) {
	t.Run("accepts_supported_version", func(t *testing.T) {
		r := &fakeRunner{}
		v := &Validator{Command: "xmllint", XSDFile: "devices.xsd", Runner: r, Log: zerolog.Nop()}
		if err := v.ValidateXML(context.Background(), devicesXML11); err != nil {
			t.Fatalf("ValidateXML: %v", err)
		}
		if !r.called {
			t.Fatal("validator process not invoked")
		}
		if r.args[0] != "--noout" || r.args[1] != "--schema" || r.args[2] != "devices.xsd" {
			t.Errorf("validator args = %v", r.args)
		}
	})

	t.Run("rejects_missing_version", func(t *testing.T) {
		r := &fakeRunner{}
		v := &Validator{Command: "xmllint", Runner: r, Log: zerolog.Nop()}
		err := v.ValidateXML(context.Background(), "<MTConnectDevices/>")
		if err == nil || !strings.Contains(err.Error(), "namespace version") {
			t.Fatalf("err = %v", err)
		}
		if r.called {
			t.Error("validator invoked despite missing version")
		}
	})

	t.Run("rejects_unsupported_version", func(t *testing.T) {
		r := &fakeRunner{}
		v := &Validator{Command: "xmllint", Runner: r, Log: zerolog.Nop()}
		xml := `<MTConnectDevices xmlns="urn:mtconnect.org:MTConnectDevices:2.0">`
		err := v.ValidateXML(context.Background(), xml)
		if err == nil || !strings.Contains(err.Error(), "unsupported schema version") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("rejects_validator_failure", func(t *testing.T) {
		r := &fakeRunner{err: errors.New("exit status 3")}
		v := &Validator{Command: "xmllint", Runner: r, Log: zerolog.Nop()}
		if err := v.ValidateXML(context.Background(), devicesXML11); err == nil {
			t.Fatal("want error on validator non-zero exit")
		}
	})
}
