package schema

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

// Supported MTConnectDevices schema versions.
var supportedVersions = map[string]bool{
	"1.1": true,
	"1.2": true,
	"1.3": true,
}

// Matches the version suffix of the MTConnectDevices namespace, e.g.
// xmlns="urn:mtconnect.org:MTConnectDevices:1.3".
var versionRe = regexp.MustCompile(`MTConnectDevices\b[^>]*xmlns(?::\w+)?="[^"]*MTConnectDevices:(\d+\.\d+)"`)

// Runner executes the external XSD validator. The default implementation
// shells out; tests substitute their own.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// Validator checks raw device XML against the MTConnect XSD using an
// external validator process (xmllint by default).
type Validator struct {
	Command string // validator binary, e.g. "xmllint"
	XSDFile string
	Runner  Runner
	Log     zerolog.Logger
}

// ValidateXML rejects a device description when no namespace version is
// extractable, the version is unsupported, or the validator exits
// non-zero. The XML is passed to the validator through a temp file;
// failure to create one is itself a rejection.
func (v *Validator) ValidateXML(ctx context.Context, deviceXML string) error {
	version := ExtractVersion(deviceXML)
	if version == "" {
		return fmt.Errorf("device xml: no MTConnectDevices namespace version found")
	}
	if !supportedVersions[version] {
		return fmt.Errorf("device xml: unsupported schema version %s", version)
	}

	tmp, err := os.CreateTemp("", "mtcagent-devices-*.xml")
	if err != nil {
		return fmt.Errorf("device xml: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(deviceXML); err != nil {
		tmp.Close()
		return fmt.Errorf("device xml: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("device xml: close temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := v.Runner.Run(ctx, v.Command, "--noout", "--schema", v.XSDFile, tmp.Name()); err != nil {
		return fmt.Errorf("device xml: validator failed: %w", err)
	}
	v.Log.Info().
		Str("version", version).
		Dur("elapsed_ms", time.Since(start)).
		Msg("device xml validated")
	return nil
}

// ExtractVersion pulls the schema version out of the MTConnectDevices
// namespace declaration, or returns "" if none is present.
func ExtractVersion(deviceXML string) string {
	m := versionRe.FindStringSubmatch(deviceXML)
	if m == nil {
		return ""
	}
	return m[1]
}
