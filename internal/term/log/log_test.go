package log

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func captureDiagnostics(t *testing.T) *bytes.Buffer {
	t.Helper()
	b := &bytes.Buffer{}
	prevWriter, prevNoColor := DiagnosticWriter, color.NoColor
	DiagnosticWriter = b
	color.NoColor = true
	t.Cleanup(func() {
		DiagnosticWriter = prevWriter
		color.NoColor = prevNoColor
	})
	return b
}

func TestSuccessf(t *testing.T) {
	b := captureDiagnostics(t)

	Successf("synthesized %d models\n", 2)

	require.Equal(t, "✔ synthesized 2 models\n", b.String())
}

func TestErrorln(t *testing.T) {
	b := captureDiagnostics(t)

	Errorln("missing ", "PROJECT_BUCKET")

	require.Equal(t, "✘ missing PROJECT_BUCKET\n", b.String())
}

func TestWarningf(t *testing.T) {
	b := captureDiagnostics(t)

	Warningf("group %s is shared\n", "g")

	require.Equal(t, "Note: group g is shared\n", b.String())
}

func TestHeaderln(t *testing.T) {
	b := captureDiagnostics(t)

	Headerln("Deploy")

	require.Equal(t, "=== Deploy ===\n", b.String())
}

func TestDebugf(t *testing.T) {
	b := captureDiagnostics(t)

	Debugf("$ cdk %s\n", "diff")

	require.Equal(t, "$ cdk diff\n", b.String())
}
