package daemon

import (
	"strings"
	"testing"
)

func TestRenderUnit(t *testing.T) {
	unit := RenderUnit("/usr/local/bin/opticalign", "/etc/opticalign.json", "/run/opticalign.sock")

	want := "ExecStart=/usr/local/bin/opticalign daemon --config /etc/opticalign.json --daemon-socket /run/opticalign.sock\n"
	if !strings.Contains(unit, want) {
		t.Fatalf("unit does not start the daemon as expected:\n%s", unit)
	}
	if strings.Contains(unit, "/path/to/") {
		t.Fatalf("unit has unfilled placeholders:\n%s", unit)
	}
}
