package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	old := Version
	Version = "1.2.3"
	t.Cleanup(func() { Version = old })

	if got := String(); !strings.HasPrefix(got, "1.2.3 (") {
		t.Errorf("String() = %q", got)
	}
	if got := Get(); got.Version != "1.2.3" || got.GoVersion == "" {
		t.Errorf("Get() = %+v", got)
	}
}
