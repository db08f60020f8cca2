package version

import (
	"bytes"
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	if v == "" || strings.ContainsAny(v, " \n") {
		t.Errorf("unexpected version %q", v)
	}
}

func TestBuildInfoString(t *testing.T) {
	tests := []struct {
		info BuildInfo
		want string
	}{
		{BuildInfo{Version: "1.2.3", GitCommit: "unknown"}, "1.2.3"},
		{BuildInfo{Version: "1.2.3"}, "1.2.3"},
		{BuildInfo{Version: "1.2.3", GitCommit: "abc123"}, "1.2.3+abc123"},
	}
	for _, tt := range tests {
		if got := tt.info.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFprint(t *testing.T) {
	var buf bytes.Buffer
	Fprint(&buf, BuildInfo{Version: "1.0.0", GitCommit: "deadbee", BuildTime: "now", GoVersion: "go1.24", Platform: "linux/amd64"})

	for _, want := range []string{"Version:    1.0.0", "Git Commit: deadbee", "Platform:   linux/amd64"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}
