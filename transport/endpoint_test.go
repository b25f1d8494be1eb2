package transport

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"transformator/rpcerr"
)

func TestResolveIn(t *testing.T) {
	cases := []struct {
		in   string
		want Endpoint
	}{
		{"12345", TCP("localhost", 12345)},
		{"./run/sock", Unix("/srv/app/run/sock")},
		{"run/sock", Unix("/srv/app/run/sock")},
		{"/var/run/transformator.sock", Unix("/var/run/transformator.sock")},
		{"10.0.0.5:9000", TCP("10.0.0.5", 9000)},
		{"example.org:80", TCP("example.org", 80)},
		{":7000", TCP("localhost", 7000)},
		{"[::1]:7000", TCP("::1", 7000)},
		{"::1:9000", TCP("::1", 9000)},
		{"localhost:http", TCP("localhost", 80)},
		{"unix/:/tmp/x.sock", Unix("/tmp/x.sock")},
		{"unix/:run/x.sock", Unix("/srv/app/run/x.sock")},
	}
	for _, tc := range cases {
		got, err := ResolveIn(tc.in, "/srv/app")
		if err != nil {
			t.Errorf("ResolveIn(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ResolveIn(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestResolveInRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "host:", "host:0", "99999", "host:70000"} {
		if _, err := ResolveIn(in, "/srv/app"); !errors.Is(err, rpcerr.ErrConfig) {
			t.Errorf("ResolveIn(%q): expect config error, got %v", in, err)
		}
	}
}

// Relative paths are joined with the working directory current at Resolve time.
func TestResolveUsesCurrentWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	ep, err := Resolve("transformator.sock")
	if err != nil {
		t.Fatal(err)
	}
	cwd, _ := os.Getwd()
	if ep.Path != filepath.Join(cwd, "transformator.sock") {
		t.Fatalf("expect socket under %s, got %s", cwd, ep.Path)
	}
	if !ep.IsUnix() {
		t.Fatalf("expect unix endpoint")
	}
}

func TestEndpointAddress(t *testing.T) {
	if got := TCP("localhost", 12345).Address(); got != "localhost:12345" {
		t.Fatalf("unexpected tcp address %q", got)
	}
	if got := Unix("/tmp/x.sock").Address(); got != "/tmp/x.sock" {
		t.Fatalf("unexpected unix address %q", got)
	}
}

func TestResolveListenAllowsAnyPort(t *testing.T) {
	ep, err := ResolveListen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if ep != TCP("127.0.0.1", 0) {
		t.Fatalf("unexpected endpoint %#v", ep)
	}
	if _, err := ResolveListen("127.0.0.1:70000"); !errors.Is(err, rpcerr.ErrConfig) {
		t.Fatalf("expect config error, got %v", err)
	}
}
