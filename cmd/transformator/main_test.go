package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"transformator/rpcerr"
	"transformator/server"
)

func startStub(t *testing.T) int {
	t.Helper()
	svr := server.NewServer()
	server.RegisterDefaults(svr)
	if err := svr.Listen("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	go svr.Serve(context.Background())
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr.Endpoint().Port
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(strings.NewReader(stdin))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRenderFromStdin(t *testing.T) {
	port := startStub(t)
	data := writeFile(t, "data.yaml", "name: Peter\n")

	out, err := runCLI(t, "span\n  | Hi #{name}!\n",
		"--host", "127.0.0.1", "--port", strconv.Itoa(port), "-e", "render-template", "-d", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "<span>Hi Peter!</span>" {
		t.Fatalf("expect rendered template verbatim, got %q", out)
	}
}

func TestRenderFromFile(t *testing.T) {
	port := startStub(t)
	input := writeFile(t, "page.pug", "p\n  | #{greeting}\n")
	data := writeFile(t, "data.toml", "greeting = \"hello\"\n")

	out, err := runCLI(t, "", "--connect", "127.0.0.1:"+strconv.Itoa(port), "-e", "render-template", "-d", data, input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "<p>hello</p>" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestList(t *testing.T) {
	port := startStub(t)

	out, err := runCLI(t, "", "--port", strconv.Itoa(port), "--list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, op := range []string{"Operation", "echo", "render-template", "minify-markup"} {
		if !strings.Contains(out, op) {
			t.Fatalf("expect %q in table, got:\n%s", op, out)
		}
	}
}

func TestServiceErrorIsReturned(t *testing.T) {
	port := startStub(t)

	_, err := runCLI(t, "x", "--port", strconv.Itoa(port), "-e", "compile-script")
	if !errors.Is(err, rpcerr.ErrService) || !strings.Contains(err.Error(), "unknown operation") {
		t.Fatalf("expect service error, got %v", err)
	}
}

func TestArgumentErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"no engine", []string{"--port", "1"}},
		{"host without port", []string{"--host", "example.org", "-e", "echo"}},
		{"no service", []string{"-e", "echo"}},
		{"bad codec", []string{"--port", "1", "-e", "echo", "--codec", "xml"}},
	}
	for _, tc := range cases {
		if _, err := runCLI(t, "x", tc.args...); err == nil {
			t.Errorf("%s: expect an error", tc.name)
		}
	}
}

func TestConnectString(t *testing.T) {
	cases := []struct {
		opts options
		want string
	}{
		{options{socket: "/run/t.sock", port: 1, connect: "9"}, "/run/t.sock"},
		{options{port: 4000}, "localhost:4000"},
		{options{host: "10.0.0.5", port: 4000, connect: "9"}, "10.0.0.5:4000"},
		{options{connect: "9"}, "9"},
		{options{}, "from-config"},
	}
	for _, tc := range cases {
		got, err := connectString(&tc.opts, "from-config")
		if err != nil {
			t.Fatalf("%+v: %v", tc.opts, err)
		}
		if got != tc.want {
			t.Fatalf("%+v: expect %q, got %q", tc.opts, tc.want, got)
		}
	}
}

func TestLoadData(t *testing.T) {
	for name, content := range map[string]string{
		"d.json": `{"name": "Peter", "n": 2}`,
		"d.yml":  "name: Peter\nn: 2\n",
		"d.toml": "name = \"Peter\"\nn = 2\n",
	} {
		data, err := loadData(writeFile(t, name, content))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if data["name"] != "Peter" {
			t.Fatalf("%s: unexpected data %v", name, data)
		}
	}

	if _, err := loadData(writeFile(t, "d.ini", "name=Peter")); err == nil {
		t.Fatal("expect error for unsupported format")
	}
	if data, err := loadData(""); err != nil || data != nil {
		t.Fatalf("expect no data, got %v, %v", data, err)
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	if err := printResult(&buf, "<p>x</p>"); err != nil || buf.String() != "<p>x</p>" {
		t.Fatalf("expect verbatim string, got %q, %v", buf.String(), err)
	}

	buf.Reset()
	if err := printResult(&buf, map[any]any{"a": []any{uint64(1), "b"}}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{\n  \"a\": [\n    1,\n    \"b\"\n  ]\n}\n" {
		t.Fatalf("unexpected JSON output %q", buf.String())
	}
}

func TestRenderOperations(t *testing.T) {
	out := renderOperations([]any{"echo", "list"})
	if !strings.Contains(out, "Operation") || strings.Contains(out, "OPERATION") {
		t.Fatalf("expect header as written, got:\n%s", out)
	}

	out = renderOperations(map[any]any{"render-template": "pug", 7: "numbered"})
	for _, want := range []string{"Description", "render-template", "pug", "7", "numbered"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expect %q in table, got:\n%s", want, out)
		}
	}
}

func TestReadInputRefusesTerminal(t *testing.T) {
	tty, err := os.Open("/dev/tty")
	if err != nil {
		t.Skip("no controlling terminal")
	}
	defer tty.Close()
	if !isTerminal(tty) {
		t.Skip("/dev/tty is not a terminal here")
	}
	if _, err := readInput(nil, tty); !errors.Is(err, errTerminalInput) {
		t.Fatalf("expect terminal refusal, got %v", err)
	}
}
