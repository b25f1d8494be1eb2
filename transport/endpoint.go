package transport

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"transformator/rpcerr"
)

// DefaultHost is used when a connect string names only a port.
const DefaultHost = "localhost"

// Endpoint is a resolved connection target: either TCP host:port or a unix socket path.
// Exactly one addressing mode is active.
type Endpoint struct {
	Network string // "tcp" or "unix"
	Host    string // tcp only
	Port    int    // tcp only
	Path    string // unix only, always absolute
}

// TCP builds a TCP endpoint.
func TCP(host string, port int) Endpoint {
	return Endpoint{Network: "tcp", Host: host, Port: port}
}

// Unix builds a unix socket endpoint. path is used as given.
func Unix(path string) Endpoint {
	return Endpoint{Network: "unix", Path: path}
}

// IsUnix reports whether the endpoint is a local socket.
func (e Endpoint) IsUnix() bool {
	return e.Network == "unix"
}

// Address is the dial address for net.Dial(e.Network, e.Address()).
func (e Endpoint) Address() string {
	if e.IsUnix() {
		return e.Path
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String renders the endpoint back as a connect string Resolve accepts.
func (e Endpoint) String() string {
	return e.Address()
}

// Resolve parses a connect string, resolving relative socket paths against the
// current working directory at the time of the call.
//
//	"12345"          → tcp localhost:12345
//	"./run/sock"     → unix <cwd>/run/sock
//	"10.0.0.5:9000"  → tcp 10.0.0.5:9000
//	"::1:9000"       → tcp [::1]:9000
//	"localhost:http" → tcp localhost:80
//	"unix/:/tmp/s"   → unix /tmp/s
func Resolve(connect string) (Endpoint, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Endpoint{}, rpcerr.New(rpcerr.KindConfig, "resolve endpoint", err)
	}
	return ResolveIn(connect, cwd)
}

// ResolveIn is Resolve with an explicit working directory.
func ResolveIn(connect, cwd string) (Endpoint, error) {
	return resolve(connect, cwd, 1)
}

// ResolveListen is Resolve for the listening side: port 0 asks for any free port.
func ResolveListen(connect string) (Endpoint, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Endpoint{}, rpcerr.New(rpcerr.KindConfig, "resolve endpoint", err)
	}
	return resolve(connect, cwd, 0)
}

func resolve(connect, cwd string, minPort int) (Endpoint, error) {
	s := strings.TrimSpace(connect)
	if s == "" {
		return Endpoint{}, rpcerr.Newf(rpcerr.KindConfig, "resolve endpoint", "connect string is empty")
	}

	// No colon: bare port or socket path
	if !strings.Contains(s, ":") {
		if isDigits(s) {
			port, err := parsePort(s, minPort)
			if err != nil {
				return Endpoint{}, err
			}
			return TCP(DefaultHost, port), nil
		}
		if !filepath.IsAbs(s) {
			s = filepath.Join(cwd, s)
		}
		return Unix(filepath.Clean(s)), nil
	}

	// Colon: split at the last one. The right side is a port, a service name, or a
	// socket path ("unix/:/run/t.sock"); the left side is the host.
	i := strings.LastIndex(s, ":")
	host, rest := s[:i], s[i+1:]
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		host = DefaultHost
	}

	switch {
	case isDigits(rest):
		port, err := parsePort(rest, minPort)
		if err != nil {
			return Endpoint{}, err
		}
		return TCP(host, port), nil
	case rest == "":
		return Endpoint{}, rpcerr.Newf(rpcerr.KindConfig, "resolve endpoint", "%q has nothing after the colon", s)
	}
	if !strings.Contains(rest, "/") {
		if port, err := net.LookupPort("tcp", rest); err == nil {
			return TCP(host, port), nil
		}
	}
	if !filepath.IsAbs(rest) {
		rest = filepath.Join(cwd, rest)
	}
	return Unix(filepath.Clean(rest)), nil
}

func parsePort(s string, min int) (int, error) {
	if !isDigits(s) {
		return 0, rpcerr.Newf(rpcerr.KindConfig, "resolve endpoint", "port %q is not numeric", s)
	}
	port, err := strconv.Atoi(s)
	if err != nil || port < min || port > 65535 {
		return 0, rpcerr.Newf(rpcerr.KindConfig, "resolve endpoint", "port %q out of range", s)
	}
	return port, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
