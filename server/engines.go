package server

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// RegisterDefaults installs the toy engines served by the stub binary.
//
//	echo             input returned unchanged
//	render-template  first line is a tag, "| text" lines its content, #{key} reads data
//	minify-markup    whitespace between tags dropped, runs of whitespace collapsed
func RegisterDefaults(s *Server) {
	s.Handle("echo", Echo)
	s.Handle("render-template", RenderTemplate)
	s.Handle("minify-markup", MinifyMarkup)
}

func Echo(_ context.Context, input []byte, _ map[string]any) (any, error) {
	return string(input), nil
}

var interpolation = regexp.MustCompile(`#\{\s*([A-Za-z0-9_]+)\s*\}`)

// RenderTemplate renders the one-element template subset described on RegisterDefaults.
func RenderTemplate(_ context.Context, input []byte, data map[string]any) (any, error) {
	var tag string
	var text []string
	for i, line := range strings.Split(string(input), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case tag == "":
			if strings.ContainsAny(trimmed, " \t|") {
				return nil, fmt.Errorf("line %d: expected a tag name, got %q", i+1, trimmed)
			}
			tag = trimmed
		case strings.HasPrefix(trimmed, "|"):
			text = append(text, strings.TrimSpace(strings.TrimPrefix(trimmed, "|")))
		default:
			return nil, fmt.Errorf("line %d: unsupported syntax %q", i+1, trimmed)
		}
	}
	if tag == "" {
		return nil, fmt.Errorf("empty template")
	}

	var missing []string
	body := interpolation.ReplaceAllStringFunc(strings.Join(text, " "), func(m string) string {
		key := interpolation.FindStringSubmatch(m)[1]
		v, ok := data[key]
		if !ok {
			missing = append(missing, key)
			return ""
		}
		return fmt.Sprint(v)
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("undefined variable %s", strings.Join(missing, ", "))
	}
	return "<" + tag + ">" + body + "</" + tag + ">", nil
}

var (
	betweenTags = regexp.MustCompile(`>\s+<`)
	whitespace  = regexp.MustCompile(`\s+`)
)

func MinifyMarkup(_ context.Context, input []byte, _ map[string]any) (any, error) {
	out := betweenTags.ReplaceAllString(string(input), "><")
	out = whitespace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out), nil
}
