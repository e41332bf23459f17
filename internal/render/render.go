// Package render expands service block templates.
//
// Templates are text/template with the sprig function library. Variables
// come from the stack's env file and config, never from the process
// environment, so a rendered block depends only on files in the project.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/joho/godotenv"
)

// ServiceNameVar is set to the name of the service being rendered.
const ServiceNameVar = "SERVICE_NAME"

// Renderer renders templates against a fixed set of variables.
type Renderer struct {
	vars   map[string]string
	funcs  template.FuncMap
	ldelim string
	rdelim string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithDelims changes the action delimiters, for templates whose content
// already uses "{{" (Go templated labels in traefik rules, for example).
func WithDelims(left, right string) Option {
	return func(r *Renderer) {
		r.ldelim, r.rdelim = left, right
	}
}

// New returns a Renderer over vars. vars is copied.
func New(vars map[string]string, opts ...Option) *Renderer {
	r := &Renderer{vars: make(map[string]string, len(vars)), funcs: funcMap()}
	for k, v := range vars {
		r.vars[k] = v
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func funcMap() template.FuncMap {
	fm := sprig.TxtFuncMap()
	delete(fm, "env")
	delete(fm, "expandenv")
	fm["required"] = func(msg string, v interface{}) (interface{}, error) {
		if v == nil {
			return nil, errors.New(msg)
		}
		if s, ok := v.(string); ok && s == "" {
			return nil, errors.New(msg)
		}
		return v, nil
	}
	return fm
}

// Vars returns the variable names, sorted.
func (r *Renderer) Vars() []string {
	names := make([]string, 0, len(r.vars))
	for k := range r.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Render executes text for the service called name. A reference to an
// undefined variable is an error, even when piped into default: default only
// replaces variables that are declared but empty (VERSION= in the env file).
// Optional variables are tested with hasKey, as in {{ if hasKey . "X" }}.
func (r *Renderer) Render(name, text string) (string, error) {
	tmpl, err := template.New(name).
		Delims(r.ldelim, r.rdelim).
		Option("missingkey=error").
		Funcs(r.funcs).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}

	data := make(map[string]interface{}, len(r.vars)+1)
	for k, v := range r.vars {
		data[k] = v
	}
	data[ServiceNameVar] = name

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// RenderFile renders the template file at path for the service called name.
func (r *Renderer) RenderFile(name, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return r.Render(name, string(data))
}

// LoadVars reads envFile (when it exists) and overlays overrides on top.
// A missing env file is not an error.
func LoadVars(envFile string, overrides map[string]string) (map[string]string, error) {
	vars := map[string]string{}
	if envFile != "" {
		env, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
		default:
			vars = env
		}
	}
	for k, v := range overrides {
		vars[k] = v
	}
	return vars, nil
}

// ParseAssignments parses KEY=VALUE pairs as given on the command line.
func ParseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid assignment %q, want KEY=VALUE", p)
		}
		out[k] = v
	}
	return out, nil
}
