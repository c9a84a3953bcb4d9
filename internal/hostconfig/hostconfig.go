// Package hostconfig maps page hostnames to CSS selectors whose text the
// extractor should add even when readability scoring drops it.
package hostconfig

import (
	"bytes"
	_ "embed"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

//go:embed hosts.yaml
var defaultHosts []byte

type File struct {
	Version int    `yaml:"version"`
	Hosts   []Host `yaml:"hosts"`
}

type Host struct {
	// Host is an exact hostname or a doublestar glob such as "*.example.org".
	Host      string   `yaml:"host"`
	Selectors []string `yaml:"selectors"`
}

// Registry answers selector lookups for a hostname.
type Registry struct {
	hosts []Host
}

// Default returns the registry compiled into the binary.
func Default() *Registry {
	reg, err := Parse(defaultHosts, "embedded hosts.yaml")
	if err != nil {
		panic(err)
	}
	return reg
}

// Load reads a registry from path; an empty path yields Default().
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read host selectors %q: %w", path, err)
	}
	return Parse(data, path)
}

func Parse(data []byte, source string) (*Registry, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse YAML in %q: %w", source, err)
	}
	if errs := f.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid host selectors in %q: %s", source, strings.Join(errs, "; "))
	}
	hosts := make([]Host, 0, len(f.Hosts))
	for _, h := range f.Hosts {
		hosts = append(hosts, Host{Host: strings.ToLower(strings.TrimSpace(h.Host)), Selectors: h.Selectors})
	}
	return &Registry{hosts: hosts}, nil
}

func (f File) Validate() []string {
	var errs []string
	if f.Version != 1 {
		errs = append(errs, fmt.Sprintf("unsupported version %d", f.Version))
	}
	for i, h := range f.Hosts {
		host := strings.TrimSpace(h.Host)
		if host == "" {
			errs = append(errs, fmt.Sprintf("hosts[%d].host is required", i))
		} else if !doublestar.ValidatePattern(host) {
			errs = append(errs, fmt.Sprintf("hosts[%d].host %q is not a valid pattern", i, host))
		}
		if len(h.Selectors) == 0 {
			errs = append(errs, fmt.Sprintf("hosts[%d].selectors must not be empty", i))
		}
		for j, sel := range h.Selectors {
			if _, err := cascadia.ParseGroup(sel); err != nil {
				errs = append(errs, fmt.Sprintf("hosts[%d].selectors[%d] %q: %v", i, j, sel, err))
			}
		}
	}
	return errs
}

// Selectors returns every selector registered for host, in file order and
// without duplicates. host may carry a port.
func (r *Registry) Selectors(host string) []string {
	if r == nil {
		return nil
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, h := range r.hosts {
		ok, err := doublestar.Match(h.Host, host)
		if err != nil || !ok {
			continue
		}
		for _, sel := range h.Selectors {
			if !seen[sel] {
				seen[sel] = true
				out = append(out, sel)
			}
		}
	}
	return out
}

// Len returns the number of host entries.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.hosts)
}
