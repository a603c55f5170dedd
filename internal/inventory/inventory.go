// Package inventory flattens Ansible YAML inventories and computes the
// change matrix between two snapshots.
package inventory

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ParsePolicy controls what Load and Decode do with a present file that is not valid YAML.
type ParsePolicy int

const (
	// ParseStrict returns the parse error to the caller.
	ParseStrict ParsePolicy = iota
	// ParseLenient logs the error and treats the file as an empty inventory.
	ParseLenient
)

// Host is a single inventory host with the group it was found in.
type Host struct {
	Vars  map[string]any
	Name  string
	Group string
}

// Hosts maps host names to their flattened record.
type Hosts map[string]Host

// Names returns the host names in lexicographic order.
func (h Hosts) Names() []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads and flattens the inventory at path.
// A missing file is an empty inventory.
func Load(path string, policy ParsePolicy) (Hosts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[INFO] Inventory %s not found, treating as empty", path)
			return Hosts{}, nil
		}
		return nil, fmt.Errorf("failed to read inventory %s: %w", path, err)
	}

	return Decode(data, path, policy)
}

// Decode parses data under policy. source names the document in log lines
// and errors.
func Decode(data []byte, source string, policy ParsePolicy) (Hosts, error) {
	hosts, err := Parse(data)
	if err != nil {
		if policy == ParseLenient {
			log.Printf("[WARN] Inventory %s is not valid YAML, treating as empty: %v", source, err)
			return Hosts{}, nil
		}
		return nil, fmt.Errorf("failed to parse inventory %s: %w", source, err)
	}
	return hosts, nil
}

// Parse decodes a YAML inventory document and flattens it.
// Empty and null documents produce an empty inventory.
func Parse(data []byte) (Hosts, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return Flatten(doc), nil
}

// Flatten walks all.children.<group>.hosts.<host> and returns one record per host.
// Substructures of the wrong shape are skipped rather than reported.
// Groups are visited in sorted order, so a host listed under two groups
// ends up in the last one by name.
func Flatten(doc map[string]any) Hosts {
	out := Hosts{}

	children := asMap(asMap(doc["all"])["children"])
	groups := make([]string, 0, len(children))
	for group := range children {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	for _, group := range groups {
		hosts := asMap(asMap(children[group])["hosts"])
		for name, vars := range hosts {
			v := asMap(vars)
			if v == nil {
				v = map[string]any{}
			}
			out[name] = Host{Name: name, Group: group, Vars: v}
		}
	}
	return out
}

// asMap returns v as a string-keyed map, or nil when v is not a mapping.
func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out
	default:
		return nil
	}
}
