package inventory

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
)

// MatrixEntry is one actionable host for the downstream pipeline.
type MatrixEntry struct {
	Host  string `json:"host"`
	Group string `json:"group"`
}

// Result is the complete output of a comparison.
type Result struct {
	Added   []string      `json:"added"`
	Removed []string      `json:"removed"`
	Changed []string      `json:"changed"`
	Matrix  []MatrixEntry `json:"matrix"`
	Count   int           `json:"count"`
}

// Detect compares two inventories and builds the change matrix.
// Lists in the result are never nil so they encode as [].
func Detect(oldHosts, newHosts Hosts) Result {
	added, removed, changed := Diff(oldHosts, newHosts)
	matrix := BuildMatrix(added, changed, newHosts)
	return Result{
		Added:   added,
		Removed: removed,
		Changed: changed,
		Matrix:  matrix,
		Count:   len(matrix),
	}
}

// Diff returns the sorted host names that were added, removed, or changed.
// A host is changed when its group differs or its variables differ
// regardless of key order.
func Diff(oldHosts, newHosts Hosts) (added, removed, changed []string) {
	added, removed, changed = []string{}, []string{}, []string{}

	for _, name := range newHosts.Names() {
		if _, ok := oldHosts[name]; !ok {
			added = append(added, name)
		}
	}
	for _, name := range oldHosts.Names() {
		if _, ok := newHosts[name]; !ok {
			removed = append(removed, name)
		}
	}
	for _, name := range newHosts.Names() {
		prev, ok := oldHosts[name]
		if !ok {
			continue
		}
		cur := newHosts[name]
		if prev.Group != cur.Group || !varsEqual(prev.Vars, cur.Vars) {
			changed = append(changed, name)
		}
	}

	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)
	return added, removed, changed
}

// BuildMatrix emits added hosts followed by changed hosts with their group
// from newHosts. Names not present in newHosts are skipped.
func BuildMatrix(added, changed []string, newHosts Hosts) []MatrixEntry {
	matrix := make([]MatrixEntry, 0, len(added)+len(changed))
	for _, names := range [][]string{added, changed} {
		for _, name := range names {
			h, ok := newHosts[name]
			if !ok {
				continue
			}
			matrix = append(matrix, MatrixEntry{Host: name, Group: h.Group})
		}
	}
	return matrix
}

// WriteOutputs writes the matrix and count as key=value lines for CI output capture.
func (r Result) WriteOutputs(w io.Writer) error {
	matrix := r.Matrix
	if matrix == nil {
		matrix = []MatrixEntry{}
	}
	data, err := json.Marshal(matrix)
	if err != nil {
		return fmt.Errorf("failed to marshal matrix: %w", err)
	}
	if _, err := fmt.Fprintf(w, "matrix=%s\ncount=%d\n", data, r.Count); err != nil {
		return fmt.Errorf("failed to write outputs: %w", err)
	}
	return nil
}

// varsEqual compares two variable maps by their canonical JSON form.
// Numbers compare by value, so 1 and 1.0 are equal.
func varsEqual(a, b map[string]any) bool {
	ca, errA := canonical(a)
	cb, errB := canonical(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(normalize(a), normalize(b))
	}
	return ca == cb
}

// canonical encodes v compactly with sorted map keys.
func canonical(v map[string]any) (string, error) {
	data, err := json.Marshal(normalize(v))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// normalize converts YAML maps with non-string keys so encoding/json can
// sort and encode them.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
