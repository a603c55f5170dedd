package zabbix

import (
	"context"
	"fmt"
	"strings"
)

// ResolveHostGroups maps host group names to group IDs, in the order given.
func (c *Client) ResolveHostGroups(ctx context.Context, names []string) ([]string, error) {
	return c.resolve(ctx, "host groups", "hostgroup.get", "groupid", names)
}

// ResolveTemplates maps template names to template IDs, in the order given.
func (c *Client) ResolveTemplates(ctx context.Context, names []string) ([]string, error) {
	return c.resolve(ctx, "templates", "template.get", "templateid", names)
}

// resolve looks up every name with a single call. Any name not returned by
// the API fails the lookup with a NotFoundError listing exactly those names.
// A blank name is a ValidationError.
func (c *Client) resolve(ctx context.Context, kind, method, idField string, names []string) ([]string, error) {
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			return nil, &ValidationError{Field: kind, Problem: fmt.Sprintf("name %d is empty", i)}
		}
	}
	names = dedupe(names)
	if len(names) == 0 {
		return []string{}, nil
	}

	var rows []map[string]string
	params := map[string]any{
		"output": []string{idField, "name"},
		"filter": map[string]any{"name": names},
	}
	if err := c.Call(ctx, method, params, &rows); err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", kind, err)
	}

	found := make(map[string]string, len(rows))
	for _, row := range rows {
		found[row["name"]] = row[idField]
	}

	ids := make([]string, 0, len(names))
	var missing []string
	for _, n := range names {
		id, ok := found[n]
		if !ok || id == "" {
			missing = append(missing, n)
			continue
		}
		ids = append(ids, id)
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{Kind: kind, Names: missing}
	}
	return ids, nil
}

// lookupProxy returns the ID of the proxy with the exact name, or "" if none.
func (c *Client) lookupProxy(ctx context.Context, name string) (string, error) {
	var rows []struct {
		ProxyID string `json:"proxyid"`
	}
	params := map[string]any{
		"output": []string{"proxyid", "name"},
		"filter": map[string]any{"name": []string{name}},
	}
	if err := c.Call(ctx, "proxy.get", params, &rows); err != nil {
		return "", fmt.Errorf("failed to look up proxy %q: %w", name, err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].ProxyID, nil
}

// lookupProxyGroup returns the ID of the proxy group with the exact name, or "" if none.
func (c *Client) lookupProxyGroup(ctx context.Context, name string) (string, error) {
	var rows []struct {
		ProxyGroupID string `json:"proxy_groupid"`
	}
	params := map[string]any{
		"output": []string{"proxy_groupid", "name"},
		"filter": map[string]any{"name": []string{name}},
	}
	if err := c.Call(ctx, "proxygroup.get", params, &rows); err != nil {
		return "", fmt.Errorf("failed to look up proxy group %q: %w", name, err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].ProxyGroupID, nil
}

// lookupHost returns the ID of the host with the exact technical name, or "" if none.
func (c *Client) lookupHost(ctx context.Context, name string) (string, error) {
	var rows []struct {
		HostID string `json:"hostid"`
	}
	params := map[string]any{
		"output": []string{"hostid", "host"},
		"filter": map[string]any{"host": []string{name}},
	}
	if err := c.Call(ctx, "host.get", params, &rows); err != nil {
		return "", fmt.Errorf("failed to look up host %q: %w", name, err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].HostID, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
