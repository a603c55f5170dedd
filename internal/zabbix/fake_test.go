package zabbix

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type call struct {
	Params map[string]any
	Method string
}

// fakeAPI is an in-memory stand-in for the Zabbix JSON-RPC endpoint.
type fakeAPI struct {
	groups      map[string]string
	templates   map[string]string
	proxyGroups map[string]string
	proxies     map[string]string
	hosts       map[string]string
	// failures maps a method to HTTP statuses returned before it succeeds.
	failures map[string][]int
	calls    []call
	nextID   int
	mu       sync.Mutex
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		groups:      map[string]string{"Linux servers": "2", "Zabbix proxies": "7"},
		templates:   map[string]string{"Linux by Zabbix agent": "10001"},
		proxyGroups: map[string]string{"edge": "3"},
		proxies:     map[string]string{},
		hosts:       map[string]string{},
		failures:    map[string][]int{},
		nextID:      100,
	}
}

func (f *fakeAPI) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method
	}
	return out
}

func (f *fakeAPI) last(method string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return f.calls[i].Params
		}
	}
	return nil
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != rpcPath {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if r.Header.Get("Authorization") != "Bearer secret-token" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Header.Get("Content-Type") != "application/json-rpc" {
		http.Error(w, "bad content type", http.StatusBadRequest)
		return
	}

	var req struct {
		Params  map[string]any `json:"params"`
		JSONRPC string         `json:"jsonrpc"`
		Method  string         `json:"method"`
		ID      int            `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JSONRPC != "2.0" || req.ID != 1 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: req.Method, Params: req.Params})

	if statuses := f.failures[req.Method]; len(statuses) > 0 {
		f.failures[req.Method] = statuses[1:]
		http.Error(w, "try again", statuses[0])
		return
	}

	result, apiErr := f.handle(req.Method, req.Params)
	w.Header().Set("Content-Type", "application/json")
	if apiErr != nil {
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "error": apiErr, "id": 1})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "result": result, "id": 1})
}

func filterNames(params map[string]any, key string) []string {
	filter, _ := params["filter"].(map[string]any)
	switch v := filter[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, n := range v {
			out = append(out, fmt.Sprint(n))
		}
		return out
	}
	return nil
}

func lookup(table map[string]string, names []string, idField string) []map[string]string {
	rows := []map[string]string{}
	for _, n := range names {
		if id, ok := table[n]; ok {
			rows = append(rows, map[string]string{idField: id, "name": n})
		}
	}
	return rows
}

func (f *fakeAPI) handle(method string, params map[string]any) (any, *APIError) {
	switch method {
	case "hostgroup.get":
		return lookup(f.groups, filterNames(params, "name"), "groupid"), nil
	case "template.get":
		return lookup(f.templates, filterNames(params, "name"), "templateid"), nil
	case "proxygroup.get":
		return lookup(f.proxyGroups, filterNames(params, "name"), "proxy_groupid"), nil
	case "proxy.get":
		return lookup(f.proxies, filterNames(params, "name"), "proxyid"), nil
	case "host.get":
		rows := []map[string]string{}
		for _, n := range filterNames(params, "host") {
			if id, ok := f.hosts[n]; ok {
				rows = append(rows, map[string]string{"hostid": id, "host": n})
			}
		}
		return rows, nil
	case "proxy.create":
		name := fmt.Sprint(params["name"])
		if _, ok := f.proxies[name]; ok {
			return nil, &APIError{Code: -32602, Message: "Invalid params.", Data: "Proxy already exists."}
		}
		f.nextID++
		f.proxies[name] = fmt.Sprint(f.nextID)
		return map[string][]string{"proxyids": {f.proxies[name]}}, nil
	case "proxy.update":
		return map[string][]string{"proxyids": {fmt.Sprint(params["proxyid"])}}, nil
	case "host.create":
		name := fmt.Sprint(params["host"])
		f.nextID++
		f.hosts[name] = fmt.Sprint(f.nextID)
		return map[string][]string{"hostids": {f.hosts[name]}}, nil
	case "host.update":
		return map[string][]string{"hostids": {fmt.Sprint(params["hostid"])}}, nil
	default:
		return nil, &APIError{Code: -32601, Message: "Method not found.", Data: "Incorrect method \"" + method + "\"."}
	}
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		URL:        srv.URL,
		Token:      "secret-token",
		VerifyTLS:  true,
		Timeout:    5 * time.Second,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c, api
}
