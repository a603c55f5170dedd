package zabbix

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// Mode is a proxy operating mode as encoded by the API.
type Mode int

// Proxy operating modes.
const (
	ModeActive  Mode = 0
	ModePassive Mode = 1
)

// DefaultProxyPort is the trapper port a passive proxy listens on.
const DefaultProxyPort = 10051

// tlsPSK is the tls_connect/tls_accept value selecting pre-shared keys.
const tlsPSK = 2

func (m Mode) String() string {
	if m == ModePassive {
		return "passive"
	}
	return "active"
}

// ParseMode accepts "active", "passive", "0" or "1" in any case.
// An empty string is active.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "active":
		return ModeActive, nil
	case "1", "passive":
		return ModePassive, nil
	default:
		return ModeActive, &ValidationError{Field: "mode", Problem: fmt.Sprintf("unknown proxy mode %q (want active or passive)", s)}
	}
}

// PSK is a TLS pre-shared key identity and value.
type PSK struct {
	Identity string
	Value    string
}

// Complete reports whether both parts are set. A partial key is never sent,
// so an update cannot clear an existing key by omission.
func (p PSK) Complete() bool {
	return p.Identity != "" && p.Value != ""
}

func (p PSK) apply(params map[string]any) {
	if !p.Complete() {
		return
	}
	params["tls_connect"] = tlsPSK
	params["tls_accept"] = tlsPSK
	params["tls_psk_identity"] = p.Identity
	params["tls_psk"] = p.Value
}

// ProxySpec is the desired state of a proxy.
type ProxySpec struct {
	PSK        PSK
	Name       string
	Mode       string
	Address    string
	ProxyGroup string
	Port       int
}

// UpsertResult describes what EnsureProxy or EnsureHost did.
type UpsertResult struct {
	Kind    string
	Name    string
	IDs     []string
	Created bool
}

// Action returns "created" or "updated".
func (r *UpsertResult) Action() string {
	if r.Created {
		return "created"
	}
	return "updated"
}

func (r *UpsertResult) String() string {
	return fmt.Sprintf("%s %q %s (ids: %s)", r.Kind, r.Name, r.Action(), strings.Join(r.IDs, ","))
}

type idsResult struct {
	ProxyIDs []string `json:"proxyids"`
	HostIDs  []string `json:"hostids"`
}

// EnsureProxy creates the proxy if no proxy with that name exists and
// updates it in place otherwise.
func (c *Client) EnsureProxy(ctx context.Context, spec ProxySpec) (*UpsertResult, error) {
	if spec.Name == "" {
		return nil, &ValidationError{Field: "proxy name", Problem: "must not be empty"}
	}
	mode, err := ParseMode(spec.Mode)
	if err != nil {
		return nil, err
	}
	if mode == ModePassive && strings.TrimSpace(spec.Address) == "" {
		return nil, &ValidationError{Field: "proxy address", Problem: "passive proxies require an address"}
	}

	existing, err := c.lookupProxy(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	params := map[string]any{
		"name":           spec.Name,
		"operating_mode": int(mode),
	}
	if mode == ModePassive {
		port := spec.Port
		if port == 0 {
			port = DefaultProxyPort
		}
		params["address"] = strings.TrimSpace(spec.Address)
		params["port"] = strconv.Itoa(port)
	}

	spec.PSK.apply(params)
	if !spec.PSK.Complete() && (spec.PSK.Identity != "" || spec.PSK.Value != "") {
		log.Printf("[WARN] Incomplete PSK for proxy %s, leaving TLS settings unchanged", spec.Name)
	}

	if spec.ProxyGroup != "" {
		groupID, err := c.lookupProxyGroup(ctx, spec.ProxyGroup)
		if err != nil {
			return nil, err
		}
		if groupID == "" {
			return nil, &NotFoundError{Kind: "proxy group", Names: []string{spec.ProxyGroup}}
		}
		params["proxy_groupid"] = groupID
	}

	res := &UpsertResult{Kind: "proxy", Name: spec.Name, Created: existing == ""}
	var out idsResult
	if existing != "" {
		params["proxyid"] = existing
		log.Printf("[INFO] Updating %s proxy %s (proxyid %s)", mode, spec.Name, existing)
		err = c.Call(ctx, "proxy.update", params, &out)
	} else {
		log.Printf("[INFO] Creating %s proxy %s", mode, spec.Name)
		err = c.Call(ctx, "proxy.create", params, &out)
	}
	if err != nil {
		return nil, err
	}
	res.IDs = out.ProxyIDs
	return res, nil
}
