package zabbix

import (
	"context"
	"fmt"
	"log"
	"strconv"
)

// Interface types understood by the API.
const (
	InterfaceAgent = 1
	InterfaceSNMP  = 2
	InterfaceIPMI  = 3
	InterfaceJMX   = 4
)

// DefaultAgentPort is the passive agent listening port.
const DefaultAgentPort = 10050

// Values of monitored_by for a host.
const (
	monitoredByProxy      = 1
	monitoredByProxyGroup = 2
)

// Interface is a host network interface as sent to host.create/host.update.
type Interface struct {
	IP    string `json:"ip"`
	DNS   string `json:"dns"`
	Port  string `json:"port"`
	Type  int    `json:"type"`
	Main  int    `json:"main"`
	UseIP int    `json:"useip"`
}

// AgentInterface returns the main agent interface connecting by IP.
func AgentInterface(ip string, port int) Interface {
	if port == 0 {
		port = DefaultAgentPort
	}
	return Interface{
		Type:  InterfaceAgent,
		Main:  1,
		UseIP: 1,
		IP:    ip,
		Port:  strconv.Itoa(port),
	}
}

// HostSpec is the desired state of a host.
// Proxy and ProxyGroup are alternatives; Proxy wins when both are set.
type HostSpec struct {
	PSK        PSK
	Name       string
	Proxy      string
	ProxyGroup string
	Interfaces []Interface
	Groups     []string
	Templates  []string
}

func (s HostSpec) validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "host name", Problem: "must not be empty"}
	}
	for i, iface := range s.Interfaces {
		switch iface.Type {
		case InterfaceAgent, InterfaceSNMP, InterfaceIPMI, InterfaceJMX:
		default:
			return &ValidationError{Field: fmt.Sprintf("interface %d", i), Problem: fmt.Sprintf("unknown interface type %d", iface.Type)}
		}
		if iface.UseIP == 1 && iface.IP == "" {
			return &ValidationError{Field: fmt.Sprintf("interface %d", i), Problem: "IP address is required when useip=1"}
		}
		if iface.UseIP == 0 && iface.DNS == "" {
			return &ValidationError{Field: fmt.Sprintf("interface %d", i), Problem: "DNS name is required when useip=0"}
		}
	}
	return nil
}

// EnsureHost creates the host if no host with that technical name exists
// and updates it in place otherwise. Group, template and proxy names must
// all exist.
func (c *Client) EnsureHost(ctx context.Context, spec HostSpec) (*UpsertResult, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	groupIDs, err := c.ResolveHostGroups(ctx, spec.Groups)
	if err != nil {
		return nil, err
	}
	templateIDs, err := c.ResolveTemplates(ctx, spec.Templates)
	if err != nil {
		return nil, err
	}

	existing, err := c.lookupHost(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	groups := make([]map[string]string, len(groupIDs))
	for i, id := range groupIDs {
		groups[i] = map[string]string{"groupid": id}
	}
	templates := make([]map[string]string, len(templateIDs))
	for i, id := range templateIDs {
		templates[i] = map[string]string{"templateid": id}
	}
	interfaces := spec.Interfaces
	if interfaces == nil {
		interfaces = []Interface{}
	}

	params := map[string]any{
		"host":       spec.Name,
		"groups":     groups,
		"templates":  templates,
		"interfaces": interfaces,
	}

	switch {
	case spec.Proxy != "":
		proxyID, err := c.lookupProxy(ctx, spec.Proxy)
		if err != nil {
			return nil, err
		}
		if proxyID == "" {
			return nil, &NotFoundError{Kind: "proxy", Names: []string{spec.Proxy}}
		}
		params["monitored_by"] = monitoredByProxy
		params["proxyid"] = proxyID
	case spec.ProxyGroup != "":
		groupID, err := c.lookupProxyGroup(ctx, spec.ProxyGroup)
		if err != nil {
			return nil, err
		}
		if groupID == "" {
			return nil, &NotFoundError{Kind: "proxy group", Names: []string{spec.ProxyGroup}}
		}
		params["monitored_by"] = monitoredByProxyGroup
		params["proxy_groupid"] = groupID
	}

	spec.PSK.apply(params)
	if !spec.PSK.Complete() && (spec.PSK.Identity != "" || spec.PSK.Value != "") {
		log.Printf("[WARN] Incomplete PSK for host %s, leaving TLS settings unchanged", spec.Name)
	}

	res := &UpsertResult{Kind: "host", Name: spec.Name, Created: existing == ""}
	var out idsResult
	if existing != "" {
		params["hostid"] = existing
		log.Printf("[INFO] Updating host %s (hostid %s, %d groups, %d templates)", spec.Name, existing, len(groupIDs), len(templateIDs))
		err = c.Call(ctx, "host.update", params, &out)
	} else {
		log.Printf("[INFO] Creating host %s (%d groups, %d templates)", spec.Name, len(groupIDs), len(templateIDs))
		err = c.Call(ctx, "host.create", params, &out)
	}
	if err != nil {
		return nil, err
	}
	res.IDs = out.HostIDs
	return res, nil
}
