// Package config builds registration settings from environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"zbxprov/internal/zabbix"
)

// Lookup returns the value of an environment variable and whether it was set.
// os.LookupEnv satisfies it.
type Lookup func(key string) (string, bool)

// Map adapts a plain map to Lookup.
func Map(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// PSKSource supplies pre-shared keys generated by the provisioning run.
type PSKSource interface {
	ProxyPSK(name string) (string, error)
	AgentPSK(name string) (string, error)
}

// Defaults for agent registration.
var (
	DefaultAgentGroups    = []string{"Linux servers", "Zabbix proxies"}
	DefaultAgentTemplates = []string{"Linux by Zabbix agent"}
)

const defaultTimeoutSeconds = 30

// Zabbix reads the API connection settings.
func Zabbix(env Lookup) (zabbix.Config, error) {
	cfg := zabbix.Config{
		URL:       zabbix.NormalizeURL(get(env, "ZABBIX_URL", "")),
		Token:     get(env, "ZABBIX_TOKEN", ""),
		VerifyTLS: true,
	}

	seconds := float64(defaultTimeoutSeconds)
	if v := get(env, "ZABBIX_TIMEOUT", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return cfg, invalid("ZABBIX_TIMEOUT", "must be a positive number of seconds, got %q", v)
		}
		seconds = f
	}
	cfg.Timeout = time.Duration(seconds * float64(time.Second))

	switch strings.ToLower(get(env, "ZABBIX_VERIFY_SSL", "true")) {
	case "0", "false", "no":
		cfg.VerifyTLS = false
	}

	if cfg.URL == "" {
		return cfg, invalid("ZABBIX_URL", "must be set (frontend base URL or full api_jsonrpc.php endpoint)")
	}
	if cfg.Token == "" {
		return cfg, invalid("ZABBIX_TOKEN", "must be set")
	}
	return cfg, nil
}

// Proxy reads the desired proxy registration.
// The PSK value falls back to the provisioning artifacts when not set.
func Proxy(env Lookup, psk PSKSource) (zabbix.ProxySpec, error) {
	var spec zabbix.ProxySpec

	spec.Name = get(env, "ZBX_PROXY_NAME", "")
	if spec.Name == "" {
		return spec, invalid("ZBX_PROXY_NAME", "must be set to the proxy name in Zabbix")
	}

	spec.Mode = get(env, "ZBX_PROXY_MODE", "active")
	mode, err := zabbix.ParseMode(spec.Mode)
	if err != nil {
		return spec, invalid("ZBX_PROXY_MODE", "%v", err)
	}

	spec.Address = get(env, "ZBX_PROXY_ADDRESS", "")
	if mode == zabbix.ModePassive && spec.Address == "" {
		return spec, invalid("ZBX_PROXY_ADDRESS", "required when ZBX_PROXY_MODE is passive")
	}

	if spec.Port, err = getInt(env, "ZBX_PROXY_PORT", zabbix.DefaultProxyPort); err != nil {
		return spec, err
	}

	spec.PSK.Identity = get(env, "ZBX_PSK_ID", spec.Name+"-psk")
	spec.PSK.Value = get(env, "ZBX_PSK_VALUE", "")
	if spec.PSK.Value == "" && psk != nil {
		if spec.PSK.Value, err = psk.ProxyPSK(spec.Name); err != nil {
			return spec, fmt.Errorf("failed to read proxy PSK: %w", err)
		}
	}

	spec.ProxyGroup = get(env, "ZBX_PROXY_GROUP", "")
	return spec, nil
}

// Agent reads the registration of the agent running on the proxy host.
func Agent(env Lookup, psk PSKSource) (zabbix.HostSpec, error) {
	var spec zabbix.HostSpec

	proxyName := get(env, "ZBX_PROXY_NAME", "")
	if proxyName == "" {
		return spec, invalid("ZBX_PROXY_NAME", "must be set")
	}
	spec.Proxy = proxyName
	spec.Name = get(env, "ZBX_AGENT_NAME", proxyName)

	ip := get(env, "ZBX_AGENT_IP", "")
	if ip == "" {
		return spec, invalid("ZBX_AGENT_IP", "must be set")
	}
	port, err := getInt(env, "ZBX_AGENT_PORT", zabbix.DefaultAgentPort)
	if err != nil {
		return spec, err
	}
	spec.Interfaces = []zabbix.Interface{zabbix.AgentInterface(ip, port)}

	if spec.Groups, err = getList(env, "ZBX_AGENT_GROUPS", DefaultAgentGroups); err != nil {
		return spec, err
	}
	if spec.Templates, err = getList(env, "ZBX_AGENT_TEMPLATES", DefaultAgentTemplates); err != nil {
		return spec, err
	}

	enforce, err := getBool(env, "ENFORCE_SAME_AGENT_PROXY", true)
	if err != nil {
		return spec, err
	}
	if enforce && spec.Name != proxyName {
		return spec, invalid("ZBX_AGENT_NAME", "agent %q must match proxy %q (set ENFORCE_SAME_AGENT_PROXY=false to allow)", spec.Name, proxyName)
	}

	if strings.ToLower(get(env, "ZBX_AGENT_TLS", "psk")) != "psk" {
		return spec, nil
	}
	spec.PSK.Identity = get(env, "ZBX_AGENT_PSK_ID", spec.Name+"-psk-agent")
	spec.PSK.Value = get(env, "ZBX_AGENT_PSK_VALUE", "")
	if spec.PSK.Value == "" && psk != nil {
		if spec.PSK.Value, err = psk.AgentPSK(spec.Name); err != nil {
			return spec, fmt.Errorf("failed to read agent PSK: %w", err)
		}
	}
	return spec, nil
}

func invalid(key, format string, args ...any) error {
	return &zabbix.ValidationError{Field: key, Problem: fmt.Sprintf(format, args...)}
}

// get returns the trimmed value of key, or def when unset or blank.
func get(env Lookup, key, def string) string {
	if v, ok := env(key); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return def
}

func getInt(env Lookup, key string, def int) (int, error) {
	v := get(env, key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 65535 {
		return 0, invalid(key, "must be a port number, got %q", v)
	}
	return n, nil
}

func getBool(env Lookup, key string, def bool) (bool, error) {
	switch strings.ToLower(get(env, key, "")) {
	case "":
		return def, nil
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	default:
		v, _ := env(key)
		return false, invalid(key, "must be true or false, got %q", v)
	}
}

// getList decodes a JSON array of strings.
func getList(env Lookup, key string, def []string) ([]string, error) {
	v := get(env, key, "")
	if v == "" {
		return append([]string(nil), def...), nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil, invalid(key, "must be a JSON array of strings: %v", err)
	}
	for i, item := range out {
		if strings.TrimSpace(item) == "" {
			return nil, invalid(key, "entry %d is empty", i)
		}
	}
	return out, nil
}
