// Package main registers the Zabbix agent running on a proxy host and links
// it to that proxy.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"zbxprov/internal/artifacts"
	"zbxprov/internal/config"
	"zbxprov/internal/zabbix"
)

var debug = flag.Bool("debug", false, "Enable debug logging")

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "register-agent - create or update the Zabbix host for a proxy's agent\n\n")
		fmt.Fprint(os.Stderr, "Required: ZABBIX_URL, ZABBIX_TOKEN, ZBX_PROXY_NAME, ZBX_AGENT_IP\n")
		fmt.Fprint(os.Stderr, "Optional: ZBX_AGENT_NAME, ZBX_AGENT_PORT, ZBX_AGENT_GROUPS, ZBX_AGENT_TEMPLATES,\n")
		fmt.Fprint(os.Stderr, "          ZBX_AGENT_TLS, ZBX_AGENT_PSK_ID, ZBX_AGENT_PSK_VALUE,\n")
		fmt.Fprint(os.Stderr, "          ENFORCE_SAME_AGENT_PROXY, DK_ANSIBLE_ARTIFACTS_DIR\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, os.LookupEnv)
	if err != nil {
		stop()
		log.Fatalf("[ERROR] %v", err)
	}
	fmt.Printf("OK host: %s\n", res)
}

func run(ctx context.Context, env config.Lookup) (*zabbix.UpsertResult, error) {
	cfg, err := config.Zabbix(env)
	if err != nil {
		return nil, err
	}
	cfg.Debug = *debug

	psk := artifacts.New(artifacts.Dir(env))
	spec, err := config.Agent(env, psk)
	if err != nil {
		return nil, err
	}
	if spec.PSK.Identity != "" && !spec.PSK.Complete() {
		log.Printf("[WARN] No PSK value found for agent %s, TLS settings will not be changed", spec.Name)
	}

	client, err := zabbix.New(cfg)
	if err != nil {
		return nil, err
	}
	if *debug {
		log.Printf("[DEBUG] Registering host %s via proxy %s (groups: %s; templates: %s)",
			spec.Name, spec.Proxy, strings.Join(spec.Groups, ", "), strings.Join(spec.Templates, ", "))
	}
	return client.EnsureHost(ctx, spec)
}
