// Package main registers (or updates) a Zabbix proxy from environment settings.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"zbxprov/internal/artifacts"
	"zbxprov/internal/config"
	"zbxprov/internal/zabbix"
)

var debug = flag.Bool("debug", false, "Enable debug logging")

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "register-proxy - create or update a Zabbix proxy\n\n")
		fmt.Fprint(os.Stderr, "Required: ZABBIX_URL, ZABBIX_TOKEN, ZBX_PROXY_NAME\n")
		fmt.Fprint(os.Stderr, "Optional: ZBX_PROXY_MODE, ZBX_PROXY_ADDRESS, ZBX_PROXY_PORT, ZBX_PSK_ID,\n")
		fmt.Fprint(os.Stderr, "          ZBX_PSK_VALUE, ZBX_PROXY_GROUP, DK_ANSIBLE_ARTIFACTS_DIR\n\n")
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
	fmt.Printf("OK proxy: %s\n", res)
}

func run(ctx context.Context, env config.Lookup) (*zabbix.UpsertResult, error) {
	cfg, err := config.Zabbix(env)
	if err != nil {
		return nil, err
	}
	cfg.Debug = *debug

	psk := artifacts.New(artifacts.Dir(env))
	spec, err := config.Proxy(env, psk)
	if err != nil {
		return nil, err
	}
	if !spec.PSK.Complete() {
		log.Printf("[WARN] No PSK value found for proxy %s, TLS settings will not be changed", spec.Name)
	}

	client, err := zabbix.New(cfg)
	if err != nil {
		return nil, err
	}
	if *debug {
		log.Printf("[DEBUG] Registering proxy %s (mode %s) at %s", spec.Name, spec.Mode, client.Endpoint())
	}
	return client.EnsureProxy(ctx, spec)
}
