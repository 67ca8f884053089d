package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cwmpsim/cwmpsim-go/pkg/discovery"
)

func discover(ctx context.Context, cfg *Config, w io.Writer) error {
	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{Interface: cfg.Interface})
	found, err := browser.Collect(ctx, cfg.Discover)
	if err != nil {
		return err
	}
	printServices(w, found)
	return nil
}

func printServices(w io.Writer, services []*discovery.DeviceService) {
	if len(services) == 0 {
		fmt.Fprintln(w, "No devices found")
		return
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Serial < services[j].Serial })
	for _, svc := range services {
		fmt.Fprintf(w, "%s  %s/%s  %s\n", svc.Serial, svc.Manufacturer, svc.ProductClass, svc.OUI)
		urls := svc.ConnectionRequestURLs()
		if len(urls) == 0 {
			fmt.Fprintf(w, "    %s:%d\n", svc.Host, svc.Port)
			continue
		}
		fmt.Fprintf(w, "    %s\n", strings.Join(urls, "\n    "))
	}
}
