// Command healthcheck probes the notifier's HTTP server for container health
// checks. It exits non-zero when the probe fails.
//
//	healthcheck            # GET /healthz on HTTP_ADDR
//	healthcheck -ready     # GET /readyz instead
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	ready := flag.Bool("ready", false, "probe /readyz instead of /healthz")
	flag.Parse()

	url := probeURL(os.Getenv("HTTP_ADDR"), *ready)
	if err := probe(context.Background(), url, 3*time.Second); err != nil {
		log.Printf("healthcheck failed: %v", err)
		os.Exit(1)
	}
}

// probeURL turns a listen address like ":8080" or "0.0.0.0:9000" into a
// loopback URL.
func probeURL(addr string, ready bool) string {
	if addr == "" {
		addr = ":8080"
	}
	host, port := "localhost", addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		if h := addr[:i]; h != "" && h != "0.0.0.0" && h != "[::]" {
			host = h
		}
		port = addr[i+1:]
	}
	path := "/healthz"
	if ready {
		path = "/readyz"
	}
	return fmt.Sprintf("http://%s:%s%s", host, port, path)
}

func probe(ctx context.Context, url string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return nil
}
