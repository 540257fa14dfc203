//go:build integration

package testutil

import (
	"fmt"
	"net"
	"strings"
)

// splitEndpoint parses the "host:port" endpoint testcontainers reports, with or
// without a scheme.
func splitEndpoint(endpoint string) (string, string, error) {
	if i := strings.Index(endpoint, "://"); i >= 0 {
		endpoint = endpoint[i+3:]
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("endpoint %q: %w", endpoint, err)
	}

	return host, port, nil
}
