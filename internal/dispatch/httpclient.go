package dispatch

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"
)

const maxRedirects = 5

// NewHTTPClient creates the client used for remote tool calls: TLS
// verification on, at most five redirects, and the given overall timeout
// (zero means none).
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
}
