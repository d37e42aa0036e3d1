package httpx

import (
	"net"
	"net/http"
	"time"
)

// Outbound calls to the payment and notification providers must stay
// inside single-digit-second timeouts so a slow provider can never
// pin a request or a sweep.
var defaultClient = &http.Client{
	Timeout: 8 * time.Second,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxConnsPerHost:     100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

func Client() *http.Client { return defaultClient }
