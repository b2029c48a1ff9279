package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/flowchat/gateway/internal/requestid"
)

const proxyDialTimeout = 10 * time.Second

// hopHeaders are stripped in both directions per RFC 9110.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// proxyHandler relays requests under /mcp/* to the configured upstream
// and streams the response back chunk by chunk, flushing as data
// arrives so server-sent events pass through unbuffered.
func (g *Gateway) proxyHandler() http.HandlerFunc {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: proxyDialTimeout,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	client := &http.Client{
		Transport: transport,
		// Redirects from the upstream are passed back verbatim.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if g.upstream.URL == "" {
			writeJSONError(w, http.StatusServiceUnavailable, "upstream not configured")
			return
		}

		target := strings.TrimSuffix(g.upstream.URL, "/") + r.URL.Path
		if r.URL.RawQuery != "" {
			// The proxy key may arrive as ?key=; it is a credential like
			// the header below and must not reach the upstream.
			query := r.URL.Query()
			query.Del("key")
			if encoded := query.Encode(); encoded != "" {
				target += "?" + encoded
			}
		}

		req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, "failed to build upstream request")
			return
		}
		copyHeaders(req.Header, r.Header)
		// Never leak the gateway's own credentials upstream.
		req.Header.Del("X-Proxy-Key")
		if g.upstream.Token != "" {
			req.Header.Set("Authorization", "Bearer "+g.upstream.Token)
		}
		if id := requestid.FromContext(r.Context()); id != "" {
			req.Header.Set(requestid.Header, id)
		}

		resp, err := client.Do(req)
		if err != nil {
			status := http.StatusBadGateway
			message := "upstream unreachable"
			var ne net.Error
			if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
				status = http.StatusGatewayTimeout
				message = "upstream timed out"
			}
			g.logger.Warn("proxy upstream failed", "path", r.URL.Path, "error", err)
			writeJSONError(w, status, message)
			return
		}
		defer func() { _ = resp.Body.Close() }()

		copyHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		streamBody(w, resp.Body)
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		skip := false
		for _, h := range hopHeaders {
			if http.CanonicalHeaderKey(key) == h {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

// streamBody copies the upstream body to the client, flushing after
// every chunk. Event streams stay live instead of buffering.
func streamBody(w http.ResponseWriter, body io.Reader) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}
