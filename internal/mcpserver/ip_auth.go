package mcpserver

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
)

// IPAuthMiddleware restricts HTTP transport access to an allowlist of
// client IPs and CIDR ranges.
type IPAuthMiddleware struct {
	allowedIPs    []string
	allowedNets   []*net.IPNet
	enableLogging bool
	logger        *log.Logger
}

// NewIPAuthMiddleware parses the allowlist and builds the middleware.
// Entries may be individual IPs or CIDR blocks; individual addresses are
// widened to /32 or /128.
func NewIPAuthMiddleware(allowedIPs []string, enableLogging bool) (*IPAuthMiddleware, error) {
	if len(allowedIPs) == 0 {
		return nil, fmt.Errorf("no allowed IPs specified")
	}

	middleware := &IPAuthMiddleware{
		allowedIPs:    allowedIPs,
		allowedNets:   make([]*net.IPNet, 0, len(allowedIPs)),
		enableLogging: enableLogging,
		logger:        log.New(os.Stderr, "[IP Auth] ", log.LstdFlags),
	}

	for _, ipStr := range allowedIPs {
		ipStr = strings.TrimSpace(ipStr)
		if ipStr == "" {
			continue
		}

		if strings.Contains(ipStr, "/") {
			_, network, err := net.ParseCIDR(ipStr)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR block %s: %v", ipStr, err)
			}
			middleware.allowedNets = append(middleware.allowedNets, network)
			continue
		}

		ip := net.ParseIP(ipStr)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address: %s", ipStr)
		}

		var cidr string
		if ip.To4() != nil {
			cidr = ipStr + "/32"
		} else {
			cidr = ipStr + "/128"
		}

		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("failed to create CIDR for IP %s: %v", ipStr, err)
		}
		middleware.allowedNets = append(middleware.allowedNets, network)
	}

	if middleware.enableLogging {
		middleware.logger.Printf("initialized with %d allowed IP ranges", len(middleware.allowedNets))
	}

	return middleware, nil
}

// SetLogger replaces the middleware's logger.
func (m *IPAuthMiddleware) SetLogger(logger *log.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Middleware returns the HTTP middleware function.
func (m *IPAuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)

		if !m.isIPAllowed(clientIP) {
			if m.enableLogging {
				m.logger.Printf("Access denied for IP: %s (Path: %s, Method: %s, User-Agent: %s)",
					clientIP, r.URL.Path, r.Method, r.Header.Get("User-Agent"))
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			if _, err := w.Write([]byte(`{"error": {"code": -32603, "message": "Access denied: IP not authorized"}}`)); err != nil {
				m.logger.Printf("Failed to write error response: %v", err)
			}
			return
		}

		if m.enableLogging {
			m.logger.Printf("Access granted for IP: %s (Path: %s, Method: %s)",
				clientIP, r.URL.Path, r.Method)
		}

		// Stash the outcome so tool handler spans can annotate with it.
		ctx := withAuthMethod(withClientIP(r.Context(), clientIP), "ip")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isIPAllowed checks if the given IP is in the allowed list
func (m *IPAuthMiddleware) isIPAllowed(ipStr string) bool {
	if ipStr == "" {
		return false
	}

	clientIP := net.ParseIP(ipStr)
	if clientIP == nil {
		if m.enableLogging {
			m.logger.Printf("Failed to parse client IP: %s", ipStr)
		}
		return false
	}

	for _, network := range m.allowedNets {
		if network.Contains(clientIP) {
			return true
		}
	}

	return false
}

// IsIPAllowed reports whether the given IP passes the allowlist.
func (m *IPAuthMiddleware) IsIPAllowed(ipStr string) bool {
	return m.isIPAllowed(ipStr)
}

// GetAllowedIPs returns the configured allowlist entries.
func (m *IPAuthMiddleware) GetAllowedIPs() []string {
	return m.allowedIPs
}
