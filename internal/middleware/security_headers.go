// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// DefaultCSP locks the JSON API down: no active content, no framing.
const DefaultCSP = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeaders returns a middleware that adds common security headers to all responses.
// It requires trustedProxies to safely evaluate X-Forwarded-Proto headers.
func SecurityHeaders(csp string, trustedProxies []*net.IPNet) func(http.Handler) http.Handler {
	if csp == "" {
		csp = DefaultCSP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Strict Transport Security (HSTS)
			// Only honor X-Forwarded-Proto if the remote IP is a trusted proxy.
			isHTTPS := r.TLS != nil
			if !isHTTPS {
				proto := r.Header.Get("X-Forwarded-Proto")
				if strings.EqualFold(proto, "https") {
					ipStr, _, _ := net.SplitHostPort(r.RemoteAddr)
					if ipStr == "" {
						ipStr = r.RemoteAddr
					}
					ip := net.ParseIP(ipStr)
					if ip != nil && IsIPAllowed(ip, trustedProxies) {
						isHTTPS = true
					}
				}
			}

			if isHTTPS {
				w.Header().Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
			}

			w.Header().Set("Content-Security-Policy", csp)
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")

			next.ServeHTTP(w, r)
		})
	}
}

// IsIPAllowed reports whether ip falls inside any of the given networks.
func IsIPAllowed(ip net.IP, allowed []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range allowed {
		if n != nil && n.Contains(ip) {
			return true
		}
	}
	return false
}

// ParseTrustedProxies parses CIDR strings into networks. Plain IPs get a
// host mask so "10.0.0.5" behaves like "10.0.0.5/32".
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, ipnet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipnet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", entry)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}
