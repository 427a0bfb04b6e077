package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"stock-availability/internal/logger"
)

// 文档注释：管理端来源 IP 白名单（单 IP + CIDR）
// 背景：手动刷新索引是重操作，除管理令牌外还可限定调用来源（运维机、内网网段）
// 约束：列表为空表示不限制；来源 IP 取 RemoteAddr，指定 realIPHeader 时取该头的首个有效 IP
type Allowlist struct {
	ips          map[string]struct{}
	cidrs        []*net.IPNet
	realIPHeader string
	mu           sync.RWMutex
}

// ParseAllowlist：逗号分隔的 IP 或 CIDR，无法解析的条目忽略
func ParseAllowlist(list, realIPHeader string) *Allowlist {
	a := &Allowlist{ips: map[string]struct{}{}, realIPHeader: strings.TrimSpace(realIPHeader)}
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			if _, n, err := net.ParseCIDR(p); err == nil {
				a.cidrs = append(a.cidrs, n)
			} else {
				logger.L().Warn("allowlist_entry_invalid", "entry", p)
			}
			continue
		}
		if ip := net.ParseIP(p); ip != nil {
			a.ips[ip.String()] = struct{}{}
		} else {
			logger.L().Warn("allowlist_entry_invalid", "entry", p)
		}
	}
	return a
}

func (a *Allowlist) Empty() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.ips) == 0 && len(a.cidrs) == 0
}

func (a *Allowlist) Allowed(ip net.IP) bool {
	if ip == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.ips[ip.String()]; ok {
		return true
	}
	for _, n := range a.cidrs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (a *Allowlist) extractIP(r *http.Request) net.IP {
	if a.realIPHeader != "" {
		if raw := r.Header.Get(a.realIPHeader); raw != "" {
			if ip := net.ParseIP(strings.TrimSpace(strings.Split(raw, ",")[0])); ip != nil {
				return ip
			}
		}
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(host)
}

// Wrap：不在白名单内的请求返回 403
func (a *Allowlist) Wrap(next http.Handler) http.Handler {
	if a.Empty() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := a.extractIP(r)
		if !a.Allowed(ip) {
			logger.L().Warn("admin_source_blocked", "ip", ip, "path", r.URL.Path)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
