package fetcher

import (
	"context"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync/atomic"
)

// identity 单次尝试使用的出站身份
type identity struct {
	proxy     *url.URL
	userAgent string
}

// rotator 从代理池与 User-Agent 池中为每次尝试挑选身份
type rotator struct {
	random  bool
	proxies []*url.URL
	agents  []string
	next    atomic.Uint64
}

func newRotator(n *Network) *rotator {
	r := &rotator{random: n.Rotation == RotationRandom, agents: n.UserAgents}
	for _, p := range n.Proxies {
		if u, err := url.Parse(p); err == nil {
			r.proxies = append(r.proxies, u)
		}
	}
	return r
}

func (r *rotator) pick() identity {
	id := identity{userAgent: DefaultUserAgent}
	i := r.next.Add(1) - 1
	if len(r.proxies) > 0 {
		id.proxy = r.proxies[r.index(i, len(r.proxies))]
	}
	if len(r.agents) > 0 {
		id.userAgent = r.agents[r.index(i, len(r.agents))]
	}
	return id
}

func (r *rotator) index(i uint64, n int) int {
	if r.random {
		return rand.IntN(n)
	}
	return int(i % uint64(n))
}

type proxyKey struct{}

func withProxy(ctx context.Context, u *url.URL) context.Context {
	if u == nil {
		return ctx
	}
	return context.WithValue(ctx, proxyKey{}, u)
}

// proxyFromContext 作为 http.Transport.Proxy，使用本次尝试选中的代理
func proxyFromContext(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}
