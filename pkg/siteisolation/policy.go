// Package siteisolation assigns site tags to frame URLs. A site is the
// scheme plus registrable domain (eTLD+1) of a URL, except for hosts
// matched by an isolation pattern, which get a site of their own.
package siteisolation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"golang.org/x/net/publicsuffix"

	"github.com/entrhq/navhistory/pkg/history"
)

// Site is what a tag stands for.
type Site struct {
	Tag      history.SiteTag
	Scheme   string
	Domain   string
	Isolated bool
}

// Policy implements history.SitePolicy. Tags are handles into the
// policy's registry and can be turned back into a Site with Resolve.
type Policy struct {
	isolateAll bool
	patterns   []glob.Glob

	mu    sync.RWMutex
	sites map[history.SiteTag]Site
}

// New compiles the isolation patterns. With isolateAll every host is its
// own site.
func New(isolateAll bool, patterns []string) (*Policy, error) {
	p := &Policy{
		isolateAll: isolateAll,
		sites:      make(map[history.SiteTag]Site),
	}
	for _, pattern := range patterns {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid isolation pattern '%s': %w", pattern, err)
		}
		p.patterns = append(p.patterns, g)
	}
	return p, nil
}

// SiteFor returns the tag of the site rawURL belongs to. URLs without a
// host share one site per scheme; unparseable URLs have no site.
func (p *Policy) SiteFor(rawURL string) history.SiteTag {
	site, ok := p.compute(rawURL)
	if !ok {
		return ""
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.sites[site.Tag]; !exists {
		p.sites[site.Tag] = site
	}
	return site.Tag
}

// Resolve looks a tag handed out by SiteFor up again.
func (p *Policy) Resolve(tag history.SiteTag) (Site, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sites[tag]
	return s, ok
}

// IsIsolated reports whether host must not share a site with its
// registrable domain.
func (p *Policy) IsIsolated(host string) bool {
	if p.isolateAll {
		return true
	}
	host = strings.ToLower(host)
	for _, g := range p.patterns {
		if g.Match(host) {
			return true
		}
	}
	return false
}

// Len returns the number of distinct sites handed out so far.
func (p *Policy) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sites)
}

func (p *Policy) compute(rawURL string) (Site, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return Site{}, false
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Site{Tag: history.SiteTag(scheme + ":"), Scheme: scheme}, true
	}

	site := Site{Scheme: scheme, Domain: registrableDomain(host)}
	if p.IsIsolated(host) {
		site.Domain = host
		site.Isolated = true
	}
	site.Tag = history.SiteTag(scheme + "://" + site.Domain)
	return site, true
}

// registrableDomain returns host's eTLD+1. IP addresses, single-label
// hosts and bare public suffixes are their own domain.
func registrableDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
