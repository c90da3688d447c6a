package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsRules holds one parsed robots.txt per host. Hosts whose robots.txt
// cannot be fetched are treated as unrestricted.
type robotsRules struct {
	client    *http.Client
	userAgent string
	agent     string

	mu    sync.Mutex
	hosts map[string]*robotstxt.Group
}

func newRobotsRules(client *http.Client, userAgent string) *robotsRules {
	return &robotsRules{
		client:    client,
		userAgent: userAgent,
		agent:     agentName(userAgent),
		hosts:     make(map[string]*robotstxt.Group),
	}
}

// check reports whether articleURL may be fetched and the crawl delay the
// host asks for. The delay is only returned the first time a host is seen.
func (r *robotsRules) check(ctx context.Context, articleURL string) (bool, time.Duration, error) {
	u, err := url.Parse(articleURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}

	r.mu.Lock()
	group, seen := r.hosts[u.Host]
	r.mu.Unlock()

	var delay time.Duration
	if !seen {
		group = r.load(ctx, u)
		r.mu.Lock()
		r.hosts[u.Host] = group
		r.mu.Unlock()
		if group != nil {
			delay = group.CrawlDelay
		}
	}

	if group == nil {
		return true, 0, nil
	}
	return group.Test(u.EscapedPath()), delay, nil
}

func (r *robotsRules) load(ctx context.Context, u *url.URL) *robotstxt.Group {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(r.agent)
}

// agentName reduces a user agent to the product token robots.txt groups
// match on, e.g. "factprobe/0.1 (+url)" becomes "factprobe"
func agentName(ua string) string {
	fields := strings.Fields(ua)
	if len(fields) == 0 {
		return ua
	}
	name, _, _ := strings.Cut(fields[0], "/")
	return name
}
