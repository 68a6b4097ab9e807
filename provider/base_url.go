package provider

import (
	"net/url"
	"strings"

	"github.com/linanwx/leadbridge/internal/runtimecfg"
	"github.com/linanwx/leadbridge/logger"
)

// assistantsPaths are endpoint paths that show up in pasted base URLs.
var assistantsPaths = []string{"/threads", "/assistants", "/vector_stores"}

// apiBaseURL reduces a configured API base to the root the SDK appends
// endpoint paths to. Empty or host-less input yields the default base.
func apiBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return runtimecfg.RuntimeDefaultAPIBase
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		logger.Warn("ignoring invalid API base", "apiBase", raw)
		return runtimecfg.RuntimeDefaultAPIBase
	}

	p := strings.TrimRight(u.Path, "/")
	for _, ep := range assistantsPaths {
		i := strings.Index(p, ep)
		if i < 0 {
			continue
		}
		if end := i + len(ep); end == len(p) || p[end] == '/' {
			p = p[:i]
			break
		}
	}
	u.Path = strings.TrimRight(p, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
