package deps

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/mod/module"

	"github.com/go-ports/contextmgr/internal/config"
	"github.com/go-ports/contextmgr/internal/httpjson"
)

// GoProxy queries a Go module proxy (GOPROXY protocol).
type GoProxy struct {
	BaseURL string
	client  *http.Client
}

// NewGoProxy returns a GoProxy client for baseURL.
func NewGoProxy(baseURL string) *GoProxy {
	return &GoProxy{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Latest calls GET <proxy>/<escaped module>/@latest.
func (g *GoProxy) Latest(ctx context.Context, modulePath string) (string, error) {
	escaped, err := module.EscapePath(modulePath)
	if err != nil {
		return "", fmt.Errorf("goproxy latest: %w", err)
	}
	var resp struct {
		Version string `json:"Version"`
	}
	if err := httpjson.Do(ctx, g.client, http.MethodGet, g.BaseURL+"/"+escaped+"/@latest", nil, nil, &resp); err != nil {
		return "", fmt.Errorf("goproxy latest %s: %w", modulePath, err)
	}
	if resp.Version == "" {
		return "", fmt.Errorf("goproxy latest %s: empty version", modulePath)
	}
	return resp.Version, nil
}

// PyPI queries the PyPI JSON API.
type PyPI struct {
	BaseURL string
	client  *http.Client
}

// NewPyPI returns a PyPI client for baseURL (e.g. https://pypi.org/pypi).
func NewPyPI(baseURL string) *PyPI {
	return &PyPI{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Latest calls GET <base>/<name>/json and returns info.version.
func (p *PyPI) Latest(ctx context.Context, name string) (string, error) {
	var resp struct {
		Info struct {
			Version string `json:"version"`
		} `json:"info"`
	}
	if err := httpjson.Do(ctx, p.client, http.MethodGet, p.BaseURL+"/"+url.PathEscape(name)+"/json", nil, nil, &resp); err != nil {
		return "", fmt.Errorf("pypi latest %s: %w", name, err)
	}
	if resp.Info.Version == "" {
		return "", fmt.Errorf("pypi latest %s: empty version", name)
	}
	return resp.Info.Version, nil
}

// NewIndex returns the index serving ecosystem, using the URLs in cfg.
func NewIndex(cfg *config.Config, ecosystem string) (Index, error) {
	switch ecosystem {
	case EcosystemGo:
		return NewGoProxy(cfg.Deps.GoProxyURL), nil
	case EcosystemPython:
		return NewPyPI(cfg.Deps.PyPIURL), nil
	default:
		return nil, fmt.Errorf("deps.NewIndex: no index for ecosystem %q", ecosystem)
	}
}
