package web

import (
	"fmt"
	"html/template"
)

const (
	BootstrapVersion = "5.3.3"
	bootstrapCDN     = "https://cdn.jsdelivr.net/npm/bootstrap@%s/dist"
)

// Bootstrap provides the UI framework asset includes for the base layout
type Bootstrap struct {
	Version string
	// ServeLocal switches from the CDN to assets under /static/bootstrap
	ServeLocal bool
}

// NewBootstrap creates the default CDN-served Bootstrap
func NewBootstrap() *Bootstrap {
	return &Bootstrap{Version: BootstrapVersion}
}

func (b *Bootstrap) base() string {
	if b.ServeLocal {
		return "/static/bootstrap"
	}
	return fmt.Sprintf(bootstrapCDN, b.Version)
}

// CSS returns the stylesheet link tag
func (b *Bootstrap) CSS() template.HTML {
	return template.HTML(fmt.Sprintf(`<link rel="stylesheet" href="%s/css/bootstrap.min.css">`, b.base()))
}

// JS returns the script tag
func (b *Bootstrap) JS() template.HTML {
	return template.HTML(fmt.Sprintf(`<script src="%s/js/bootstrap.bundle.min.js"></script>`, b.base()))
}

// FuncMap returns the bootstrap_css and bootstrap_js helpers
func (b *Bootstrap) FuncMap() template.FuncMap {
	return template.FuncMap{
		"bootstrap_css": b.CSS,
		"bootstrap_js":  b.JS,
	}
}
