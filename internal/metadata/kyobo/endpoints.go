package kyobo

import (
	"net/url"
	"strings"
)

// SiteDomain is the registrable domain every scraped endpoint lives under.
const SiteDomain = "kyobobook.co.kr"

// Endpoints holds the base URLs of the bookstore. Tests point them at an
// httptest server.
type Endpoints struct {
	Search  string // search host, e.g. https://search.kyobobook.co.kr
	Product string // product host serving detail pages and the contents API
	Home    string // site root used by health checks
	Site    string // domain that discovered endpoints must belong to
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Search:  "https://search." + SiteDomain,
		Product: "https://product." + SiteDomain,
		Home:    "https://www." + SiteDomain + "/",
		Site:    SiteDomain,
	}
}

// SearchURL builds the keyword search URL for query.
func (e Endpoints) SearchURL(query string) string {
	q := url.Values{}
	q.Set("keyword", query)
	q.Set("target", "total")
	q.Set("gbCode", "TOT")
	return strings.TrimRight(e.Search, "/") + "/search?" + q.Encode()
}

// DetailURL builds the detail page URL for a product id.
func (e Endpoints) DetailURL(productID string) string {
	return strings.TrimRight(e.Product, "/") + "/detail/S" + strings.TrimPrefix(productID, "S")
}

// TOCURL builds the contents API URL for a product id.
func (e Endpoints) TOCURL(productID string) string {
	return strings.TrimRight(e.Product, "/") + "/api/product/S" + strings.TrimPrefix(productID, "S") + "/toc"
}

// siteDomain returns Site, or the host of Product when Site is unset.
func (e Endpoints) siteDomain() string {
	if e.Site != "" {
		return e.Site
	}
	if u, err := url.Parse(e.Product); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return SiteDomain
}
