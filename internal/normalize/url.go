package normalize

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Cover image defaults.
const (
	CoverHost         = "contents.kyobobook.co.kr"
	DefaultCoverWidth = 458
	minCoverWidth     = 50
)

var (
	proxySizeSegment = regexp.MustCompile(`/sih/fit-in/(\d+)x(\d+)/`)
	imageExtensions  = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
	placeholderHints = []string{"noimage", "no_image", "no-image", "blank", "spacer", "pixel", "1x1", "loading", "icon", "logo", "btn_", "badge"}
)

// ResolveURL resolves ref against base. Protocol-relative references get
// https. Non-HTTP schemes and unparsable input yield "".
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "#" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if refURL.Scheme != "" && refURL.Scheme != "http" && refURL.Scheme != "https" {
		return ""
	}
	if refURL.IsAbs() {
		return refURL.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return ""
	}
	return baseURL.ResolveReference(refURL).String()
}

// CoverURL builds the deterministic cover URL for a barcode or product id.
func CoverURL(barcode string, width int) string {
	if barcode == "" {
		return ""
	}
	if width <= 0 {
		width = DefaultCoverWidth
	}
	return fmt.Sprintf("https://%s/sih/fit-in/%dx0/pdt/%s.jpg", CoverHost, width, barcode)
}

// IsValidImageURL rejects non-HTTP URLs, placeholders, icons and images the
// proxy is asked to shrink below a usable size.
func IsValidImageURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	lower := strings.ToLower(u.Path)
	for _, hint := range placeholderHints {
		if strings.Contains(lower, hint) {
			return false
		}
	}
	if m := proxySizeSegment.FindStringSubmatch(u.Path); m != nil {
		if w, err := strconv.Atoi(m[1]); err == nil && w > 0 && w < minCoverWidth {
			return false
		}
	}
	if imageExtensions[path.Ext(lower)] {
		return true
	}
	// Image proxies often serve without an extension.
	return strings.Contains(lower, "/pdt/") || strings.Contains(lower, "/sih/")
}

// OptimizeImageURL rewrites the image proxy size segment to request the
// given width with proportional height. Other URLs are returned unchanged.
func OptimizeImageURL(raw string, width int) string {
	if width <= 0 {
		width = DefaultCoverWidth
	}
	if strings.HasPrefix(raw, "http://") && strings.Contains(raw, CoverHost) {
		raw = "https://" + strings.TrimPrefix(raw, "http://")
	}
	return proxySizeSegment.ReplaceAllString(raw, fmt.Sprintf("/sih/fit-in/%dx0/", width))
}

// SameSite reports whether host belongs to the given registrable domain.
func SameSite(host, domain string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
