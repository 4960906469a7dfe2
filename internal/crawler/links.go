package crawler

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
)

var skippedExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".png": true, ".doc": true, ".zip": true, ".exe": true,
}

// RootURL reduces an absolute http(s) URL to scheme://host.
func RootURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute http(s) url", apperrors.ErrInvalidURL, raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// NormalizePath maps "" to "/" and strips a trailing slash from any other
// path, so "/a/" and "/a" name the same page.
func NormalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

// ExtractLinks returns the sorted, distinct normalized paths of the links in
// doc that stay on the site rooted at root. pageURL resolves relative hrefs.
func ExtractLinks(doc *goquery.Document, pageURL, root string) []string {
	base, err := url.Parse(pageURL)
	if err != nil || doc == nil {
		return nil
	}
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.Contains(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if !eligible(abs, root) {
			return
		}
		seen[NormalizePath(abs.Path)] = struct{}{}
	})

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func eligible(u *url.URL, root string) bool {
	abs := u.String()
	if !strings.HasPrefix(abs, root) || abs == root {
		return false
	}
	if u.Scheme+"://"+u.Host != root {
		return false
	}
	lower := strings.ToLower(abs)
	if strings.Contains(lower, "mailto:") || strings.Contains(lower, "javascript:") {
		return false
	}
	return !skippedExtensions[strings.ToLower(path.Ext(u.Path))]
}
