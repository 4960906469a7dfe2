package coordinator

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/internal/crawler"
	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
)

const maxURLLength = 2048

// pageRef is a validated page address.
type pageRef struct {
	root string
	path string
}

func (p pageRef) url() string {
	return p.root + p.path
}

// validatePageURL checks a user supplied page URL and splits it into the
// site root and the normalized path.
func validatePageURL(raw string) (pageRef, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return pageRef{}, invalid("url must not be empty")
	case !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://"):
		return pageRef{}, invalid("url must start with http:// or https://")
	case len(raw) > maxURLLength:
		return pageRef{}, invalid("url is too long")
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return pageRef{}, invalid("url is malformed")
	}
	root, err := crawler.RootURL(raw)
	if err != nil {
		return pageRef{}, invalid("url is malformed")
	}
	return pageRef{root: root, path: crawler.NormalizePath(u.Path)}, nil
}

func invalid(message string) error {
	return apperrors.New(apperrors.ErrInvalidURL, http.StatusBadRequest, message)
}
