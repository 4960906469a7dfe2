package crawler

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/errors"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"":       "/",
		"/":      "/",
		"//":     "/",
		"/a":     "/a",
		"/a/":    "/a",
		"/a/b//": "/a/b",
	}
	for in, want := range tests {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRootURL(t *testing.T) {
	got, err := RootURL("https://example.com/a/b?q=1")
	if err != nil || got != "https://example.com" {
		t.Errorf("RootURL() = %q, %v", got, err)
	}
	for _, bad := range []string{"ftp://example.com/x", "/relative", "http://"} {
		if _, err := RootURL(bad); !errors.Is(err, apperrors.ErrInvalidURL) {
			t.Errorf("RootURL(%q) error = %v, want ErrInvalidURL", bad, err)
		}
	}
}

func TestExtractLinks(t *testing.T) {
	const page = `<html><body>
		<a href="/news/">news</a>
		<a href="/news">news again</a>
		<a href="contacts">relative</a>
		<a href="https://site.test/about?x=1">query</a>
		<a href="https://site.test">root</a>
		<a href="https://site.test.evil.test/x">lookalike</a>
		<a href="http://site.test/plain">other scheme</a>
		<a href="/files/report.pdf">pdf</a>
		<a href="/img/a.JPG">jpg</a>
		<a href="/setup.exe">exe</a>
		<a href="/page#part">fragment</a>
		<a href="mailto:admin@site.test">mail</a>
		<a href="javascript:void(0)">js</a>
		<a>no href</a>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	got := ExtractLinks(doc, "https://site.test/section/", "https://site.test")
	want := []string{"/about", "/news", "/section/contacts"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractLinks() = %v, want %v", got, want)
	}
}
