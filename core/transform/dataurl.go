package transform

import (
	"context"
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"

	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/core/xhtml"
)

// DataURL replaces inline data: URIs in url-valued attributes with
// manifest resources, deduplicating identical payloads by content hash.
type DataURL struct{}

func (DataURL) Name() string                       { return "DataURL" }
func (DataURL) ShouldRun(opts config.Options) bool { return true }

var dataURLPattern = regexp.MustCompile(`^data:([^;,]*)((?:;[^,;]+)*),(.*)$`)

var urlValuedAttrs = map[string]bool{
	"src": true, "href": true, "xlink:href": true, "poster": true,
}

var mediaTypeExt = map[string]string{
	"image/jpeg":     "jpg",
	"image/jpg":      "jpg",
	"image/png":      "png",
	"image/gif":      "gif",
	"image/webp":     "webp",
	"image/svg+xml":  "svg",
	"font/woff":      "woff",
	"font/woff2":     "woff2",
	"application/font-woff": "woff",
}

func (DataURL) Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error {
	items := book.Manifest.Items()
	total := len(items)
	for i, item := range items {
		if item.Data.Kind != ir.DataXhtml {
			continue
		}
		doc, err := xhtml.Parse(item.Data.Xhtml)
		if err != nil {
			return err
		}
		changed := false
		xhtml.WalkElements(doc, func(n *xmlquery.Node) bool {
			for idx := range n.Attr {
				name := n.Attr[idx].Name.Local
				if !urlValuedAttrs[name] {
					continue
				}
				value := n.Attr[idx].Value
				if !strings.HasPrefix(value, "data:") {
					continue
				}
				newHref, ok := resolveDataURL(book, value)
				if ok {
					n.Attr[idx].Value = newHref
					changed = true
				}
			}
			return true
		})
		if changed {
			item.Data.Xhtml = xhtml.Serialize(doc)
		}
		if progress != nil && total > 0 {
			progress(float64(i+1)/float64(total), "rewriting data URIs")
		}
	}
	return nil
}

// resolveDataURL decodes a data: URI, materializes it as a deduplicated
// manifest item, and returns its href.
func resolveDataURL(book *ir.BookIR, raw string) (string, bool) {
	m := dataURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	mediaType := m[1]
	if mediaType == "" {
		mediaType = "text/plain"
	}
	params := m[2]
	payload := m[3]

	var data []byte
	if strings.Contains(params, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", false
		}
		data = decoded
	} else {
		decoded, err := url.QueryUnescape(payload)
		if err != nil {
			return "", false
		}
		data = []byte(decoded)
	}

	hash8 := ir.ContentHash8(data)
	ext := extForMediaType(mediaType)
	href := "resources/data-" + hash8 + "." + ext

	if existing, ok := book.Manifest.ByHref(href); ok {
		return existing.Href, true
	}

	id := book.Manifest.GenerateID("data")
	item := &ir.ManifestItem{
		ID:        id,
		Href:      href,
		MediaType: mediaType,
		Data:      ir.BinaryData(data),
	}
	if err := book.Manifest.Add(item); err != nil {
		return "", false
	}
	return href, true
}

func extForMediaType(mt string) string {
	if ext, ok := mediaTypeExt[mt]; ok {
		return ext
	}
	if i := strings.Index(mt, "/"); i >= 0 {
		sub := mt[i+1:]
		if sub != "" {
			return sub
		}
	}
	return "bin"
}
