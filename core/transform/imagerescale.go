package transform

import (
	"bytes"
	"context"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"runtime"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"bookforge/core/cas"
	"bookforge/core/cache"
	"bookforge/core/config"
	"bookforge/core/ir"
	"bookforge/core/plugins"
	"bookforge/internal/logging"
)

// ImageRescale downscales oversized images to max_image_size (never
// upscaling) and transcodes any format the output side can't accept
// directly to JPEG, rewriting every referring src/href to match.
//
// Cache is an optional SQLite-backed memo of prior transcodes, shared
// across runs of the CLI on the same book; a nil Cache simply
// disables memoization.
type ImageRescale struct {
	Cache *cache.TranscodeCache
}

func (ImageRescale) Name() string                       { return "ImageRescale" }
func (ImageRescale) ShouldRun(opts config.Options) bool { return true }

var acceptedImageFormats = map[string]bool{"jpeg": true, "png": true, "gif": true, "webp": true}

type rescaleJob struct {
	item *ir.ManifestItem
}

type rescaleResult struct {
	item      *ir.ManifestItem
	changed   bool
	data      []byte
	mediaType string
	warning   string
	err       error
}

func (t ImageRescale) Apply(ctx context.Context, book *ir.BookIR, opts config.Options, progress plugins.ProgressFunc) error {
	var jobs []rescaleJob
	for _, item := range book.Manifest.Items() {
		if !item.IsImage() {
			continue
		}
		if item.Data.Kind != ir.DataBinary && item.Data.Kind != ir.DataLazy {
			continue
		}
		jobs = append(jobs, rescaleJob{item: item})
	}
	if len(jobs) == 0 {
		return nil
	}

	workers := runtime.NumCPU()
	results := ir.MapParallel(jobs, workers, func(j rescaleJob) rescaleResult {
		return t.processImage(j.item, opts)
	})

	total := len(results)
	for i, res := range results {
		if res.err != nil {
			return res.err
		}
		if res.warning != "" {
			logging.Warn(res.warning, "href", res.item.Href)
		}
		if res.changed {
			oldHref := res.item.Href
			res.item.Data = ir.BinaryData(res.data)
			res.item.MediaType = res.mediaType
			newExt := extForMediaType(res.mediaType)
			newHref := swapExtension(oldHref, newExt)
			if newHref != oldHref {
				if err := book.Manifest.Rename(res.item.ID, newHref); err == nil {
					rewriteHrefReferences(book, oldHref, newHref)
				}
			}
		}
		if progress != nil && total > 0 {
			progress(float64(i+1)/float64(total), "rescaling images")
		}
	}
	return nil
}

func (t ImageRescale) processImage(item *ir.ManifestItem, opts config.Options) rescaleResult {
	raw, err := readItemBytes(item)
	if err != nil {
		return rescaleResult{item: item, err: err}
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		// Undecodable images are left exactly as found; they are not
		// this transform's concern.
		return rescaleResult{item: item}
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return rescaleResult{item: item, warning: "image has zero dimension, left unchanged"}
	}

	targetW, targetH := w, h
	needsResize := false
	if opts.HasMaxImageSize {
		maxW, maxH := opts.MaxImageSize.Width, opts.MaxImageSize.Height
		if w > maxW || h > maxH {
			scale := float64(maxW) / float64(w)
			if hs := float64(maxH) / float64(h); hs < scale {
				scale = hs
			}
			if scale < 1 {
				targetW = int(float64(w) * scale)
				targetH = int(float64(h) * scale)
				if targetW < 1 {
					targetW = 1
				}
				if targetH < 1 {
					targetH = 1
				}
				needsResize = true
			}
		}
	}

	needsTranscode := !acceptedImageFormats[format]
	if !needsResize && !needsTranscode {
		return rescaleResult{item: item}
	}

	targetMediaType := item.MediaType
	if needsTranscode {
		targetMediaType = "image/jpeg"
	}

	var cacheKey cache.TranscodeKey
	if t.Cache != nil {
		cacheKey = cache.TranscodeKey{
			SourceHash: cas.Hash(raw),
			MaxWidth:   targetW,
			MaxHeight:  targetH,
			Quality:    opts.JPEGQuality,
			TargetMIME: targetMediaType,
		}
		if cached, ok, err := t.Cache.Get(cacheKey); err == nil && ok {
			return rescaleResult{item: item, changed: true, data: cached.Data, mediaType: cached.MediaType}
		}
	}

	out := img
	if needsResize {
		dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		out = dst
	}

	encoded, err := encodeImage(out, targetMediaType, opts.JPEGQuality)
	if err != nil {
		return rescaleResult{item: item, err: err}
	}

	if t.Cache != nil {
		_ = t.Cache.Put(cacheKey, cache.TranscodeResult{Data: encoded, MediaType: targetMediaType, Width: targetW, Height: targetH})
	}
	return rescaleResult{item: item, changed: true, data: encoded, mediaType: targetMediaType}
}

func readItemBytes(item *ir.ManifestItem) ([]byte, error) {
	switch item.Data.Kind {
	case ir.DataBinary:
		return item.Data.Binary, nil
	case ir.DataLazy:
		return os.ReadFile(item.Data.LazyPath)
	default:
		return nil, nil
	}
}

func encodeImage(img image.Image, mediaType string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch mediaType {
	case "image/png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	case "image/gif":
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, err
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func swapExtension(href, newExt string) string {
	if i := strings.LastIndex(href, "."); i >= 0 {
		return href[:i+1] + newExt
	}
	return href + "." + newExt
}

// rewriteHrefReferences updates every url-valued attribute and CSS
// url(...) reference to oldHref across the whole manifest.
func rewriteHrefReferences(book *ir.BookIR, oldHref, newHref string) {
	for _, item := range book.Manifest.Items() {
		switch item.Data.Kind {
		case ir.DataXhtml:
			if !strings.Contains(item.Data.Xhtml, oldHref) {
				continue
			}
			item.Data.Xhtml = strings.ReplaceAll(item.Data.Xhtml, oldHref, newHref)
		case ir.DataCSS:
			if !strings.Contains(item.Data.CSS, oldHref) {
				continue
			}
			item.Data.CSS = strings.ReplaceAll(item.Data.CSS, oldHref, newHref)
		}
	}
	for i, ref := range book.Guide.Refs {
		if ir.StripFragment(ref.Href) == oldHref {
			book.Guide.Refs[i].Href = newHref
		}
	}
	book.TOC.Walk(func(e *ir.TocEntry, depth int) {
		if ir.StripFragment(e.Href) == oldHref {
			e.Href = newHref
		}
	})
}
