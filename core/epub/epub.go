// Package epub provides a pure Go EPUB 2/3 container reader and writer
// operating directly on ir.BookIR, used by formats/epub's InputPlugin
// and OutputPlugin.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"bookforge/core/config"
	bferrors "bookforge/core/errors"
	"bookforge/core/ir"
	bfxml "bookforge/core/xml"
)

const (
	oebpsDir  = "OEBPS"
	opfPath   = oebpsDir + "/content.opf"
	ncxPath   = oebpsDir + "/toc.ncx"
	navPath   = oebpsDir + "/nav.xhtml"
	ncxID     = "ncx"
	navID     = "nav"
	dcNS      = "http://purl.org/dc/elements/1.1/"
	opfNS     = "http://www.idpf.org/2007/opf"
	opsNS     = "http://www.idpf.org/2007/ops"
	ncxNS     = "http://www.daisy.org/z3986/2005/ncx/"
	xhtmlType = "application/xhtml+xml"
)

// Write serializes book as a complete EPUB archive per opts.EpubVersion.
// A nav.xhtml is emitted for EPUB 3; toc.ncx is always emitted for
// backward-compatible readers.
func Write(book *ir.BookIR, opts config.Options) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	mw, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return nil, bferrors.NewIO("write", "mimetype", err)
	}
	if _, err := mw.Write([]byte("application/epub+zip")); err != nil {
		return nil, bferrors.NewIO("write", "mimetype", err)
	}

	if err := writeContainerXML(zw); err != nil {
		return nil, err
	}
	if err := writeContentOPF(zw, book, opts); err != nil {
		return nil, err
	}
	if err := writeTocNCX(zw, book); err != nil {
		return nil, err
	}
	if opts.EpubVersion == config.EpubVersion3 {
		if err := writeNavXHTML(zw, book); err != nil {
			return nil, err
		}
	}
	if err := writeManifestItems(zw, book); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, bferrors.NewIO("close", "", err)
	}
	return buf.Bytes(), nil
}

func writeContainerXML(zw *zip.Writer) error {
	w, err := zw.Create("META-INF/container.xml")
	if err != nil {
		return bferrors.NewIO("write", "META-INF/container.xml", err)
	}
	const container = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`
	_, err = w.Write([]byte(container))
	return err
}

func writeContentOPF(zw *zip.Writer, book *ir.BookIR, opts config.Options) error {
	w, err := zw.Create(opfPath)
	if err != nil {
		return bferrors.NewIO("write", opfPath, err)
	}

	navHref, _ := navRefHref(book)

	var manifestItems strings.Builder
	manifestItems.WriteString(fmt.Sprintf("    <item id=%q href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n", ncxID))
	if opts.EpubVersion == config.EpubVersion3 {
		manifestItems.WriteString(fmt.Sprintf("    <item id=%q href=\"nav.xhtml\" media-type=%q properties=\"nav\"/>\n", navID, xhtmlType))
	}
	for _, item := range book.Manifest.Items() {
		props := ""
		if navHref != "" && item.Href == navHref {
			continue // already emitted as the nav doc above
		}
		if ref, ok := book.Guide.Get(ir.GuideCover); ok && ref.Href == item.Href && item.IsImage() {
			props = ` properties="cover-image"`
		}
		manifestItems.WriteString(fmt.Sprintf("    <item id=%q href=%q media-type=%q%s/>\n",
			item.ID, item.Href, item.MediaType, props))
	}

	var spineItems strings.Builder
	for _, si := range book.Spine.Items {
		linear := ""
		if !si.Linear {
			linear = ` linear="no"`
		}
		spineItems.WriteString(fmt.Sprintf("    <itemref idref=%q%s/>\n", si.IDRef, linear))
	}

	var guideRefs strings.Builder
	if len(book.Guide.Refs) > 0 {
		guideRefs.WriteString("  <guide>\n")
		for _, ref := range book.Guide.Refs {
			guideRefs.WriteString(fmt.Sprintf("    <reference type=%q title=%q href=%q/>\n",
				string(ref.Type), ref.Title, ref.Href))
		}
		guideRefs.WriteString("  </guide>\n")
	}

	identBlock, uniqueID := identifierBlock(&book.Metadata)

	var authorLines strings.Builder
	for _, a := range book.Metadata.Authors {
		authorLines.WriteString(fmt.Sprintf("    <dc:creator>%s</dc:creator>\n", xmlEscape(a)))
	}

	opf := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="%s" unique-identifier="%s">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
%s    <dc:title>%s</dc:title>
%s    <dc:language>%s</dc:language>
    <dc:date>%s</dc:date>
    <dc:publisher>%s</dc:publisher>
    <dc:description>%s</dc:description>
  </metadata>
  <manifest>
%s  </manifest>
  <spine toc="ncx">
%s  </spine>
%s</package>`,
		xmlEscape(string(opts.EpubVersion)),
		uniqueID,
		identBlock,
		xmlEscape(book.Metadata.Title),
		authorLines.String(),
		xmlEscape(book.Metadata.Language),
		xmlEscape(book.Metadata.Date),
		xmlEscape(book.Metadata.Publisher),
		xmlEscape(book.Metadata.Description),
		manifestItems.String(),
		spineItems.String(),
		guideRefs.String(),
	)

	_, err = w.Write([]byte(opf))
	return err
}

// identifierBlock renders every dc:identifier and picks the unique-identifier
// id, preferring the "uuid" scheme MergeMetadata guarantees is present.
func identifierBlock(m *ir.Metadata) (block, uniqueID string) {
	schemes := ir.SortedIdentifierSchemes(m)
	var b strings.Builder
	uniqueID = "BookId"
	if len(schemes) > 0 {
		uniqueID = "id-1"
	}
	for i, scheme := range schemes {
		value, _ := m.Identifier(scheme)
		id := fmt.Sprintf("id-%d", i+1)
		if scheme == "uuid" {
			id = "BookId"
			uniqueID = "BookId"
		}
		b.WriteString(fmt.Sprintf("    <dc:identifier id=%q opf:scheme=%q>%s</dc:identifier>\n",
			id, scheme, xmlEscape(value)))
	}
	return b.String(), uniqueID
}

func navRefHref(book *ir.BookIR) (string, bool) {
	if ref, ok := book.Guide.Get(ir.GuideTOC); ok {
		return ref.Href, true
	}
	return "", false
}

func writeTocNCX(zw *zip.Writer, book *ir.BookIR) error {
	w, err := zw.Create(ncxPath)
	if err != nil {
		return bferrors.NewIO("write", ncxPath, err)
	}

	uid := "unknown"
	if v, ok := book.Metadata.Identifier("uuid"); ok {
		uid = v
	}

	playOrder := 0
	var renderEntries func(entries []*ir.TocEntry, depth int) string
	renderEntries = func(entries []*ir.TocEntry, depth int) string {
		var b strings.Builder
		indent := strings.Repeat("  ", depth)
		for _, e := range entries {
			playOrder++
			id := e.ID
			if id == "" {
				id = fmt.Sprintf("navpoint-%d", playOrder)
			}
			b.WriteString(fmt.Sprintf("%s<navPoint id=%q playOrder=%q>\n", indent, id, strconv.Itoa(playOrder)))
			b.WriteString(fmt.Sprintf("%s  <navLabel><text>%s</text></navLabel>\n", indent, xmlEscape(e.Title)))
			b.WriteString(fmt.Sprintf("%s  <content src=%q/>\n", indent, e.Href))
			if len(e.Children) > 0 {
				b.WriteString(renderEntries(e.Children, depth+1))
			}
			b.WriteString(indent + "</navPoint>\n")
		}
		return b.String()
	}

	ncx := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content=%q/>
    <meta name="dtb:depth" content="4"/>
    <meta name="dtb:totalPageCount" content="0"/>
    <meta name="dtb:maxPageNumber" content="0"/>
  </head>
  <docTitle><text>%s</text></docTitle>
  <navMap>
%s  </navMap>
</ncx>`, uid, xmlEscape(book.Metadata.Title), renderEntries(book.TOC.Entries, 2))

	_, err = w.Write([]byte(ncx))
	return err
}

func writeNavXHTML(zw *zip.Writer, book *ir.BookIR) error {
	w, err := zw.Create(navPath)
	if err != nil {
		return bferrors.NewIO("write", navPath, err)
	}

	var renderEntries func(entries []*ir.TocEntry) string
	renderEntries = func(entries []*ir.TocEntry) string {
		var b strings.Builder
		b.WriteString("<ol>\n")
		for _, e := range entries {
			b.WriteString(fmt.Sprintf("<li><a href=%q>%s</a>", e.Href, xmlEscape(e.Title)))
			if len(e.Children) > 0 {
				b.WriteString(renderEntries(e.Children))
			}
			b.WriteString("</li>\n")
		}
		b.WriteString("</ol>\n")
		return b.String()
	}

	var landmarks strings.Builder
	if len(book.Guide.Refs) > 0 {
		landmarks.WriteString(`  <nav epub:type="landmarks" id="landmarks" hidden="">` + "\n    <ol>\n")
		for _, ref := range book.Guide.Refs {
			landmarks.WriteString(fmt.Sprintf(`      <li><a epub:type=%q href=%q>%s</a></li>`+"\n",
				string(ref.Type), ref.Href, xmlEscape(ref.Title)))
		}
		landmarks.WriteString("    </ol>\n  </nav>\n")
	}

	nav := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>%s</title>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>%s</h1>
    %s
  </nav>
%s</body>
</html>`, xmlEscape(book.Metadata.Title), xmlEscape(book.Metadata.Title), renderEntries(book.TOC.Entries), landmarks.String())

	_, err = w.Write([]byte(nav))
	return err
}

func writeManifestItems(zw *zip.Writer, book *ir.BookIR) error {
	for _, item := range book.Manifest.Items() {
		w, err := zw.Create(oebpsDir + "/" + item.Href)
		if err != nil {
			return bferrors.NewIO("write", item.Href, err)
		}
		switch item.Data.Kind {
		case ir.DataXhtml:
			if _, err := w.Write([]byte(item.Data.Xhtml)); err != nil {
				return bferrors.NewIO("write", item.Href, err)
			}
		case ir.DataCSS:
			if _, err := w.Write([]byte(item.Data.CSS)); err != nil {
				return bferrors.NewIO("write", item.Href, err)
			}
		case ir.DataBinary:
			if _, err := w.Write(item.Data.Binary); err != nil {
				return bferrors.NewIO("write", item.Href, err)
			}
		case ir.DataLazy:
			data, err := os.ReadFile(item.Data.LazyPath)
			if err != nil {
				return bferrors.NewIO("read", item.Data.LazyPath, err)
			}
			if _, err := w.Write(data); err != nil {
				return bferrors.NewIO("write", item.Href, err)
			}
		}
	}
	return nil
}

func xmlEscape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}

// --- Reading ---

type containerDoc struct {
	RootFiles struct {
		RootFile []struct {
			FullPath string `xml:"full-path,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

type opfDoc struct {
	Metadata opfMetadata `xml:"metadata"`
	Manifest struct {
		Items []opfItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []opfItemRef `xml:"itemref"`
	} `xml:"spine"`
	Guide *struct {
		References []opfReference `xml:"reference"`
	} `xml:"guide"`
}

type opfMetadata struct {
	Title       []string        `xml:"title"`
	Creator     []string        `xml:"creator"`
	Language    []string        `xml:"language"`
	Description []string        `xml:"description"`
	Publisher   []string        `xml:"publisher"`
	Date        []string        `xml:"date"`
	Identifier  []opfIdentifier `xml:"identifier"`
}

type opfIdentifier struct {
	Scheme string `xml:"scheme,attr"`
	ID     string `xml:"id,attr"`
	Value  string `xml:",chardata"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

type opfReference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

type ncxDoc struct {
	NavMap struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	ID       string `xml:"id,attr"`
	NavLabel struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

// Read parses an EPUB archive into a fresh BookIR. Item media types drive
// the ManifestData variant: application/xhtml+xml becomes DataXhtml,
// text/css becomes DataCSS, everything else DataBinary.
func Read(data []byte) (*ir.BookIR, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, bferrors.NewParse("formats/epub", "not a valid zip archive", err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	containerBytes, err := readZipFile(files, "META-INF/container.xml")
	if err != nil {
		return nil, bferrors.NewParse("formats/epub", "missing META-INF/container.xml", err)
	}
	if err := validateXML("container.xml", containerBytes); err != nil {
		return nil, err
	}
	var container containerDoc
	if err := xml.Unmarshal(containerBytes, &container); err != nil {
		return nil, bferrors.NewParse("formats/epub", "malformed container.xml", err)
	}
	if len(container.RootFiles.RootFile) == 0 {
		return nil, bferrors.NewParse("formats/epub", "container.xml has no rootfile", nil)
	}
	opfFullPath := container.RootFiles.RootFile[0].FullPath
	opfDir := path.Dir(opfFullPath)

	opfBytes, err := readZipFile(files, opfFullPath)
	if err != nil {
		return nil, bferrors.NewParse("formats/epub", "missing "+opfFullPath, err)
	}
	if err := validateXML("content.opf", opfBytes); err != nil {
		return nil, err
	}
	var opf opfDoc
	if err := xml.Unmarshal(opfBytes, &opf); err != nil {
		return nil, bferrors.NewParse("formats/epub", "malformed content.opf", err)
	}

	book := ir.New()
	if len(opf.Metadata.Title) > 0 {
		book.Metadata.Title = opf.Metadata.Title[0]
	}
	book.Metadata.Authors = append(book.Metadata.Authors, opf.Metadata.Creator...)
	if len(opf.Metadata.Language) > 0 {
		book.Metadata.Language = opf.Metadata.Language[0]
	}
	if len(opf.Metadata.Description) > 0 {
		book.Metadata.Description = opf.Metadata.Description[0]
	}
	if len(opf.Metadata.Publisher) > 0 {
		book.Metadata.Publisher = opf.Metadata.Publisher[0]
	}
	if len(opf.Metadata.Date) > 0 {
		book.Metadata.Date = opf.Metadata.Date[0]
	}
	for i, ident := range opf.Metadata.Identifier {
		scheme := ident.Scheme
		if scheme == "" {
			scheme = fmt.Sprintf("id-%d", i+1)
		}
		book.Metadata.SetIdentifier(scheme, strings.TrimSpace(ident.Value))
	}

	navHref := ""
	idToHref := make(map[string]string, len(opf.Manifest.Items))
	for _, item := range opf.Manifest.Items {
		idToHref[item.ID] = item.Href
		if item.ID == navID || strings.Contains(item.Properties, "nav") {
			navHref = item.Href
			continue // the nav doc is reconstructed as TOC/Guide, not kept as a manifest resource
		}
		if item.ID == ncxID || item.MediaType == "application/x-dtbncx+xml" {
			continue
		}
		full := path.Join(opfDir, item.Href)
		raw, err := readZipFile(files, full)
		if err != nil {
			return nil, bferrors.NewIO("read", full, err)
		}
		var itemData ir.ManifestData
		switch {
		case item.MediaType == xhtmlType:
			itemData = ir.XhtmlData(string(raw))
		case item.MediaType == "text/css":
			itemData = ir.CSSData(string(raw))
		default:
			itemData = ir.BinaryData(raw)
		}
		if err := book.Manifest.Add(&ir.ManifestItem{
			ID:        item.ID,
			Href:      item.Href,
			MediaType: item.MediaType,
			Data:      itemData,
		}); err != nil {
			return nil, bferrors.NewInvariantViolation("I2", "epub.Read", err.Error())
		}
		if strings.Contains(item.Properties, "cover-image") {
			book.Guide.Add(ir.GuideRef{Type: ir.GuideCover, Title: "Cover", Href: item.Href})
		}
	}

	for _, itemref := range opf.Spine.ItemRefs {
		href, ok := idToHref[itemref.IDRef]
		if !ok {
			continue
		}
		if _, ok := book.Manifest.ByHref(href); !ok {
			continue // spine references the nav/ncx doc, not a content resource
		}
		if err := book.Spine.Add(itemref.IDRef); err != nil {
			return nil, bferrors.NewInvariantViolation("I2", "epub.Read", err.Error())
		}
		if itemref.Linear == "no" {
			book.Spine.Items[len(book.Spine.Items)-1].Linear = false
		}
	}

	if opf.Guide != nil {
		for _, ref := range opf.Guide.References {
			t := ir.GuideType(ref.Type)
			if !t.IsValid() && !ir.IsCoverAlias(t) {
				continue
			}
			book.Guide.Add(ir.GuideRef{Type: t, Title: ref.Title, Href: ref.Href})
		}
	}

	toc, err := readTOC(files, opfDir, navHref)
	if err == nil {
		book.TOC.Entries = toc
	}

	return book, nil
}

func readTOC(files map[string]*zip.File, opfDir, navHref string) ([]*ir.TocEntry, error) {
	ncxBytes, err := readZipFile(files, path.Join(opfDir, "toc.ncx"))
	if err == nil && validateXML("toc.ncx", ncxBytes) == nil {
		var doc ncxDoc
		if err := xml.Unmarshal(ncxBytes, &doc); err == nil {
			return convertNavPoints(doc.NavMap.NavPoints), nil
		}
	}
	if navHref != "" {
		navBytes, err := readZipFile(files, path.Join(opfDir, navHref))
		if err == nil {
			entries, err := parseNavXHTMLTOC(navBytes)
			if err == nil {
				return entries, nil
			}
		}
	}
	return nil, fmt.Errorf("no toc.ncx or nav document found")
}

func convertNavPoints(points []ncxNavPoint) []*ir.TocEntry {
	out := make([]*ir.TocEntry, 0, len(points))
	for _, p := range points {
		out = append(out, &ir.TocEntry{
			ID:       p.ID,
			Title:    strings.TrimSpace(p.NavLabel.Text),
			Href:     p.Content.Src,
			Children: convertNavPoints(p.NavPoints),
		})
	}
	return out
}

type navXHTMLDoc struct {
	Body struct {
		Nav []navXHTMLNav `xml:"nav"`
	} `xml:"body"`
}

type navXHTMLNav struct {
	Type string     `xml:"type,attr"`
	OL   *navXHTMLOL `xml:"ol"`
}

type navXHTMLOL struct {
	LI []navXHTMLLI `xml:"li"`
}

type navXHTMLLI struct {
	A  *navXHTMLA  `xml:"a"`
	OL *navXHTMLOL `xml:"ol"`
}

type navXHTMLA struct {
	Href string `xml:"href,attr"`
	Text string `xml:",chardata"`
}

func parseNavXHTMLTOC(data []byte) ([]*ir.TocEntry, error) {
	var doc navXHTMLDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for _, nav := range doc.Body.Nav {
		if nav.Type == "toc" && nav.OL != nil {
			return convertNavOL(nav.OL), nil
		}
	}
	if len(doc.Body.Nav) > 0 && doc.Body.Nav[0].OL != nil {
		return convertNavOL(doc.Body.Nav[0].OL), nil
	}
	return nil, fmt.Errorf("nav document has no toc entries")
}

func convertNavOL(ol *navXHTMLOL) []*ir.TocEntry {
	if ol == nil {
		return nil
	}
	out := make([]*ir.TocEntry, 0, len(ol.LI))
	for _, li := range ol.LI {
		entry := &ir.TocEntry{}
		if li.A != nil {
			entry.Title = strings.TrimSpace(li.A.Text)
			entry.Href = li.A.Href
		}
		entry.Children = convertNavOL(li.OL)
		out = append(out, entry)
	}
	return out
}

// validateXML checks well-formedness with core/xml's validator before the
// struct-based decode below, so a malformed manifest file reports the
// specific XML syntax error instead of encoding/xml's less precise one.
func validateXML(name string, data []byte) error {
	result := bfxml.Validate(data, nil)
	if result.Valid {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		msgs = append(msgs, e.Message)
	}
	return bferrors.NewParse("formats/epub", fmt.Sprintf("malformed %s: %s", name, strings.Join(msgs, "; ")), nil)
}

func readZipFile(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("%s: not found in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
