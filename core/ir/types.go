// Package ir defines BookIR, the in-memory book document that the
// conversion pipeline parses into, transforms, and serializes out of.
// BookIR is exclusively owned by the pipeline for the duration of a single
// conversion; see doc.go for the ownership and lifecycle rules.
package ir

import (
	"fmt"
	"sort"
	"strings"
)

// BookIR is the in-memory book document manipulated by the pipeline.
// It contains exactly these five fields; transforms mutate it in place.
type BookIR struct {
	Metadata Metadata
	Manifest *Manifest
	Spine    *Spine
	TOC      *TOC
	Guide    *Guide
}

// New returns an empty BookIR with an initialized manifest, spine, TOC,
// and guide, ready for an input plugin to populate.
func New() *BookIR {
	return &BookIR{
		Manifest: NewManifest(),
		Spine:    &Spine{},
		TOC:      &TOC{},
		Guide:    &Guide{},
	}
}

// Metadata carries the Dublin-Core fields recognized by the pipeline.
// Identifiers is keyed by case-folded scheme name; the "uuid" scheme is
// guaranteed present after the MergeMetadata transform runs.
type Metadata struct {
	Title       string
	Authors     []string
	Language    string // BCP-47 tag, defaults to "en"
	Description string
	Publisher   string
	Date        string // ISO-8601
	Identifiers map[string]string
}

// Identifier returns the value for a case-folded scheme name, and whether
// it was present.
func (m *Metadata) Identifier(scheme string) (string, bool) {
	if m.Identifiers == nil {
		return "", false
	}
	v, ok := m.Identifiers[strings.ToLower(scheme)]
	return v, ok
}

// SetIdentifier sets the value for a case-folded scheme name.
func (m *Metadata) SetIdentifier(scheme, value string) {
	if m.Identifiers == nil {
		m.Identifiers = make(map[string]string)
	}
	m.Identifiers[strings.ToLower(scheme)] = value
}

// ManifestDataKind tags which variant a ManifestItem's Data field holds.
type ManifestDataKind int

const (
	// DataXhtml holds decoded XHTML markup as a string.
	DataXhtml ManifestDataKind = iota
	// DataCSS holds decoded CSS text as a string.
	DataCSS
	// DataBinary holds raw bytes (images, fonts, and anything else opaque).
	DataBinary
	// DataLazy holds an absolute filesystem path; bytes are read on demand
	// and never cached on the item.
	DataLazy
)

func (k ManifestDataKind) String() string {
	switch k {
	case DataXhtml:
		return "xhtml"
	case DataCSS:
		return "css"
	case DataBinary:
		return "binary"
	case DataLazy:
		return "lazy"
	default:
		return "unknown"
	}
}

// ManifestData is the tagged-variant payload of a ManifestItem. Exactly
// one of Xhtml/CSS/Binary/LazyPath is meaningful, selected by Kind.
type ManifestData struct {
	Kind     ManifestDataKind
	Xhtml    string
	CSS      string
	Binary   []byte
	LazyPath string
}

// XhtmlData constructs an Xhtml-variant ManifestData.
func XhtmlData(markup string) ManifestData { return ManifestData{Kind: DataXhtml, Xhtml: markup} }

// CSSData constructs a CSS-variant ManifestData.
func CSSData(css string) ManifestData { return ManifestData{Kind: DataCSS, CSS: css} }

// BinaryData constructs a Binary-variant ManifestData.
func BinaryData(b []byte) ManifestData { return ManifestData{Kind: DataBinary, Binary: b} }

// LazyData constructs a Lazy-variant ManifestData referencing an absolute path.
func LazyData(path string) ManifestData { return ManifestData{Kind: DataLazy, LazyPath: path} }

// ManifestItem is a single resource (XHTML document, stylesheet, image,
// font, ...) owned by the Manifest.
type ManifestItem struct {
	ID        string
	Href      string
	MediaType string
	Data      ManifestData
}

// IsXhtml reports whether the item's variant and media type agree on XHTML.
func (it *ManifestItem) IsXhtml() bool {
	return it.Data.Kind == DataXhtml && it.MediaType == "application/xhtml+xml"
}

// IsCSS reports whether the item's variant and media type agree on CSS.
func (it *ManifestItem) IsCSS() bool {
	return it.Data.Kind == DataCSS && it.MediaType == "text/css"
}

// IsImage reports whether the item's media type names an image format.
func (it *ManifestItem) IsImage() bool {
	return strings.HasPrefix(it.MediaType, "image/")
}

// Manifest maps manifest ids to ManifestItems, maintaining the I2 (unique
// id/href) invariant and id/href generation counters.
type Manifest struct {
	items    map[string]*ManifestItem
	order    []string // insertion order, for stable dumps/iteration
	byHref   map[string]string
	nextID   int
	nextHref int
}

// NewManifest returns an empty Manifest.
func NewManifest() *Manifest {
	return &Manifest{
		items:  make(map[string]*ManifestItem),
		byHref: make(map[string]string),
	}
}

// Add inserts item, returning an error if its id or href already exists
// (preserving I2). Use GenerateID/GenerateHref to avoid collisions.
func (m *Manifest) Add(item *ManifestItem) error {
	if _, exists := m.items[item.ID]; exists {
		return fmt.Errorf("manifest: duplicate id %q", item.ID)
	}
	if _, exists := m.byHref[item.Href]; exists {
		return fmt.Errorf("manifest: duplicate href %q", item.Href)
	}
	m.items[item.ID] = item
	m.byHref[item.Href] = item.ID
	m.order = append(m.order, item.ID)
	return nil
}

// Remove deletes the item with the given id, if present.
func (m *Manifest) Remove(id string) {
	item, ok := m.items[id]
	if !ok {
		return
	}
	delete(m.items, id)
	delete(m.byHref, item.Href)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// ByID returns the item with the given id.
func (m *Manifest) ByID(id string) (*ManifestItem, bool) {
	it, ok := m.items[id]
	return it, ok
}

// ByHref returns the item with the given href, following the href
// without any fragment (callers strip fragments before calling).
func (m *Manifest) ByHref(href string) (*ManifestItem, bool) {
	id, ok := m.byHref[href]
	if !ok {
		return nil, false
	}
	return m.items[id], true
}

// Items returns all items in stable insertion order.
func (m *Manifest) Items() []*ManifestItem {
	out := make([]*ManifestItem, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id])
	}
	return out
}

// Len returns the number of items in the manifest.
func (m *Manifest) Len() int { return len(m.items) }

// GenerateID returns an id not currently in use, derived from prefix.
func (m *Manifest) GenerateID(prefix string) string {
	for {
		m.nextID++
		candidate := fmt.Sprintf("%s-%d", prefix, m.nextID)
		if _, exists := m.items[candidate]; !exists {
			return candidate
		}
	}
}

// GenerateHref returns an href not currently in use, derived from stem
// and extension (without leading dot).
func (m *Manifest) GenerateHref(stem, ext string) string {
	for {
		m.nextHref++
		candidate := fmt.Sprintf("%s-%d.%s", stem, m.nextHref, ext)
		if _, exists := m.byHref[candidate]; !exists {
			return candidate
		}
	}
}

// Rename updates item's href in the index, preserving I2.
func (m *Manifest) Rename(id, newHref string) error {
	item, ok := m.items[id]
	if !ok {
		return fmt.Errorf("manifest: no such id %q", id)
	}
	if owner, exists := m.byHref[newHref]; exists && owner != id {
		return fmt.Errorf("manifest: duplicate href %q", newHref)
	}
	delete(m.byHref, item.Href)
	item.Href = newHref
	m.byHref[newHref] = id
	return nil
}

// SpineItem is one entry in the reading-order spine.
type SpineItem struct {
	IDRef  string
	Linear bool // defaults true
}

// Spine is the ordered sequence of spine entries. A spine id may appear
// at most once.
type Spine struct {
	Items []SpineItem
}

// Add appends idref with linear=true, returning an error if idref is
// already present.
func (s *Spine) Add(idref string) error {
	return s.Insert(len(s.Items), idref, true)
}

// Insert places idref at position pos with the given linear flag.
func (s *Spine) Insert(pos int, idref string, linear bool) error {
	for _, it := range s.Items {
		if it.IDRef == idref {
			return fmt.Errorf("spine: duplicate idref %q", idref)
		}
	}
	if pos < 0 || pos > len(s.Items) {
		pos = len(s.Items)
	}
	s.Items = append(s.Items, SpineItem{})
	copy(s.Items[pos+1:], s.Items[pos:])
	s.Items[pos] = SpineItem{IDRef: idref, Linear: linear}
	return nil
}

// IDRefs returns the ordered list of spine idrefs.
func (s *Spine) IDRefs() []string {
	out := make([]string, len(s.Items))
	for i, it := range s.Items {
		out[i] = it.IDRef
	}
	return out
}

// Replace substitutes the spine entry with idref oldIDRef with the given
// ordered list of new idrefs, preserving position.
func (s *Spine) Replace(oldIDRef string, newItems []SpineItem) {
	for i, it := range s.Items {
		if it.IDRef == oldIDRef {
			merged := make([]SpineItem, 0, len(s.Items)-1+len(newItems))
			merged = append(merged, s.Items[:i]...)
			merged = append(merged, newItems...)
			merged = append(merged, s.Items[i+1:]...)
			s.Items = merged
			return
		}
	}
}

// TocEntry is a node in the table of contents tree.
type TocEntry struct {
	Title    string
	Href     string // may carry a "#fragment"
	Children []*TocEntry
	ID       string // stable anchor id, used for play-order rationalization
}

// TOC is the table-of-contents tree. Depth is unbounded in the type but
// transforms target a logical maximum of 4.
type TOC struct {
	Entries []*TocEntry
}

// Walk calls fn for every entry in the tree, depth-first, pre-order.
func (t *TOC) Walk(fn func(e *TocEntry, depth int)) {
	var rec func(entries []*TocEntry, depth int)
	rec = func(entries []*TocEntry, depth int) {
		for _, e := range entries {
			fn(e, depth)
			rec(e.Children, depth+1)
		}
	}
	rec(t.Entries, 1)
}

// IsEmpty reports whether the TOC has no entries.
func (t *TOC) IsEmpty() bool { return len(t.Entries) == 0 }

// GuideType enumerates the fixed set of guide landmark types.
type GuideType string

const (
	GuideCover         GuideType = "cover"
	GuideTitlePage      GuideType = "title-page"
	GuideTOC           GuideType = "toc"
	GuideText          GuideType = "text"
	GuideCopyrightPage GuideType = "copyright-page"
	GuideColophon      GuideType = "colophon"
	GuideIndex         GuideType = "index"
	GuideGlossary      GuideType = "glossary"
	GuideBibliography  GuideType = "bibliography"
)

var validGuideTypes = map[GuideType]bool{
	GuideCover: true, GuideTitlePage: true, GuideTOC: true, GuideText: true,
	GuideCopyrightPage: true, GuideColophon: true, GuideIndex: true,
	GuideGlossary: true, GuideBibliography: true,
}

// IsValid reports whether t is one of the fixed guide types.
func (t GuideType) IsValid() bool { return validGuideTypes[t] }

// coverAliasTypes are vendor-specific guide reference types (Microsoft's
// Word-to-EPUB exporter and similar tools) that mark a cover or title
// image without using the standard "cover" guide type.
var coverAliasTypes = map[GuideType]bool{
	"ms-coverimage-standard":       true,
	"other.ms-coverimage-standard": true,
	"ms-titleimage-standard":       true,
	"other.ms-titleimage-standard": true,
}

// IsCoverAlias reports whether t is a known vendor alias for a cover
// image guide reference, to be promoted to GuideCover.
func IsCoverAlias(t GuideType) bool { return coverAliasTypes[t] }

// GuideRef is one guide landmark entry.
type GuideRef struct {
	Type  GuideType
	Title string
	Href  string
}

// Guide is the list of semantic landmarks. At most one entry per type;
// Add enforces this by replacing any existing entry of the same type.
type Guide struct {
	Refs []GuideRef
}

// Add inserts ref, replacing any existing entry of the same type.
func (g *Guide) Add(ref GuideRef) {
	for i, r := range g.Refs {
		if r.Type == ref.Type {
			g.Refs[i] = ref
			return
		}
	}
	g.Refs = append(g.Refs, ref)
}

// Get returns the entry of the given type, if present.
func (g *Guide) Get(t GuideType) (GuideRef, bool) {
	for _, r := range g.Refs {
		if r.Type == t {
			return r, true
		}
	}
	return GuideRef{}, false
}

// RemoveHref drops every entry whose href matches, in place.
func (g *Guide) RemoveHref(href string) {
	out := g.Refs[:0]
	for _, r := range g.Refs {
		if r.Href != href {
			out = append(out, r)
		}
	}
	g.Refs = out
}

// SortedIdentifierSchemes returns metadata identifier scheme names in a
// stable, deterministic order (used by the EPUB writer's identifier block).
func SortedIdentifierSchemes(m *Metadata) []string {
	schemes := make([]string, 0, len(m.Identifiers))
	for k := range m.Identifiers {
		schemes = append(schemes, k)
	}
	sort.Strings(schemes)
	return schemes
}
