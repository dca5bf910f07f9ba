// Package dom implements surface.Surface over an in-memory HTML document.
//
// It serves two purposes: running locate/check passes against a saved
// snapshot of the scheduling page, and standing in for the live page in
// tests, where click handlers script the page's reactions.
package dom

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"schedfill/internal/surface"
)

// ClickFunc reacts to a click on an element. It runs with the document
// locked and may mutate doc directly; use Document.After for changes that
// should land later.
type ClickFunc func(doc *goquery.Document, target *goquery.Selection)

type clickHandler struct {
	selector string
	fn       ClickFunc
}

// Document is a mutable HTML tree exposed as a surface.Surface.
type Document struct {
	mu  sync.Mutex
	doc *goquery.Document

	nodes map[surface.Handle]*html.Node
	ids   map[*html.Node]surface.Handle
	next  int

	handlers []clickHandler
	clicks   int
}

var _ surface.Surface = (*Document)(nil)

// Load parses an HTML document from r.
func Load(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Document{
		doc:   doc,
		nodes: make(map[surface.Handle]*html.Node),
		ids:   make(map[*html.Node]surface.Handle),
	}, nil
}

// LoadString parses an HTML document from s.
func LoadString(s string) (*Document, error) {
	return Load(strings.NewReader(s))
}

// LoadFile parses the HTML snapshot at path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// OnClick registers fn for clicks on elements matching selector. The first
// registered handler whose selector matches the clicked element runs.
func (d *Document) OnClick(selector string, fn ClickFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, clickHandler{selector: selector, fn: fn})
}

// Mutate runs fn with the document locked.
func (d *Document) Mutate(fn func(doc *goquery.Document)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.doc)
}

// After runs fn with the document locked once delay has passed, the way a
// page script re-renders asynchronously after a click.
func (d *Document) After(delay time.Duration, fn func(doc *goquery.Document)) {
	time.AfterFunc(delay, func() { d.Mutate(fn) })
}

// HTML renders the current document.
func (d *Document) HTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, err := d.doc.Html()
	if err != nil {
		return ""
	}
	return out
}

// Clicks is the number of clicks delivered so far.
func (d *Document) Clicks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clicks
}

func (d *Document) Query(ctx context.Context, scope surface.Handle, selector string) ([]surface.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	root, err := d.scope(scope)
	if err != nil {
		return nil, err
	}
	found := root.Find(selector)
	out := make([]surface.Handle, 0, found.Length())
	for _, n := range found.Nodes {
		out = append(out, d.handleFor(n))
	}
	return out, nil
}

func (d *Document) QueryText(ctx context.Context, scope surface.Handle, selector, substr string) (surface.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	root, err := d.scope(scope)
	if err != nil {
		return "", err
	}
	var hit *html.Node
	root.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(normalize(s.Text()), substr) {
			hit = s.Nodes[0]
			return false
		}
		return true
	})
	if hit == nil {
		return "", nil
	}
	return d.handleFor(hit), nil
}

func (d *Document) Text(ctx context.Context, h surface.Handle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.node(h)
	if err != nil {
		return "", err
	}
	return normalize(d.doc.FindNodes(n).Text()), nil
}

func (d *Document) NextSibling(ctx context.Context, h surface.Handle) (surface.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.node(h)
	if err != nil {
		return "", err
	}
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return d.handleFor(s), nil
		}
	}
	return "", nil
}

func (d *Document) Click(ctx context.Context, h surface.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.node(h)
	if err != nil {
		return err
	}
	d.clicks++
	target := d.doc.FindNodes(n)
	for _, hd := range d.handlers {
		if target.Is(hd.selector) {
			hd.fn(d.doc, target)
			break
		}
	}
	return nil
}

func (d *Document) Visible(ctx context.Context, h surface.Handle) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.node(h)
	if err != nil {
		if err == surface.ErrStale {
			return false, nil
		}
		return false, err
	}
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && hidden(p) {
			return false, nil
		}
	}
	return true, nil
}

// scope resolves a query scope; the zero handle is the whole document.
func (d *Document) scope(h surface.Handle) (*goquery.Selection, error) {
	if h.IsZero() {
		return d.doc.Selection, nil
	}
	n, err := d.node(h)
	if err != nil {
		return nil, err
	}
	return d.doc.FindNodes(n), nil
}

func (d *Document) node(h surface.Handle) (*html.Node, error) {
	n, ok := d.nodes[h]
	if !ok || !d.attached(n) {
		return nil, surface.ErrStale
	}
	return n, nil
}

func (d *Document) attached(n *html.Node) bool {
	root := d.doc.Nodes[0]
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

func (d *Document) handleFor(n *html.Node) surface.Handle {
	if h, ok := d.ids[n]; ok {
		return h
	}
	d.next++
	h := surface.Handle("n" + strconv.Itoa(d.next))
	d.ids[n] = h
	d.nodes[h] = n
	return h
}

func hidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return true
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
