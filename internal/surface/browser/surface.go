package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"schedfill/internal/surface"
)

// Elements are tracked page-side in a WeakMap/WeakRef registry so the host
// page's DOM is never modified. A handle whose element is no longer
// connected is stale.
const prelude = `
const R = window.__schedfill || (window.__schedfill = {seq: 0, ids: new WeakMap(), els: new Map()});
const tag = (el) => {
  let id = R.ids.get(el);
  if (!id) {
    id = 'h' + (++R.seq);
    R.ids.set(el, id);
    R.els.set(id, new WeakRef(el));
  }
  return id;
};
const get = (id) => {
  if (!id) return document;
  const ref = R.els.get(id);
  const el = ref && ref.deref();
  return el && el.isConnected ? el : null;
};
const text = (el) => ((el.innerText ?? el.textContent) || '').replace(/\s+/g, ' ').trim();
`

const (
	jsQuery = `
const root = get(a0);
if (!root) return {stale: true};
return {ids: Array.from(root.querySelectorAll(a1)).map(tag)};`

	jsQueryText = `
const root = get(a0);
if (!root) return {stale: true};
for (const el of root.querySelectorAll(a1)) {
  if (text(el).includes(a2)) return {id: tag(el)};
}
return {id: ''};`

	jsText = `
const el = get(a0);
if (!el || el === document) return {stale: true};
return {text: text(el)};`

	jsNextSibling = `
const el = get(a0);
if (!el || el === document) return {stale: true};
const s = el.nextElementSibling;
return {id: s ? tag(s) : ''};`

	jsClick = `
const el = get(a0);
if (!el || el === document) return {stale: true};
el.click();
return {};`

	jsVisible = `
const el = get(a0);
if (!el || el === document) return {ok: false};
const cs = getComputedStyle(el);
return {ok: cs.visibility !== 'hidden' && cs.display !== 'none' &&
  !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length)};`
)

type jsResult struct {
	Stale bool     `json:"stale"`
	IDs   []string `json:"ids"`
	ID    string   `json:"id"`
	Text  string   `json:"text"`
	OK    bool     `json:"ok"`
}

// script wraps body into an expression with args bound to a0, a1, ...
func script(body string, args ...any) (string, error) {
	var b strings.Builder
	b.WriteString("(() => {")
	b.WriteString(prelude)
	for i, a := range args {
		enc, err := json.Marshal(a)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "const a%d = %s;\n", i, enc)
	}
	b.WriteString(body)
	b.WriteString("\n})()")
	return b.String(), nil
}

func (t *Tab) eval(ctx context.Context, body string, args ...any) (jsResult, error) {
	var res jsResult
	expr, err := script(body, args...)
	if err != nil {
		return res, err
	}
	if err := t.run(ctx, chromedp.Evaluate(expr, &res)); err != nil {
		return res, fmt.Errorf("browser: evaluate: %w", err)
	}
	if res.Stale {
		return res, surface.ErrStale
	}
	return res, nil
}

func (t *Tab) Query(ctx context.Context, scope surface.Handle, selector string) ([]surface.Handle, error) {
	res, err := t.eval(ctx, jsQuery, string(scope), selector)
	if err != nil {
		return nil, err
	}
	out := make([]surface.Handle, 0, len(res.IDs))
	for _, id := range res.IDs {
		out = append(out, surface.Handle(id))
	}
	return out, nil
}

func (t *Tab) QueryText(ctx context.Context, scope surface.Handle, selector, substr string) (surface.Handle, error) {
	res, err := t.eval(ctx, jsQueryText, string(scope), selector, substr)
	if err != nil {
		return "", err
	}
	return surface.Handle(res.ID), nil
}

func (t *Tab) Text(ctx context.Context, h surface.Handle) (string, error) {
	res, err := t.eval(ctx, jsText, string(h))
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (t *Tab) NextSibling(ctx context.Context, h surface.Handle) (surface.Handle, error) {
	res, err := t.eval(ctx, jsNextSibling, string(h))
	if err != nil {
		return "", err
	}
	return surface.Handle(res.ID), nil
}

func (t *Tab) Click(ctx context.Context, h surface.Handle) error {
	_, err := t.eval(ctx, jsClick, string(h))
	return err
}

func (t *Tab) Visible(ctx context.Context, h surface.Handle) (bool, error) {
	res, err := t.eval(ctx, jsVisible, string(h))
	if err != nil {
		return false, err
	}
	return res.OK, nil
}
