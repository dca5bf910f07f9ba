package fill

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	appLog "schedfill/internal/log"
	"schedfill/internal/surface"
	"schedfill/internal/surface/dom"
)

func init() {
	appLog.SetOutput(io.Discard)
}

const hostPage = `<html><body>
<div id="schedule-editor">
  <div class="slot"><span>2024-03-10 09:00 10:00 A1</span> <button class="slot-add">+</button></div>
  <div class="notes">lab 1</div>
  <div class="people"><ul class="assigned"></ul></div>
  <div class="slot"><span>2024-03-10 10:00 11:00 A1</span> <button class="slot-add">+</button></div>
  <div class="people"><ul class="assigned"><li>Horvat, Ivan</li></ul></div>
  <div class="slot"><span>2024-03-11 09:00 10:00 B2</span></div>
</div>
<div class="person-dialog" hidden>
  <div class="person-option">Anić, Ana</div>
  <div class="person-option">Horvat, Ivan</div>
  <div class="person-option">Novak, Iva</div>
  <button class="dialog-close">x</button>
</div>
</body></html>`

// fakeHost scripts the scheduling page: clicking an add control opens the
// dialog after openDelay, clicking a person assigns them to that slot and
// hides the dialog after closeDelay.
type fakeHost struct {
	doc *dom.Document

	openDelay  time.Duration
	closeDelay time.Duration
	neverOpen  bool
	neverClose bool

	// guarded by the document lock
	active *goquery.Selection
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	doc, err := dom.LoadString(hostPage)
	require.NoError(t, err)
	return &fakeHost{doc: doc, openDelay: 5 * time.Millisecond, closeDelay: 5 * time.Millisecond}
}

// start installs the click handlers; call after tweaking the options.
func (h *fakeHost) start() *fakeHost {
	h.doc.OnClick(".slot-add", func(doc *goquery.Document, target *goquery.Selection) {
		h.active = target.Closest(".slot").NextAllFiltered(".people").First().Find("ul.assigned")
		if h.neverOpen {
			return
		}
		h.doc.After(h.openDelay, func(doc *goquery.Document) {
			doc.Find(".person-dialog").RemoveAttr("hidden")
		})
	})
	h.doc.OnClick(".person-option", func(doc *goquery.Document, target *goquery.Selection) {
		name := target.Text()
		active := h.active
		if h.neverClose {
			return
		}
		h.doc.After(h.closeDelay, func(doc *goquery.Document) {
			active.AppendHtml("<li>" + name + "</li>")
			doc.Find(".person-dialog").SetAttr("hidden", "")
		})
	})
	h.doc.OnClick(".dialog-close", func(doc *goquery.Document, _ *goquery.Selection) {
		doc.Find(".person-dialog").SetAttr("hidden", "")
	})
	return h
}

func (h *fakeHost) assigned(t *testing.T, slotIndex int) []string {
	t.Helper()
	var out []string
	h.doc.Mutate(func(doc *goquery.Document) {
		doc.Find("ul.assigned").Eq(slotIndex).Find("li").Each(func(_ int, s *goquery.Selection) {
			out = append(out, s.Text())
		})
	})
	return out
}

func (h *fakeHost) dialogVisible(t *testing.T) bool {
	t.Helper()
	ctx := context.Background()
	dl, err := h.doc.Query(ctx, "", ".person-dialog")
	require.NoError(t, err)
	require.Len(t, dl, 1)
	vis, err := h.doc.Visible(ctx, dl[0])
	require.NoError(t, err)
	return vis
}

func testTimings() Timings {
	return Timings{
		OpenTimeout:  150 * time.Millisecond,
		CloseTimeout: 150 * time.Millisecond,
		PollInterval: 2 * time.Millisecond,
		RenderDelay:  time.Millisecond,
		EventDelay:   time.Millisecond,
	}
}

func newTestProcessor(h *fakeHost, opts ...Option) *Processor {
	return NewProcessor(h.doc, surface.DefaultSelectors(), testTimings(), opts...)
}
