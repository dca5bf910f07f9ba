package dom

import (
	"context"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedfill/internal/surface"
)

const page = `<html><body>
<div id="editor">
  <div class="slot"><span>2024-03-10   09:00 10:00
    A1</span><button class="add">+</button></div>
  <div class="people"><ul class="assigned"><li>Horvat, Ivan</li></ul></div>
  <div class="slot" style="display: none">2024-03-10 10:00 11:00 A1</div>
</div>
<div class="dialog" hidden><a class="close">x</a></div>
</body></html>`

func TestQueryAndText(t *testing.T) {
	ctx := context.Background()
	d, err := LoadString(page)
	require.NoError(t, err)

	slots, err := d.Query(ctx, "", ".slot")
	require.NoError(t, err)
	require.Len(t, slots, 2)

	txt, err := d.Text(ctx, slots[0])
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10 09:00 10:00 A1+", txt)

	// Handles are stable for the same node.
	again, err := d.Query(ctx, "", ".slot")
	require.NoError(t, err)
	assert.Equal(t, slots, again)

	hit, err := d.QueryText(ctx, "", ".slot", "2024-03-10 09:00 10:00 A1")
	require.NoError(t, err)
	assert.Equal(t, slots[0], hit)

	miss, err := d.QueryText(ctx, "", ".slot", "2024-03-11")
	require.NoError(t, err)
	assert.True(t, miss.IsZero())
}

func TestNextSiblingSkipsText(t *testing.T) {
	ctx := context.Background()
	d, err := LoadString(page)
	require.NoError(t, err)

	slots, err := d.Query(ctx, "", ".slot")
	require.NoError(t, err)

	sib, err := d.NextSibling(ctx, slots[0])
	require.NoError(t, err)
	lists, err := d.Query(ctx, sib, "ul.assigned")
	require.NoError(t, err)
	assert.Len(t, lists, 1)

	last, err := d.NextSibling(ctx, slots[1])
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestVisible(t *testing.T) {
	ctx := context.Background()
	d, err := LoadString(page)
	require.NoError(t, err)

	slots, _ := d.Query(ctx, "", ".slot")
	vis, err := d.Visible(ctx, slots[0])
	require.NoError(t, err)
	assert.True(t, vis)

	vis, err = d.Visible(ctx, slots[1])
	require.NoError(t, err)
	assert.False(t, vis)

	closes, _ := d.Query(ctx, "", ".close")
	vis, err = d.Visible(ctx, closes[0])
	require.NoError(t, err)
	assert.False(t, vis, "hidden ancestor")
}

func TestClickHandlersAndStaleHandles(t *testing.T) {
	ctx := context.Background()
	d, err := LoadString(page)
	require.NoError(t, err)

	d.OnClick(".add", func(doc *goquery.Document, target *goquery.Selection) {
		target.Closest(".slot").Remove()
	})

	adds, _ := d.Query(ctx, "", ".add")
	require.NoError(t, d.Click(ctx, adds[0]))
	assert.Equal(t, 1, d.Clicks())

	_, err = d.Text(ctx, adds[0])
	assert.ErrorIs(t, err, surface.ErrStale)
	assert.ErrorIs(t, d.Click(ctx, adds[0]), surface.ErrStale)

	vis, err := d.Visible(ctx, adds[0])
	require.NoError(t, err)
	assert.False(t, vis)
}

func TestAfterMutatesLater(t *testing.T) {
	ctx := context.Background()
	d, err := LoadString(page)
	require.NoError(t, err)

	d.After(10*time.Millisecond, func(doc *goquery.Document) {
		doc.Find(".dialog").RemoveAttr("hidden")
	})

	err = surface.Await(ctx, func(ctx context.Context) (bool, error) {
		dl, err := d.Query(ctx, "", ".dialog")
		if err != nil || len(dl) == 0 {
			return false, err
		}
		return d.Visible(ctx, dl[0])
	}, 2*time.Millisecond, time.Second)
	assert.NoError(t, err)
}
