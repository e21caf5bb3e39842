package pixel_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"meta-pixel-relay/internal/model"
	"meta-pixel-relay/internal/pixel"
)

func TestQueueRenderSharesEventID(t *testing.T) {
	q := pixel.NewQueue()
	q.Add(model.ViewContent, "abc123", model.CustomData{
		ContentIDs:  []string{"42"},
		ContentType: "product",
	})
	q.Add(model.PageView, "def456", model.CustomData{})

	require.Len(t, q.Events(), 2)

	script := q.RenderCalls()
	require.Contains(t, script, "fbq('track', 'ViewContent',")
	require.Contains(t, script, "{eventID: 'abc123'}")
	require.Contains(t, script, "{eventID: 'def456'}")
	require.Contains(t, script, `"content_ids":["42"]`)
}

func TestBootstrapContainsInit(t *testing.T) {
	script := pixel.Bootstrap("123456789012345")
	require.Contains(t, script, "https://connect.facebook.net/en_US/fbevents.js")
	require.Contains(t, script, "fbq('init', '123456789012345');")
}

func TestNoscriptTag(t *testing.T) {
	tag := pixel.NoscriptTag("123456789012345")
	require.True(t, strings.HasPrefix(tag, "<noscript>"))
	require.Contains(t, tag, "https://www.facebook.com/tr?id=123456789012345&ev=PageView&noscript=1")
}
