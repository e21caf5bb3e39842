// Package pixel accumulates the browser-side emissions of a request and
// renders them as fbq calls. Each queued event carries the exact event id
// used for the server-side send so the remote system can deduplicate the
// pair.
package pixel

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"meta-pixel-relay/internal/model"
)

// Event is one queued browser emission.
type Event struct {
	EventName model.EventName  `json:"event_name"`
	EventID   string           `json:"event_id"`
	Data      model.CustomData `json:"event_data"`
}

// Queue collects the events of one server-side render, flushed once at the
// end of the response. It is request-scoped and not safe for concurrent use.
type Queue struct {
	events []Event
}

// NewQueue returns an empty per-request queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Add queues a browser emission sharing the server event id.
func (q *Queue) Add(name model.EventName, eventID string, data model.CustomData) {
	q.events = append(q.events, Event{EventName: name, EventID: eventID, Data: data})
}

// Events returns the queued emissions in order.
func (q *Queue) Events() []Event {
	return q.events
}

// RenderCalls renders the queued events as a sequence of fbq track calls.
// The shared event id travels in the fourth argument (eventID), which is the
// browser-side half of the dedup contract.
func (q *Queue) RenderCalls() string {
	var b strings.Builder
	for _, evt := range q.events {
		data, err := json.Marshal(evt.Data)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "fbq('track', '%s', %s, {eventID: '%s'});\n", evt.EventName, data, evt.EventID)
	}
	return b.String()
}

// Bootstrap renders the base pixel loader and init call for a page head.
func Bootstrap(pixelID string) string {
	var b strings.Builder
	b.WriteString("!function(f,b,e,v,n,t,s){if(f.fbq)return;n=f.fbq=function(){n.callMethod?\n")
	b.WriteString("n.callMethod.apply(n,arguments):n.queue.push(arguments)};\n")
	b.WriteString("if(!f._fbq)f._fbq=n;n.push=n;n.loaded=!0;n.version='2.0';\n")
	b.WriteString("n.queue=[];t=b.createElement(e);t.async=!0;\n")
	b.WriteString("t.src=v;s=b.getElementsByTagName(e)[0];\n")
	b.WriteString("s.parentNode.insertBefore(t,s)}(window,document,'script',\n")
	b.WriteString("'https://connect.facebook.net/en_US/fbevents.js');\n")
	fmt.Fprintf(&b, "fbq('init', '%s');\n", jsEscape(pixelID))
	return b.String()
}

// NoscriptTag renders the 1x1 image fallback for clients without JavaScript.
func NoscriptTag(pixelID string) string {
	return fmt.Sprintf(
		`<noscript><img height="1" width="1" style="display:none" src="https://www.facebook.com/tr?id=%s&ev=PageView&noscript=1" /></noscript>`,
		html.EscapeString(pixelID),
	)
}

func jsEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return s
}
