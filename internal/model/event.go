package model

import "time"

// EventName identifies a standard Meta Pixel business event.
type EventName string

const (
	PageView             EventName = "PageView"
	ViewContent          EventName = "ViewContent"
	ViewCategory         EventName = "ViewCategory"
	AddToWishlist        EventName = "AddToWishlist"
	AddToCart            EventName = "AddToCart"
	InitiateCheckout     EventName = "InitiateCheckout"
	AddPaymentInfo       EventName = "AddPaymentInfo"
	Purchase             EventName = "Purchase"
	Search               EventName = "Search"
	Lead                 EventName = "Lead"
	CompleteRegistration EventName = "CompleteRegistration"
)

// ActionSourceWebsite is the only action_source this relay emits.
const ActionSourceWebsite = "website"

// UserData carries the match-quality parameters of a Conversions API event.
// PII fields hold lowercase SHA-256 hex digests; client_ip_address,
// client_user_agent, fbp and fbc are sent raw. Absent fields are omitted from
// the wire payload, never sent as empty strings.
type UserData struct {
	Email      string `json:"em,omitempty"`
	Phone      string `json:"ph,omitempty"`
	FirstName  string `json:"fn,omitempty"`
	LastName   string `json:"ln,omitempty"`
	City       string `json:"ct,omitempty"`
	State      string `json:"st,omitempty"`
	Zip        string `json:"zp,omitempty"`
	Country    string `json:"country,omitempty"`
	BirthDate  string `json:"db,omitempty"`
	Gender     string `json:"ge,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	ClientIP   string `json:"client_ip_address,omitempty"`
	ClientUA   string `json:"client_user_agent,omitempty"`
	FBP        string `json:"fbp,omitempty"`
	FBC        string `json:"fbc,omitempty"`
}

// ContentEntry is one line of the contents array.
type ContentEntry struct {
	ID        string  `json:"id"`
	Quantity  int     `json:"quantity"`
	ItemPrice float64 `json:"item_price"`
}

// CustomData is the event-type-specific payload of an event.
type CustomData struct {
	ContentType     string         `json:"content_type,omitempty"`
	ContentIDs      []string       `json:"content_ids,omitempty"`
	Contents        []ContentEntry `json:"contents,omitempty"`
	Value           float64        `json:"value,omitempty"`
	Currency        string         `json:"currency,omitempty"`
	NumItems        int            `json:"num_items,omitempty"`
	ContentCategory string         `json:"content_category,omitempty"`
	Brand           string         `json:"brand,omitempty"`
	Availability    string         `json:"availability,omitempty"`
	SearchString    string         `json:"search_string,omitempty"`
	ContentName     string         `json:"content_name,omitempty"`
	Status          string         `json:"status,omitempty"`
}

// IsZero reports whether no custom data field is set.
func (d CustomData) IsZero() bool {
	return d.ContentType == "" && len(d.ContentIDs) == 0 && len(d.Contents) == 0 &&
		d.Value == 0 && d.Currency == "" && d.NumItems == 0 &&
		d.ContentCategory == "" && d.Brand == "" && d.Availability == "" &&
		d.SearchString == "" && d.ContentName == "" && d.Status == ""
}

// Envelope is one server-side event as posted to the events endpoint. The
// event_id must be byte-identical to the one used by the browser-side
// emission of the same occurrence; it is the remote deduplication key.
type Envelope struct {
	EventName      EventName   `json:"event_name"`
	EventTime      int64       `json:"event_time"`
	EventID        string      `json:"event_id"`
	ActionSource   string      `json:"action_source"`
	EventSourceURL string      `json:"event_source_url,omitempty"`
	UserData       UserData    `json:"user_data"`
	CustomData     *CustomData `json:"custom_data,omitempty"`
}

// NewEnvelope builds an envelope with the website action source and the given
// occurrence time. Custom data is attached only when non-empty.
func NewEnvelope(name EventName, eventID string, at time.Time, sourceURL string, user UserData, custom CustomData) Envelope {
	env := Envelope{
		EventName:      name,
		EventTime:      at.Unix(),
		EventID:        eventID,
		ActionSource:   ActionSourceWebsite,
		EventSourceURL: sourceURL,
		UserData:       user,
	}
	if !custom.IsZero() {
		env.CustomData = &custom
	}
	return env
}
