// Package eventid generates the deduplication identifiers shared between the
// browser-side and server-side emission of the same logical event. The remote
// system matches the two copies by exact event_id equality, so an id is
// generated once per trigger and threaded through both paths.
package eventid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"meta-pixel-relay/internal/model"
)

// New returns an opaque 32-character token for one logical occurrence of the
// given event. The optional identifier ties the id to a domain entity
// (product id, cart hash, order id) for better specificity. Distinct calls
// are practically collision-free; callers must reuse the returned id for both
// emission paths rather than calling New twice.
func New(name model.EventName, identifier string) string {
	base := fmt.Sprintf("%s_%d_%s", name, time.Now().UnixNano(), uuid.NewString())
	if identifier != "" {
		base += "_" + identifier
	}
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:16])
}
