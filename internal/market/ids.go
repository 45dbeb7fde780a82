package market

import (
	"strings"

	"github.com/google/uuid"
)

// Entity id prefixes.
const (
	PrefixAgent      = "agent"
	PrefixCapability = "cap"
	PrefixRfp        = "rfp"
	PrefixProposal   = "prop"
	PrefixSession    = "sess"
	PrefixMessage    = "msg"
)

// NewID returns prefix_ followed by 24 random hex characters.
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
