package ble

import "strings"

// Kind is the result category of classifying an advertisement.
type Kind int

const (
	KindNoMatch Kind = iota
	KindVendorBeacon
	KindNameHeuristic
)

// DefaultKeywords are the lower-case name fragments that mark a device as
// earbuds when it carries no vendor payload.
var DefaultKeywords = []string{"buds", "ear", "pods", "air", "galaxy", "sony", "jabra", "pixel"}

// Outcome is the classification of a single advertisement.
// Payload is set for KindVendorBeacon, Name for KindNameHeuristic.
type Outcome struct {
	Kind    Kind
	Payload []byte
	Name    string
}

// Classifier decides whether an advertisement looks like earbuds.
type Classifier struct {
	keywords []string
}

// NewClassifier creates a classifier matching names against keywords.
// Keywords are trimmed and lower-cased; an empty list selects DefaultKeywords.
func NewClassifier(keywords []string) *Classifier {
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			normalized = append(normalized, k)
		}
	}
	if len(normalized) == 0 {
		normalized = append(normalized, DefaultKeywords...)
	}
	return &Classifier{keywords: normalized}
}

// Keywords returns a copy of the normalized keyword list.
func (c *Classifier) Keywords() []string {
	return append([]string(nil), c.keywords...)
}

// Classify inspects an advertisement.
//
// A vendor payload always wins over the name heuristic, whether or not the
// payload later decodes. Callers must not fall back to the name when
// decoding fails.
func (c *Classifier) Classify(adv RawAdvertisement) Outcome {
	if payload, ok := adv.VendorPayload(); ok {
		return Outcome{Kind: KindVendorBeacon, Payload: payload}
	}
	if c.MatchesName(adv.Name) {
		return Outcome{Kind: KindNameHeuristic, Name: adv.Name}
	}
	return Outcome{Kind: KindNoMatch}
}

// MatchesName reports whether name contains any keyword, ignoring case.
func (c *Classifier) MatchesName(name string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
