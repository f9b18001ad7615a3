// Package domain holds the core types shared across the service.
package domain

import "strings"

// Product represents a catalog product as returned by the remote admin API.
// Tags travel as a single comma-joined string on the wire; the engine treats
// them as a set via TagList.
type Product struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	BodyHTML       string `json:"body_html"`
	Vendor         string `json:"vendor"`
	ProductType    string `json:"product_type"`
	Tags           string `json:"tags"`
	Handle         string `json:"handle,omitempty"`
	SEOTitle       string `json:"seo_title,omitempty"`
	SEODescription string `json:"seo_description,omitempty"`
	UpdatedAt      string `json:"updated_at"`
}

// TagList splits the wire tag string into individual trimmed tags.
func (p *Product) TagList() []string {
	if strings.TrimSpace(p.Tags) == "" {
		return nil
	}
	parts := strings.Split(p.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if t := strings.TrimSpace(part); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// JoinTags renders a tag set back into the wire format.
func JoinTags(tags []string) string {
	return strings.Join(tags, ", ")
}

// ProductUpdate carries the fields written back on a product update.
// Zero-value fields are omitted so an update never clobbers fields the
// processor did not touch.
type ProductUpdate struct {
	ID             int64  `json:"id"`
	ProductType    string `json:"product_type,omitempty"`
	Tags           string `json:"tags,omitempty"`
	SEOTitle       string `json:"seo_title,omitempty"`
	SEODescription string `json:"seo_description,omitempty"`
}

// Metafield is a namespaced key/value attached to a remote resource. It is
// used both for persisted classification output and the idempotency stamp.
type Metafield struct {
	ID        int64  `json:"id,omitempty"`
	OwnerID   int64  `json:"owner_id,omitempty"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Type      string `json:"type,omitempty"`
}

// Metafield namespace and keys owned by this service.
const (
	MetafieldNamespace     = "catalog_classifier"
	MetafieldKeyStamp      = "last_processed_at"
	MetafieldKeyCategory   = "category"
	MetafieldKeyTags       = "tags"
	MetafieldKeyConfidence = "confidence"
	MetafieldKeyMethod     = "method"
	MetafieldKeySource     = "source"
	MetafieldKeyLanguage   = "language"

	MetafieldTypeText = "single_line_text_field"
)
