/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// ObjectType defines an 'object'.
type ObjectType struct {
	object     *objectType
	additional Document
	raw        Document
}

// NewObject returns a new 'object'.
func NewObject(opts ...Opt) *ObjectType {
	options := NewOptions(opts...)

	return &ObjectType{
		object: &objectType{
			Context:    NewContextProperty(options.Context...),
			ID:         NewURLProperty(options.ID),
			Type:       NewTypeProperty(options.Types...),
			Name:       options.Name,
			NameMap:    options.NameMap,
			Summary:    options.Summary,
			SummaryMap: options.SummaryMap,
			Content:    options.Content,
			ContentMap: options.ContentMap,
			MediaType:  options.MediaType,
			Published:  options.Published,
			Updated:    options.Updated,
			StartTime:  options.StartTime,
			EndTime:    options.EndTime,
			To:         NewURLCollectionProperty(options.To...),
			CC:         NewURLCollectionProperty(options.CC...),
			BTo:        NewURLCollectionProperty(options.BTo...),
			BCC:        NewURLCollectionProperty(options.BCC...),
			Audience:   NewURLCollectionProperty(options.Audience...),
		},
	}
}

// NewObjectWithDocument returns a new object initialized with the given document.
func NewObjectWithDocument(doc Document, opts ...Opt) (*ObjectType, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}

	bytes, err := MarshalJSON(NewObject(opts...), doc)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	obj := &ObjectType{}

	err = json.Unmarshal(bytes, &obj)
	if err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return obj, nil
}

type objectType struct {
	Context    *ContextProperty       `json:"@context,omitempty"`
	ID         *URLProperty           `json:"id,omitempty"`
	Type       *TypeProperty          `json:"type,omitempty"`
	Name       string                 `json:"name,omitempty"`
	NameMap    map[string]string      `json:"nameMap,omitempty"`
	Summary    string                 `json:"summary,omitempty"`
	SummaryMap map[string]string      `json:"summaryMap,omitempty"`
	Content    string                 `json:"content,omitempty"`
	ContentMap map[string]string      `json:"contentMap,omitempty"`
	MediaType  string                 `json:"mediaType,omitempty"`
	Published  *time.Time             `json:"published,omitempty"`
	Updated    *time.Time             `json:"updated,omitempty"`
	StartTime  *time.Time             `json:"startTime,omitempty"`
	EndTime    *time.Time             `json:"endTime,omitempty"`
	To         *URLCollectionProperty `json:"to,omitempty"`
	CC         *URLCollectionProperty `json:"cc,omitempty"`
	BTo        *URLCollectionProperty `json:"bto,omitempty"`
	BCC        *URLCollectionProperty `json:"bcc,omitempty"`
	Audience   *URLCollectionProperty `json:"audience,omitempty"`
}

// Context returns the context property.
func (t *ObjectType) Context() *ContextProperty {
	if t == nil {
		return nil
	}

	return t.object.Context
}

// ID returns the object's ID.
func (t *ObjectType) ID() *URLProperty {
	if t == nil {
		return nil
	}

	return t.object.ID
}

// SetID sets the object's ID.
func (t *ObjectType) SetID(id *url.URL) {
	t.object.ID = NewURLProperty(id)
	t.invalidateRaw()
}

// Type returns the type of the object.
func (t *ObjectType) Type() *TypeProperty {
	if t == nil {
		return nil
	}

	return t.object.Type
}

// Name returns the object's name.
func (t *ObjectType) Name() *LangString {
	return newLangString(t.object.Name, t.object.NameMap)
}

// Summary returns the object's summary.
func (t *ObjectType) Summary() *LangString {
	return newLangString(t.object.Summary, t.object.SummaryMap)
}

// Content returns the object's content.
func (t *ObjectType) Content() *LangString {
	return newLangString(t.object.Content, t.object.ContentMap)
}

// MediaType returns the MIME media type of the object's content.
func (t *ObjectType) MediaType() string {
	return t.object.MediaType
}

// Published returns the time when the object was published.
func (t *ObjectType) Published() *time.Time {
	return t.object.Published
}

// Updated returns the time when the object was last updated.
func (t *ObjectType) Updated() *time.Time {
	return t.object.Updated
}

// StartTime returns the start time.
func (t *ObjectType) StartTime() *time.Time {
	return t.object.StartTime
}

// EndTime returns the end time.
func (t *ObjectType) EndTime() *time.Time {
	return t.object.EndTime
}

// To returns a set of URLs to which the object should be sent.
func (t *ObjectType) To() []*url.URL {
	return t.object.To.URLs()
}

// CC returns a set of URLs to which the object should be copied.
func (t *ObjectType) CC() []*url.URL {
	return t.object.CC.URLs()
}

// BTo returns the blind 'to' recipients. These are not included when the
// object is delivered.
func (t *ObjectType) BTo() []*url.URL {
	return t.object.BTo.URLs()
}

// BCC returns the blind 'cc' recipients. These are not included when the
// object is delivered.
func (t *ObjectType) BCC() []*url.URL {
	return t.object.BCC.URLs()
}

// Audience returns the object's audience.
func (t *ObjectType) Audience() []*url.URL {
	return t.object.Audience.URLs()
}

// Recipients returns the union of 'to', 'cc', 'bto', 'bcc' and 'audience',
// with duplicates removed.
func (t *ObjectType) Recipients() []*url.URL {
	var recipients []*url.URL

	seen := make(map[string]struct{})

	for _, urls := range [][]*url.URL{t.To(), t.CC(), t.BTo(), t.BCC(), t.Audience()} {
		for _, u := range urls {
			if _, ok := seen[u.String()]; ok {
				continue
			}

			seen[u.String()] = struct{}{}

			recipients = append(recipients, u)
		}
	}

	return recipients
}

// Value returns the value of a property which is not modelled by this type.
func (t *ObjectType) Value(key string) (interface{}, bool) {
	v, ok := t.additional[key]

	return v, ok
}

// Raw returns the document from which the object was unmarshalled, or nil if
// the object was constructed in memory or has been modified since.
func (t *ObjectType) Raw() Document {
	if t == nil {
		return nil
	}

	return t.raw
}

func (t *ObjectType) invalidateRaw() {
	t.raw = nil
}

// MarshalJSON marshals the object.
func (t *ObjectType) MarshalJSON() ([]byte, error) {
	return MarshalJSON(t.object, t.additional)
}

// UnmarshalJSON unmarshals the object.
func (t *ObjectType) UnmarshalJSON(bytes []byte) error {
	header := &objectType{}

	err := json.Unmarshal(bytes, header)
	if err != nil {
		return err
	}

	raw := make(Document)

	err = json.Unmarshal(bytes, &raw)
	if err != nil {
		return err
	}

	doc := make(Document, len(raw))

	for k, v := range raw {
		doc[k] = v
	}

	// Delete all of the reserved ActivityStreams fields
	for _, prop := range reservedProperties() {
		delete(doc, prop)
	}

	t.object = header
	t.additional = doc
	t.raw = raw

	return nil
}
