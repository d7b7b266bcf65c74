/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package vocab implements the ActivityStreams vocabulary as typed objects
// over a generic JSON document. Properties which a type does not model are
// preserved in the document and merged back on marshal.
package vocab

import "encoding/json"

// Context defines the object context.
type Context string

const (
	// ContextActivityStreams is the ActivityStreams context.
	ContextActivityStreams Context = "https://www.w3.org/ns/activitystreams"
	// ContextSecurity is the security context.
	ContextSecurity Context = "https://w3id.org/security/v1"
	// ContextDataIntegrity is the data-integrity context.
	ContextDataIntegrity Context = "https://w3id.org/security/data-integrity/v1"
)

const (
	// PublicIRI indicates that the object is public, i.e. it may be viewed by anyone.
	PublicIRI = "https://www.w3.org/ns/activitystreams#Public"
)

// Type indicates the type of the object.
type Type string

const (
	// TypeObject specifies the 'Object' type.
	TypeObject Type = "Object"
	// TypeLink specifies the 'Link' type.
	TypeLink Type = "Link"
	// TypeArticle specifies the 'Article' object type.
	TypeArticle Type = "Article"
	// TypeDocument specifies the 'Document' object type.
	TypeDocument Type = "Document"
	// TypeNote specifies the 'Note' object type.
	TypeNote Type = "Note"
	// TypeImage specifies the 'Image' object type.
	TypeImage Type = "Image"
	// TypeTombstone specifies the 'Tombstone' object type.
	TypeTombstone Type = "Tombstone"
	// TypeMention specifies the 'Mention' link type.
	TypeMention Type = "Mention"

	// TypeApplication specifies the 'Application' actor type.
	TypeApplication Type = "Application"
	// TypeGroup specifies the 'Group' actor type.
	TypeGroup Type = "Group"
	// TypeOrganization specifies the 'Organization' actor type.
	TypeOrganization Type = "Organization"
	// TypePerson specifies the 'Person' actor type.
	TypePerson Type = "Person"
	// TypeService specifies the 'Service' actor type.
	TypeService Type = "Service"

	// TypeCollection specifies the 'Collection' object type.
	TypeCollection Type = "Collection"
	// TypeOrderedCollection specifies the 'OrderedCollection' object type.
	TypeOrderedCollection Type = "OrderedCollection"
	// TypeCollectionPage specifies the 'CollectionPage' object type.
	TypeCollectionPage Type = "CollectionPage"
	// TypeOrderedCollectionPage specifies the 'OrderedCollectionPage' object type.
	TypeOrderedCollectionPage Type = "OrderedCollectionPage"

	// TypeActivity specifies the generic 'Activity' type, the root of the
	// activity type hierarchy.
	TypeActivity Type = "Activity"
	// TypeIntransitiveActivity specifies the 'IntransitiveActivity' type.
	TypeIntransitiveActivity Type = "IntransitiveActivity"
	// TypeAccept specifies the 'Accept' activity type.
	TypeAccept Type = "Accept"
	// TypeAdd specifies the 'Add' activity type.
	TypeAdd Type = "Add"
	// TypeAnnounce specifies the 'Announce' activity type.
	TypeAnnounce Type = "Announce"
	// TypeArrive specifies the 'Arrive' activity type.
	TypeArrive Type = "Arrive"
	// TypeBlock specifies the 'Block' activity type.
	TypeBlock Type = "Block"
	// TypeCreate specifies the 'Create' activity type.
	TypeCreate Type = "Create"
	// TypeDelete specifies the 'Delete' activity type.
	TypeDelete Type = "Delete"
	// TypeDislike specifies the 'Dislike' activity type.
	TypeDislike Type = "Dislike"
	// TypeFlag specifies the 'Flag' activity type.
	TypeFlag Type = "Flag"
	// TypeFollow specifies the 'Follow' activity type.
	TypeFollow Type = "Follow"
	// TypeIgnore specifies the 'Ignore' activity type.
	TypeIgnore Type = "Ignore"
	// TypeInvite specifies the 'Invite' activity type.
	TypeInvite Type = "Invite"
	// TypeJoin specifies the 'Join' activity type.
	TypeJoin Type = "Join"
	// TypeLeave specifies the 'Leave' activity type.
	TypeLeave Type = "Leave"
	// TypeLike specifies the 'Like' activity type.
	TypeLike Type = "Like"
	// TypeListen specifies the 'Listen' activity type.
	TypeListen Type = "Listen"
	// TypeMove specifies the 'Move' activity type.
	TypeMove Type = "Move"
	// TypeOffer specifies the 'Offer' activity type.
	TypeOffer Type = "Offer"
	// TypeQuestion specifies the 'Question' activity type.
	TypeQuestion Type = "Question"
	// TypeRead specifies the 'Read' activity type.
	TypeRead Type = "Read"
	// TypeReject specifies the 'Reject' activity type.
	TypeReject Type = "Reject"
	// TypeRemove specifies the 'Remove' activity type.
	TypeRemove Type = "Remove"
	// TypeTentativeAccept specifies the 'TentativeAccept' activity type.
	TypeTentativeAccept Type = "TentativeAccept"
	// TypeTentativeReject specifies the 'TentativeReject' activity type.
	TypeTentativeReject Type = "TentativeReject"
	// TypeTravel specifies the 'Travel' activity type.
	TypeTravel Type = "Travel"
	// TypeUndo specifies the 'Undo' activity type.
	TypeUndo Type = "Undo"
	// TypeUpdate specifies the 'Update' activity type.
	TypeUpdate Type = "Update"
	// TypeView specifies the 'View' activity type.
	TypeView Type = "View"
)

// superTypes maps each activity type to its parent in the ActivityStreams
// type hierarchy. Types not listed here have no parent.
var superTypes = map[Type]Type{
	TypeIntransitiveActivity: TypeActivity,
	TypeAccept:               TypeActivity,
	TypeAdd:                  TypeActivity,
	TypeAnnounce:             TypeActivity,
	TypeArrive:               TypeIntransitiveActivity,
	TypeBlock:                TypeIgnore,
	TypeCreate:               TypeActivity,
	TypeDelete:               TypeActivity,
	TypeDislike:              TypeActivity,
	TypeFlag:                 TypeActivity,
	TypeFollow:               TypeActivity,
	TypeIgnore:               TypeActivity,
	TypeInvite:               TypeOffer,
	TypeJoin:                 TypeActivity,
	TypeLeave:                TypeActivity,
	TypeLike:                 TypeActivity,
	TypeListen:               TypeActivity,
	TypeMove:                 TypeActivity,
	TypeOffer:                TypeActivity,
	TypeQuestion:             TypeIntransitiveActivity,
	TypeRead:                 TypeActivity,
	TypeReject:               TypeActivity,
	TypeRemove:               TypeActivity,
	TypeTentativeAccept:      TypeAccept,
	TypeTentativeReject:      TypeReject,
	TypeTravel:               TypeIntransitiveActivity,
	TypeUndo:                 TypeActivity,
	TypeUpdate:               TypeActivity,
	TypeView:                 TypeActivity,
}

// SuperType returns the parent of the given type in the ActivityStreams type
// hierarchy, or an empty string if the type has no parent.
func SuperType(t Type) Type {
	return superTypes[t]
}

const (
	propertyContext           = "@context"
	propertyID                = "id"
	propertyType              = "type"
	propertyName              = "name"
	propertyNameMap           = "nameMap"
	propertySummary           = "summary"
	propertySummaryMap        = "summaryMap"
	propertyContent           = "content"
	propertyContentMap        = "contentMap"
	propertyMediaType         = "mediaType"
	propertyPublished         = "published"
	propertyUpdated           = "updated"
	propertyStartTime         = "startTime"
	propertyEndTime           = "endTime"
	propertyTo                = "to"
	propertyCC                = "cc"
	propertyBTo               = "bto"
	propertyBCC               = "bcc"
	propertyAudience          = "audience"
	propertyActor             = "actor"
	propertyObject            = "object"
	propertyTarget            = "target"
	propertyResult            = "result"
	propertyOrigin            = "origin"
	propertyInstrument        = "instrument"
	propertyCurrent           = "current"
	propertyFirst             = "first"
	propertyLast              = "last"
	propertyNext              = "next"
	propertyPrev              = "prev"
	propertyPartOf            = "partOf"
	propertyItems             = "items"
	propertyOrderedItems      = "orderedItems"
	propertyTotalItems        = "totalItems"
	propertyInbox             = "inbox"
	propertyOutbox            = "outbox"
	propertyFollowing         = "following"
	propertyFollowers         = "followers"
	propertyLiked             = "liked"
	propertyPreferredUsername = "preferredUsername"
	propertyEndpoints         = "endpoints"
	propertyPublicKey         = "publicKey"
)

func reservedProperties() []string {
	return []string{
		propertyContext,
		propertyID,
		propertyType,
		propertyName,
		propertyNameMap,
		propertySummary,
		propertySummaryMap,
		propertyContent,
		propertyContentMap,
		propertyMediaType,
		propertyPublished,
		propertyUpdated,
		propertyStartTime,
		propertyEndTime,
		propertyTo,
		propertyCC,
		propertyBTo,
		propertyBCC,
		propertyAudience,
		propertyActor,
		propertyObject,
		propertyTarget,
		propertyResult,
		propertyOrigin,
		propertyInstrument,
		propertyCurrent,
		propertyFirst,
		propertyLast,
		propertyNext,
		propertyPrev,
		propertyPartOf,
		propertyItems,
		propertyOrderedItems,
		propertyTotalItems,
		propertyInbox,
		propertyOutbox,
		propertyFollowing,
		propertyFollowers,
		propertyLiked,
		propertyPreferredUsername,
		propertyEndpoints,
		propertyPublicKey,
	}
}

// Document defines a JSON document as a map.
type Document map[string]interface{}

// MergeWith merges the document with the given document. Any duplicate fields
// in the given document are ignored.
func (doc Document) MergeWith(other Document) {
	for k, v := range other {
		if _, ok := doc[k]; !ok {
			doc[k] = v
		}
	}
}

// Unmarshal unmarshals the document to the given object.
func (doc Document) Unmarshal(obj interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, obj)
}
