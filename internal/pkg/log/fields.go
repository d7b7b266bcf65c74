/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log Fields.
const (
	FieldURI               = "uri"
	FieldURIs              = "uris"
	FieldSenderURL         = "sender"
	FieldConfig            = "config"
	FieldServiceName       = "service"
	FieldServiceIRI        = "serviceIri"
	FieldServiceEndpoint   = "serviceEndpoint"
	FieldActorID           = "actorId"
	FieldActivityType      = "activityType"
	FieldActivityID        = "activityId"
	FieldMessageID         = "messageId"
	FieldPayload           = "payload"
	FieldRequestURL        = "requestUrl"
	FieldRequestHeaders    = "requestHeaders"
	FieldRequestBody       = "requestBody"
	FieldResponse          = "response"
	FieldSize              = "size"
	FieldExpiration        = "expiration"
	FieldTarget            = "target"
	FieldTopic             = "topic"
	FieldHTTPStatus        = "httpStatus"
	FieldHTTPMethod        = "httpMethod"
	FieldParameter         = "parameter"
	FieldInboxURL          = "inboxUrl"
	FieldObjectIRI         = "objectIri"
	FieldReferenceIRI      = "reference"
	FieldKeyID             = "keyId"
	FieldKeyType           = "keyType"
	FieldKeyOwner          = "keyOwner"
	FieldCurrent           = "current"
	FieldNext              = "next"
	FieldTotalItems        = "total"
	FieldType              = "type"
	FieldQuery             = "query"
	FieldHandle            = "handle"
	FieldResource          = "resource"
	FieldDomain            = "domain"
	FieldOrigin            = "origin"
	FieldRoute             = "route"
	FieldURITemplate       = "uriTemplate"
	FieldSignatureSpec     = "signatureSpec"
	FieldContentType       = "contentType"
	FieldStoreName         = "storeName"
	FieldKVKey             = "kvKey"
	FieldAttempt           = "attempt"
	FieldDeliveryDelay     = "deliveryDelay"
	FieldAddress           = "address"
	FieldData              = "data"
	FieldLogSpec           = "logSpec"
	FieldTracingProvider   = "tracingProvider"
	FieldVersion           = "version"
	FieldBackoff           = "backoff"
	FieldMaxRetries        = "maxRetries"
	FieldPoolSize          = "poolSize"
	FieldIndex             = "index"
	FieldMetadata          = "metadata"
	FieldProperty          = "property"
	FieldValue             = "value"
	FieldTaskID            = "taskId"
	FieldTaskMgrInstanceID = "taskMgrInstanceId"
	FieldPermitHolder      = "permitHolder"
	FieldTimeSinceLastRun  = "timeSinceLastRun"
	FieldStatus            = "status"
	FieldMaxTime           = "maxTime"
	FieldCheckInterval     = "checkInterval"
	FieldTaskRunInterval   = "taskRunInterval"
	FieldTags              = "tags"
	FieldAge               = "age"
	FieldMinAge            = "minAge"
)

// WithError sets the error field.
func WithError(err error) zap.Field {
	return zap.Error(err)
}

// WithMessageID sets the message-id field.
func WithMessageID(value string) zap.Field {
	return zap.String(FieldMessageID, value)
}

// WithPayload sets the payload field.
func WithPayload(value []byte) zap.Field {
	return zap.String(FieldPayload, string(value))
}

// WithRequestURL sets the request-url field.
func WithRequestURL(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldRequestURL, value)
}

// WithRequestURLString sets the request-url field.
func WithRequestURLString(value string) zap.Field {
	return zap.String(FieldRequestURL, value)
}

// WithRequestHeaders sets the request-headers field.
func WithRequestHeaders(value http.Header) zap.Field {
	return zap.Object(FieldRequestHeaders, newHTTPHeaderMarshaller(value))
}

// WithRequestBody sets the request-body field.
func WithRequestBody(value []byte) zap.Field {
	return zap.String(FieldRequestBody, string(value))
}

// WithResponse sets the response field.
func WithResponse(value []byte) zap.Field {
	return zap.String(FieldResponse, string(value))
}

// WithServiceName sets the service field.
func WithServiceName(value string) zap.Field {
	return zap.String(FieldServiceName, value)
}

// WithServiceIRI sets the service-iri field.
func WithServiceIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldServiceIRI, value)
}

// WithServiceEndpoint sets the service-endpoint field.
func WithServiceEndpoint(value string) zap.Field {
	return zap.String(FieldServiceEndpoint, value)
}

// WithActivityType sets the activity-type field.
func WithActivityType(value string) zap.Field {
	return zap.String(FieldActivityType, value)
}

// WithActivityID sets the activity-id field.
func WithActivityID(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldActivityID, value)
}

// WithActorIRI sets the actor-id field.
func WithActorIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldActorID, value)
}

// WithActorID sets the actor-id field.
func WithActorID(value string) zap.Field {
	return zap.String(FieldActorID, value)
}

// WithConfig sets the config field. The value of the field is
// encoded as JSON.
func WithConfig(value interface{}) zap.Field {
	return zap.Inline(newJSONMarshaller(FieldConfig, value))
}

// WithSize sets the size field.
func WithSize(value int) zap.Field {
	return zap.Int(FieldSize, value)
}

// WithExpiration sets the expiration field.
func WithExpiration(value time.Duration) zap.Field {
	return zap.Duration(FieldExpiration, value)
}

// WithTarget sets the target field.
func WithTarget(value string) zap.Field {
	return zap.String(FieldTarget, value)
}

// WithTargetIRI sets the target field.
func WithTargetIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldTarget, value)
}

// WithTopic sets the topic field.
func WithTopic(value string) zap.Field {
	return zap.String(FieldTopic, value)
}

// WithHTTPStatus sets the http-status field.
func WithHTTPStatus(value int) zap.Field {
	return zap.Int(FieldHTTPStatus, value)
}

// WithHTTPMethod sets the http-method field.
func WithHTTPMethod(value string) zap.Field {
	return zap.String(FieldHTTPMethod, value)
}

// WithParameter sets the parameter field.
func WithParameter(value string) zap.Field {
	return zap.String(FieldParameter, value)
}

// WithInboxURL sets the inbox-url field.
func WithInboxURL(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldInboxURL, value)
}

// WithURI sets the uri field.
func WithURI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldURI, value)
}

// WithSenderURL sets the sender field.
func WithSenderURL(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldSenderURL, value)
}

// WithObjectIRI sets the object-iri field.
func WithObjectIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldObjectIRI, value)
}

// WithReferenceIRI sets the reference field.
func WithReferenceIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldReferenceIRI, value)
}

// WithKeyID sets the key-id field.
func WithKeyID(value string) zap.Field {
	return zap.String(FieldKeyID, value)
}

// WithKeyIRI sets the key-id field.
func WithKeyIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldKeyID, value)
}

// WithKeyOwnerIRI sets the key-owner field.
func WithKeyOwnerIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldKeyOwner, value)
}

// WithKeyType sets the key-type field.
func WithKeyType(value string) zap.Field {
	return zap.String(FieldKeyType, value)
}

// WithCurrentIRI sets the current field.
func WithCurrentIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldCurrent, value)
}

// WithNextIRI sets the next field.
func WithNextIRI(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldNext, value)
}

// WithTotal sets the total field.
func WithTotal(value int) zap.Field {
	return zap.Int(FieldTotalItems, value)
}

// WithType sets the type field.
func WithType(value string) zap.Field {
	return zap.String(FieldType, value)
}

// WithQuery sets the query field. The value of the field is
// encoded as JSON.
func WithQuery(value interface{}) zap.Field {
	return zap.Inline(newJSONMarshaller(FieldQuery, value))
}

// WithHandle sets the handle field.
func WithHandle(value string) zap.Field {
	return zap.String(FieldHandle, value)
}

// WithResource sets the resource field.
func WithResource(value string) zap.Field {
	return zap.String(FieldResource, value)
}

// WithDomain sets the domain field.
func WithDomain(value string) zap.Field {
	return zap.String(FieldDomain, value)
}

// WithOrigin sets the origin field.
func WithOrigin(value string) zap.Field {
	return zap.String(FieldOrigin, value)
}

// WithRoute sets the route field.
func WithRoute(value string) zap.Field {
	return zap.String(FieldRoute, value)
}

// WithURITemplate sets the uri-template field.
func WithURITemplate(value string) zap.Field {
	return zap.String(FieldURITemplate, value)
}

// WithSignatureSpec sets the signature-spec field.
func WithSignatureSpec(value string) zap.Field {
	return zap.String(FieldSignatureSpec, value)
}

// WithContentType sets the content-type field.
func WithContentType(value string) zap.Field {
	return zap.String(FieldContentType, value)
}

// WithStoreName sets the store-name field.
func WithStoreName(value string) zap.Field {
	return zap.String(FieldStoreName, value)
}

// WithKVKey sets the kv-key field.
func WithKVKey(value fmt.Stringer) zap.Field {
	return zap.Stringer(FieldKVKey, value)
}

// WithAttempt sets the attempt field.
func WithAttempt(value int) zap.Field {
	return zap.Int(FieldAttempt, value)
}

// WithDeliveryDelay sets the delivery-delay field.
func WithDeliveryDelay(value time.Duration) zap.Field {
	return zap.Duration(FieldDeliveryDelay, value)
}

// WithAddress sets the address field.
func WithAddress(value string) zap.Field {
	return zap.String(FieldAddress, value)
}

// WithData sets the data field.
func WithData(value []byte) zap.Field {
	return zap.String(FieldData, string(value))
}

// WithLogSpec sets the log-spec field.
func WithLogSpec(value string) zap.Field {
	return zap.String(FieldLogSpec, value)
}

// WithTracingProvider sets the tracing-provider field.
func WithTracingProvider(value string) zap.Field {
	return zap.String(FieldTracingProvider, value)
}

// WithVersion sets the version field.
func WithVersion(value string) zap.Field {
	return zap.String(FieldVersion, value)
}

// WithBackoff sets the backoff field.
func WithBackoff(value time.Duration) zap.Field {
	return zap.Duration(FieldBackoff, value)
}

// WithMaxRetries sets the max-retries field.
func WithMaxRetries(value int) zap.Field {
	return zap.Int(FieldMaxRetries, value)
}

// WithPoolSize sets the pool-size field.
func WithPoolSize(value int) zap.Field {
	return zap.Int(FieldPoolSize, value)
}

// WithIndex sets the index field.
func WithIndex(value int) zap.Field {
	return zap.Int(FieldIndex, value)
}

// WithMetadata sets the metadata field. The value of the field is
// encoded as JSON.
func WithMetadata(value interface{}) zap.Field {
	return zap.Inline(newJSONMarshaller(FieldMetadata, value))
}

// WithProperty sets the property field.
func WithProperty(value string) zap.Field {
	return zap.String(FieldProperty, value)
}

// WithValue sets the value field.
func WithValue(value interface{}) zap.Field {
	return zap.Any(FieldValue, value)
}

// WithTaskID sets the task-id field.
func WithTaskID(value string) zap.Field {
	return zap.String(FieldTaskID, value)
}

// WithTaskMgrInstanceID sets the task-mgr-instance field.
func WithTaskMgrInstanceID(value string) zap.Field {
	return zap.String(FieldTaskMgrInstanceID, value)
}

// WithPermitHolder sets the permit-holder field.
func WithPermitHolder(value string) zap.Field {
	return zap.String(FieldPermitHolder, value)
}

// WithStatus sets the status field.
func WithStatus(value string) zap.Field {
	return zap.String(FieldStatus, value)
}

// WithTags sets the tags field.
func WithTags(value ...string) zap.Field {
	return zap.Array(FieldTags, newStringArrayMarshaller(value))
}

// WithMaxTime sets the max-time field.
func WithMaxTime(value time.Duration) zap.Field {
	return zap.Duration(FieldMaxTime, value)
}

// WithCheckInterval sets the check-interval field.
func WithCheckInterval(value time.Duration) zap.Field {
	return zap.Duration(FieldCheckInterval, value)
}

// WithTaskRunInterval sets the task-run-interval field.
func WithTaskRunInterval(value time.Duration) zap.Field {
	return zap.Duration(FieldTaskRunInterval, value)
}

// WithTimeSinceLastRun sets the time-since-last-run field.
func WithTimeSinceLastRun(value time.Duration) zap.Field {
	return zap.Duration(FieldTimeSinceLastRun, value)
}

// WithAge sets the age field.
func WithAge(value time.Duration) zap.Field {
	return zap.Duration(FieldAge, value)
}

// WithMinAge sets the min-age field.
func WithMinAge(value time.Duration) zap.Field {
	return zap.Duration(FieldMinAge, value)
}

type jsonMarshaller struct {
	key string
	obj interface{}
}

func newJSONMarshaller(key string, value interface{}) *jsonMarshaller {
	return &jsonMarshaller{key: key, obj: value}
}

func (m *jsonMarshaller) MarshalLogObject(e zapcore.ObjectEncoder) error {
	b, err := json.Marshal(m.obj)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	e.AddString(m.key, string(b))

	return nil
}

type urlArrayMarshaller struct {
	urls []*url.URL
}

func newURLArrayMarshaller(urls []*url.URL) *urlArrayMarshaller {
	return &urlArrayMarshaller{urls: urls}
}

func (m *urlArrayMarshaller) MarshalLogArray(e zapcore.ArrayEncoder) error {
	for _, u := range m.urls {
		e.AppendString(u.String())
	}

	return nil
}

// WithURLs sets the uris field.
func WithURLs(value ...*url.URL) zap.Field {
	return zap.Array(FieldURIs, newURLArrayMarshaller(value))
}

type httpHeaderMarshaller struct {
	headers http.Header
}

func newHTTPHeaderMarshaller(headers http.Header) *httpHeaderMarshaller {
	return &httpHeaderMarshaller{headers: headers}
}

func (m *httpHeaderMarshaller) MarshalLogObject(e zapcore.ObjectEncoder) error {
	for k, values := range m.headers {
		if err := e.AddArray(k, newStringArrayMarshaller(values)); err != nil {
			return fmt.Errorf("marshal values: %w", err)
		}
	}

	return nil
}

type stringArrayMarshaller struct {
	values []string
}

func newStringArrayMarshaller(values []string) *stringArrayMarshaller {
	return &stringArrayMarshaller{values: values}
}

func (m *stringArrayMarshaller) MarshalLogArray(e zapcore.ArrayEncoder) error {
	for _, v := range m.values {
		e.AppendString(v)
	}

	return nil
}
