/*
MIT License

Copyright (c) 2019 Three Dots Labs

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package amqp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/meridianfed/meridian/internal/pkg/log"
)

const defaultMessageUUIDHeaderKey = "_watermill_message_uuid"

// DefaultMarshaler is derived from the marshaller in watermill-amqp. In addition to the
// standard behaviour, it round-trips the array-valued headers that the broker sets on
// dead-lettered deliveries and it maps the expiration metadata property onto the
// per-message TTL of the publishing.
type DefaultMarshaler struct {
	// PostprocessPublishing, if set, is invoked with the publishing before it is
	// handed to the broker, for example to add CorrelationId and ContentType:
	//
	//  amqp.DefaultMarshaler{
	//		PostprocessPublishing: func(publishing stdAmqp.Publishing) stdAmqp.Publishing {
	//			publishing.CorrelationId = "correlation"
	//			publishing.ContentType = "application/json"
	//
	//			return publishing
	//		},
	//	}
	PostprocessPublishing func(amqp.Publishing) amqp.Publishing

	// When true, DeliveryMode will be not set to Persistent.
	//
	// DeliveryMode Transient means higher throughput, but messages will not be
	// restored on broker restart. The delivery mode of publishings is unrelated
	// to the durability of the queues they reside on. Transient messages will
	// not be restored to durable queues, persistent messages will be restored to
	// durable queues and lost on non-durable queues during server restart.
	NotPersistentDeliveryMode bool

	// Header used to store and read message UUID.
	//
	// If value is empty, defaultMessageUUIDHeaderKey value is used.
	// If header doesn't exist, empty value is passed as message UUID.
	MessageUUIDHeaderKey string
}

// Marshal converts a watermill message into an AMQP publishing.
func (d DefaultMarshaler) Marshal(msg *message.Message) (amqp.Publishing, error) {
	logger.Debug("Marshalling message with metadata", log.WithMessageID(msg.UUID),
		log.WithMetadata(msg.Metadata))

	headers := make(amqp.Table, len(msg.Metadata)+1)

	for key, value := range msg.Metadata {
		if key == metadataExpiration {
			// Expiration is set on the publishing itself, not carried as a header.
			logger.Debug("Ignoring metadata property since it will be set in the message directly",
				log.WithProperty(key))

			continue
		}

		headerValue, err := parseHeaderValue(value)
		if err != nil {
			return amqp.Publishing{}, fmt.Errorf("parse value for metadata %s: %w", key, err)
		}

		headers[key] = headerValue
	}

	headers[d.messageUUIDHeaderKey()] = msg.UUID

	publishing := amqp.Publishing{
		Body:       msg.Payload,
		Headers:    headers,
		Expiration: expirationValue(msg.Metadata),
	}

	if !d.NotPersistentDeliveryMode {
		publishing.DeliveryMode = amqp.Persistent
	}

	if d.PostprocessPublishing != nil {
		publishing = d.PostprocessPublishing(publishing)
	}

	return publishing, nil
}

// Unmarshal converts an AMQP delivery into a watermill message.
//
//nolint:gocritic
func (d DefaultMarshaler) Unmarshal(amqpMsg amqp.Delivery) (*message.Message, error) {
	msgUUID, err := d.messageUUID(amqpMsg.Headers)
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(msgUUID, amqpMsg.Body)
	msg.Metadata = make(message.Metadata, len(amqpMsg.Headers)-1)

	for key, value := range amqpMsg.Headers {
		if key == d.messageUUIDHeaderKey() {
			continue
		}

		logger.Debug("Got metadata property", log.WithProperty(key), log.WithType(reflect.TypeOf(value).String()))

		msg.Metadata[key], err = formatHeaderValue(value)
		if err != nil {
			return nil, fmt.Errorf("format header value for metadata [%s]: %w", key, err)
		}
	}

	return msg, nil
}

func (d DefaultMarshaler) messageUUID(headers amqp.Table) (string, error) {
	value, ok := headers[d.messageUUIDHeaderKey()]
	if !ok {
		return "", nil
	}

	msgUUID, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("message UUID is not a string, but: %#v", value)
	}

	return msgUUID, nil
}

func (d DefaultMarshaler) messageUUIDHeaderKey() string {
	if d.MessageUUIDHeaderKey != "" {
		return d.MessageUUIDHeaderKey
	}

	return defaultMessageUUIDHeaderKey
}

// formatHeaderValue renders a header value as a metadata string. String values pass
// through unchanged. Array values (set by the broker on dead-lettered deliveries) are
// rendered as JSON so they survive the metadata map.
func formatHeaderValue(value interface{}) (string, error) {
	if strValue, ok := value.(string); ok {
		return strValue, nil
	}

	arrayValue, ok := value.([]interface{})
	if !ok {
		return "", fmt.Errorf("value is not a string or an array, but %#v", value)
	}

	valueBytes, err := json.Marshal(arrayValue)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	return string(valueBytes), nil
}

// parseHeaderValue is the inverse of formatHeaderValue: a metadata string that holds a
// JSON array is decoded back into a []interface{} of AMQP tables, anything else is
// passed through as a plain string.
func parseHeaderValue(value string) (interface{}, error) {
	var arrayValue []interface{}

	if err := json.Unmarshal([]byte(value), &arrayValue); err != nil {
		return value, nil //nolint:nilerr
	}

	headerValue := make([]interface{}, len(arrayValue))

	for i, value := range arrayValue {
		if tableValue, ok := value.(amqp.Table); ok {
			headerValue[i] = tableValue

			continue
		}

		mapValue, ok := value.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unsupported value type: %s", reflect.TypeOf(value))
		}

		tableValue := make(amqp.Table)

		for k, v := range mapValue {
			tableValue[k] = v
		}

		headerValue[i] = tableValue
	}

	return headerValue, nil
}

// expirationValue translates the expiration metadata property (a Go duration string)
// into the millisecond TTL string that the broker expects. An unparsable value is
// logged and ignored.
func expirationValue(metadata message.Metadata) string {
	value, ok := metadata[metadataExpiration]
	if !ok {
		return ""
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("Invalid value for metadata property. No expiration will be set.",
			log.WithValue(value), log.WithProperty(metadataExpiration), log.WithError(err))

		return ""
	}

	return strconv.FormatInt(d.Milliseconds(), 10)
}
