/*
Copyright Fedway Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package amqpqueue

import (
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/fedway/fedway/internal/pkg/log"
)

const messageUUIDHeader = "_watermill_message_uuid"

// marshaler converts between watermill messages and AMQP publishings. It differs
// from the stock watermill-amqp marshaler in that the 'expiration' metadata
// property is mapped to the publishing's expiration, which is what parks a
// delayed message on the wait queue for the right duration.
type marshaler struct{}

// Marshal marshals a message. Messages are published as persistent so that they
// survive a broker restart.
func (m *marshaler) Marshal(msg *message.Message) (amqp.Publishing, error) {
	headers := make(amqp.Table, len(msg.Metadata)+1)

	for key, value := range msg.Metadata {
		if key == metadataExpiration {
			continue
		}

		headers[key] = value
	}

	headers[messageUUIDHeader] = msg.UUID

	return amqp.Publishing{
		Body:         msg.Payload,
		Headers:      headers,
		DeliveryMode: amqp.Persistent,
		Expiration:   expirationOf(msg.Metadata),
	}, nil
}

// Unmarshal unmarshals a message. Headers that are not strings, such as the
// x-death table that the broker adds when a message expires on the wait queue,
// are dropped.
//
//nolint:gocritic
func (m *marshaler) Unmarshal(amqpMsg amqp.Delivery) (*message.Message, error) {
	var msgUUID string

	if value, ok := amqpMsg.Headers[messageUUIDHeader].(string); ok {
		msgUUID = value
	}

	msg := message.NewMessage(msgUUID, amqpMsg.Body)

	for key, value := range amqpMsg.Headers {
		if key == messageUUIDHeader {
			continue
		}

		if strValue, ok := value.(string); ok {
			msg.Metadata.Set(key, strValue)
		}
	}

	return msg, nil
}

// expirationOf returns the publishing expiration in milliseconds, per the AMQP
// spec, or an empty string if the message has none.
func expirationOf(metadata message.Metadata) string {
	value, ok := metadata[metadataExpiration]
	if !ok {
		return ""
	}

	expiration, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("Invalid value for the expiration property. No expiration will be set.",
			logfields.WithKey(metadataExpiration), log.WithError(err))

		return ""
	}

	return strconv.FormatInt(expiration.Milliseconds(), 10)
}
