package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/shared"
	"github.com/xeipuuv/gojsonschema"
)

// messageSchema is the wire contract for sync queue messages. Unknown extra
// fields are ignored; a missing field or an invalid provider value fails
// validation.
const messageSchema = `{
	"type": "object",
	"required": ["jobId", "userId", "subscriptionId", "provider", "providerChannelId", "enqueuedAt"],
	"properties": {
		"jobId": {"type": "string", "minLength": 1},
		"userId": {"type": "string", "minLength": 1},
		"subscriptionId": {"type": "string", "minLength": 1},
		"provider": {"type": "string", "enum": ["YOUTUBE", "SPOTIFY"]},
		"providerChannelId": {"type": "string", "minLength": 1},
		"enqueuedAt": {"type": "number"}
	}
}`

var compiledMessageSchema = gojsonschema.NewStringLoader(messageSchema)

// ParseMessage validates body against the message schema and decodes it.
// A schema violation or malformed JSON returns an error wrapping
// [shared.ErrValidation]; such messages cannot self-heal and are never
// retried.
func ParseMessage(body []byte) (*models.SyncQueueMessage, error) {
	doc := gojsonschema.NewBytesLoader(body)
	result, err := gojsonschema.Validate(compiledMessageSchema, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			descs = append(descs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(descs, "; "))
	}

	var msg models.SyncQueueMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return &msg, nil
}
