// Package fulfillment speaks the Dialogflow ES webhook format and renders
// lookup results as reply text.
package fulfillment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedRequest is returned by DecodeRequest for bodies that are not a JSON object
var ErrMalformedRequest = errors.New("malformed fulfillment request")

// IdentifierParameter is the intent parameter carrying the visitor record id
const IdentifierParameter = "matricula"

// WebhookRequest is the subset of a Dialogflow ES fulfillment request the
// service reads
type WebhookRequest struct {
	ResponseID  string      `json:"responseId,omitempty"`
	Session     string      `json:"session,omitempty"`
	QueryResult QueryResult `json:"queryResult"`
}

// QueryResult holds the matched intent and its parameters
type QueryResult struct {
	QueryText    string                 `json:"queryText,omitempty"`
	LanguageCode string                 `json:"languageCode,omitempty"`
	Parameters   map[string]interface{} `json:"parameters"`
	Intent       *Intent                `json:"intent,omitempty"`
}

// Intent identifies the matched intent
type Intent struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// WebhookResponse is the reply sent back to Dialogflow
type WebhookResponse struct {
	FulfillmentText string `json:"fulfillmentText"`
}

// Identifier returns the raw identifier parameter. Numbers keep their
// json.Number form so long ids are not rounded.
func (r *WebhookRequest) Identifier() interface{} {
	if r.QueryResult.Parameters == nil {
		return nil
	}
	return r.QueryResult.Parameters[IdentifierParameter]
}

// DecodeRequest parses a fulfillment request body. An empty body, invalid
// JSON, an empty object or a JSON value that is not an object is rejected.
func DecodeRequest(r io.Reader) (*WebhookRequest, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, ErrMalformedRequest
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if len(fields) == 0 {
		return nil, ErrMalformedRequest
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var req WebhookRequest
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return &req, nil
}
