package errors

import "encoding/json"

type envelope struct {
	Error envelopeBody `json:"error"`
}

type envelopeBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToJSON renders the wire envelope. Marshalling two plain strings cannot
// fail, so the error return exists only to keep call sites honest.
func (e *APIError) ToJSON() ([]byte, error) {
	return json.Marshal(envelope{Error: envelopeBody{Code: e.Code, Message: e.Message}})
}
