package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrMalformed is returned (wrapped) for every frame that is not a valid
// inbound envelope. Callers should branch on errors.Is(err, ErrMalformed).
var ErrMalformed = errors.New("malformed envelope")

// Fixed error frame contents.
const (
	ErrorStatusCode = 400
	ErrorMessage    = "Invalid data format"
)

// Envelope is a route/data pair, used both inbound and for normal broadcasts.
type Envelope struct {
	Route string `json:"route"`
	Data  string `json:"data"`
}

// ErrorEnvelope is the error record broadcast on malformed input.
type ErrorEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// errorFrame is serialized once and shared by every error broadcast.
var errorFrame = mustMarshal(ErrorEnvelope{
	StatusCode: ErrorStatusCode,
	Message:    ErrorMessage,
})

// Decode parses one inbound frame.
//
// The frame must be a JSON object whose only members are the string fields
// "route" and "data". Invalid JSON, a non-object, a missing field, a
// non-string value, or an unknown member all yield an error wrapping
// ErrMalformed.
func Decode(frame []byte) (Envelope, error) {
	if !gjson.ValidBytes(frame) {
		return Envelope{}, fmt.Errorf("%w: invalid json", ErrMalformed)
	}

	root := gjson.ParseBytes(frame)
	if !root.IsObject() {
		return Envelope{}, fmt.Errorf("%w: expected object, got %s", ErrMalformed, root.Type)
	}

	var (
		env       Envelope
		haveRoute bool
		haveData  bool
		err       error
	)
	root.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if value.Type != gjson.String {
			err = fmt.Errorf("%w: field %q must be a string", ErrMalformed, name)
			return false
		}
		switch name {
		case "route":
			env.Route = value.String()
			haveRoute = true
		case "data":
			env.Data = value.String()
			haveData = true
		default:
			err = fmt.Errorf("%w: unexpected field %q", ErrMalformed, name)
			return false
		}
		return true
	})
	if err != nil {
		return Envelope{}, err
	}

	if !haveRoute {
		return Envelope{}, fmt.Errorf("%w: missing route", ErrMalformed)
	}
	if !haveData {
		return Envelope{}, fmt.Errorf("%w: missing data", ErrMalformed)
	}

	return env, nil
}

// Encode serializes a normal outbound envelope. HTML characters are left
// unescaped so pass-through payloads keep their text.
func Encode(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ErrorFrame returns the serialized error envelope. The returned slice is
// shared and must not be modified.
func ErrorFrame() []byte {
	return errorFrame
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("envelope: marshal %T: %v", v, err))
	}
	return data
}
