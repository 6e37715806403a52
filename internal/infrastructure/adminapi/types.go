package adminapi

import (
	"encoding/json"
	"net/http"
)

// Request describes one call to the admin API. T is the JSON body type.
type Request[T any] struct {
	Method      string
	Path        string
	PathParams  map[string]string
	QueryParams map[string]string
	Headers     map[string]string
	Body        *T
}

func (r *Request[T]) AddQueryParam(name, value string) {
	if r.QueryParams == nil {
		r.QueryParams = make(map[string]string)
	}
	r.QueryParams[name] = value
}

func (r *Request[T]) AddPathParam(name, value string) {
	if r.PathParams == nil {
		r.PathParams = make(map[string]string)
	}
	r.PathParams[name] = value
}

func (r *Request[T]) AddHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[name] = value
}

// rawResponse is what passes through the circuit breaker.
type rawResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// flexString accepts a JSON string or number. Upstream ids come as either.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// envelope is the common {success, data, error, message} wrapper.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// failed reports an explicit success:false.
func (e *envelope) failed() bool {
	return e.Success != nil && !*e.Success
}

// errorText picks error (string or {message}) then message.
func (e *envelope) errorText() string {
	if len(e.Error) > 0 && string(e.Error) != "null" {
		var s string
		if json.Unmarshal(e.Error, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(e.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return e.Message
}

// hasData reports whether data is present and not null.
func (e *envelope) hasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}
