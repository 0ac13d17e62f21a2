// Package common holds the wire-framing helpers shared by the service
// handlers: JSON-protocol responses, XML rendering, query-protocol
// parameter parsing and the error mapping.
package common

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nimbuslocal/nimbus/internal/awserr"
	"github.com/rs/zerolog/log"
)

// DecodeJSON reads a JSON-protocol request body.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return awserr.New("SerializationException", http.StatusBadRequest,
			fmt.Sprintf("Invalid request body: %v", err))
	}
	return nil
}

// RespondJSON writes a JSON-protocol response.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode response")
		}
	} else {
		w.Write([]byte("{}"))
	}
}

// RespondJSONError writes a JSON-protocol error with the service's type
// namespace (e.g. com.amazonaws.sqs#QueueDoesNotExist).
func RespondJSONError(w http.ResponseWriter, namespace string, err error) {
	ae := AsError(err)
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	w.Header().Set("x-amzn-ErrorType", ae.Code)
	w.WriteHeader(ae.Status)
	body := map[string]string{
		"__type":  fmt.Sprintf("%s#%s", namespace, ae.Code),
		"message": ae.Message,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// AsError normalizes any error to the typed form, defaulting to an
// internal failure.
func AsError(err error) *awserr.Error {
	var ae *awserr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return awserr.NewFault("InternalFailure", http.StatusInternalServerError, err.Error())
}

// --- XML framing (object store and query-protocol services) ---

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

// RespondXML writes an XML document with the UTF-8 declaration.
func RespondXML(w http.ResponseWriter, status int, v any) {
	body, err := xml.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode XML response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	w.Write([]byte(xmlHeader))
	w.Write(body)
}

type xmlErrorBody struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// RespondXMLError writes the object store's error document.
func RespondXMLError(w http.ResponseWriter, err error) {
	ae := AsError(err)
	RespondXML(w, ae.Status, xmlErrorBody{Code: ae.Code, Message: ae.Message})
}

type queryErrorDetail struct {
	Type    string `xml:"Type"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

type queryErrorResponse struct {
	XMLName   xml.Name         `xml:"ErrorResponse"`
	Xmlns     string           `xml:"xmlns,attr"`
	Error     queryErrorDetail `xml:"Error"`
	RequestID string           `xml:"RequestId"`
}

// RespondQueryError writes a query-protocol error document in the given
// namespace.
func RespondQueryError(w http.ResponseWriter, namespace, requestID string, err error) {
	ae := AsError(err)
	faultType := "Receiver"
	if ae.SenderFault {
		faultType = "Sender"
	}
	RespondXML(w, ae.Status, queryErrorResponse{
		Xmlns:     namespace,
		Error:     queryErrorDetail{Type: faultType, Code: ae.Code, Message: ae.Message},
		RequestID: requestID,
	})
}

// --- Query-protocol parameter parsing ---

// QueryMap parses the nested map encoding Prefix.entry.N.key /
// Prefix.entry.N.value.
func QueryMap(values url.Values, prefix string) map[string]string {
	m := make(map[string]string)
	for i := 1; ; i++ {
		key := values.Get(fmt.Sprintf("%s.entry.%d.key", prefix, i))
		value := values.Get(fmt.Sprintf("%s.entry.%d.value", prefix, i))
		if key == "" {
			break
		}
		m[key] = value
	}
	return m
}

// QueryList parses the nested list encoding Prefix.member.N.
func QueryList(values url.Values, prefix string) []string {
	var items []string
	for i := 1; ; i++ {
		v := values.Get(fmt.Sprintf("%s.member.%d", prefix, i))
		if v == "" {
			break
		}
		items = append(items, v)
	}
	return items
}

// QueryKeyValueList parses the nested tag encoding Prefix.member.N.Key /
// Prefix.member.N.Value.
func QueryKeyValueList(values url.Values, prefix string) map[string]string {
	m := make(map[string]string)
	for i := 1; ; i++ {
		key := values.Get(fmt.Sprintf("%s.member.%d.Key", prefix, i))
		if key == "" {
			break
		}
		m[key] = values.Get(fmt.Sprintf("%s.member.%d.Value", prefix, i))
	}
	return m
}

// QueryInt parses an optional integer parameter.
func QueryInt(values url.Values, key string, fallback int) int {
	v := values.Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
