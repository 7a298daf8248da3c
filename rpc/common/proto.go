package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
//
// Query arguments, result items and field metadata are opaque JSON documents,
// the serializers never look into them.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Cache    string `json:"cache,omitempty"`    // Used for: Execute, ExecuteFields
	TypeName string `json:"typeName,omitempty"` // Used for: Execute
	Query    string `json:"query,omitempty"`    // Used for: Execute, ExecuteFields
	Args     []byte `json:"args,omitempty"`     // Used for: Execute, ExecuteFields (JSON array)
	PageSize int32  `json:"pageSize,omitempty"` // Used for: Execute, ExecuteFields, Fetch

	// Used for: Fetch, Close (request) and Execute, ExecuteFields, Fetch (response)
	QueryID uint64 `json:"queryId,omitempty"`

	// Response only fields
	Items  []byte `json:"items,omitempty"`  // Used for: Execute, ExecuteFields, Fetch (JSON array)
	Fields []byte `json:"fields,omitempty"` // Used for: Execute, ExecuteFields (JSON array of field metadata, first page)
	Last   bool   `json:"last,omitempty"`   // Used for: Execute, ExecuteFields, Fetch
	Ok     bool   `json:"ok,omitempty"`     // Used for: Close
	Err    string `json:"err,omitempty"`    // Empty if no error, otherwise contains the error message

	// ErrKind classifies Err, see query.ErrorKind
	ErrKind uint8 `json:"errKind,omitempty"`

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Unused, can be used for additional Adapters
}

// WithError sets the error of a response message and returns it
func (m *Message) WithError(err string, kind uint8) *Message {
	m.Err = err
	m.ErrKind = kind
	return m
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewExecuteRequest creates a new Execute request. An empty typeName runs sql
// as a plain SELECT statement, otherwise sql is the WHERE clause for typeName.
func NewExecuteRequest(cache, typeName, sql string, args []byte, pageSize int32) *Message {
	return &Message{
		MsgType:  MsgTQryExecute,
		Cache:    cache,
		TypeName: typeName,
		Query:    sql,
		Args:     args,
		PageSize: pageSize,
	}
}

// NewExecuteFieldsRequest creates a new ExecuteFields request
func NewExecuteFieldsRequest(cache, sql string, args []byte, pageSize int32) *Message {
	return &Message{
		MsgType:  MsgTQryExecuteFields,
		Cache:    cache,
		Query:    sql,
		Args:     args,
		PageSize: pageSize,
	}
}

// NewFetchRequest creates a new Fetch request
func NewFetchRequest(queryID uint64, pageSize int32) *Message {
	return &Message{
		MsgType:  MsgTQryFetch,
		QueryID:  queryID,
		PageSize: pageSize,
	}
}

// NewCloseRequest creates a new Close request
func NewCloseRequest(queryID uint64) *Message {
	return &Message{
		MsgType: MsgTQryClose,
		QueryID: queryID,
	}
}

// NewPageResponse creates a response carrying one page of results.
// msgType is the type of the request that is answered.
func NewPageResponse(msgType MessageType, queryID uint64, items, fields []byte, last bool) *Message {
	return &Message{
		MsgType: msgType,
		QueryID: queryID,
		Items:   items,
		Fields:  fields,
		Last:    last,
	}
}

// NewCloseResponse creates a new Close response
func NewCloseResponse(ok bool) *Message {
	return &Message{
		MsgType: MsgTQryClose,
		Ok:      ok,
	}
}

// NewCustomRequest creates a new Custom request
func NewCustomRequest(meta []byte) *Message {
	return &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTQryExecute:
		return "execute"
	case MsgTQryExecuteFields:
		return "executeFields"
	case MsgTQryFetch:
		return "fetch"
	case MsgTQryClose:
		return "close"
	case MsgTCustom:
		return "custom"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "execute":
		*t = MsgTQryExecute
	case "executeFields":
		*t = MsgTQryExecuteFields
	case "fetch":
		*t = MsgTQryFetch
	case "close":
		*t = MsgTQryClose
	case "custom":
		*t = MsgTCustom
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	case "unknown":
		*t = MsgTUnknown
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Query operations

	MsgTQryExecute       // Execute a query and return the first page
	MsgTQryExecuteFields // Execute a fields query and return the first page with field metadata
	MsgTQryFetch         // Fetch the next page of an open query
	MsgTQryClose         // Close an open query

	// Custom operations

	MsgTCustom // Custom operation type
)
