package main

import (
	"strconv"
	"time"
)

// Outbound methods.
const (
	methodSubscribe           = "mining.subscribe"
	methodAuthorize           = "mining.authorize"
	methodSubmit              = "mining.submit"
	methodExtranonceSubscribe = "mining.extranonce.subscribe"
	methodSuggestDifficulty   = "mining.suggest_difficulty"
)

// Inbound methods.
const (
	methodNotify        = "mining.notify"
	methodSetDifficulty = "mining.set_difficulty"
	methodSetExtranonce = "mining.set_extranonce"
	methodReconnect     = "client.reconnect"
	methodGetVersion    = "client.get_version"
	methodShowMessage   = "client.show_message"
	methodPing          = "mining.ping"
)

type stratumRequest struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// stratumReply answers a server-initiated request such as client.get_version.
type stratumReply struct {
	ID     any `json:"id"`
	Result any `json:"result"`
	Error  any `json:"error"`
}

// rawStratumMessage is any inbound frame before validation. Responses have
// an id and no method; notifications have a method and a null id.
type rawStratumMessage struct {
	ID     any    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
	Result any    `json:"result"`
	Error  any    `json:"error"`
}

type inboundKind uint8

const (
	inboundUnrecognized inboundKind = iota
	inboundResponse
	inboundNotify
	inboundSetDifficulty
	inboundSetExtranonce
	inboundReconnect
	inboundGetVersion
	inboundShowMessage
	inboundPing
)

var inboundMethods = map[string]inboundKind{
	methodNotify:        inboundNotify,
	methodSetDifficulty: inboundSetDifficulty,
	methodSetExtranonce: inboundSetExtranonce,
	methodReconnect:     inboundReconnect,
	methodGetVersion:    inboundGetVersion,
	methodShowMessage:   inboundShowMessage,
	methodPing:          inboundPing,
}

func (k inboundKind) String() string {
	switch k {
	case inboundResponse:
		return "response"
	case inboundNotify:
		return methodNotify
	case inboundSetDifficulty:
		return methodSetDifficulty
	case inboundSetExtranonce:
		return methodSetExtranonce
	case inboundReconnect:
		return methodReconnect
	case inboundGetVersion:
		return methodGetVersion
	case inboundShowMessage:
		return methodShowMessage
	case inboundPing:
		return methodPing
	default:
		return "unrecognized"
	}
}

type stratumError struct {
	Code    int
	Message string
}

func (e *stratumError) String() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return "error code " + strconv.Itoa(e.Code)
	}
	return e.Message
}

type reconnectRequest struct {
	Host string
	Port int
	Wait time.Duration
}

// inboundMessage is a validated frame. Only the fields for its kind are set.
type inboundMessage struct {
	kind   inboundKind
	method string

	requestID  any // server requests that expect a reply
	responseID uint64
	result     any
	rpcErr     *stratumError

	job             *Job
	difficulty      float64
	extranonce1     []byte
	extranonce2Size int
	reconnect       reconnectRequest
	message         string
}
