package models

import (
	"net/http"
	"time"
)

// RequestMeta is immutable per inbound request and threaded through the
// dispatch loop into the forwarding record.
type RequestMeta struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	AgentUsed string    `json:"agent_used,omitempty"`
}

// ForwardRecord captures a single dispatch outcome handed to the forwarding
// collaborator for delivery to the original caller.
type ForwardRecord struct {
	RequestID    string         `json:"request_id"`
	Method       string         `json:"method"`
	Path         string         `json:"path"`
	AccountName  string         `json:"account_name,omitempty"`
	Headers      http.Header    `json:"headers,omitempty"`
	Body         []byte         `json:"body,omitempty"`
	Response     *http.Response `json:"-"`
	Timestamp    time.Time      `json:"timestamp"`
	Attempt      int            `json:"attempt"`
	Failovers    int            `json:"failovers"`
	AgentUsed    string         `json:"agent_used,omitempty"`
	Unauthorized bool           `json:"unauthenticated,omitempty"`
}
