package hub

import (
	"encoding/json"

	"beadboard/internal/bd"
)

// Command names carried in the request envelope's type field.
const (
	CmdSetProject        = "set-project"
	CmdSubscribeList     = "subscribe-list"
	CmdShowIssue         = "show-issue"
	CmdCreateIssue       = "create-issue"
	CmdUpdateStatus      = "update-status"
	CmdUpdatePriority    = "update-priority"
	CmdUpdateTitle       = "update-title"
	CmdUpdateType        = "update-type"
	CmdUpdateEstimate    = "update-estimate"
	CmdUpdateExternalRef = "update-external-ref"
	CmdDeleteIssue       = "delete-issue"
	CmdLabelAdd          = "label-add"
	CmdLabelRemove       = "label-remove"
	CmdAddComment        = "add-comment"
	CmdGetSeen           = "get-seen"
	CmdMarkSeen          = "mark-seen"
	CmdMarkUnseen        = "mark-unseen"
	CmdGetProjectInfo    = "get-project-info"
	CmdOpenInFinder      = "open-in-finder"
)

// TypeSnapshot is the type of unsolicited full-list pushes.
const TypeSnapshot = "snapshot"

// BroadcastID is the sentinel id on push envelopes; it never correlates to
// a client request.
const BroadcastID = "broadcast"

// Error codes returned under reply.error.code.
const (
	CodeInvalidProject = "INVALID_PROJECT"
	CodeNoProject      = "NO_PROJECT"
	CodeFetchError     = "FETCH_ERROR"
	CodeUpdateError    = "UPDATE_ERROR"
	CodeCreateError    = "CREATE_ERROR"
	CodeDeleteError    = "DELETE_ERROR"
	CodeLabelError     = "LABEL_ERROR"
	CodeShowError      = "SHOW_ERROR"
	CodeCommentError   = "COMMENT_ERROR"
	CodeUnknownType    = "UNKNOWN_TYPE"
	CodeInvalidPayload = "INVALID_PAYLOAD"
)

// Request is the envelope every client frame must parse into. The id is
// client-generated, unique per connection, and used only for correlation.
type Request struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply is the envelope for both correlated replies and unsolicited pushes.
type Reply struct {
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	OK      bool        `json:"ok"`
	Payload any         `json:"payload,omitempty"`
	Error   *ReplyError `json:"error,omitempty"`
}

type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func okReply(req Request, payload any) Reply {
	return Reply{ID: req.ID, Type: req.Type, OK: true, Payload: payload}
}

func errReply(req Request, code, message string) Reply {
	return Reply{ID: req.ID, Type: req.Type, OK: false, Error: &ReplyError{Code: code, Message: message}}
}

// SnapshotPayload is the body of a snapshot push.
type SnapshotPayload struct {
	ID    string     `json:"id"`
	Type  string     `json:"type"`
	Items []bd.Issue `json:"items"`
}

// ProjectInfo is the body of set-project and get-project-info replies.
type ProjectInfo struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// ListPayload is the body of subscribe-list replies.
type ListPayload struct {
	List  string     `json:"list"`
	Items []bd.Issue `json:"items"`
}
