package remote

import "fmt"

type MessageType string

const (
	TypeAuthenticate    MessageType = "authenticate"
	TypeAuthSuccess     MessageType = "auth_success"
	TypeSessionFinished MessageType = "session_finished"
	TypeExecuteCommand  MessageType = "execute_command"
	TypeCommandExecuted MessageType = "command_executed"
	TypeError           MessageType = "error"
)

// State is the client side of one execution connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Authenticated
	AwaitingCommand
	ExecutingCommand
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case AwaitingCommand:
		return "awaiting_command"
	case ExecutingCommand:
		return "executing_command"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type authenticateMsg struct {
	Type  MessageType `json:"message_type"`
	Token string      `json:"token"`
}

type sessionFinishedMsg struct {
	Type      MessageType `json:"message_type"`
	SessionID string      `json:"session_id"`
}

// commandExecutedMsg always carries output, even when empty.
type commandExecutedMsg struct {
	Type   MessageType `json:"message_type"`
	Output string      `json:"output"`
}

// inbound is any frame the server may send. An error payload may arrive
// without a message type.
type inbound struct {
	Type      MessageType `json:"message_type"`
	UserID    string      `json:"user_id"`
	UserIDAlt string      `json:"userId"`
	Command   string      `json:"command"`
	Error     string      `json:"error"`
	Finished  bool        `json:"finished"`
}

func (m inbound) userID() string {
	if m.UserID != "" {
		return m.UserID
	}
	return m.UserIDAlt
}

func (m inbound) isError() bool {
	return m.Error != "" || m.Type == TypeError
}

func (m inbound) isTerminal() bool {
	return m.Type == TypeSessionFinished || m.Finished
}

// ProtocolError ends a connection: authentication rejected, an unexpected
// or malformed frame, or a transport failure.
type ProtocolError struct {
	State  State
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote execution (%s): %s: %v", e.State, e.Reason, e.Err)
	}
	return fmt.Sprintf("remote execution (%s): %s", e.State, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
