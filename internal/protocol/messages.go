package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// CommandType discriminates inbound client commands.
type CommandType string

const (
	CommandTextQuery    CommandType = "text_query"
	CommandAudioData    CommandType = "audio_data"
	CommandToggleMute   CommandType = "toggle_mute"
	CommandToggleListen CommandType = "toggle_listen"
	CommandInterrupt    CommandType = "interrupt"
	CommandStop         CommandType = "stop"
)

// Command is the tagged union of everything a client may send. Text and
// Audio carry the query payloads; the toggle and control commands need none.
type Command struct {
	Type  CommandType `json:"command"`
	Text  string      `json:"text,omitempty"`
	Audio []byte      `json:"audio,omitempty"`
}

// DecodeCommand parses and validates an inbound command frame.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	switch cmd.Type {
	case CommandTextQuery, CommandAudioData, CommandToggleMute, CommandToggleListen, CommandInterrupt, CommandStop:
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("unknown command type %q", cmd.Type)
	}
}

// MessageType discriminates outbound server messages.
type MessageType string

const (
	MessageStatus        MessageType = "status"
	MessageTranscription MessageType = "transcription"
	MessageSQL           MessageType = "sql"
	MessageResults       MessageType = "results"
	MessageResponse      MessageType = "response"
	MessageError         MessageType = "error"
	MessageStreamStart   MessageType = "audio_stream_start"
	MessageAudioChunk    MessageType = "audio_chunk"
	MessageStreamEnd     MessageType = "audio_stream_end"
)

// Message is a server-to-client frame.
type Message struct {
	Type       MessageType `json:"type"`
	Text       string      `json:"text,omitempty"`
	Query      string      `json:"query,omitempty"`
	Rows       any         `json:"rows,omitempty"`
	PCM        []byte      `json:"pcm,omitempty"`
	Sequence   int         `json:"sequence,omitempty"`
	SampleRate int         `json:"sample_rate,omitempty"`
	Channels   int         `json:"channels,omitempty"`
	Timestamp  time.Time   `json:"timestamp,omitempty"`
}

// Status builds a status frame.
func Status(text string) Message {
	return Message{Type: MessageStatus, Text: text, Timestamp: time.Now().UTC()}
}

// Error builds a user-visible error frame.
func Error(text string) Message {
	return Message{Type: MessageError, Text: text, Timestamp: time.Now().UTC()}
}

// NATS subjects for the relayed transport.
const (
	SubjectCommandPrefix  = "askdb.cmd"
	SubjectOutboundPrefix = "askdb.out"
)

// CommandSubject returns the subject a session's relayed commands arrive on.
func CommandSubject(sessionID string) string {
	return SubjectCommandPrefix + "." + sessionID
}

// OutboundSubject returns the subject a session's responses are published to.
func OutboundSubject(sessionID string) string {
	return SubjectOutboundPrefix + "." + sessionID
}
