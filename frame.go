package notifyws

import "fmt"

// FrameType mirrors the websocket opcodes the transport cares about.
type FrameType byte

const (
	TextFrame   FrameType = 1
	BinaryFrame FrameType = 2
	CloseFrame  FrameType = 8
	PingFrame   FrameType = 9
	PongFrame   FrameType = 10
)

func (t FrameType) Is(other FrameType) bool {
	return t == other
}

// IsData reports whether the frame carries application payload.
func (t FrameType) IsData() bool {
	return t.Is(TextFrame) || t.Is(BinaryFrame)
}

func (t FrameType) IsPing() bool {
	return t.Is(PingFrame)
}

func (t FrameType) IsPong() bool {
	return t.Is(PongFrame)
}

func (t FrameType) String() string {
	switch t {
	case TextFrame:
		return "TEXT"
	case BinaryFrame:
		return "BIN"
	case CloseFrame:
		return "CLOSE"
	case PingFrame:
		return "PING"
	case PongFrame:
		return "PONG"
	default:
		return fmt.Sprintf("OP(%d)", byte(t))
	}
}

// Frame is a single unit exchanged with the wire layer.
type Frame struct {
	Type FrameType
	Data []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame{type=%s,data=%s}", f.Type, f.Data)
}

func NewTextFrame(data []byte) Frame {
	return Frame{Type: TextFrame, Data: data}
}

func NewBinaryFrame(data []byte) Frame {
	return Frame{Type: BinaryFrame, Data: data}
}

func NewPingFrame(data []byte) Frame {
	return Frame{Type: PingFrame, Data: data}
}

func NewPongFrame(data []byte) Frame {
	return Frame{Type: PongFrame, Data: data}
}
