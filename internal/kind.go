package internal

import "strings"

// Kind is the type of a MIDI channel message, taken from the high nibble of
// its status byte.
type Kind uint8

const (
	NoteOff         Kind = 0x8
	NoteOn          Kind = 0x9
	PolyPressure    Kind = 0xA
	ControlChange   Kind = 0xB
	ProgramChange   Kind = 0xC
	ChannelPressure Kind = 0xD
	PitchBend       Kind = 0xE
	System          Kind = 0xF
)

// KindOf returns the kind of the given status byte. Data bytes (high bit
// clear) have kind 0.
func KindOf(status uint8) Kind { return Kind(status >> 4) }

// Status builds a status byte for kind k on channel ch.
func (k Kind) Status(ch uint8) uint8 { return uint8(k)<<4 | ch&0x0F }

func (k Kind) String() string {
	switch k {
	case NoteOff:
		return "NOTE_OFF"
	case NoteOn:
		return "NOTE_ON"
	case PolyPressure:
		return "POLY_PRESSURE"
	case ControlChange:
		return "CONTROL_CHANGE"
	case ProgramChange:
		return "PROGRAM_CHANGE"
	case ChannelPressure:
		return "CHANNEL_PRESSURE"
	case PitchBend:
		return "PITCH_BEND"
	case System:
		return "SYSTEM"

	default:
		return "UNKNOWN"
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteRune('"')
	sb.WriteString(k.String())
	sb.WriteRune('"')
	return []byte(sb.String()), nil
}
