package gateway

import "webdmx/internal/presets"

// Message types exchanged with control clients.
const (
	TypeState   = "state"
	TypeChange  = "change"
	TypeSave    = "save"
	TypePresets = "presets"
	TypeFade    = "fade"
)

// StateMessage carries the full channel vector and the master.
type StateMessage struct {
	Type   string `json:"type"`
	Value  []int  `json:"value"`
	Master int    `json:"master"`
}

// SaveMessage answers a save request.
type SaveMessage struct {
	Type  string `json:"type"`
	Value bool   `json:"value"`
}

// PresetsMessage answers a presets request.
type PresetsMessage struct {
	Type  string           `json:"type"`
	Value []presets.Preset `json:"value"`
}

func stateMessage(channels []int, master int) StateMessage {
	value := make([]int, len(channels))
	copy(value, channels)
	return StateMessage{Type: TypeState, Value: value, Master: master}
}
