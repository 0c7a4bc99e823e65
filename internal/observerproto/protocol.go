// Package observerproto defines the push-channel wire protocol between the
// engine and its observers (dashboards, visual clients). Every payload is
// JSON with mandatory type and day fields; the full kind list mirrors what
// the engine broadcasts.
package observerproto

import "encoding/json"

const Version = "1.0"

// Push message kinds.
const (
	TypeState                = "state"
	TypeAgentUpdate          = "agent_update"
	TypeNewspaper            = "newspaper"
	TypeDeath                = "death"
	TypeBirth                = "birth"
	TypeTheft                = "theft"
	TypeArrest               = "arrest"
	TypeHeartAttack          = "heart_attack"
	TypeWindfall             = "windfall"
	TypeVerdict              = "verdict"
	TypeMessage              = "message"
	TypeGraduation           = "graduation"
	TypeWeeklyReport         = "weekly_report"
	TypeMonthlyChronicle     = "monthly_chronicle"
	TypeMeeting              = "meeting"
	TypeGangEvent            = "gang_event"
	TypeHomeClaimed          = "home_claimed"
	TypeAssetBuilt           = "asset_built"
	TypeTilePlaced           = "tile_placed"
	TypeTileRemoved          = "tile_removed"
	TypePositions            = "positions"
	TypeTimePhase            = "time_phase"
	TypeConstructionProgress = "construction_progress"
	TypeConstructionComplete = "construction_complete"
)

// BaseMessage routes unknown JSON payloads by type.
type BaseMessage struct {
	Type string `json:"type"`
	Day  int    `json:"day"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// SubscribeMsg is the observer handshake: first message on the socket.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// BootstrapResponse answers the snapshot endpoint for late joiners. State
// carries the same `state` payload a live connect receives.
type BootstrapResponse struct {
	ProtocolVersion string          `json:"protocol_version"`
	CityID          string          `json:"city_id"`
	Day             int             `json:"day"`
	State           json.RawMessage `json:"state"`
}
