package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quitguard/internal/model"
)

var (
	// ErrMissingQuitAction means the payload omitted the one required field.
	// quitAction has no safe default: assuming false could excuse a rage
	// quit, assuming true could charge an innocent player.
	ErrMissingQuitAction = errors.New("quitAction is required")

	// ErrIncompleteSnapshot means a networkBeforeDisconnect object was
	// present but missing one of its required readings. A partial snapshot
	// is rejected rather than zero-filled so the engine never sees invented
	// network state.
	ErrIncompleteSnapshot = errors.New("networkBeforeDisconnect requires latencyMs, packetLossRate and isConnected")
)

// eventEnvelope is the wire shape shared by the HTTP classify endpoint and
// the async sources: the classification signals plus optional correlation
// identifiers. Field presence is tracked with pointers so the transport can
// enforce what is required before the engine runs.
type eventEnvelope struct {
	MatchID  string `json:"matchId"`
	PlayerID string `json:"playerId"`
	Source   string `json:"source"`

	QuitAction              *bool         `json:"quitAction"`
	NetworkBeforeDisconnect *wireSnapshot `json:"networkBeforeDisconnect"`
	TimeSinceLastPacket     *int64        `json:"timeSinceLastPacket"`
	TimeoutThreshold        *int64        `json:"timeoutThreshold"`
	CompetitiveAdvantage    *float64      `json:"competitiveAdvantage"`
	FairnessConfidence      *float64      `json:"fairnessConfidence"`
}

type wireSnapshot struct {
	LatencyMs      *float64 `json:"latencyMs"`
	PacketLossRate *float64 `json:"packetLossRate"`
	IsConnected    *bool    `json:"isConnected"`
	Timestamp      *float64 `json:"timestamp"`
}

// DecodeEvent parses one disconnect event document. It performs the
// transport-level checks (well-formed JSON, required quitAction, complete
// snapshot); range validation stays with the engine's signal validator.
func DecodeEvent(data []byte, defaultSource string) (model.DisconnectEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.DisconnectEvent{}, fmt.Errorf("decode disconnect event: %w", err)
	}
	if env.QuitAction == nil {
		return model.DisconnectEvent{}, ErrMissingQuitAction
	}

	sig := model.DisconnectSignals{
		QuitAction:           *env.QuitAction,
		TimeSinceLastPacket:  env.TimeSinceLastPacket,
		TimeoutThreshold:     env.TimeoutThreshold,
		CompetitiveAdvantage: env.CompetitiveAdvantage,
		FairnessConfidence:   env.FairnessConfidence,
	}
	if ws := env.NetworkBeforeDisconnect; ws != nil {
		if ws.LatencyMs == nil || ws.PacketLossRate == nil || ws.IsConnected == nil {
			return model.DisconnectEvent{}, ErrIncompleteSnapshot
		}
		sig.NetworkBeforeDisconnect = &model.NetworkSnapshot{
			LatencyMs:      *ws.LatencyMs,
			PacketLossRate: *ws.PacketLossRate,
			IsConnected:    *ws.IsConnected,
			Timestamp:      ws.Timestamp,
		}
	}

	source := env.Source
	if source == "" {
		source = defaultSource
	}
	return model.DisconnectEvent{
		MatchID:    env.MatchID,
		PlayerID:   env.PlayerID,
		Source:     source,
		ReceivedAt: time.Now().UTC(),
		Signals:    sig,
	}, nil
}
