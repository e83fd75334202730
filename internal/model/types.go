package model

import "time"

type DisconnectType string

const (
	DisconnectNone          DisconnectType = "none"
	DisconnectIntentional   DisconnectType = "intentional_disconnect"
	DisconnectUnintentional DisconnectType = "unintentional_disconnect"
)

// NetworkSnapshot is a point-in-time network quality reading captured by the
// game client or relay just before the connection was lost. Timestamp is
// advisory only and never feeds the decision logic.
type NetworkSnapshot struct {
	LatencyMs      float64  `json:"latencyMs"`
	PacketLossRate float64  `json:"packetLossRate"`
	IsConnected    bool     `json:"isConnected"`
	Timestamp      *float64 `json:"timestamp,omitempty"`
}

// DisconnectSignals is the complete input to one classification. Optional
// fields are pointers so that "not supplied" stays distinguishable from a
// zero value; the engine never invents a signal the caller did not send.
type DisconnectSignals struct {
	QuitAction              bool             `json:"quitAction"`
	NetworkBeforeDisconnect *NetworkSnapshot `json:"networkBeforeDisconnect,omitempty"`
	TimeSinceLastPacket     *int64           `json:"timeSinceLastPacket,omitempty"`
	TimeoutThreshold        *int64           `json:"timeoutThreshold,omitempty"`
	CompetitiveAdvantage    *float64         `json:"competitiveAdvantage,omitempty"`
	FairnessConfidence      *float64         `json:"fairnessConfidence,omitempty"`
}

// SignalFlags is the boolean summary of evaluated thresholds that the verdict
// was reached from. Returned with every result so callers can audit why a
// loss was or was not applied.
type SignalFlags struct {
	QuitDetected             bool `json:"quitDetected"`
	TimeoutDetected          bool `json:"timeoutDetected"`
	HighPacketLoss           bool `json:"highPacketLoss"`
	HighLatency              bool `json:"highLatency"`
	HardDisconnect           bool `json:"hardDisconnect"`
	CompetitiveAdvantageUsed bool `json:"competitiveAdvantageUsed"`
	FairnessConfidenceUsed   bool `json:"fairnessConfidenceUsed"`
}

// ClassificationResult is the wire-level outcome of one classification.
// Invariants: Type == DisconnectIntentional implies LossApplied, and
// Type == DisconnectNone implies !LossApplied.
type ClassificationResult struct {
	Type        DisconnectType `json:"type"`
	LossApplied bool           `json:"lossApplied"`
	Signals     SignalFlags    `json:"signals"`
}

// DisconnectEvent wraps one set of signals with correlation identifiers for
// the async pipeline. The identifiers are audit-only; they never influence
// the verdict.
type DisconnectEvent struct {
	MatchID    string            `json:"matchId,omitempty"`
	PlayerID   string            `json:"playerId,omitempty"`
	Source     string            `json:"source,omitempty"`
	ReceivedAt time.Time         `json:"receivedAt,omitempty"`
	Signals    DisconnectSignals `json:"signals"`
}

// Decision is the audit record for one classified disconnect: the wire
// result plus the input it was derived from, the identity of the rule that
// fired and where the event came from. Input makes the record
// self-contained; a verdict can be re-derived without the original event.
type Decision struct {
	ID        string               `json:"id"`
	Timestamp time.Time            `json:"timestamp"`
	MatchID   string               `json:"matchId,omitempty"`
	PlayerID  string               `json:"playerId,omitempty"`
	Source    string               `json:"source,omitempty"`
	Rule      string               `json:"rule"`
	Input     DisconnectSignals    `json:"input"`
	Result    ClassificationResult `json:"result"`
}

// Rejection records an event that failed signal validation and was never
// classified.
type Rejection struct {
	Timestamp  time.Time `json:"timestamp"`
	MatchID    string    `json:"matchId,omitempty"`
	PlayerID   string    `json:"playerId,omitempty"`
	Source     string    `json:"source,omitempty"`
	Violations []string  `json:"violations"`
}
