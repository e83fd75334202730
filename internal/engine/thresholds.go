package engine

import "quitguard/internal/model"

// Threshold constants are fixed contract values, not tuning knobs. Studios
// depend on boundary behavior matching across deployments, so they are not
// exposed through configuration. Only the timeout threshold can be
// overridden, and only per call.
const (
	highPacketLossRate   = 0.25
	highLatencyMillis    = 800.0
	defaultTimeoutMillis = int64(5000)
)

// EvaluateFlags converts raw signal values into the boolean flags the
// decision rules consume. Every rule is evaluated independently with >=
// comparisons; a value exactly on a threshold counts as past it. When no
// network snapshot was supplied all three network-derived flags stay false:
// the engine never invents network state.
func EvaluateFlags(sig model.DisconnectSignals) model.SignalFlags {
	flags := model.SignalFlags{
		QuitDetected:             sig.QuitAction,
		CompetitiveAdvantageUsed: sig.CompetitiveAdvantage != nil,
		FairnessConfidenceUsed:   sig.FairnessConfidence != nil,
	}

	threshold := defaultTimeoutMillis
	if sig.TimeoutThreshold != nil {
		threshold = *sig.TimeoutThreshold
	}
	if sig.TimeSinceLastPacket != nil && *sig.TimeSinceLastPacket >= threshold {
		flags.TimeoutDetected = true
	}

	if snap := sig.NetworkBeforeDisconnect; snap != nil {
		flags.HighPacketLoss = snap.PacketLossRate >= highPacketLossRate
		flags.HighLatency = snap.LatencyMs >= highLatencyMillis
		flags.HardDisconnect = !snap.IsConnected
	}
	return flags
}
