package engine

import (
	"fmt"
	"math"
	"strings"

	"quitguard/internal/model"
)

// ValidationError lists every constraint a signal bundle violated. The
// engine reports all violations at once rather than stopping at the first,
// so client bugs surface in a single round trip.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "invalid disconnect signals: " + strings.Join(e.Violations, "; ")
}

// ValidateSignals checks every externally supplied optional field against
// its declared domain. It returns nil when the bundle is safe to classify
// and a *ValidationError otherwise. Classification must not run on a bundle
// that failed validation.
func ValidateSignals(sig model.DisconnectSignals) error {
	var violations []string

	if snap := sig.NetworkBeforeDisconnect; snap != nil {
		if !isFinite(snap.LatencyMs) || snap.LatencyMs < 0 {
			violations = append(violations,
				fmt.Sprintf("networkBeforeDisconnect.latencyMs must be a finite number >= 0, got %v", snap.LatencyMs))
		}
		if !isFinite(snap.PacketLossRate) || snap.PacketLossRate < 0 || snap.PacketLossRate > 1 {
			violations = append(violations,
				fmt.Sprintf("networkBeforeDisconnect.packetLossRate must be within [0, 1], got %v", snap.PacketLossRate))
		}
	}
	if sig.TimeSinceLastPacket != nil && *sig.TimeSinceLastPacket < 0 {
		violations = append(violations,
			fmt.Sprintf("timeSinceLastPacket must be >= 0, got %d", *sig.TimeSinceLastPacket))
	}
	if sig.TimeoutThreshold != nil && *sig.TimeoutThreshold <= 0 {
		violations = append(violations,
			fmt.Sprintf("timeoutThreshold must be > 0, got %d", *sig.TimeoutThreshold))
	}
	if ca := sig.CompetitiveAdvantage; ca != nil {
		if !isFinite(*ca) || *ca < -1 || *ca > 1 {
			violations = append(violations,
				fmt.Sprintf("competitiveAdvantage must be within [-1, 1], got %v", *ca))
		}
	}
	if fc := sig.FairnessConfidence; fc != nil {
		if !isFinite(*fc) || *fc < 0 || *fc > 1 {
			violations = append(violations,
				fmt.Sprintf("fairnessConfidence must be within [0, 1], got %v", *fc))
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
