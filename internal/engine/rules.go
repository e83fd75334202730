package engine

import "quitguard/internal/model"

// Rule names identify which guard decided a classification. They appear in
// decision audit records and logs, never in the wire-level result.
const (
	RulePlayerQuit                 = "player_quit"
	RuleNetworkFailureWhileAhead   = "network_failure_while_ahead"
	RuleNetworkFailureDecidedMatch = "network_failure_decided_match"
	RuleNetworkFailureOutcomeOpen  = "network_failure_outcome_open"
	RuleNetworkFailure             = "network_failure"
	RuleNoDisconnect               = "no_disconnect"
)

// Context band boundaries. Strict comparisons, unlike the >= thresholds in
// EvaluateFlags: a competitiveAdvantage of exactly 0.3 is NOT "clearly
// ahead". The asymmetry is part of the contract.
const (
	clearlyAheadBand  = 0.3
	clearlyBehindBand = -0.3
	outcomeSettled    = 0.8
	outcomeOpen       = 0.3
)

// Classify runs one complete classification: validation, threshold
// evaluation, then the ordered decision rules. It is a pure function; two
// calls with the same input produce identical output. The only error it can
// return is a *ValidationError for out-of-range input.
func Classify(sig model.DisconnectSignals) (model.ClassificationResult, error) {
	if err := ValidateSignals(sig); err != nil {
		return model.ClassificationResult{}, err
	}
	flags := EvaluateFlags(sig)
	typ, loss, _ := decide(flags, sig)
	return model.ClassificationResult{Type: typ, LossApplied: loss, Signals: flags}, nil
}

// decide walks the priority-ordered rule chain. The ordering is a contract:
// the first matching rule wins and later rules are unreachable once an
// earlier one fires. An explicit quit is absolute; no network condition or
// match context can override it.
func decide(flags model.SignalFlags, sig model.DisconnectSignals) (model.DisconnectType, bool, string) {
	if flags.QuitDetected {
		return model.DisconnectIntentional, true, RulePlayerQuit
	}

	if flags.TimeoutDetected || flags.HighPacketLoss || flags.HighLatency || flags.HardDisconnect {
		// Every branch below preserves the match. The context bands exist to
		// name the situation for audit, not to change the verdict: a genuine
		// network failure never charges a loss, even when the player was
		// losing a settled match and the disconnect looks convenient.
		ca := sig.CompetitiveAdvantage
		fc := sig.FairnessConfidence
		switch {
		case ca != nil && *ca > clearlyAheadBand:
			return model.DisconnectUnintentional, false, RuleNetworkFailureWhileAhead
		case ca != nil && *ca < clearlyBehindBand && fc != nil && *fc > outcomeSettled:
			return model.DisconnectUnintentional, false, RuleNetworkFailureDecidedMatch
		case fc != nil && *fc < outcomeOpen:
			return model.DisconnectUnintentional, false, RuleNetworkFailureOutcomeOpen
		default:
			return model.DisconnectUnintentional, false, RuleNetworkFailure
		}
	}

	return model.DisconnectNone, false, RuleNoDisconnect
}
