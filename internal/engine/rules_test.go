package engine

import (
	"bytes"
	"encoding/json"
	"testing"

	"quitguard/internal/model"
)

func TestNormalCompletionNoDisconnect(t *testing.T) {
	result, err := Classify(model.DisconnectSignals{QuitAction: false})
	if err != nil {
		t.Fatalf("classify error: %v", err)
	}
	if result.Type != model.DisconnectNone {
		t.Fatalf("type: %s", result.Type)
	}
	if result.LossApplied {
		t.Fatalf("loss applied on normal completion")
	}
	if result.Signals != (model.SignalFlags{}) {
		t.Fatalf("unexpected flags: %+v", result.Signals)
	}
}

func TestIntentionalQuitAppliesLoss(t *testing.T) {
	result, err := Classify(model.DisconnectSignals{QuitAction: true})
	if err != nil {
		t.Fatalf("classify error: %v", err)
	}
	if result.Type != model.DisconnectIntentional {
		t.Fatalf("type: %s", result.Type)
	}
	if !result.LossApplied {
		t.Fatalf("expected loss for explicit quit")
	}
	if !result.Signals.QuitDetected {
		t.Fatalf("quitDetected not set")
	}
}

func TestQuitOverridesEveryOtherSignal(t *testing.T) {
	// An explicit quit with terrible network, a big lead and a settled
	// outcome: the quit must still win.
	sig := model.DisconnectSignals{
		QuitAction: true,
		NetworkBeforeDisconnect: &model.NetworkSnapshot{
			LatencyMs:      2000,
			PacketLossRate: 0.9,
			IsConnected:    false,
		},
		TimeSinceLastPacket:  i64ptr(60000),
		CompetitiveAdvantage: fptr(0.9),
		FairnessConfidence:   fptr(0.95),
	}
	result, err := Classify(sig)
	if err != nil {
		t.Fatalf("classify error: %v", err)
	}
	if result.Type != model.DisconnectIntentional || !result.LossApplied {
		t.Fatalf("quit did not take precedence: %+v", result)
	}
}

func TestNetworkFailureWhileWinning(t *testing.T) {
	sig := model.DisconnectSignals{
		QuitAction: false,
		NetworkBeforeDisconnect: &model.NetworkSnapshot{
			LatencyMs:      1200,
			PacketLossRate: 0.4,
			IsConnected:    false,
		},
		CompetitiveAdvantage: fptr(0.7),
	}
	result, err := Classify(sig)
	if err != nil {
		t.Fatalf("classify error: %v", err)
	}
	if result.Type != model.DisconnectUnintentional {
		t.Fatalf("type: %s", result.Type)
	}
	if result.LossApplied {
		t.Fatalf("loss applied to a winning player's network failure")
	}
	f := result.Signals
	if !f.HighPacketLoss || !f.HighLatency || !f.HardDisconnect {
		t.Fatalf("network flags: %+v", f)
	}
	if f.TimeoutDetected {
		t.Fatalf("timeout flag without timeSinceLastPacket")
	}
	if !f.CompetitiveAdvantageUsed || f.FairnessConfidenceUsed {
		t.Fatalf("context usage flags: %+v", f)
	}
}

func TestTimeoutOnlyWithHealthyNetwork(t *testing.T) {
	sig := model.DisconnectSignals{
		QuitAction: false,
		NetworkBeforeDisconnect: &model.NetworkSnapshot{
			LatencyMs:      50,
			PacketLossRate: 0.05,
			IsConnected:    true,
		},
		TimeSinceLastPacket: i64ptr(6000),
	}
	result, err := Classify(sig)
	if err != nil {
		t.Fatalf("classify error: %v", err)
	}
	if result.Type != model.DisconnectUnintentional || result.LossApplied {
		t.Fatalf("unexpected verdict: %+v", result)
	}
	f := result.Signals
	if !f.TimeoutDetected {
		t.Fatalf("timeout not detected at 6000ms against default threshold")
	}
	if f.HighPacketLoss || f.HighLatency || f.HardDisconnect {
		t.Fatalf("healthy network produced flags: %+v", f)
	}
}

func TestLosingSettledMatchStillPreserved(t *testing.T) {
	// The suspicious case: clearly behind, outcome essentially decided,
	// then a network failure. Policy preserves the match anyway.
	sig := model.DisconnectSignals{
		QuitAction: false,
		NetworkBeforeDisconnect: &model.NetworkSnapshot{
			LatencyMs:      900,
			PacketLossRate: 0.3,
			IsConnected:    false,
		},
		CompetitiveAdvantage: fptr(-0.5),
		FairnessConfidence:   fptr(0.9),
	}
	result, err := Classify(sig)
	if err != nil {
		t.Fatalf("classify error: %v", err)
	}
	if result.LossApplied {
		t.Fatalf("loss applied despite network failure policy")
	}
	if result.Type != model.DisconnectUnintentional {
		t.Fatalf("type: %s", result.Type)
	}
}

func TestInvalidInputNotClassified(t *testing.T) {
	sig := model.DisconnectSignals{
		QuitAction: false,
		NetworkBeforeDisconnect: &model.NetworkSnapshot{
			LatencyMs:      100,
			PacketLossRate: 1.5,
			IsConnected:    true,
		},
	}
	result, err := Classify(sig)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if result != (model.ClassificationResult{}) {
		t.Fatalf("classification ran on invalid input: %+v", result)
	}
}

func TestOutcomeWideOpenPreserved(t *testing.T) {
	sig := model.DisconnectSignals{
		QuitAction:          false,
		TimeSinceLastPacket: i64ptr(8000),
		FairnessConfidence:  fptr(0.1),
	}
	result, err := Classify(sig)
	if err != nil {
		t.Fatalf("classify error: %v", err)
	}
	if result.LossApplied || result.Type != model.DisconnectUnintentional {
		t.Fatalf("unexpected verdict: %+v", result)
	}
}

func TestDecideRuleOrdering(t *testing.T) {
	timeoutOnly := model.SignalFlags{TimeoutDetected: true}

	// Clearly ahead wins over everything else in the unintentional branch.
	typ, loss, rule := decide(timeoutOnly, model.DisconnectSignals{
		CompetitiveAdvantage: fptr(0.5),
		FairnessConfidence:   fptr(0.1),
	})
	if typ != model.DisconnectUnintentional || loss || rule != RuleNetworkFailureWhileAhead {
		t.Fatalf("ahead band: %s %v %s", typ, loss, rule)
	}

	// Behind plus settled outcome names the decided-match rule.
	_, loss, rule = decide(timeoutOnly, model.DisconnectSignals{
		CompetitiveAdvantage: fptr(-0.5),
		FairnessConfidence:   fptr(0.9),
	})
	if loss || rule != RuleNetworkFailureDecidedMatch {
		t.Fatalf("decided-match band: %v %s", loss, rule)
	}

	// Wide-open outcome applies regardless of competitive advantage.
	_, loss, rule = decide(timeoutOnly, model.DisconnectSignals{
		CompetitiveAdvantage: fptr(-0.5),
		FairnessConfidence:   fptr(0.2),
	})
	if loss || rule != RuleNetworkFailureOutcomeOpen {
		t.Fatalf("outcome-open band: %v %s", loss, rule)
	}

	// No context at all falls to the default network-failure rule.
	_, loss, rule = decide(timeoutOnly, model.DisconnectSignals{})
	if loss || rule != RuleNetworkFailure {
		t.Fatalf("default band: %v %s", loss, rule)
	}

	// Quit short-circuits before any of the above.
	typ, loss, rule = decide(model.SignalFlags{QuitDetected: true, TimeoutDetected: true}, model.DisconnectSignals{
		CompetitiveAdvantage: fptr(0.9),
	})
	if typ != model.DisconnectIntentional || !loss || rule != RulePlayerQuit {
		t.Fatalf("quit precedence: %s %v %s", typ, loss, rule)
	}
}

func TestContextBandsAreStrict(t *testing.T) {
	timeoutOnly := model.SignalFlags{TimeoutDetected: true}

	// Exactly 0.3 is not "clearly ahead".
	_, _, rule := decide(timeoutOnly, model.DisconnectSignals{CompetitiveAdvantage: fptr(0.3)})
	if rule == RuleNetworkFailureWhileAhead {
		t.Fatalf("0.3 crossed the ahead band")
	}

	// Exactly -0.3 is not "clearly behind".
	_, _, rule = decide(timeoutOnly, model.DisconnectSignals{
		CompetitiveAdvantage: fptr(-0.3),
		FairnessConfidence:   fptr(0.9),
	})
	if rule == RuleNetworkFailureDecidedMatch {
		t.Fatalf("-0.3 crossed the behind band")
	}

	// Exactly 0.8 fairness is not "settled".
	_, _, rule = decide(timeoutOnly, model.DisconnectSignals{
		CompetitiveAdvantage: fptr(-0.5),
		FairnessConfidence:   fptr(0.8),
	})
	if rule == RuleNetworkFailureDecidedMatch {
		t.Fatalf("0.8 crossed the settled band")
	}

	// Exactly 0.3 fairness is not "wide open".
	_, _, rule = decide(timeoutOnly, model.DisconnectSignals{FairnessConfidence: fptr(0.3)})
	if rule == RuleNetworkFailureOutcomeOpen {
		t.Fatalf("0.3 crossed the open band")
	}

	// Just past each band flips the rule.
	_, _, rule = decide(timeoutOnly, model.DisconnectSignals{CompetitiveAdvantage: fptr(0.30001)})
	if rule != RuleNetworkFailureWhileAhead {
		t.Fatalf("0.30001 did not cross the ahead band: %s", rule)
	}
	_, _, rule = decide(timeoutOnly, model.DisconnectSignals{FairnessConfidence: fptr(0.29999)})
	if rule != RuleNetworkFailureOutcomeOpen {
		t.Fatalf("0.29999 did not cross the open band: %s", rule)
	}
}

func TestNetworkFailureNeverAppliesLoss(t *testing.T) {
	signals := []model.DisconnectSignals{
		{TimeSinceLastPacket: i64ptr(5000)},
		{NetworkBeforeDisconnect: &model.NetworkSnapshot{LatencyMs: 900, PacketLossRate: 0.0, IsConnected: true}},
		{NetworkBeforeDisconnect: &model.NetworkSnapshot{LatencyMs: 10, PacketLossRate: 0.5, IsConnected: true}},
		{NetworkBeforeDisconnect: &model.NetworkSnapshot{LatencyMs: 10, PacketLossRate: 0.0, IsConnected: false}},
		{TimeSinceLastPacket: i64ptr(9000), CompetitiveAdvantage: fptr(-0.9), FairnessConfidence: fptr(1.0)},
		{TimeSinceLastPacket: i64ptr(9000), CompetitiveAdvantage: fptr(0.9)},
		{TimeSinceLastPacket: i64ptr(9000), FairnessConfidence: fptr(0.0)},
	}
	for i, sig := range signals {
		result, err := Classify(sig)
		if err != nil {
			t.Fatalf("case %d: classify error: %v", i, err)
		}
		if result.LossApplied {
			t.Fatalf("case %d: loss applied for a network failure", i)
		}
		if result.Type != model.DisconnectUnintentional {
			t.Fatalf("case %d: type %s", i, result.Type)
		}
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	sig := model.DisconnectSignals{
		QuitAction: false,
		NetworkBeforeDisconnect: &model.NetworkSnapshot{
			LatencyMs:      820,
			PacketLossRate: 0.26,
			IsConnected:    false,
		},
		TimeSinceLastPacket:  i64ptr(7000),
		CompetitiveAdvantage: fptr(0.4),
		FairnessConfidence:   fptr(0.6),
	}
	first, err := Classify(sig)
	if err != nil {
		t.Fatalf("classify error: %v", err)
	}
	second, err := Classify(sig)
	if err != nil {
		t.Fatalf("classify error: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("outputs differ:\n%s\n%s", a, b)
	}
}

func TestResultInvariants(t *testing.T) {
	inputs := []model.DisconnectSignals{
		{QuitAction: true},
		{QuitAction: true, TimeSinceLastPacket: i64ptr(10000)},
		{QuitAction: false},
		{QuitAction: false, TimeSinceLastPacket: i64ptr(10000)},
		{QuitAction: false, NetworkBeforeDisconnect: &model.NetworkSnapshot{LatencyMs: 0, PacketLossRate: 0, IsConnected: true}},
		{QuitAction: false, CompetitiveAdvantage: fptr(0.5), FairnessConfidence: fptr(0.5)},
	}
	for i, sig := range inputs {
		result, err := Classify(sig)
		if err != nil {
			t.Fatalf("case %d: classify error: %v", i, err)
		}
		if (result.Type == model.DisconnectIntentional) != sig.QuitAction {
			t.Fatalf("case %d: intentional iff quitAction violated", i)
		}
		if result.Type == model.DisconnectIntentional && !result.LossApplied {
			t.Fatalf("case %d: intentional without loss", i)
		}
		if result.Type == model.DisconnectNone && result.LossApplied {
			t.Fatalf("case %d: loss without disconnect", i)
		}
		if result.Type == model.DisconnectUnintentional && result.LossApplied {
			t.Fatalf("case %d: loss for unintentional disconnect", i)
		}
	}
}

// TestContextAloneIsNoDisconnect covers context signals arriving without any
// network or timeout flag: context never creates a disconnect on its own.
func TestContextAloneIsNoDisconnect(t *testing.T) {
	sig := model.DisconnectSignals{
		QuitAction:           false,
		CompetitiveAdvantage: fptr(-0.9),
		FairnessConfidence:   fptr(0.95),
	}
	result, err := Classify(sig)
	if err != nil {
		t.Fatalf("classify error: %v", err)
	}
	if result.Type != model.DisconnectNone || result.LossApplied {
		t.Fatalf("context invented a disconnect: %+v", result)
	}
	if !result.Signals.CompetitiveAdvantageUsed || !result.Signals.FairnessConfidenceUsed {
		t.Fatalf("context usage flags not recorded: %+v", result.Signals)
	}
}

func fptr(v float64) *float64 {
	return &v
}

func i64ptr(v int64) *int64 {
	return &v
}
