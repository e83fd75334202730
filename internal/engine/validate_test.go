package engine

import (
	"errors"
	"math"
	"strings"
	"testing"

	"quitguard/internal/model"
)

func TestValidateAcceptsMinimalSignals(t *testing.T) {
	if err := ValidateSignals(model.DisconnectSignals{QuitAction: true}); err != nil {
		t.Fatalf("minimal signals rejected: %v", err)
	}
}

func TestValidateAcceptsDomainEdges(t *testing.T) {
	sig := model.DisconnectSignals{
		NetworkBeforeDisconnect: &model.NetworkSnapshot{
			LatencyMs:      0,
			PacketLossRate: 1,
			IsConnected:    false,
		},
		TimeSinceLastPacket:  i64ptr(0),
		TimeoutThreshold:     i64ptr(1),
		CompetitiveAdvantage: fptr(-1),
		FairnessConfidence:   fptr(1),
	}
	if err := ValidateSignals(sig); err != nil {
		t.Fatalf("edge values rejected: %v", err)
	}
	sig.CompetitiveAdvantage = fptr(1)
	sig.FairnessConfidence = fptr(0)
	sig.NetworkBeforeDisconnect.PacketLossRate = 0
	if err := ValidateSignals(sig); err != nil {
		t.Fatalf("opposite edge values rejected: %v", err)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name string
		sig  model.DisconnectSignals
		want string
	}{
		{
			name: "negative latency",
			sig: model.DisconnectSignals{
				NetworkBeforeDisconnect: &model.NetworkSnapshot{LatencyMs: -1, IsConnected: true},
			},
			want: "latencyMs",
		},
		{
			name: "packet loss above one",
			sig: model.DisconnectSignals{
				NetworkBeforeDisconnect: &model.NetworkSnapshot{PacketLossRate: 1.5, IsConnected: true},
			},
			want: "packetLossRate",
		},
		{
			name: "negative packet loss",
			sig: model.DisconnectSignals{
				NetworkBeforeDisconnect: &model.NetworkSnapshot{PacketLossRate: -0.1, IsConnected: true},
			},
			want: "packetLossRate",
		},
		{
			name: "negative time since last packet",
			sig:  model.DisconnectSignals{TimeSinceLastPacket: i64ptr(-5)},
			want: "timeSinceLastPacket",
		},
		{
			name: "zero timeout threshold",
			sig:  model.DisconnectSignals{TimeoutThreshold: i64ptr(0)},
			want: "timeoutThreshold",
		},
		{
			name: "advantage above one",
			sig:  model.DisconnectSignals{CompetitiveAdvantage: fptr(1.1)},
			want: "competitiveAdvantage",
		},
		{
			name: "advantage below minus one",
			sig:  model.DisconnectSignals{CompetitiveAdvantage: fptr(-1.1)},
			want: "competitiveAdvantage",
		},
		{
			name: "confidence above one",
			sig:  model.DisconnectSignals{FairnessConfidence: fptr(1.01)},
			want: "fairnessConfidence",
		},
	}
	for _, tc := range cases {
		err := ValidateSignals(tc.sig)
		if err == nil {
			t.Fatalf("%s: accepted", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: violation does not name %s: %v", tc.name, tc.want, err)
		}
	}
}

func TestValidateRejectsNonFiniteNumbers(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		sig := model.DisconnectSignals{
			NetworkBeforeDisconnect: &model.NetworkSnapshot{LatencyMs: v, IsConnected: true},
		}
		if ValidateSignals(sig) == nil {
			t.Fatalf("latency %v accepted", v)
		}
		sig = model.DisconnectSignals{CompetitiveAdvantage: fptr(v)}
		if ValidateSignals(sig) == nil {
			t.Fatalf("advantage %v accepted", v)
		}
		sig = model.DisconnectSignals{FairnessConfidence: fptr(v)}
		if ValidateSignals(sig) == nil {
			t.Fatalf("confidence %v accepted", v)
		}
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	sig := model.DisconnectSignals{
		NetworkBeforeDisconnect: &model.NetworkSnapshot{
			LatencyMs:      -10,
			PacketLossRate: 2,
			IsConnected:    true,
		},
		TimeSinceLastPacket:  i64ptr(-1),
		CompetitiveAdvantage: fptr(5),
		FairnessConfidence:   fptr(-0.5),
	}
	err := ValidateSignals(sig)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type: %T", err)
	}
	if len(verr.Violations) != 5 {
		t.Fatalf("violations: %d, want 5: %v", len(verr.Violations), verr.Violations)
	}
	if !strings.HasPrefix(verr.Error(), "invalid disconnect signals: ") {
		t.Fatalf("error prefix: %s", verr.Error())
	}
}
