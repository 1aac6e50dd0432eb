package smartscore

import "testing"

func TestProfiles_Valid(t *testing.T) {
	t.Parallel()

	if err := ValidateProfiles(Profiles()); err != nil {
		t.Fatalf("built-in profiles must validate: %v", err)
	}
}

func TestValidateProfiles_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Tuning)
	}{
		{"zero band length", func(tn *Tuning) { tn.TopBandMaxLength = 0 }},
		{"negative bound", func(tn *Tuning) { tn.TopThresholdLowerBound = -0.1 }},
		{"upper not above lower", func(tn *Tuning) { tn.UpperFreqCount = tn.LowerFreqCount }},
		{"decay fraction one", func(tn *Tuning) { tn.TimeDecayFraction = 1 }},
		{"zero multiplier", func(tn *Tuning) { tn.FreqMid = 0 }},
	}
	for _, c := range cases {
		tn := Profiles()["forum"]
		c.mutate(&tn)
		if err := ValidateProfiles(map[string]Tuning{"forum": tn}); err == nil {
			t.Fatalf("%s: expected validation error", c.name)
		}
	}
}

func TestFor_UnknownSignal(t *testing.T) {
	t.Parallel()

	if _, err := For("carrier-pigeon", Profiles()); err == nil {
		t.Fatalf("expected error for unknown signal type")
	}
	tn, err := For("chat", Profiles())
	if err != nil {
		t.Fatalf("For(chat) error: %v", err)
	}
	if tn.TopBandMaxLength == 0 {
		t.Fatalf("For(chat) returned zero tuning")
	}
}
