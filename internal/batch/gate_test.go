package batch

import "testing"

func TestAllSerialsValid(t *testing.T) {
	valid := Entry{SerialValidity: SerialValid}

	tests := []struct {
		name    string
		entries []Entry
		want    bool
	}{
		{name: "empty batch", entries: nil, want: false},
		{name: "single valid", entries: []Entry{valid}, want: true},
		{name: "many valid", entries: []Entry{valid, valid, valid, valid}, want: true},
		{name: "one unknown", entries: []Entry{valid, valid, {SerialValidity: SerialUnknown}}, want: false},
		{name: "one invalid among many", entries: []Entry{valid, valid, valid, valid, valid, {SerialValidity: SerialInvalid}}, want: false},
		{name: "invalid first", entries: []Entry{{SerialValidity: SerialInvalid}, valid}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AllSerialsValid(tt.entries); got != tt.want {
				t.Errorf("AllSerialsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllPaired(t *testing.T) {
	paired := Entry{PairingStatus: PairingSuccess}

	tests := []struct {
		name    string
		entries []Entry
		want    bool
	}{
		{name: "empty batch", entries: nil, want: false},
		{name: "all paired", entries: []Entry{paired, paired}, want: true},
		{name: "one processing", entries: []Entry{paired, {PairingStatus: PairingProcessing}}, want: false},
		{name: "one failed", entries: []Entry{paired, {PairingStatus: PairingFailed}}, want: false},
		{name: "one not started", entries: []Entry{{PairingStatus: PairingNotStarted}, paired}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AllPaired(tt.entries); got != tt.want {
				t.Errorf("AllPaired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllNamed(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		want    bool
	}{
		{name: "empty batch", entries: nil, want: false},
		{name: "all named", entries: []Entry{{Name: "Hall"}, {Name: "Kitchen"}}, want: true},
		{name: "one blank", entries: []Entry{{Name: "Hall"}, {Name: ""}}, want: false},
		{name: "whitespace only", entries: []Entry{{Name: "  "}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AllNamed(tt.entries); got != tt.want {
				t.Errorf("AllNamed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	g := Evaluate(nil)
	if !g.Empty || g.AllSerialsValid || g.AllPaired || g.AllNamed {
		t.Errorf("Evaluate(nil) = %+v, want only Empty", g)
	}

	g = Evaluate([]Entry{{SerialValidity: SerialValid, PairingStatus: PairingSuccess, Name: "Hall"}})
	if g.Empty || !g.AllSerialsValid || !g.AllPaired || !g.AllNamed {
		t.Errorf("Evaluate(complete) = %+v, want all predicates true", g)
	}
}

func TestPairingStatus_Advances(t *testing.T) {
	tests := []struct {
		from, to PairingStatus
		want     bool
	}{
		{PairingNotStarted, PairingProcessing, true},
		{PairingNotStarted, PairingSuccess, true},
		{PairingNotStarted, PairingFailed, true},
		{PairingProcessing, PairingSuccess, true},
		{PairingProcessing, PairingFailed, true},
		{PairingProcessing, PairingNotStarted, false},
		{PairingProcessing, PairingProcessing, false},
		{PairingSuccess, PairingFailed, false},
		{PairingSuccess, PairingProcessing, false},
		{PairingFailed, PairingSuccess, false},
		{PairingNotStarted, PairingStatus(9), false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := tt.from.Advances(tt.to); got != tt.want {
				t.Errorf("%v.Advances(%v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestValidateSerialFormat(t *testing.T) {
	tests := []struct {
		serial string
		valid  bool
	}{
		{"", false},
		{"AB12", false},
		{"SN-0001", true},
		{"315260240", true},
		{"SN 0001", false},
		{"SN_0001", false},
		{"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", false},
	}

	for _, tt := range tests {
		t.Run(tt.serial, func(t *testing.T) {
			msg := ValidateSerialFormat(tt.serial)
			if (msg == "") != tt.valid {
				t.Errorf("ValidateSerialFormat(%q) = %q, valid want %v", tt.serial, msg, tt.valid)
			}
		})
	}
}

func TestNormalizeSerial(t *testing.T) {
	if got := NormalizeSerial("  sn-0001 \n"); got != "SN-0001" {
		t.Errorf("NormalizeSerial() = %q, want SN-0001", got)
	}
}
