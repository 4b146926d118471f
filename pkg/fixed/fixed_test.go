package fixed

import "testing"

func TestArithmetic(t *testing.T) {
	a := FromFloat(2.5)
	b := FromInt(-4)

	if got := a.Add(b).Float64(); got != -1.5 {
		t.Errorf("Add: expected -1.5, got %v", got)
	}
	if got := a.Sub(b).Float64(); got != 6.5 {
		t.Errorf("Sub: expected 6.5, got %v", got)
	}
	if got := a.Mul(b).Float64(); got != -10 {
		t.Errorf("Mul: expected -10, got %v", got)
	}
	if got := b.Div(a).Float64(); got != -1.6 && (got < -1.6000001 || got > -1.5999999) {
		t.Errorf("Div: expected about -1.6, got %v", got)
	}
	if got := FromFloat(-0.5).Int(); got != -1 {
		t.Errorf("Int must floor: expected -1, got %d", got)
	}
}

func TestDivByZeroSaturates(t *testing.T) {
	if One.Div(Zero) != Max {
		t.Errorf("Expected Max for positive / 0")
	}
	if One.Neg().Div(Zero) != Min {
		t.Errorf("Expected Min for negative / 0")
	}
}

func TestOverflowSaturates(t *testing.T) {
	tests := []struct {
		name string
		got  Fixed
		want Fixed
	}{
		{"div above int64", FromInt(1 << 30).Div(FromFloat(0.5)), Max},
		{"div above int64 negative", FromInt(1 << 30).Div(FromFloat(-0.5)), Min},
		{"div exactly min", FromInt(-(1 << 30)).Div(FromFloat(0.5)), Min},
		{"div large", Max.Div(FromFloat(0.25)), Max},
		{"mul wraps to zero", FromInt(1 << 20).Mul(FromInt(1 << 20)), Max},
		{"mul negative", FromInt(-(1 << 20)).Mul(FromInt(1 << 20)), Min},
		{"mul two negatives", FromInt(-(1 << 20)).Mul(FromInt(-(1 << 20))), Max},
		{"mul just above max", FromInt(1 << 16).Mul(FromInt(1 << 15)), Max},
		{"mul in range", FromInt(1 << 15).Mul(FromInt(1 << 15)), FromInt(1 << 30)},
		{"mul in range negative", FromInt(-(1 << 15)).Mul(FromInt(1 << 15)), FromInt(-(1 << 30))},
		{"div in range", FromInt(1 << 29).Div(FromFloat(0.5)), FromInt(1 << 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Expected raw %d, got %d", tt.want.Raw(), tt.got.Raw())
			}
		})
	}
}

func TestRawRoundTrip(t *testing.T) {
	v := FromFloat(1234.0625)
	if FromRaw(v.Raw()) != v {
		t.Errorf("raw round trip mismatch")
	}
	if v.String() != "1234.0625" {
		t.Errorf("Expected 1234.0625, got %s", v.String())
	}
}
