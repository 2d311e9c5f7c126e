package types

import "testing"

func TestAccountIDBase58RoundTrip(t *testing.T) {
	var a AccountID
	for i := range a {
		a[i] = byte(i)
	}

	s := a.String()
	parsed, err := AccountIDFromBase58(s)
	if err != nil {
		t.Fatalf("AccountIDFromBase58(%q) failed: %v", s, err)
	}
	if parsed != a {
		t.Errorf("round trip = %v, want %v", parsed, a)
	}
}

func TestAccountIDFromBytesInvalidLength(t *testing.T) {
	if _, err := AccountIDFromBytes(make([]byte, 16)); err != ErrInvalidAccountID {
		t.Errorf("AccountIDFromBytes(16 bytes) err = %v, want ErrInvalidAccountID", err)
	}
}

func TestAccountIDIsZero(t *testing.T) {
	var zero AccountID
	if !zero.IsZero() {
		t.Error("zero account id reported non-zero")
	}
	if Alice.IsZero() {
		t.Error("Alice reported zero")
	}
}

func TestActorsAreDistinctAndStable(t *testing.T) {
	actors := []AccountID{Alice, Bob, Charlie, Dave, Eve}
	seen := make(map[AccountID]bool)
	for _, a := range actors {
		if seen[a] {
			t.Fatalf("duplicate actor id %v", a)
		}
		seen[a] = true
	}

	if got := ActorFromSeed("//Alice"); got != Alice {
		t.Errorf("ActorFromSeed(//Alice) = %v, want %v", got, Alice)
	}
}

func TestHashHexRoundTrip(t *testing.T) {
	h := ComputeHash([]byte("hello"))
	parsed, err := HashFromHex(h.Hex())
	if err != nil {
		t.Fatalf("HashFromHex failed: %v", err)
	}
	if parsed != h {
		t.Errorf("round trip = %v, want %v", parsed, h)
	}
}

func TestWeightAnyGt(t *testing.T) {
	tests := []struct {
		name  string
		w     Weight
		limit Weight
		want  bool
	}{
		{"both under", Weight{10, 10}, Weight{20, 20}, false},
		{"equal", Weight{20, 20}, Weight{20, 20}, false},
		{"ref time over", Weight{21, 10}, Weight{20, 20}, true},
		{"proof size over", Weight{10, 21}, Weight{20, 20}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.AnyGt(tt.limit); got != tt.want {
				t.Errorf("AnyGt() = %v, want %v", got, tt.want)
			}
		})
	}
}
