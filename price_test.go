package x402

import "testing"

func TestParsePrice(t *testing.T) {
	cases := []struct {
		price    string
		decimals int32
		want     int64
	}{
		{"$0.10", 6, 100000},
		{"0.10", 6, 100000},
		{"$1", 6, 1000000},
		{"0.001", 6, 1000},
		{" $2.50 ", 6, 2500000},
		{"$0.000001", 6, 1},
		{"0", 6, 0},
		{"$1.5", 2, 150},
	}
	for _, tc := range cases {
		n, err := ParsePrice(tc.price, tc.decimals)
		if err != nil {
			t.Errorf("ParsePrice(%q, %d): %v", tc.price, tc.decimals, err)
			continue
		}
		if n.Int64() != tc.want {
			t.Errorf("ParsePrice(%q, %d) = %s, want %d", tc.price, tc.decimals, n, tc.want)
		}
	}
}

func TestParsePriceRejectsBadInput(t *testing.T) {
	cases := []struct {
		name     string
		price    string
		decimals int32
	}{
		{"empty", "", 6},
		{"just a dollar sign", "$", 6},
		{"negative", "-0.10", 6},
		{"negative with sign", "$-1", 6},
		{"words", "ten cents", 6},
		{"sub-atomic precision", "0.0000001", 6},
		{"sub-atomic with fewer decimals", "0.001", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePrice(tc.price, tc.decimals); err == nil {
				t.Errorf("ParsePrice(%q, %d) should fail", tc.price, tc.decimals)
			}
		})
	}
}
