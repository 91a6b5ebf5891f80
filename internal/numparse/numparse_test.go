package numparse_test

import (
	"math"
	"strings"
	"testing"

	"github.com/voxlift/voxlift/internal/numparse"
)

func TestParseNumber_Literals(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"185": 185,
		"2.5": 2.5,
		"0":   0,
		"12":  12,
	}
	for in, want := range cases {
		got, ok := numparse.ParseNumber(in)
		if !ok {
			t.Errorf("ParseNumber(%q): ok=false, want true", in)
			continue
		}
		if got != want {
			t.Errorf("ParseNumber(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseNumber_Words(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"five":                         5,
		"fifteen":                      15,
		"twenty":                       20,
		"twenty one":                   21,
		"twenty-one":                   21,
		"ninety nine":                  99,
		"one hundred":                  100,
		"a hundred":                    100,
		"one hundred eighty five":      185,
		"one hundred and five":         105,
		"two hundred twenty five":      225,
		"one thousand":                 1000,
		"two thousand three hundred":   2300,
		"three hundred fifteen":        315,
		"2 hundred":                    200,
	}
	for in, want := range cases {
		got, ok := numparse.ParseNumber(in)
		if !ok {
			t.Errorf("ParseNumber(%q): ok=false, want true", in)
			continue
		}
		if got != want {
			t.Errorf("ParseNumber(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseNumber_Unparsable(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "banana", "twenty bench", "and"} {
		if v, ok := numparse.ParseNumber(in); ok {
			t.Errorf("ParseNumber(%q) = %v, ok=true, want ok=false", in, v)
		}
	}
}

// numberToWords renders n in the supported spoken vocabulary so the
// round-trip property ParseNumber(numberToWords(n)) == n can be checked.
func numberToWords(n int) string {
	onesWords := []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven",
		"eight", "nine", "ten", "eleven", "twelve", "thirteen", "fourteen",
		"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
	}
	tensWords := map[int]string{
		20: "twenty", 30: "thirty", 40: "forty", 50: "fifty",
		60: "sixty", 70: "seventy", 80: "eighty", 90: "ninety",
	}

	var parts []string
	if n >= 1000 {
		parts = append(parts, numberToWords(n/1000), "thousand")
		n %= 1000
	}
	if n >= 100 {
		parts = append(parts, onesWords[n/100], "hundred")
		n %= 100
	}
	if n >= 20 {
		parts = append(parts, tensWords[n/10*10])
		n %= 10
	}
	if n > 0 || len(parts) == 0 {
		parts = append(parts, onesWords[n])
	}
	return strings.Join(parts, " ")
}

func TestParseNumber_RoundTrip(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 2000; n++ {
		words := numberToWords(n)
		got, ok := numparse.ParseNumber(words)
		if !ok {
			t.Fatalf("ParseNumber(%q): ok=false, want true (n=%d)", words, n)
		}
		if got != float64(n) {
			t.Fatalf("ParseNumber(%q) = %v, want %d", words, got, n)
		}
	}
}

func TestParseWeight(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in    string
		value float64
		unit  numparse.WeightUnit
	}{
		{"185 pounds", 185, numparse.Pounds},
		{"one hundred eighty five pounds", 185, numparse.Pounds},
		{"ninety kilos", 90, numparse.Kilograms},
		{"100 kg", 100, numparse.Kilograms},
		{"225", 225, numparse.Pounds}, // unit defaults to pounds
		{"12 stone", 12, numparse.Stone},
	}
	for _, tc := range cases {
		got := numparse.ParseWeight(tc.in)
		if got == nil {
			t.Errorf("ParseWeight(%q) = nil, want value", tc.in)
			continue
		}
		if got.Value != tc.value || got.Unit != tc.unit {
			t.Errorf("ParseWeight(%q) = {%v %v}, want {%v %v}",
				tc.in, got.Value, got.Unit, tc.value, tc.unit)
		}
	}

	if got := numparse.ParseWeight("heavy stuff"); got != nil {
		t.Errorf("ParseWeight(%q) = %+v, want nil", "heavy stuff", got)
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		seconds float64
	}{
		{"3 minutes", 180},
		{"three minutes", 180},
		{"ninety seconds", 90},
		{"90", 90},
		{"1 hour", 3600},
		{"two mins", 120},
	}
	for _, tc := range cases {
		got := numparse.ParseTime(tc.in)
		if got == nil {
			t.Errorf("ParseTime(%q) = nil, want value", tc.in)
			continue
		}
		if got.Seconds != tc.seconds {
			t.Errorf("ParseTime(%q).Seconds = %v, want %v", tc.in, got.Seconds, tc.seconds)
		}
	}
}

func TestParseRPE(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"rpe 8":               8,
		"at rpe eight":        8,
		"8":                   8,
		"eight and a half":    8.5,
		"9.5":                 9.5,
		"ten":                 10,
	}
	for in, want := range cases {
		got, ok := numparse.ParseRPE(in)
		if !ok {
			t.Errorf("ParseRPE(%q): ok=false, want true", in)
			continue
		}
		if got != want {
			t.Errorf("ParseRPE(%q) = %v, want %v", in, got, want)
		}
	}

	// Out-of-range values reject the parse.
	for _, in := range []string{"0", "11", "eleven", "rpe 0.5", "nothing"} {
		if v, ok := numparse.ParseRPE(in); ok {
			t.Errorf("ParseRPE(%q) = %v, ok=true, want ok=false", in, v)
		}
	}
}

func TestConvertWeight_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, x := range []float64{1, 45, 135, 185, 502.5} {
		kg, ok := numparse.ConvertWeight(x, numparse.Pounds, numparse.Kilograms)
		if !ok {
			t.Fatalf("ConvertWeight(%v, lbs, kg): ok=false", x)
		}
		back, ok := numparse.ConvertWeight(kg, numparse.Kilograms, numparse.Pounds)
		if !ok {
			t.Fatalf("ConvertWeight(%v, kg, lbs): ok=false", kg)
		}
		if math.Abs(back-x) > 1e-9 {
			t.Errorf("lbs→kg→lbs round trip: got %v, want %v", back, x)
		}
	}
}

func TestConvertTime(t *testing.T) {
	t.Parallel()

	got, ok := numparse.ConvertTime(3, numparse.Minutes, numparse.Seconds)
	if !ok || got != 180 {
		t.Errorf("ConvertTime(3, min, sec) = %v ok=%v, want 180 true", got, ok)
	}

	if _, ok := numparse.ConvertTime(1, numparse.TimeUnit("fortnight"), numparse.Seconds); ok {
		t.Error("ConvertTime with unknown unit should return ok=false")
	}
}

func TestConvertDistance(t *testing.T) {
	t.Parallel()

	got, ok := numparse.ConvertDistance(1, numparse.Miles, numparse.Meters)
	if !ok || math.Abs(got-1609.344) > 1e-9 {
		t.Errorf("ConvertDistance(1, mi, m) = %v ok=%v, want 1609.344 true", got, ok)
	}
}
