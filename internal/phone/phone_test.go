package phone

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"4155550100", "+14155550100"},
		{"(415) 555-0100", "+14155550100"},
		{"1-415-555-0100", "+14155550100"},
		{"+14155550100", "+14155550100"},
		{" +442071838750 ", "+442071838750"},
		{"12345", "12345"},
	}

	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"4155550100", true},
		{"+1 (415) 555-0100", true},
		{"+442071838750", true},
		{"", false},
		{"0", false},
		{"0123456789012", false},
		{"+1234567890123456", false},
	}

	for _, tc := range tests {
		if got := Validate(tc.in); got != tc.want {
			t.Errorf("Validate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"4155550100", "(415) 555-0100"},
		{"+14155550100", "+1 (415) 555-0100"},
		{"+442071838750", "+442071838750"},
	}

	for _, tc := range tests {
		if got := Format(tc.in); got != tc.want {
			t.Errorf("Format(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
