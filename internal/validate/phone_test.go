package validate

import "testing"

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{
			name:  "valid US number with country code",
			input: "+15551234567",
			want:  true,
		},
		{
			name:  "valid formatted number",
			input: "(415) 555-2671",
			want:  true,
		},
		{
			name:  "valid plain ten digits",
			input: "4155552671",
			want:  true,
		},
		{
			name:  "all identical digits",
			input: "5555555555",
			want:  false,
		},
		{
			name:  "ascending sequence",
			input: "1234567890",
			want:  false,
		},
		{
			name:  "descending sequence",
			input: "9876543210",
			want:  false,
		},
		{
			name:  "ascending with mod 10 wraparound",
			input: "4567890123",
			want:  false,
		},
		{
			name:  "seven digit repeat run in the middle",
			input: "12777777789",
			want:  false,
		},
		{
			name:  "six digit repeat run is allowed",
			input: "6177777712",
			want:  true,
		},
		{
			name:  "too short",
			input: "123456",
			want:  false,
		},
		{
			name:  "too long",
			input: "1234512345123456",
			want:  false,
		},
		{
			name:  "placeholder number",
			input: "111-222-3333",
			want:  false,
		},
		{
			name:  "placeholder behind country code",
			input: "11112223333",
			want:  false,
		},
		{
			name:  "letters only",
			input: "call me maybe",
			want:  false,
		},
		{
			name:  "empty string",
			input: "",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidPhone(tt.input); got != tt.want {
				t.Errorf("IsValidPhone(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"+1 (555) 010-4477", "+15550104477"},
		{"(415) 555-2671", "4155552671"},
		{"  +44 20 7946 0958", "+442079460958"},
		{"415.555.2671", "4155552671"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizePhone(tt.input); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHasSequentialRun(t *testing.T) {
	tests := []struct {
		name   string
		digits string
		want   bool
	}{
		{"plain ascending", "12345678", true},
		{"plain descending", "87654321", true},
		{"ascending wrap", "89012345", true},
		{"descending wrap", "21098765", true},
		{"shorter than window", "1234567", false},
		{"broken sequence", "12345679", false},
		{"embedded run", "9912345678", true},
		{"seven digit run only", "55512345675", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasSequentialRun(tt.digits, sequenceWindow); got != tt.want {
				t.Errorf("hasSequentialRun(%q) = %v, want %v", tt.digits, got, tt.want)
			}
		})
	}
}
