package validate

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		constraints StringConstraints
		wantErr     error
		wantOutput  string
	}{
		{
			name:  "valid string within length constraints",
			input: "Hello World",
			constraints: StringConstraints{
				MinLength: 5,
				MaxLength: 20,
				TrimSpace: true,
			},
			wantOutput: "Hello World",
		},
		{
			name:  "string too short",
			input: "Hi",
			constraints: StringConstraints{
				MinLength: 5,
				MaxLength: 20,
			},
			wantErr: ErrStringTooShort,
		},
		{
			name:  "string too long",
			input: strings.Repeat("a", 101),
			constraints: StringConstraints{
				MaxLength: 100,
			},
			wantErr: ErrStringTooLong,
		},
		{
			name:  "length counts runes",
			input: strings.Repeat("ü", 10),
			constraints: StringConstraints{
				MaxLength: 10,
			},
			wantOutput: strings.Repeat("ü", 10),
		},
		{
			name:    "empty string not allowed",
			input:   "",
			wantErr: ErrEmpty,
		},
		{
			name:  "empty string allowed",
			input: "",
			constraints: StringConstraints{
				AllowEmpty: true,
			},
			wantOutput: "",
		},
		{
			name:  "whitespace trimmed",
			input: "  Hello  ",
			constraints: StringConstraints{
				TrimSpace: true,
			},
			wantOutput: "Hello",
		},
		{
			name:  "only whitespace is empty",
			input: "   ",
			constraints: StringConstraints{
				TrimSpace: true,
			},
			wantErr: ErrEmpty,
		},
		{
			name:  "pattern validation success",
			input: "valid-name_123",
			constraints: StringConstraints{
				AllowedPattern: regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`),
			},
			wantOutput: "valid-name_123",
		},
		{
			name:  "pattern validation failure",
			input: "invalid name!",
			constraints: StringConstraints{
				AllowedPattern: regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`),
			},
			wantErr: ErrInvalidCharacters,
		},
		{
			name:  "control character rejected",
			input: "bell\x07",
			constraints: StringConstraints{
				NoControl: true,
			},
			wantErr: ErrInvalidCharacters,
		},
		{
			name:  "newline and tab allowed",
			input: "line one\n\tline two",
			constraints: StringConstraints{
				NoControl: true,
			},
			wantOutput: "line one\n\tline two",
		},
		{
			name:    "invalid utf8",
			input:   "bad\xff",
			wantErr: ErrInvalidCharacters,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := String(tt.input, tt.constraints)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("String() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("String() unexpected error = %v", err)
			}
			if got != tt.wantOutput {
				t.Errorf("String() = %q, want %q", got, tt.wantOutput)
			}
		})
	}
}

func TestID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "store id", input: "aB3xYz09Qw", want: "aB3xYz09Qw"},
		{name: "catalog id", input: "spotify:track:4uLU6hMCjMI75M1A2tKUQC", want: "spotify:track:4uLU6hMCjMI75M1A2tKUQC"},
		{name: "trimmed", input: "  u1 ", want: "u1"},
		{name: "empty", input: "", wantErr: ErrEmpty},
		{name: "blank", input: "   ", wantErr: ErrEmpty},
		{name: "inner space", input: "u 1", wantErr: ErrInvalidCharacters},
		{name: "path separator", input: "users/u1", wantErr: ErrInvalidCharacters},
		{name: "too long", input: strings.Repeat("a", MaxIDLength+1), wantErr: ErrStringTooLong},
		{name: "max length", input: strings.Repeat("a", MaxIDLength), want: strings.Repeat("a", MaxIDLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ID(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ID(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ID(%q) unexpected error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "empty means no message", input: "", want: ""},
		{name: "trimmed", input: "  love this  ", want: "love this"},
		{name: "longer than stored length is accepted", input: strings.Repeat("x", 200), want: strings.Repeat("x", 200)},
		{name: "too long", input: strings.Repeat("x", MaxMessageInputLength+1), wantErr: ErrStringTooLong},
		{name: "control character", input: "hi\x00", wantErr: ErrInvalidCharacters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Message(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Message() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Message() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}
