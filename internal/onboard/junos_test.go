package onboard

import (
	"reflect"
	"testing"
)

func TestRejectionIn(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "clean output",
			output: "[edit]\nuser@sw1# ",
			want:   "",
		},
		{
			name:   "syntax error",
			output: "set bogus thing\nsyntax error, expecting <statement>\n[edit]\nuser@sw1# ",
			want:   "syntax error, expecting <statement>",
		},
		{
			name:   "unknown command",
			output: "unknown command.\nuser@sw1# ",
			want:   "unknown command.",
		},
		{
			name:   "commit error",
			output: "error: configuration check-out failed\n[edit]\nuser@sw1# ",
			want:   "error: configuration check-out failed",
		},
		{
			name:   "commit complete is clean",
			output: "commit complete\nExiting configuration mode\nuser@sw1> ",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rejectionIn(tt.output); got != tt.want {
				t.Errorf("rejectionIn() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNonBlank(t *testing.T) {
	in := []string{"set system host-name sw1", "", "   ", "set interfaces ge-0/0/0 disable", ""}
	want := []string{"set system host-name sw1", "set interfaces ge-0/0/0 disable"}

	if got := nonBlank(in); !reflect.DeepEqual(got, want) {
		t.Errorf("nonBlank() = %v, want %v", got, want)
	}

	if got := nonBlank(nil); len(got) != 0 {
		t.Errorf("nonBlank(nil) = %v, want empty", got)
	}
}
