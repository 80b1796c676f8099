package prompt

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPrompter(input string, existing ...string) (*Prompter, *bytes.Buffer) {
	var out bytes.Buffer
	p := New(strings.NewReader(input), &out)
	p.exists = func(path string) bool {
		for _, e := range existing {
			if e == path {
				return true
			}
		}
		return false
	}
	return p, &out
}

func TestInputPathReasksUntilFileExists(t *testing.T) {
	p, out := newTestPrompter("missing.png other.png photo.png", "photo.png")

	path, err := p.InputPath()
	require.NoError(t, err)
	require.Equal(t, "photo.png", path)
	require.Equal(t, 2, strings.Count(out.String(), "Error: The file does not exist. Please try again."))
}

func TestThreadCount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		height  int
		want    int
		wantOut []string
	}{
		{
			name:   "plain",
			input:  "4",
			height: 10,
			want:   4,
		},
		{
			name:    "non numeric then negative then zero",
			input:   "abc -3 0 2",
			height:  10,
			want:    2,
			wantOut: []string{"Please enter a valid integer", "must be a positive integer"},
		},
		{
			name:    "clamped to height",
			input:   "64",
			height:  5,
			want:    5,
			wantOut: []string{"Adjusted number of threads to 5 (height of the image)."},
		},
		{
			name:    "overflow is not numeric",
			input:   "99999999999999999999999 3",
			height:  10,
			want:    3,
			wantOut: []string{"Please enter a valid integer"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, out := newTestPrompter(tt.input)

			got, err := p.ThreadCount(tt.height)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			for _, s := range tt.wantOut {
				require.Contains(t, out.String(), s)
			}
		})
	}
}

func TestKernelSize(t *testing.T) {
	p, out := newTestPrompter("x 0 4 -5 7")

	got, err := p.KernelSize()
	require.NoError(t, err)
	require.Equal(t, 7, got)
	require.Equal(t, 3, strings.Count(out.String(), "Error: Kernel size must be a positive integer."))
	require.Equal(t, 1, strings.Count(out.String(), "Error: Kernel size must be an odd number."))
}

func TestOutputPath(t *testing.T) {
	p, out := newTestPrompter("out.jpg out.png.bak result.png")

	got, err := p.OutputPath()
	require.NoError(t, err)
	require.Equal(t, "result.png", got)
	require.Equal(t, 2, strings.Count(out.String(), "must have a .png extension"))
}

func TestPromptEOF(t *testing.T) {
	p, _ := newTestPrompter("abc")

	_, err := p.ThreadCount(10)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestParseDigits(t *testing.T) {
	n, ok := parseDigits("0042")
	require.True(t, ok)
	require.Equal(t, 42, n)

	for _, s := range []string{"", "+1", "-1", "1.5", "1e3", "12a"} {
		_, ok := parseDigits(s)
		require.False(t, ok, "%q", s)
	}
}
