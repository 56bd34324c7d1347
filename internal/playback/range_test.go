package playback

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		size      int64
		wantStart int64
		wantEnd   int64
		wantNil   bool
		wantErr   error
	}{
		{name: "empty header means whole file", header: "", size: 100, wantNil: true},
		{name: "full range", header: "bytes=0-99", size: 100, wantStart: 0, wantEnd: 99},
		{name: "open end", header: "bytes=10-", size: 100, wantStart: 10, wantEnd: 99},
		{name: "suffix", header: "bytes=-20", size: 100, wantStart: 80, wantEnd: 99},
		{name: "suffix larger than file", header: "bytes=-500", size: 100, wantStart: 0, wantEnd: 99},
		{name: "end clamped to size", header: "bytes=50-500", size: 100, wantStart: 50, wantEnd: 99},
		{name: "multi-range keeps first", header: "bytes=0-9, 20-29", size: 100, wantStart: 0, wantEnd: 9},
		{name: "missing prefix", header: "0-99", size: 100, wantErr: ErrInvalidRange},
		{name: "garbage", header: "bytes=abc-def", size: 100, wantErr: ErrInvalidRange},
		{name: "start past size", header: "bytes=100-", size: 100, wantErr: ErrUnsatisfiable},
		{name: "inverted", header: "bytes=50-10", size: 100, wantErr: ErrUnsatisfiable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRange(tc.header, tc.size)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ParseRange(%q) error = %v, want %v", tc.header, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRange(%q) unexpected error: %v", tc.header, err)
			}
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ParseRange(%q) = %+v, want nil", tc.header, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseRange(%q) = nil, want range", tc.header)
			}
			if got.Start != tc.wantStart || got.End != tc.wantEnd {
				t.Errorf("ParseRange(%q) = [%d, %d], want [%d, %d]",
					tc.header, got.Start, got.End, tc.wantStart, tc.wantEnd)
			}
		})
	}
}

func TestRange_ContentHeaders(t *testing.T) {
	r := Range{Start: 10, End: 19}
	if r.ContentLength() != 10 {
		t.Errorf("ContentLength() = %d, want 10", r.ContentLength())
	}
	if got := r.ContentRange(100); got != "bytes 10-19/100" {
		t.Errorf("ContentRange(100) = %q, want %q", got, "bytes 10-19/100")
	}
}
