package utils_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Skryldev/qrscan/utils"
)

func TestFitWithin(t *testing.T) {
	tests := []struct {
		srcW, srcH, maxW, maxH int
		wantW, wantH           int
	}{
		{2000, 2000, 1000, 1000, 1000, 1000},
		{4000, 3000, 1000, 1000, 1000, 750},
		{1200, 3000, 1000, 1000, 400, 1000},
		{200, 200, 1000, 1000, 1000, 1000},
		{300, 150, 1000, 1000, 1000, 500},
		{0, 10, 1000, 1000, 0, 10},
	}
	for _, tc := range tests {
		gotW, gotH := utils.FitWithin(tc.srcW, tc.srcH, tc.maxW, tc.maxH)
		if gotW != tc.wantW || gotH != tc.wantH {
			t.Errorf("FitWithin(%d,%d,%d,%d) = %d,%d; want %d,%d",
				tc.srcW, tc.srcH, tc.maxW, tc.maxH, gotW, gotH, tc.wantW, tc.wantH)
		}
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A}, "png"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
		{"gif", []byte("GIF89a...."), "gif"},
		{"tiff", []byte{'I', 'I', 0x2A, 0x00, 0, 0}, "tiff"},
		{"heic", []byte("\x00\x00\x00\x18ftypheic"), "heif"},
		{"short", []byte{0x01}, "unknown"},
		{"text", []byte("hello world"), "unknown"},
	}
	for _, tc := range tests {
		if got := utils.DetectFormat(tc.data); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestLimitedReader(t *testing.T) {
	ctx := context.Background()

	exact := &utils.LimitedReader{R: strings.NewReader("12345"), Max: 5}
	buf, err := utils.DrainReader(ctx, exact, 2)
	if err != nil {
		t.Fatalf("exact-size input rejected: %v", err)
	}
	if buf.String() != "12345" {
		t.Errorf("got %q", buf.String())
	}
	utils.ReleaseBuffer(buf)

	over := &utils.LimitedReader{R: strings.NewReader("123456"), Max: 5}
	if _, err := utils.DrainReader(ctx, over, 2); !errors.Is(err, utils.ErrTooLarge) {
		t.Errorf("oversized input: got %v, want ErrTooLarge", err)
	}

	unlimited := &utils.LimitedReader{R: bytes.NewReader(make([]byte, 1<<16))}
	buf, err = utils.DrainReader(ctx, unlimited, 0)
	if err != nil || buf.Len() != 1<<16 {
		t.Errorf("unlimited: len=%d err=%v", buf.Len(), err)
	}
}

func TestDrainReaderContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := utils.DrainReader(ctx, strings.NewReader("x"), 0); err == nil {
		t.Error("expected context error")
	}
}
