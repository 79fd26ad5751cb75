package main

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Skryldev/qrscan/core"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEncodeThenDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "code.png")
	if _, err := run(t, "encode", "-o", path, "round trip"); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(f); err != nil {
		t.Fatalf("written file is not a png: %v", err)
	}
	f.Close()

	out, err := run(t, "decode", path)
	if err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if !strings.Contains(out, "\tround trip") {
		t.Fatalf("output: %q", out)
	}
}

func TestEncodeRejectsUnknownExtension(t *testing.T) {
	if _, err := run(t, "encode", "-o", filepath.Join(t.TempDir(), "x.bmp"), "x"); err == nil {
		t.Fatal("expected error for .bmp")
	}
	if _, err := run(t, "encode", "--level", "Z", "x"); err == nil {
		t.Fatal("expected error for level Z")
	}
}

func TestDecodeReportsMiss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, core.BlankPixelBuffer(64, 64, 0xff).Image()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "decode", path)
	if err == nil {
		t.Fatalf("expected failure, got %q", out)
	}
	if !strings.Contains(out, "No code was found") {
		t.Fatalf("output: %q", out)
	}
}

func TestConfigPrint(t *testing.T) {
	out, err := run(t, "config", "print")
	if err != nil {
		t.Fatalf("config print: %v", err)
	}
	for _, want := range []string{"scan_interval:", "max_play_attempts: 3", "luma_threshold: 128"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output lacks %q", want)
		}
	}
}

func TestFormatFor(t *testing.T) {
	cases := map[string]core.Format{"a.png": core.FormatPNG, "b.JPG": core.FormatJPEG, "c.jpeg": core.FormatJPEG, "d.gif": core.FormatUnknown}
	for in, want := range cases {
		if got := formatFor(in); got != want {
			t.Errorf("formatFor(%q) = %s, want %s", in, got, want)
		}
	}
}
