package utils

import (
	"io"
	"reflect"
	"testing"

	"galleria/pkg/logger"
)

func TestSizeToBytes(t *testing.T) {
	logger.SetOutput(io.Discard, io.Discard)

	tests := []struct {
		in   string
		want int64
	}{
		{"20MiB", 20 << 20},
		{"5 mib", 5 << 20},
		{"512kib", 512 << 10},
		{"20MB", 20_000_000},
		{"1.5 GB", 1_500_000_000},
		{"1024", 1024},
		{"", 7},
		{"0MB", 7},
		{"ten MB", 7},
		{"3XB", 7},
		{"-5MB", 7},
		{"9999999PB", 7},
		{"9999999999EiB", 7},
	}
	for _, tt := range tests {
		if got := SizeToBytes(tt.in, 7); got != tt.want {
			t.Errorf("SizeToBytes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList([]string{"travel, beach ,", "beach", " 风景 "})
	want := []string{"travel", "beach", "风景"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitList = %q, want %q", got, want)
	}
	if got := SplitList(nil); got == nil || len(got) != 0 {
		t.Errorf("SplitList(nil) = %#v, want empty slice", got)
	}
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "TRUE": true, "on": true, "0": false, "False": false, "": true, "maybe": true} {
		if got := ParseBool(in, true); got != want {
			t.Errorf("ParseBool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"5", 5}, {"abc", 20}, {"", 20}, {"9999", 100}, {"-3", 1},
	}
	for _, tt := range tests {
		if got := ParseInt(tt.in, 20, 1, 100); got != tt.want {
			t.Errorf("ParseInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIsImageUpload(t *testing.T) {
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	heic := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c', 0x00, 0x00}
	tiff := []byte{'I', 'I', '*', 0x00, 0x08, 0x00, 0x00, 0x00}

	tests := []struct {
		name     string
		head     []byte
		filename string
		want     bool
	}{
		{"jpeg", jpeg, "a.jpg", true},
		{"heic", heic, "a.heic", true},
		{"tiff", tiff, "a.tif", true},
		{"tiff without extension", tiff, "a.bin", false},
		{"text", []byte("hello world"), "a.jpg", false},
	}
	for _, tt := range tests {
		if got := IsImageUpload(tt.head, tt.filename); got != tt.want {
			t.Errorf("%s: IsImageUpload = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		origin, pattern string
		want            bool
	}{
		{"https://app.example.com", "*", true},
		{"https://example.com", "https://example.com", true},
		{"https://example.com", "https://**.example.com", true},
		{"https://api.example.com", "https://**.example.com", true},
		{"https://api.example.com", "https://*.example.com", true},
		{"https://example.com", "https://*.example.com", false},
		{"https://evil.com", "https://*.example.com", false},
	}
	for _, tt := range tests {
		if got := MatchOrigin(tt.origin, tt.pattern); got != tt.want {
			t.Errorf("MatchOrigin(%q, %q) = %v, want %v", tt.origin, tt.pattern, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(512); got != "512 B" {
		t.Errorf("FormatBytes(512) = %q", got)
	}
	if got := FormatBytes(3 << 20); got != "3.00 MB" {
		t.Errorf("FormatBytes(3MB) = %q", got)
	}
}
