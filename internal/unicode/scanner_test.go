package unicode

import (
	"reflect"
	"testing"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		clean      bool
		categories []string
		sanitized  string
		high       bool
	}{
		{"plain text", "Hello, world", true, nil, "Hello, world", false},
		{"tab and newline", "a\tb\nc\r", true, nil, "a\tb\nc\r", false},
		{"zero-width space", "pay\u200Bpal", false, []string{"zero-width"}, "paypal", true},
		{"bom", "\uFEFFtext", false, []string{"zero-width"}, "text", true},
		{"rtl override", "invoice\u202Efdp.exe", false, []string{"bidi-override"}, "invoicefdp.exe", true},
		{"tag characters", "hi\U000E0041\U000E0042", false, []string{"tag-char"}, "hi", true},
		{"control char", "a\x1bb", false, []string{"control-char"}, "ab", true},
		{"invalid utf8", "a\xffb", false, []string{"invalid-utf8"}, "ab", true},
		{"cyrillic a", "pаypal.com", false, []string{"homoglyph-cyrillic"}, "pаypal.com", false},
		{"greek omicron", "gοogle", false, []string{"homoglyph-greek"}, "gοogle", false},
		{"mixed", "\u200Bа", false, []string{"zero-width", "homoglyph-cyrillic"}, "а", true},
		{"non-latin text is fine", "日本語 한국어", true, nil, "日本語 한국어", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Scan(tt.input)
			if got.Clean != tt.clean {
				t.Errorf("Clean = %v, want %v (threats %v)", got.Clean, tt.clean, got.Threats)
			}
			if !reflect.DeepEqual(got.Categories(), tt.categories) {
				t.Errorf("Categories() = %v, want %v", got.Categories(), tt.categories)
			}
			if got.Sanitized != tt.sanitized {
				t.Errorf("Sanitized = %q, want %q", got.Sanitized, tt.sanitized)
			}
			if got.HasHigh() != tt.high {
				t.Errorf("HasHigh() = %v, want %v", got.HasHigh(), tt.high)
			}
		})
	}
}

func TestScan_Positions(t *testing.T) {
	got := Scan("ab\u200Bc")
	if len(got.Threats) != 1 {
		t.Fatalf("expected 1 threat, got %v", got.Threats)
	}
	th := got.Threats[0]
	if th.Position != 2 || th.Codepoint != "U+200B" {
		t.Errorf("threat = %+v, want position 2 codepoint U+200B", th)
	}
	if th.String() != "zero-width U+200B at 2" {
		t.Errorf("String() = %q", th.String())
	}
}
