// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	data := []byte("hello, world!")

	if err := AtomicWriteFile(path, data, 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", string(content), string(data))
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "test.txt")

	if err := AtomicWriteFile(path, []byte("test data"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("File should exist: %v", err)
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	if err := AtomicWriteFile(path, []byte("first content that is longer"), 0644); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0644); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "second" {
		t.Errorf("Content = %q, want %q", content, "second")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestAtomicWriteFileWithDir_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions")
	}
	dir := filepath.Join(t.TempDir(), "private")
	path := filepath.Join(dir, "config.toml")

	if err := AtomicWriteFileWithDir(path, []byte("x = 1\n"), 0600, 0700); err != nil {
		t.Fatalf("AtomicWriteFileWithDir failed: %v", err)
	}

	fi, _ := os.Stat(path)
	if fi.Mode().Perm() != 0600 {
		t.Errorf("file perm = %o, want 600", fi.Mode().Perm())
	}
	di, _ := os.Stat(dir)
	if di.Mode().Perm() != 0700 {
		t.Errorf("dir perm = %o, want 700", di.Mode().Perm())
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"tiny limit", "hello", 2, "he"},
		{"zero", "hello", 0, ""},
		{"multibyte", "héllo wörld", 7, "héll..."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TruncateRunes(tc.input, tc.max); got != tc.expected {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tc.input, tc.max, got, tc.expected)
			}
		})
	}
}

func TestTruncateWidth(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		maxWidth int
		expected string
	}{
		{"ascii short", "hello", 10, "hello"},
		{"ascii exact", "hello", 5, "hello"},
		{"ascii truncate", "hello world", 8, "hello..."},
		{"cjk fits", "日本", 4, "日本"},
		{"cjk truncate", "日本語文", 7, "日本..."},
		{"tiny limit", "hello", 2, "he"},
		{"empty", "", 5, ""},
		{"zero width", "hello", 0, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := TruncateWidth(tc.input, tc.maxWidth)
			if got != tc.expected {
				t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tc.input, tc.maxWidth, got, tc.expected)
			}
			if StringWidth(got) > tc.maxWidth {
				t.Errorf("result width %d exceeds %d", StringWidth(got), tc.maxWidth)
			}
		})
	}
}

func TestStringWidth(t *testing.T) {
	if w := StringWidth("abc"); w != 3 {
		t.Errorf("StringWidth(abc) = %d", w)
	}
	if w := StringWidth("日本"); w != 4 {
		t.Errorf("StringWidth(CJK) = %d, want 4", w)
	}
}

func TestPadRightAndSingleLine(t *testing.T) {
	if got := PadRight("ab", 5); got != "ab   " {
		t.Errorf("PadRight = %q", got)
	}
	if got := SingleLine("  one\n two\t\tthree  "); got != "one two three" {
		t.Errorf("SingleLine = %q", got)
	}
}

// =============================================================================
// FORMAT TESTS
// =============================================================================

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		n        int
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{15 * 1024 * 1024, "15.0 MiB"},
	}
	for _, tc := range testCases {
		if got := FormatBytes(tc.n); got != tc.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tc.n, got, tc.expected)
		}
	}
}

func TestPlural(t *testing.T) {
	if got := Plural(1, "message"); got != "1 message" {
		t.Errorf("Plural(1) = %q", got)
	}
	if got := Plural(3, "message"); got != "3 messages" {
		t.Errorf("Plural(3) = %q", got)
	}
	if got := IntToString(-7); got != "-7" {
		t.Errorf("IntToString = %q", got)
	}
}
