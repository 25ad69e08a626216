// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/jeranaias/rigchat/internal/access"
	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"RIGCHAT_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY",
		"RIGCHAT_MODEL", "RIGCHAT_PROVIDER", "RIGCHAT_BASE_URL",
		"RIGCHAT_MAX_TOKENS", "RIGCHAT_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	return home
}

// runCmd executes the root command with args and returns stdout.
func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func TestVersionCmd(t *testing.T) {
	isolateEnv(t)
	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "rigchat "+Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestConfigPath(t *testing.T) {
	home := isolateEnv(t)

	out, err := runCmd(t, "", "config", "path")
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	want := filepath.Join(home, ".rigchat", "config.toml")
	if strings.TrimSpace(out) != want {
		t.Errorf("config path = %q, want %q", out, want)
	}

	custom := filepath.Join(home, "other.toml")
	out, _ = runCmd(t, "", "--config", custom, "config", "path")
	if strings.TrimSpace(out) != custom {
		t.Errorf("config path with --config = %q, want %q", out, custom)
	}
}

func TestConfigInitGetSet(t *testing.T) {
	home := isolateEnv(t)
	path := filepath.Join(home, ".rigchat", "config.toml")

	if _, err := runCmd(t, "", "config", "init"); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if _, err := runCmd(t, "", "config", "init"); err == nil {
		t.Error("second init without --force should fail")
	}

	out, err := runCmd(t, "", "config", "get", "model.max_tokens")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if strings.TrimSpace(out) != "1024" {
		t.Errorf("model.max_tokens = %q, want 1024", out)
	}

	if _, err := runCmd(t, "", "config", "set", "model.max_tokens", "2048"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	out, _ = runCmd(t, "", "config", "get", "model.max_tokens")
	if strings.TrimSpace(out) != "2048" {
		t.Errorf("after set, model.max_tokens = %q, want 2048", out)
	}

	if _, err := runCmd(t, "", "config", "set", "model.max_tokens", "999999"); err == nil {
		t.Error("invalid value should be rejected")
	}
	if _, err := runCmd(t, "", "config", "get", "model.nope"); err == nil {
		t.Error("unknown key should fail")
	}
}

func TestConfigSecretsAreMasked(t *testing.T) {
	isolateEnv(t)
	secret := "sk-ant-REDACTED"

	out, err := runCmd(t, "", "config", "set", "model.api_key", secret)
	if err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if strings.Contains(out, secret) {
		t.Errorf("set echoed the secret: %q", out)
	}

	out, _ = runCmd(t, "", "config", "get", "model.api_key")
	if strings.Contains(out, secret) {
		t.Errorf("get printed the secret: %q", out)
	}

	out, err = runCmd(t, "", "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if strings.Contains(out, secret) || !strings.Contains(out, "[REDACTED]") {
		t.Errorf("show did not redact: %q", out)
	}
}

func TestProviderFlagListsProviders(t *testing.T) {
	isolateEnv(t)
	usage := NewRootCmd().PersistentFlags().Lookup("provider").Usage
	for _, name := range cloud.Providers() {
		if !strings.Contains(usage, name) {
			t.Errorf("--provider help %q does not mention %s", usage, name)
		}
		if _, err := runCmd(t, "", "--provider", name, "config", "show", "--json"); err != nil {
			t.Errorf("provider %s rejected: %v", name, err)
		}
	}
}

func TestConfigShowAppliesFlags(t *testing.T) {
	isolateEnv(t)

	out, err := runCmd(t, "", "--provider", "openrouter", "--model", "openai/gpt-4o", "config", "show", "--json")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, `"openrouter"`) || !strings.Contains(out, "openai/gpt-4o") {
		t.Errorf("flags not applied: %s", out)
	}

	if _, err := runCmd(t, "", "--provider", "carrier-pigeon", "config", "show"); err == nil {
		t.Error("unknown provider should fail validation")
	}
}

func TestConfigHashKeySave(t *testing.T) {
	if IsTTY() {
		t.Skip("stdin is a terminal")
	}
	isolateEnv(t)

	if _, err := runCmd(t, "correct horse battery\n", "config", "hash-key", "--save"); err != nil {
		t.Fatalf("hash-key failed: %v", err)
	}

	path, _ := config.ConfigPathTOML()
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	if cfg.Access.Mode != config.AccessKey {
		t.Errorf("access.mode = %q, want key", cfg.Access.Mode)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cfg.Access.KeyHash), []byte("correct horse battery")); err != nil {
		t.Errorf("stored hash does not match key: %v", err)
	}

	if _, err := runCmd(t, "short\n", "config", "hash-key"); err == nil {
		t.Error("short key should be rejected")
	}
}

func TestConfigTOTPSecret(t *testing.T) {
	isolateEnv(t)

	out, err := runCmd(t, "", "config", "totp-secret", "--account", "me@laptop", "--save")
	if err != nil {
		t.Fatalf("totp-secret failed: %v", err)
	}
	if !strings.Contains(out, "otpauth://totp/") {
		t.Errorf("missing provisioning URL: %q", out)
	}

	path, _ := config.ConfigPathTOML()
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	if cfg.Access.Mode != config.AccessTOTP || cfg.Access.TOTPSecret == "" {
		t.Errorf("access not saved: mode=%q", cfg.Access.Mode)
	}
}

// =============================================================================
// ACCESS PROMPT TESTS
// =============================================================================

func scriptedPrompter(answers ...string) secretPrompter {
	return func(string) (string, error) {
		if len(answers) == 0 {
			return "", io.EOF
		}
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
}

func TestUnlock(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	newKeyGate := func() *access.Gate {
		g, err := access.NewGate(access.ModeKey, access.WithKeyHash(string(hash)))
		if err != nil {
			t.Fatal(err)
		}
		return g
	}

	var out bytes.Buffer
	g := newKeyGate()
	if err := unlock(g, scriptedPrompter("wrong", "correct horse"), &out); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if !g.Authorized() {
		t.Error("gate should be open")
	}
	if !strings.Contains(out.String(), "attempt(s) left") {
		t.Errorf("expected a retry hint, got %q", out.String())
	}

	g = newKeyGate()
	if err := unlock(g, scriptedPrompter(), &out); err == nil {
		t.Error("ending input should fail the unlock")
	}

	open, _ := access.NewGate(access.ModeNone)
	if err := unlock(open, scriptedPrompter(), &out); err != nil {
		t.Errorf("open gate should not prompt: %v", err)
	}
}

// =============================================================================
// REPL TESTS
// =============================================================================

type queuedLines struct {
	lines []string
}

func (q *queuedLines) ReadLine(string) (string, error) {
	if len(q.lines) == 0 {
		return "", io.EOF
	}
	l := q.lines[0]
	q.lines = q.lines[1:]
	return l, nil
}

func writePNG(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shot.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 4, 3))); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReplSource(t *testing.T) {
	img := writePNG(t)
	var out bytes.Buffer
	src := &replSource{
		lines: &queuedLines{lines: []string{
			"",
			"/help",
			"/history",
			"/bogus",
			"/image " + filepath.Join(t.TempDir(), "missing.png"),
			"/image " + img,
			"2+2?",
			"/usr/bin/env is a path",
			"clear",
			"/quit",
		}},
		out:     &out,
		history: func() []model.Message { return nil },
	}
	ctx := context.Background()

	in, err := src.RequestInput(ctx)
	if err != nil || !in.IsImage() {
		t.Fatalf("expected image input, got %+v, %v", in, err)
	}
	if in.Image.MediaType != "image/png" {
		t.Errorf("media type = %q", in.Image.MediaType)
	}

	for _, want := range []string{"2+2?", "/usr/bin/env is a path", "clear"} {
		in, err = src.RequestInput(ctx)
		if err != nil || in.IsImage() || in.Text != want {
			t.Errorf("got %+v, %v; want text %q", in, err, want)
		}
	}

	if _, err := src.RequestInput(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("/quit should end input, got %v", err)
	}

	printed := out.String()
	for _, want := range []string{"Commands:", "(no messages yet)", "unknown command /bogus", "[Error]", "Image attached"} {
		if !strings.Contains(printed, want) {
			t.Errorf("output missing %q:\n%s", want, printed)
		}
	}
}

func TestReplSink_WritesOnlyNewText(t *testing.T) {
	var out, errOut bytes.Buffer
	s := newReplSink(&out, &errOut)

	s.DisplayHistory([]model.Message{model.NewUserText("2+2?")})
	s.DisplayLive("4")
	s.DisplayLive("4 (four)")
	s.DisplayLive("4 (four)")
	s.DisplayHistory([]model.Message{model.NewUserText("2+2?"), model.NewAssistantText("4 (four)")})

	if got := out.String(); got != "4 (four)\n" {
		t.Errorf("output = %q, want %q", got, "4 (four)\n")
	}
}

func TestReplSink_ErrorsAndReset(t *testing.T) {
	var out, errOut bytes.Buffer
	s := newReplSink(&out, &errOut)

	s.DisplayLive("The answer ")
	s.DisplayError(&session.RemoteCallError{Op: "streaming", Err: errors.New("connection reset")})
	if out.String() != "The answer \n" {
		t.Errorf("partial reply not terminated: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "connection reset") {
		t.Errorf("error not shown: %q", errOut.String())
	}

	s.DisplayError(&session.RemoteCallError{Op: "streaming", Err: session.ErrTurnCancelled})
	if !strings.Contains(errOut.String(), "[Cancelled]") {
		t.Errorf("cancel not shown: %q", errOut.String())
	}

	s.NotifyReset()
	if !strings.Contains(out.String(), "[Conversation cleared]") {
		t.Errorf("reset not shown: %q", out.String())
	}
}

func TestRewindSequence(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  string
	}{
		{"", 80, ""},
		{"one line", 80, "\r\x1b[J"},
		{"two\nlines", 80, "\r\x1b[1A\x1b[J"},
		{strings.Repeat("x", 100), 40, "\r\x1b[2A\x1b[J"},
		{"a\n\nb", 80, "\r\x1b[2A\x1b[J"},
	}
	for _, tt := range tests {
		if got := rewindSequence(tt.text, tt.width); got != tt.want {
			t.Errorf("rewindSequence(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}

// =============================================================================
// END TO END
// =============================================================================

type cannedStreamer struct {
	reply []string
}

func (c *cannedStreamer) Open(context.Context, cloud.Request) (cloud.Stream, error) {
	return &cannedStream{frags: c.reply}, nil
}

type cannedStream struct {
	frags []string
	cur   string
}

func (s *cannedStream) Next() bool {
	if len(s.frags) == 0 {
		return false
	}
	s.cur, s.frags = s.frags[0], s.frags[1:]
	return true
}

func (s *cannedStream) Fragment() string { return s.cur }
func (s *cannedStream) Err() error       { return nil }
func (s *cannedStream) Close() error     { return nil }

func TestReplRoundTrip(t *testing.T) {
	var out, errOut bytes.Buffer
	sink := newReplSink(&out, &errOut)
	sess := session.New(session.Config{})
	defer sess.Close()

	ctrl, err := session.NewController(sess, &cannedStreamer{reply: []string{"4", " (four)"}}, sink, session.Options{})
	if err != nil {
		t.Fatal(err)
	}
	src := &replSource{
		lines:   &queuedLines{lines: []string{"2+2?", "/history", "clear", "/history"}},
		out:     &out,
		history: sess.Conversation().Snapshot,
	}

	if err := ctrl.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	printed := out.String()
	for _, want := range []string{"4 (four)\n", "2+2?", "[Conversation cleared]", "(no messages yet)"} {
		if !strings.Contains(printed, want) {
			t.Errorf("output missing %q:\n%s", want, printed)
		}
	}
	if errOut.Len() != 0 {
		t.Errorf("unexpected errors: %s", errOut.String())
	}
	if sess.Conversation().Len() != 0 {
		t.Errorf("conversation should be empty after clear, has %d", sess.Conversation().Len())
	}
}
