// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/codec"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/ui/styles"
	"github.com/jeranaias/rigchat/internal/util"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "\n  Starting rigchat..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if line := m.renderMessageLine(); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(m.theme.InputBorder.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

// =============================================================================
// LAYOUT
// =============================================================================

const (
	headerHeight    = 1
	statusHeight    = 1
	messageHeight   = 1
	inputChromeRows = 2
)

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.theme.SetSize(width, height)

	m.input.SetWidth(width - 6)
	vpHeight := height - headerHeight - statusHeight - messageHeight - m.input.Height() - inputChromeRows
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.ready = true

	if w := m.contentWidth(); w != m.renderWidth {
		m.renderer = nil
		m.rendered = make(map[string]string)
	}
	m.refresh()
}

// refresh rebuilds the viewport content, keeping the view pinned to the
// bottom when it already was.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom() || m.viewport.TotalLineCount() <= m.viewport.Height
	m.viewport.SetContent(m.renderConversation())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// CONVERSATION
// =============================================================================

func (m *Model) renderConversation() string {
	if len(m.history) == 0 && m.liveText == "" && !m.busy {
		return m.theme.Notice.Render("Type a message and press Enter. Type 'clear' to start over.")
	}

	var b strings.Builder
	for i, msg := range m.history {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
	}

	if m.busy && m.streamingAfter() {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.theme.AssistantLabel.Render("Assistant"))
		b.WriteString(" ")
		b.WriteString(m.spinner.View())
		b.WriteString("\n")
		if m.liveText != "" {
			b.WriteString(lipgloss.NewStyle().Width(m.contentWidth()).PaddingLeft(2).Render(m.liveText))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// streamingAfter reports whether the history ends with user content, so a
// reply is pending below it.
func (m *Model) streamingAfter() bool {
	if len(m.history) == 0 {
		return false
	}
	return m.history[len(m.history)-1].Role == model.RoleUser
}

func (m *Model) renderMessage(msg model.Message) string {
	switch msg.Role {
	case model.RoleUser:
		label := m.theme.UserLabel.Render("You")
		if img, ok := msg.Image(); ok {
			return label + "\n" + m.theme.ImageBadge.Render(describeImage(img)) + "\n"
		}
		text, _ := msg.Text()
		return label + "\n" + m.theme.UserText.Width(m.contentWidth()).Render(text) + "\n"
	default:
		text, _ := msg.Text()
		return m.theme.AssistantLabel.Render("Assistant") + "\n" + m.renderMarkdown(msg.ID, text)
	}
}

// renderMarkdown renders a committed reply with glamour, caching by
// message ID. Falls back to the raw text if rendering fails.
func (m *Model) renderMarkdown(id, text string) string {
	if out, ok := m.rendered[id]; ok {
		return out
	}
	r := m.markdownRenderer()
	if r == nil {
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		m.logger.Debug("markdown render failed", zap.Error(err))
		return text + "\n"
	}
	m.rendered[id] = out
	return out
}

func (m *Model) markdownRenderer() *glamour.TermRenderer {
	w := m.contentWidth()
	if m.renderer != nil && m.renderWidth == w {
		return m.renderer
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.theme.GlamourStyle()),
		glamour.WithWordWrap(w),
	)
	if err != nil {
		m.logger.Warn("markdown renderer unavailable", zap.Error(err))
		return nil
	}
	m.renderer = r
	m.renderWidth = w
	return r
}

func describeImage(img model.Image) string {
	size := util.FormatBytes(len(img.Data))
	if w, h, err := codec.ImageDimensions(img.Data); err == nil {
		return fmt.Sprintf("%s [image %s %dx%d %s]", styles.Indicators.Image, img.MediaType, w, h, size)
	}
	return fmt.Sprintf("%s [image %s %s]", styles.Indicators.Image, img.MediaType, size)
}

// =============================================================================
// CHROME
// =============================================================================

func (m Model) renderHeader() string {
	parts := []string{m.theme.HeaderTitle.Render("rigchat")}
	var label []string
	if m.provider != "" {
		label = append(label, m.provider)
	}
	if m.engine != nil {
		if name := m.engine.Options().Model; name != "" {
			label = append(label, name)
		}
	}
	if len(label) > 0 {
		parts = append(parts, m.theme.HeaderModel.Render(strings.Join(label, " / ")))
	}
	if m.sessionID != "" && m.theme.GetLayoutMode() != styles.LayoutNarrow {
		parts = append(parts, m.theme.StatusMuted.Render(util.TruncateRunes(m.sessionID, 8)))
	}
	return m.theme.Header.Width(m.width).Render(strings.Join(parts, "  "))
}

func (m Model) renderMessageLine() string {
	if m.lastErr != nil {
		return m.theme.ErrorText.Render(styles.Indicators.Error + " " + util.SingleLine(m.lastErr.Error()))
	}
	if m.notice != "" {
		return m.theme.Notice.Render(m.notice)
	}
	return ""
}

func (m Model) renderStatusBar() string {
	var state string
	switch {
	case m.busy:
		label := "streaming"
		if m.engine != nil {
			label = m.engine.State().String()
		}
		elapsed := session.FormatDuration(time.Since(m.turnStart))
		state = m.theme.StatusStreaming.Render(styles.Indicators.Streaming+" "+label) + " " + m.theme.StatusMuted.Render(elapsed)
	case m.lastErr != nil:
		state = m.theme.StatusError.Render(styles.Indicators.Error + " error")
	default:
		state = m.theme.StatusIdle.Render(styles.Indicators.Idle + " ready")
	}

	count := m.theme.StatusMuted.Render(util.Plural(len(m.history), "message"))

	var hints []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		hints = append(hints, h.Key+" "+h.Desc)
	}
	help := strings.Join(hints, " | ")

	left := state + "  " + count
	avail := m.width - lipgloss.Width(left) - 4
	if avail < 10 || m.theme.GetLayoutMode() == styles.LayoutNarrow {
		help = ""
	} else {
		help = util.TruncateWidth(help, avail)
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(help) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + m.theme.StatusMuted.Render(help))
}
