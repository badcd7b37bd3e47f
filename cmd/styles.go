package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/lstailors/LST-MissionControl-sub000/internal/branding"
	"github.com/lstailors/LST-MissionControl-sub000/internal/gateway"
)

// 연결 단계별 상태 스타일
var (
	statusConnected = lipgloss.NewStyle().
			Foreground(lipgloss.Color(branding.ColorTeal)).
			Bold(true)

	statusDisconnected = lipgloss.NewStyle().
				Foreground(lipgloss.Color(branding.ColorCoral)).
				Bold(true)

	statusConnecting = lipgloss.NewStyle().
				Foreground(lipgloss.Color(branding.ColorPrimary)).
				Bold(true)
)

// 본문 스타일
var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(branding.ColorLightGray)).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(branding.ColorWhite))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(branding.ColorMutedGray))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(branding.ColorCoral))

	// codeStyle은 페어링 코드를 눈에 띄게 표시합니다.
	codeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(branding.ColorWhite)).
			Background(lipgloss.Color(branding.ColorDeepViolet)).
			Padding(0, 2)
)

// renderPhase는 연결 단계를 색으로 구분해 표시합니다.
func renderPhase(p gateway.Phase) string {
	switch p {
	case gateway.PhaseConnected:
		return statusConnected.Render("● " + p.String())
	case gateway.PhaseConnecting:
		return statusConnecting.Render("◌ " + p.String())
	default:
		return statusDisconnected.Render("○ " + p.String())
	}
}

// renderStatusLine은 상태 변경 알림 한 줄을 만듭니다.
func renderStatusLine(u gateway.StatusUpdate) string {
	line := renderPhase(u.Phase)
	if u.Attempt > 0 {
		line += dimStyle.Render(fmt.Sprintf(" (attempt %d)", u.Attempt))
	}
	if u.Error != "" {
		line += " " + errorStyle.Render(u.Error)
	}
	return line
}

// renderField는 "label  value" 한 줄을 만듭니다.
func renderField(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}
