package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/leapstack-labs/easyrelease/internal/session"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	toggleOnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	nameStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	versionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	busyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func stateStyle(s session.State) lipgloss.Style {
	switch s {
	case session.StateReleased:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	case session.StateIgnored:
		return mutedStyle
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	}
}
