// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// COLORS
// =============================================================================

var (
	Purple    = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	Cyan      = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	Emerald   = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	Rose      = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	Amber     = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

	SurfaceDim = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}
	Overlay    = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}
	OverlayDim = lipgloss.AdaptiveColor{Light: "#D4D4D4", Dark: "#45475A"}
)

// =============================================================================
// STYLES
// =============================================================================

var (
	UserLabelStyle  = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	ModelLabelStyle = lipgloss.NewStyle().Foreground(Purple).Bold(true)
	StatsStyle      = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)
	ErrorStyle      = lipgloss.NewStyle().Foreground(Rose)
	SuccessStyle    = lipgloss.NewStyle().Foreground(Emerald)
	WarningStyle    = lipgloss.NewStyle().Foreground(Amber)
	MutedStyle      = lipgloss.NewStyle().Foreground(TextMuted)

	codeBadgeStyle = lipgloss.NewStyle().
			Foreground(TextMuted).
			Background(OverlayDim).
			Padding(0, 1).
			Bold(true)

	codeBlockStyle = lipgloss.NewStyle().
			Background(SurfaceDim).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(Overlay).
			Padding(0, 1)
)
