package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/rbxdash/admin-relay/internal/connectivity"
	"github.com/rbxdash/admin-relay/internal/remote"
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	Padding(1, 5).
	MarginBottom(1).
	Align(lipgloss.Center).
	Border(lipgloss.RoundedBorder())

var badgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Padding(0, 1)

var labelStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#A49FA5")).
	Width(12)

var (
	colorGood = lipgloss.Color("#04B575")
	colorWarn = lipgloss.Color("#E8A317")
	colorBad  = lipgloss.Color("#E0245E")
	colorIdle = lipgloss.Color("#5C5C5C")
)

func stateBadge(state connectivity.State) string {
	color := colorIdle
	switch state {
	case connectivity.StateOnline:
		color = colorGood
	case connectivity.StateReconnecting:
		color = colorWarn
	case connectivity.StateOffline:
		color = colorBad
	}
	return badgeStyle.Background(color).Render(string(state))
}

func outcomeBadge(kind remote.Kind) string {
	color := colorBad
	switch kind {
	case remote.KindSuccess:
		color = colorGood
	case remote.KindClientError, remote.KindUnauthorized:
		color = colorWarn
	case remote.KindCanceled:
		color = colorIdle
	}
	return badgeStyle.Background(color).Render(kind.String())
}

func field(label string, value any) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), fmt.Sprint(value))
}
