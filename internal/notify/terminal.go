package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/study-planner/internal/model"
	"github.com/nhle/study-planner/internal/theme"
)

// TerminalBanner writes banners to a terminal using the theme styles.
type TerminalBanner struct {
	mu     sync.Mutex
	w      io.Writer
	active map[string]model.Notification
}

var _ BannerSurface = (*TerminalBanner)(nil)

// NewTerminalBanner creates a banner surface writing to w.
func NewTerminalBanner(w io.Writer) *TerminalBanner {
	return &TerminalBanner{w: w, active: make(map[string]model.Notification)}
}

// ShowBanner renders n.
func (b *TerminalBanner) ShowBanner(n model.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.active[n.ID] = n
	fmt.Fprintln(b.w, RenderBanner(n))
}

// DismissBanner forgets n; the terminal keeps what was already printed.
func (b *TerminalBanner) DismissBanner(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, id)
}

// Active returns how many banners are still on screen.
func (b *TerminalBanner) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

// RenderBanner formats a notification as a bordered box.
func RenderBanner(n model.Notification) string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		theme.BannerTitleStyle(n.Kind).Render(n.Title),
		n.Message,
		theme.HelpStyle.Render(n.CreatedAt.Format("15:04")),
	)
	return theme.BannerStyle(n.Kind).Render(body)
}
