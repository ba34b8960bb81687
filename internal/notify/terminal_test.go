package notify

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/study-planner/internal/model"
)

func TestTerminalBanner(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	b := NewTerminalBanner(&buf)

	b.ShowBanner(model.Notification{
		ID:        "n1",
		Kind:      model.BannerWarning,
		Title:     "Deadline in 3 days!",
		Message:   "Physics is due soon",
		CreatedAt: time.Date(2025, 10, 10, 18, 0, 0, 0, time.UTC),
	})
	assert.Equal(t, 1, b.Active())

	out := buf.String()
	assert.Contains(t, out, "Deadline in 3 days!")
	assert.Contains(t, out, "Physics is due soon")
	assert.Contains(t, out, "18:00")

	b.DismissBanner("n1")
	b.DismissBanner("unknown")
	assert.Zero(t, b.Active())
}
