package obligation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
obligations:
  - kind: shift
    label: shift report
    windows:
      - {name: morning, start: "07:00", end: "13:00"}
      - {name: evening, start: "14:00", end: "23:00"}
    review:
      timeout: 2h
      on_timeout: auto_reject
    penalty:
      points: "-3"
      category: "{kind}_missed_{window}"
    reminder_lead: 1h
  - kind: envelope
    windows:
      - {name: morning, start: "07:00", end: "09:00"}
    penalty:
      points: "-5.5"
      decline_points: "-1"
    notify_admin: false
`

func TestParseCatalogYAML(t *testing.T) {
	c, err := ParseCatalogYAML([]byte(sampleCatalog))
	require.NoError(t, err)
	assert.Equal(t, []string{"envelope", "shift"}, c.Kinds())

	shift, ok := c.Get("shift")
	require.True(t, ok)
	require.True(t, shift.HasReview())
	assert.Equal(t, 2*time.Hour, shift.Review.Timeout)
	assert.Equal(t, PolicyAutoReject, shift.Review.OnTimeout)
	assert.Equal(t, time.Hour, shift.ReminderLead)
	assert.True(t, shift.NotifyAdmin)
	assert.Equal(t, "shift report", shift.DisplayName())
	assert.Equal(t, "shift_missed_evening", shift.PenaltyCategory("evening"))
	assert.True(t, decimal.NewFromInt(-3).Equal(shift.Penalty.Points))

	envelope, ok := c.Get("envelope")
	require.True(t, ok)
	assert.False(t, envelope.HasReview())
	assert.False(t, envelope.NotifyAdmin)
	assert.Equal(t, "envelope", envelope.DisplayName())
	assert.Equal(t, "envelope_missed_penalty", envelope.PenaltyCategory("morning"))
	assert.True(t, decimal.RequireFromString("-5.5").Equal(envelope.Penalty.Points))
	assert.True(t, decimal.NewFromInt(-1).Equal(envelope.Penalty.DeclinePoints))
}

func TestParseCatalogYAML_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "   "},
		{"no obligations", "obligations: []"},
		{"unknown field", "obligations:\n  - kind: a\n    colour: red\n"},
		{"missing on_timeout", `
obligations:
  - kind: shift
    windows: [{name: m, start: "07:00", end: "13:00"}]
    review: {timeout: 2h}
`},
		{"positive points", `
obligations:
  - kind: shift
    windows: [{name: m, start: "07:00", end: "13:00"}]
    penalty: {points: "3"}
`},
		{"duplicate window", `
obligations:
  - kind: shift
    windows: [{name: m, start: "07:00", end: "13:00"}, {name: m, start: "14:00", end: "15:00"}]
`},
		{"duplicate kind", `
obligations:
  - kind: shift
    windows: [{name: m, start: "07:00", end: "13:00"}]
  - kind: shift
    windows: [{name: m, start: "07:00", end: "13:00"}]
`},
		{"bad duration", `
obligations:
  - kind: shift
    windows: [{name: m, start: "07:00", end: "13:00"}]
    reminder_lead: soon
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalogYAML([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obligations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0644))

	c, err := LoadCatalogFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = LoadCatalogFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	c, err = LoadCatalogReader(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, 6, c.Len())

	handover, ok := c.Get("shift_handover")
	require.True(t, ok)
	assert.Equal(t, 4*time.Hour, handover.Review.Timeout)

	rko, ok := c.Get("rko")
	require.True(t, ok)
	assert.False(t, rko.HasReview())
}

func TestLoadCatalogFile_ShippedConfig(t *testing.T) {
	c, err := LoadCatalogFile(filepath.Join("..", "..", "..", "configs", "obligations.yaml"))
	require.NoError(t, err)

	for _, want := range DefaultDefinitions() {
		got, ok := c.Get(want.Kind)
		require.True(t, ok, want.Kind)
		assert.Equal(t, len(want.Windows), len(got.Windows), want.Kind)
		assert.True(t, want.Penalty.Points.Equal(got.Penalty.Points), want.Kind)
		assert.Equal(t, want.HasReview(), got.HasReview(), want.Kind)
		assert.Equal(t, want.Label, got.Label, want.Kind)
	}

	attendance, _ := c.Get("attendance")
	assert.True(t, attendance.Penalty.DeclinePoints.Equal(decimal.NewFromInt(-1)))
}
