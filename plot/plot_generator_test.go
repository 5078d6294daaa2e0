package plot

import (
	"bytes"
	"context"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profileChart() Chart {
	return Chart{
		Kind:     Line,
		Title:    "C2S",
		Subtitle: "StartDate=2025-01-01 EndDate=2025-01-31",
		XName:    "Days",
		Series: []Series{
			{Name: "control", X: []float64{0, 1, 2}, Y: []float64{0.1, 0.2, 0.25}},
			{Name: "treatment", X: []float64{0, 1, 2}, Y: []float64{0.15, 0.18, 0.3}},
		},
	}
}

func upliftChart() Chart {
	return Chart{
		Kind:     Scatter,
		Title:    "Uplift vs control",
		ZeroLine: true,
		Series: []Series{
			{Name: "treatment_uplift_vs_control", X: []float64{0, 1, 2}, Y: []float64{0.5, math.NaN(), -0.1}},
		},
	}
}

func barChart() Chart {
	return Chart{
		Kind:       Bar,
		Title:      "Segmented Users - Breakdown by Segment",
		Categories: []string{"control", "treatment"},
		Series:     []Series{{Name: "users", Y: []float64{120, 131}}},
	}
}

func decodes(t *testing.T, data []byte) {
	t.Helper()
	_, err := png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestDrawChart(t *testing.T) {
	timeChart := Chart{
		Kind:    Line,
		Title:   "Segmented Users - Breakdown by Client",
		XIsTime: true,
		Series: []Series{
			{Name: "ios", X: []float64{1735689600, 1735693200}, Y: []float64{3, 7}},
			{Name: "web", X: []float64{1735689600, 1735693200}, Y: []float64{5, 5}},
		},
	}
	flat := Chart{Kind: Line, Title: "flat", Series: []Series{{Name: "a", X: []float64{0, 1}, Y: []float64{2, 2}}}}

	for _, c := range []Chart{profileChart(), upliftChart(), barChart(), timeChart, flat} {
		t.Run(c.Title, func(t *testing.T) {
			data, err := DrawChart(c)
			require.NoError(t, err)
			decodes(t, data)
		})
	}
}

func TestDrawChartRejectsInvalid(t *testing.T) {
	_, err := DrawChart(Chart{Title: "empty"})
	assert.Error(t, err)

	_, err = DrawChart(Chart{Kind: Bar, Title: "bar", Categories: []string{"a"}, Series: []Series{{Y: []float64{1, 2}}}})
	assert.Error(t, err)

	_, err = DrawChart(Chart{Title: "nan", Series: []Series{{X: []float64{0, 1}, Y: []float64{math.NaN(), math.NaN()}}}})
	assert.ErrorContains(t, err, "no finite values")
}

func TestCalculateGridStep(t *testing.T) {
	tests := []struct {
		max  float64
		want float64
	}{
		{0, 0},
		{1, 0.2},
		{1.5, 0.5},
		{4, 1},
		{8, 2},
		{131, 50},
		{2500, 1000},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, calculateGridStep(tt.max), 1e-9, "max=%v", tt.max)
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "uplift_vs_control", Slug("Uplift vs. Control!"))
	assert.Equal(t, "ubersicht_cafe", Slug("Übersicht Café"))
	assert.Equal(t, "chart", Slug("!!!"))
}

func TestPNGSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	sink, err := NewPNG(dir, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, sink.Render(context.Background(), profileChart()))
	require.NoError(t, sink.Render(context.Background(), profileChart()))

	files := sink.Files()
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(dir, "c2s.png"), files[0])
	assert.Equal(t, filepath.Join(dir, "c2s_2.png"), files[1])
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		decodes(t, data)
	}
}

func TestHTMLSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	sink := NewHTML(path)

	require.NoError(t, sink.Close())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "empty page must not be written")

	for _, c := range []Chart{profileChart(), upliftChart(), barChart()} {
		require.NoError(t, sink.Render(context.Background(), c))
	}
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "Uplift vs control")
	assert.Contains(t, html, "treatment_uplift_vs_control")
}

func TestAlign(t *testing.T) {
	got := align([]float64{0, 1, 2}, Series{X: []float64{2, 0}, Y: []float64{4, math.NaN()}})
	assert.Equal(t, []interface{}{missing, missing, 4.0}, got)
}

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestTelegramSink(t *testing.T) {
	fake := &fakeSender{}
	sink := &Telegram{api: fake, chatID: 42, log: zerolog.Nop()}

	require.NoError(t, sink.Render(context.Background(), profileChart()))
	require.Len(t, fake.sent, 1)

	switch msg := fake.sent[0].(type) {
	case tgbotapi.PhotoConfig:
		assert.Equal(t, int64(42), msg.ChatID)
		assert.True(t, strings.HasPrefix(msg.Caption, "C2S\n"))
	case tgbotapi.DocumentConfig:
		assert.Equal(t, int64(42), msg.ChatID)
		assert.True(t, strings.HasPrefix(msg.Caption, "C2S\n"))
	default:
		t.Fatalf("unexpected message %T", msg)
	}

	fake.err = assert.AnError
	assert.ErrorIs(t, sink.Render(context.Background(), profileChart()), assert.AnError)
}

type failingPlotter struct{ calls int }

func (f *failingPlotter) Render(context.Context, Chart) error {
	f.calls++
	return assert.AnError
}

type countingPlotter struct{ charts []string }

func (c *countingPlotter) Render(_ context.Context, chart Chart) error {
	c.charts = append(c.charts, chart.Title)
	return nil
}

func TestMultiRendersEverySink(t *testing.T) {
	failing := &failingPlotter{}
	counting := &countingPlotter{}
	m := Multi{failing, counting}

	err := m.Render(context.Background(), profileChart())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, []string{"C2S"}, counting.charts)
	assert.NoError(t, m.Close())
}

func TestRenderHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink, err := NewPNG(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	assert.ErrorIs(t, sink.Render(ctx, profileChart()), context.Canceled)
	assert.ErrorIs(t, NewHTML("unused.html").Render(ctx, profileChart()), context.Canceled)
}
