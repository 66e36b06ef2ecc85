package sms

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazardwatch/internal/types"
)

type fakeGateway struct {
	name  string
	err   error
	sends []string
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) Send(_ context.Context, to, body, from string) (string, error) {
	g.sends = append(g.sends, to+"|"+from+"|"+body)
	if g.err != nil {
		return "", g.err
	}
	return g.name + "-msg-1", nil
}

var floodAlert = &types.Alert{
	Type:         types.HazardFlood,
	Severity:     types.SeverityCritical,
	Confidence:   94,
	Region:       "Dodoma",
	ForecastDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
}

func TestRenderAlert_Languages(t *testing.T) {
	en := RenderAlert("en", floodAlert)
	assert.Equal(t, "HazardWatch CRITICAL FLOOD alert, Dodoma (10 Mar): Heavy rain expected. Move to higher ground. Confidence 94%", en)

	sw := RenderAlert("sw", floodAlert)
	assert.Contains(t, sw, "MAFURIKO (HATARI)")
	assert.Contains(t, sw, "Uhakika 94%")

	assert.Equal(t, en, RenderAlert("fr", floodAlert), "unknown language falls back to English")
	assert.Equal(t, sw, RenderAlert("SW", floodAlert))
}

func TestRenderAlert_UnknownHazardUsesFallbackHeadline(t *testing.T) {
	a := *floodAlert
	a.Type = types.HazardLocust
	assert.Contains(t, RenderAlert("en", &a), "LOCUST")
	assert.Contains(t, RenderAlert("en", &a), "Follow local guidance")
}

func TestRenderAlert_CappedAt160(t *testing.T) {
	a := *floodAlert
	a.Region = strings.Repeat("Kilimanjaro ", 20)
	body := RenderAlert("sw", &a)
	assert.Equal(t, MaxLength, utf8.RuneCountInString(body))
	assert.True(t, strings.HasSuffix(body, "..."))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 160))
	assert.Equal(t, "ab...", Truncate("abcdefgh", 5))
	assert.Equal(t, "ab", Truncate("abcdefgh", 2))
	assert.Equal(t, "ñññ...", Truncate("ññññññññ", 6))
}

func TestRenderDigest(t *testing.T) {
	body := RenderDigest("en", 3, []DigestLine{
		{Region: "Dodoma", Hazard: types.HazardFlood, Severity: types.SeverityHigh, Count: 2},
		{Region: "Arusha", Hazard: types.HazardDrought, Severity: types.SeverityMedium, Count: 1},
	})
	assert.Equal(t, "HazardWatch daily: 3 active alerts. Dodoma FLOOD/HIGH x2; Arusha DROUGHT/MEDIUM", body)
	assert.Contains(t, RenderDigest("sw", 0, nil), "hakuna tahadhari")
}

func TestRenderReminder(t *testing.T) {
	body := RenderReminder("en", types.PlanPremium, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "Your HazardWatch premium plan expires on 12 Mar 2026. Renew to keep receiving alerts.", body)
}

func TestChannel_PrimarySuccess(t *testing.T) {
	primary := &fakeGateway{name: "africastalking"}
	secondary := &fakeGateway{name: "twilio"}
	ch := NewChannel(ChannelConfig{Primary: primary, Secondary: secondary, SenderID: "HAZARDWATCH"})

	res, err := ch.Deliver(context.Background(), floodAlert, &types.Subscriber{Phone: "+255700000001", Language: "en"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, types.DeliverySent, res.Status)
	assert.Equal(t, "africastalking", res.Provider)
	assert.Equal(t, "africastalking-msg-1", res.ProviderMessageID)
	assert.Empty(t, secondary.sends)
	require.Len(t, primary.sends, 1)
	assert.True(t, strings.HasPrefix(primary.sends[0], "+255700000001|HAZARDWATCH|"))
}

func TestChannel_FailsOverOnce(t *testing.T) {
	primary := &fakeGateway{name: "africastalking", err: errors.New("503")}
	secondary := &fakeGateway{name: "twilio"}
	ch := NewChannel(ChannelConfig{Primary: primary, Secondary: secondary})

	res, err := ch.SendText(context.Background(), "+255700000001", "hello")
	require.NoError(t, err)
	assert.Equal(t, "twilio", res.Provider)
	assert.Len(t, primary.sends, 1)
	assert.Len(t, secondary.sends, 1)
}

func TestChannel_BothFail(t *testing.T) {
	primary := &fakeGateway{name: "africastalking", err: errors.New("503")}
	secondary := &fakeGateway{name: "twilio", err: types.NewAppError(types.ErrCodeDeliveryRejected, "invalid number", nil)}
	ch := NewChannel(ChannelConfig{Primary: primary, Secondary: secondary})

	res, err := ch.SendText(context.Background(), "+255700000001", "hello")
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, types.DeliveryFailed, res.Status)
	assert.Equal(t, "twilio", res.Provider)
	assert.Contains(t, res.Error, "invalid number")
}

func TestChannel_NoSecondary(t *testing.T) {
	primary := &fakeGateway{name: "africastalking", err: errors.New("timeout")}
	ch := NewChannel(ChannelConfig{Primary: primary})

	_, err := ch.SendText(context.Background(), "+255700000001", "hello")
	require.Error(t, err)
	assert.Len(t, primary.sends, 1)
}

func TestChannel_MissingPhone(t *testing.T) {
	primary := &fakeGateway{name: "africastalking"}
	ch := NewChannel(ChannelConfig{Primary: primary})

	res, err := ch.Deliver(context.Background(), floodAlert, &types.Subscriber{})
	assert.Equal(t, types.ErrCodeDeliveryRejected, types.CodeOf(err))
	assert.False(t, res.Success)
	assert.Empty(t, primary.sends)
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "+255*******01", RedactPhone("+255700000001"))
	assert.Equal(t, "***", RedactPhone("12345"))
}
