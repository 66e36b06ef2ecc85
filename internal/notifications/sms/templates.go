package sms

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"hazardwatch/internal/types"
)

// MaxLength is the single-segment SMS length bodies are capped to.
const MaxLength = 160

const (
	LangEnglish = "en"
	LangSwahili = "sw"
)

type phrasebook struct {
	hazard    map[types.HazardType]string
	severity  map[types.Severity]string
	headline  map[types.HazardType]string
	fallback  string
	alert     string // severity, hazard, region, date, headline, confidence
	digest    string // count, summary
	digestNil string
	reminder  string // plan, date
}

var phrasebooks = map[string]phrasebook{
	LangEnglish: {
		hazard: map[types.HazardType]string{
			types.HazardFlood:    "FLOOD",
			types.HazardDrought:  "DROUGHT",
			types.HazardCyclone:  "CYCLONE",
			types.HazardHeatwave: "HEATWAVE",
			types.HazardLocust:   "LOCUST",
			types.HazardDisease:  "DISEASE",
			types.HazardWildfire: "WILDFIRE",
		},
		severity: map[types.Severity]string{
			types.SeverityLow:      "LOW",
			types.SeverityMedium:   "MEDIUM",
			types.SeverityHigh:     "HIGH",
			types.SeverityCritical: "CRITICAL",
		},
		headline: map[types.HazardType]string{
			types.HazardFlood:    "Heavy rain expected. Move to higher ground",
			types.HazardDrought:  "Long dry spell ahead. Conserve water",
			types.HazardCyclone:  "Strong winds expected. Secure property",
			types.HazardHeatwave: "Extreme heat expected. Stay hydrated",
		},
		fallback:  "Hazard expected. Follow local guidance",
		alert:     "HazardWatch %s %s alert, %s (%s): %s. Confidence %d%%",
		digest:    "HazardWatch daily: %d active alerts. %s",
		digestNil: "HazardWatch daily: no active alerts in the last 24h.",
		reminder:  "Your HazardWatch %s plan expires on %s. Renew to keep receiving alerts.",
	},
	LangSwahili: {
		hazard: map[types.HazardType]string{
			types.HazardFlood:    "MAFURIKO",
			types.HazardDrought:  "UKAME",
			types.HazardCyclone:  "KIMBUNGA",
			types.HazardHeatwave: "JOTO KALI",
			types.HazardLocust:   "NZIGE",
			types.HazardDisease:  "MAGONJWA",
			types.HazardWildfire: "MOTO WA NYIKA",
		},
		severity: map[types.Severity]string{
			types.SeverityLow:      "CHINI",
			types.SeverityMedium:   "WASTANI",
			types.SeverityHigh:     "JUU",
			types.SeverityCritical: "HATARI",
		},
		headline: map[types.HazardType]string{
			types.HazardFlood:    "Mvua kubwa inatarajiwa. Hamia maeneo ya juu",
			types.HazardDrought:  "Ukavu wa muda mrefu. Hifadhi maji",
			types.HazardCyclone:  "Upepo mkali unatarajiwa. Linda mali yako",
			types.HazardHeatwave: "Joto kali linatarajiwa. Kunywa maji mengi",
		},
		fallback:  "Hatari inatarajiwa. Fuata maelekezo ya eneo lako",
		alert:     "HazardWatch tahadhari ya %[2]s (%[1]s), %[3]s (%[4]s): %[5]s. Uhakika %[6]d%%",
		digest:    "HazardWatch leo: tahadhari %d hai. %s",
		digestNil: "HazardWatch leo: hakuna tahadhari hai saa 24 zilizopita.",
		reminder:  "Kifurushi chako cha HazardWatch %s kinaisha %s. Lipia upya kuendelea kupokea tahadhari.",
	},
}

func book(lang string) phrasebook {
	if b, ok := phrasebooks[strings.ToLower(lang)]; ok {
		return b
	}
	return phrasebooks[LangEnglish]
}

// HazardName returns the localized upper-case hazard name.
func HazardName(lang string, h types.HazardType) string {
	if n, ok := book(lang).hazard[h]; ok {
		return n
	}
	return strings.ToUpper(string(h))
}

func severityName(lang string, s types.Severity) string {
	if n, ok := book(lang).severity[s]; ok {
		return n
	}
	return strings.ToUpper(string(s))
}

// RenderAlert builds the alert SMS in lang, falling back to English, capped
// at MaxLength.
func RenderAlert(lang string, a *types.Alert) string {
	b := book(lang)
	headline, ok := b.headline[a.Type]
	if !ok {
		headline = b.fallback
	}
	body := fmt.Sprintf(b.alert,
		severityName(lang, a.Severity),
		HazardName(lang, a.Type),
		a.Region,
		a.ForecastDate.Format("02 Jan"),
		headline,
		a.Confidence,
	)
	return Truncate(body, MaxLength)
}

// DigestLine is one grouped (region, hazard, severity) entry of a digest.
type DigestLine struct {
	Region   string
	Hazard   types.HazardType
	Severity types.Severity
	Count    int
}

// RenderDigest builds the digest SMS from pre-grouped lines.
func RenderDigest(lang string, total int, lines []DigestLine) string {
	b := book(lang)
	if total == 0 {
		return Truncate(b.digestNil, MaxLength)
	}
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		entry := fmt.Sprintf("%s %s/%s", l.Region, HazardName(lang, l.Hazard), severityName(lang, l.Severity))
		if l.Count > 1 {
			entry += fmt.Sprintf(" x%d", l.Count)
		}
		parts = append(parts, entry)
	}
	return Truncate(fmt.Sprintf(b.digest, total, strings.Join(parts, "; ")), MaxLength)
}

// RenderReminder builds the subscription expiry reminder.
func RenderReminder(lang string, plan types.PlanTier, expiresAt time.Time) string {
	return Truncate(fmt.Sprintf(book(lang).reminder, plan, expiresAt.Format("02 Jan 2006")), MaxLength)
}

// Truncate caps s at max runes, ending in "..." when cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}
