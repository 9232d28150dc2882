package parser

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/jgoriasilva/nfs/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var artifactReplacer = strings.NewReplacer(
	"\n", "",
	"\t", "",
	"\r", "",
	"\u00a0", "",
)

// StripArtifacts removes newlines, tabs, carriage returns and non-breaking spaces.
func StripArtifacts(text string) string {
	return artifactReplacer.Replace(text)
}

// ToNumber converts a comma-decimal string to a finite number. When the text
// does not parse, it logs a diagnostic and keeps the original text.
func ToNumber(text string) models.UnitValue {
	v, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		slog.Warn("could not convert value to number", slog.String("value", text))
		return models.Raw(text)
	}
	return models.Numeric(v)
}

// Round2 rounds the exact binary value to two decimal places, ties to even.
// Non-finite values are returned unchanged.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return rounded
}

// StripLabel removes a leading field label such as "CNPJ:".
func StripLabel(text, label string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, label)
	return strings.TrimSpace(text)
}

// Lower lower-cases product text using Portuguese casing rules.
func Lower(text string) string {
	return cases.Lower(language.BrazilianPortuguese).String(text)
}

func unitValue(text string) models.UnitValue {
	value := ToNumber(text)
	if v, ok := value.Float(); ok {
		return models.Numeric(Round2(v))
	}
	return value
}
