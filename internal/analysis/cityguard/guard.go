// Package cityguard checks that a travel answer talks about the city that
// was asked for, and repairs answers that drift to another city.
package cityguard

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// minLandmarkHits is how many landmarks of another city make an answer suspect.
const minLandmarkHits = 2

type cityEntry struct {
	key        string
	variations []string
	landmarks  []string
}

// Ordered so detection is deterministic.
var knownCities = []cityEntry{
	{key: "nagpur", variations: []string{"nagpur"}, landmarks: []string{
		"sitabardi", "sitabuldi", "deekshabhoomi", "futala lake", "ambazari lake", "zero mile stone",
		"maharajbagh", "seminary hills", "ramtek", "saoji", "orange barfi", "tarri poha",
	}},
	{key: "pune", variations: []string{"pune", "puna"}, landmarks: []string{
		"shaniwar wada", "aga khan palace", "sinhagad fort", "osho ashram", "fc road", "laxmi road",
		"tulsi baug", "dagdusheth halwai", "parvati hill", "misal pav", "vada pav",
	}},
	{key: "delhi", variations: []string{"new delhi", "delhi"}, landmarks: []string{
		"red fort", "india gate", "qutub minar", "chandni chowk", "connaught place", "jama masjid",
		"lotus temple", "chole bhature", "butter chicken", "parathas",
	}},
	{key: "mumbai", variations: []string{"mumbai", "bombay"}, landmarks: []string{
		"gateway of india", "marine drive", "juhu beach", "colaba causeway", "siddhivinayak temple",
		"vada pav", "pav bhaji", "bhel puri",
	}},
	{key: "jaipur", variations: []string{"jaipur"}, landmarks: []string{
		"hawa mahal", "city palace", "johari bazaar", "amer fort", "jal mahal", "dal baati churma",
		"laal maas", "ghevar",
	}},
	{key: "bangalore", variations: []string{"bangalore", "bengaluru"}, landmarks: []string{
		"lalbagh", "cubbon park", "commercial street", "iskcon temple", "vidhana soudha", "masala dosa",
		"idli vada",
	}},
	{key: "chennai", variations: []string{"chennai", "madras"}},
	{key: "kolkata", variations: []string{"kolkata", "calcutta"}},
	{key: "hyderabad", variations: []string{"hyderabad"}},
	{key: "udaipur", variations: []string{"udaipur"}},
	{key: "goa", variations: []string{"goa"}},
	{key: "varanasi", variations: []string{"varanasi", "banaras", "benares"}},
	{key: "ahmedabad", variations: []string{"ahmedabad"}},
	{key: "surat", variations: []string{"surat"}},
	{key: "lucknow", variations: []string{"lucknow"}},
	{key: "kanpur", variations: []string{"kanpur"}},
}

var variationPatterns = func() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp)
	for _, c := range knownCities {
		for _, v := range c.variations {
			patterns[v] = wordPattern(v)
		}
	}
	return patterns
}()

func wordPattern(word string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
}

// Report summarises how well an answer sticks to the requested city.
type Report struct {
	City         string
	WrongCity    string
	ViaLandmarks bool
	CityMentions int
	MentionsCity bool
}

// Check inspects text for mentions of the requested city and of other cities.
func Check(text, city string) Report {
	report := Report{City: city}
	lower := strings.ToLower(text)
	cityLower := strings.ToLower(strings.TrimSpace(city))

	if cityLower != "" {
		report.CityMentions = strings.Count(lower, cityLower)
		report.MentionsCity = report.CityMentions > 0
	}

	if wrong := detectByLandmarks(lower, cityLower); wrong != "" {
		report.WrongCity = wrong
		report.ViaLandmarks = true
		return report
	}
	report.WrongCity = detectByName(text, cityLower)
	return report
}

// Detect returns the key of a different city the text appears to describe,
// or "" when the text looks consistent with city.
func Detect(text, city string) string {
	return Check(text, city).WrongCity
}

// Landmarks lists known landmarks for a city key.
func Landmarks(key string) []string {
	for _, c := range knownCities {
		if c.key == key {
			return append([]string(nil), c.landmarks...)
		}
	}
	return nil
}

// Correct swaps mentions of wrong for city and makes sure the text greets
// the visitor to the right city.
func Correct(text, wrong, city string) string {
	if wrong == "" {
		return text
	}

	display := titleCase(city)
	corrected := wordPattern(wrong).ReplaceAllString(text, display)
	for _, c := range knownCities {
		if c.key != wrong {
			continue
		}
		for _, v := range c.variations {
			corrected = variationPatterns[v].ReplaceAllString(corrected, display)
		}
	}

	if !strings.Contains(strings.ToLower(corrected), "welcome to "+strings.ToLower(city)) {
		corrected = fmt.Sprintf("Welcome to %s! %s", display, corrected)
	}
	return corrected
}

// CorrectionPrompt builds the follow-up request sent when an answer drifted.
func CorrectionPrompt(wrong, city string) string {
	examples := "various landmarks"
	if marks := Landmarks(wrong); len(marks) > 0 {
		if len(marks) > 3 {
			marks = marks[:3]
		}
		examples = strings.Join(marks, ", ")
	}

	return fmt.Sprintf(`You provided information about %q (including places like %s) but the user asked about %q.

You MUST provide information about %q ONLY. Do not mention %q or any places from %q.

Provide travel information about %q including:
1. Food and famous dishes in %s
2. Places and attractions in %s
3. Traditions and culture in %s
4. Hospitals and healthcare in %s

Start with "Welcome to %s!" and mention %s multiple times.`,
		wrong, examples, city, city, wrong, wrong, city, city, city, city, city, city, city)
}

func detectByLandmarks(lower, cityLower string) string {
	requested := canonicalKey(cityLower)
	for _, c := range knownCities {
		if c.key == requested {
			continue
		}
		hits := 0
		for _, landmark := range c.landmarks {
			if strings.Contains(lower, landmark) {
				hits++
			}
		}
		if hits >= minLandmarkHits {
			return c.key
		}
	}
	return ""
}

func detectByName(text, cityLower string) string {
	requested := canonicalKey(cityLower)
	correctCount := 0
	if cityLower != "" {
		correctCount = len(wordPattern(cityLower).FindAllStringIndex(text, -1))
	}

	for _, c := range knownCities {
		if c.key == requested {
			continue
		}
		wrongCount := 0
		for _, v := range c.variations {
			wrongCount += len(variationPatterns[v].FindAllStringIndex(text, -1))
		}
		if wrongCount > 0 && (wrongCount > correctCount || wrongCount > 2) {
			return c.key
		}
	}
	return ""
}

// canonicalKey maps alternative names such as "bengaluru" to their table key.
func canonicalKey(cityLower string) string {
	for _, c := range knownCities {
		for _, v := range c.variations {
			if v == cityLower {
				return c.key
			}
		}
	}
	return cityLower
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
