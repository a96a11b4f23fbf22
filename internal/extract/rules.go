package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hurttlocker/leasebot/internal/lead"
)

// Budgets outside this open interval are treated as noise ("$50 deposit").
const (
	minBudget = 100
	maxBudget = 100000
)

const nameWords = `([A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)?)`

const monthName = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	emailRE = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	// Leading group stands in for a lookbehind so digits inside longer
	// numbers are not taken as a phone.
	phoneRE = regexp.MustCompile(`(?:^|[^\w+])((?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4})\b`)

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?i:my name is|i'm|i’m|i am|this is|call me)\s+` + nameWords),
		regexp.MustCompile(`^\s*` + nameWords + `,?\s+(?i:here|speaking)\b`),
		regexp.MustCompile(`^\s*(?i:hi|hello|hey)\s*,?\s*(?i:i'm|i’m|i am)\s+` + nameWords),
	}

	bedroomDigitRE = regexp.MustCompile(`(?i)\b(\d+)[\s-]*(?:bedrooms?|beds?|br|b/r)\b`)
	bathroomRE     = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)[\s-]*(?:bathrooms?|baths?|ba)\b`)

	budgetPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s?(\d[\d,]*)`),
		regexp.MustCompile(`(?i)\b(?:budget|afford|spend|pay)\s*(?:is|of|around|about|up to)?\s*\$?\s?(\d[\d,]*)`),
		regexp.MustCompile(`(?i)\b(\d[\d,]*)\s*(?:dollars?|bucks?)?\s*(?:per month|a month|monthly|/\s?mo(?:nth)?\b)`),
		regexp.MustCompile(`(?i)\b(?:under|below|less than)\s*\$?\s?(\d[\d,]*)`),
		budgetRangeRE,
	}
	budgetRangeRE = regexp.MustCompile(`(?i)\bbetween\s*\$?\s?(\d[\d,]*)\s*(?:and|to|-)\s*\$?\s?(\d[\d,]*)`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b` + monthName + `\.?\s+\d{1,2}(?:st|nd|rd|th)?\b(?:,?\s*\d{4}\b)?`),
		regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b(?:in|by|around)\s+` + monthName + `\b`),
	}
	urgencyRE = regexp.MustCompile(`(?i)\b(?:asap|immediately|right away|now|urgent|soon)\b`)

	petPositiveRE = regexp.MustCompile(`(?i)\b(?:have|has|with|got)\s+(?:a\s+|an\s+|two\s+|\d+\s+)?(?:dogs?|cats?|pets?|puppy|kitten)\b`)
	petBareRE     = regexp.MustCompile(`(?i)\b(?:dog|cat|pet)s?\b`)
	petNegativeRE = regexp.MustCompile(`(?i)\b(?:no|don't have|don’t have|dont have|do not have|without|not)\s+(?:any\s+|a\s+|an\s+)?(?:dogs?|cats?|pets?)\b`)
)

// writtenBedrooms is consulted only when no "<N> bed" phrase is present.
// Order matters: the first hit wins.
var writtenBedrooms = []struct {
	re    *regexp.Regexp
	count int
}{
	{regexp.MustCompile(`(?i)\bone\b`), 1},
	{regexp.MustCompile(`(?i)\btwo\b`), 2},
	{regexp.MustCompile(`(?i)\bthree\b`), 3},
	{regexp.MustCompile(`(?i)\bfour\b`), 4},
	{regexp.MustCompile(`(?i)\bfive\b`), 5},
	{regexp.MustCompile(`(?i)\bstudio\b`), 0},
	{regexp.MustCompile(`(?i)\b1br\b`), 1},
	{regexp.MustCompile(`(?i)\b2br\b`), 2},
	{regexp.MustCompile(`(?i)\b3br\b`), 3},
	{regexp.MustCompile(`(?i)\b4br\b`), 4},
}

// amenityTags maps a preference tag to the phrases that imply it.
var amenityTags = []struct {
	tag string
	re  *regexp.Regexp
}{
	{"parking", amenityRE(`parking`, `garage`, `carport`)},
	{"pool", amenityRE(`pool`, `swimming`)},
	{"gym", amenityRE(`gym`, `fitness`, `workout`)},
	{"laundry", amenityRE(`washer`, `dryer`, `laundry`, `w/d`)},
	{"dishwasher", amenityRE(`dishwasher`)},
	{"balcony", amenityRE(`balcony`, `patio`, `deck`)},
	{"ac", amenityRE(`ac`, `a/c`, `air conditioning`, `central air`)},
	{"heating", amenityRE(`heating`, `heat`, `furnace`)},
	{"hardwood", amenityRE(`hardwood`, `wood floors?`)},
	{"carpet", amenityRE(`carpet(?:ed|s)?`)},
	{"storage", amenityRE(`storage`, `closets?`)},
	{"pets", amenityRE(`pet[\s-]friendly`, `pets allowed`)},
	{"utilities", amenityRE(`utilities included`)},
	{"furnished", amenityRE(`furnished`)},
	{"doorman", amenityRE(`doorman`, `concierge`)},
	{"elevator", amenityRE(`elevator`)},
	{"wheelchair", amenityRE(`accessible`, `wheelchair`)},
}

func amenityRE(keywords ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(keywords, "|") + `)\b`)
}

// monthAbbrevs gates date parsing: no month-like substring, no date.
var monthAbbrevs = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

func extractEmail(p *lead.Profile, in input) bool {
	if p.Email != "" {
		return false
	}
	if m := emailRE.FindString(in.raw); m != "" {
		p.Email = m
		return true
	}
	return false
}

func extractPhone(p *lead.Profile, in input) bool {
	if p.Phone != "" {
		return false
	}
	if m := phoneRE.FindStringSubmatch(in.raw); m != nil {
		p.Phone = strings.TrimSpace(m[1])
		return true
	}
	return false
}

func extractName(p *lead.Profile, in input) bool {
	if p.Name != "" {
		return false
	}
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(in.raw); m != nil {
			p.Name = m[1]
			return true
		}
	}
	return false
}

func extractBedrooms(p *lead.Profile, in input) bool {
	if m := bedroomDigitRE.FindStringSubmatch(in.raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			p.Bedrooms = lead.IntPtr(n)
			return true
		}
	}
	for _, w := range writtenBedrooms {
		if w.re.MatchString(in.raw) {
			p.Bedrooms = lead.IntPtr(w.count)
			return true
		}
	}
	return false
}

func extractBathrooms(p *lead.Profile, in input) bool {
	m := bathroomRE.FindStringSubmatch(in.raw)
	if m == nil {
		return false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return false
	}
	p.Bathrooms = lead.FloatPtr(n)
	return true
}

func extractBudget(p *lead.Profile, in input) bool {
	// The upper bound of a "between N and M" range is never the budget.
	upper := map[int]bool{}
	for _, r := range budgetRangeRE.FindAllStringSubmatchIndex(in.raw, -1) {
		upper[r[4]] = true
	}
	for _, re := range budgetPatterns {
		for _, m := range re.FindAllStringSubmatchIndex(in.raw, -1) {
			if upper[m[2]] {
				continue
			}
			amount, ok := parseAmount(in.raw[m[2]:m[3]])
			if !ok {
				continue
			}
			p.Budget = lead.IntPtr(amount)
			return true
		}
	}
	return false
}

// parseAmount strips thousands separators and applies the plausibility window.
func parseAmount(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return 0, false
	}
	if n <= minBudget || n >= maxBudget {
		return 0, false
	}
	return n, true
}

func extractMoveInDate(p *lead.Profile, in input) bool {
	if p.MoveInDate != "" {
		return false
	}
	if urgencyRE.MatchString(in.raw) {
		p.MoveInDate = "ASAP"
		return true
	}
	if !mentionsMonth(in.lower) {
		return false
	}
	for _, re := range datePatterns {
		if m := re.FindString(in.raw); m != "" {
			p.MoveInDate = strings.TrimSpace(m)
			return true
		}
	}
	return false
}

func mentionsMonth(lower string) bool {
	for _, m := range monthAbbrevs {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func extractPets(p *lead.Profile, in input) bool {
	var v bool
	switch {
	case petNegativeRE.MatchString(in.raw):
		v = false
	case petPositiveRE.MatchString(in.raw):
		v = true
	case petBareRE.MatchString(in.raw) && !strings.Contains(in.lower, "no pet"):
		v = true
	default:
		return false
	}
	if p.PetFriendly != nil && *p.PetFriendly == v {
		return false
	}
	p.PetFriendly = lead.BoolPtr(v)
	return true
}

func extractAmenities(p *lead.Profile, in input) bool {
	changed := false
	for _, a := range amenityTags {
		if p.HasPreference(a.tag) || !a.re.MatchString(in.raw) {
			continue
		}
		p.Preferences = append(p.Preferences, a.tag)
		changed = true
	}
	return changed
}
