// Package extract provides rule-based entity extraction for leasing chats.
//
// The extraction pipeline turns free-form prospective-tenant messages into
// profile updates without an LLM or external API:
// - Contact details (email, phone, name)
// - Unit requirements (bedrooms, bathrooms, budget)
// - Move-in timing ("June 15", "by August", "ASAP")
// - Pet ownership and amenity preferences
//
// Extraction is an ordered battery of independent field rules. Each rule only
// touches its own field, so rules can be reordered without changing results;
// precedence between competing patterns lives inside a rule.
package extract

import (
	"strings"
	"unicode"

	"github.com/hurttlocker/leasebot/internal/lead"
)

// Field names a profile field a rule may update.
type Field string

const (
	FieldEmail       Field = "email"
	FieldPhone       Field = "phone"
	FieldName        Field = "name"
	FieldBedrooms    Field = "bedrooms"
	FieldBathrooms   Field = "bathrooms"
	FieldBudget      Field = "budget"
	FieldMoveInDate  Field = "move_in_date"
	FieldPetFriendly Field = "pet_friendly"
	FieldPreferences Field = "preferences"
)

// input is the message as every rule sees it.
type input struct {
	raw   string
	lower string
}

// Rule updates a single field of a working copy of the profile.
// It reports whether it changed anything.
type Rule struct {
	Field Field
	apply func(p *lead.Profile, in input) bool
}

// Rules returns the extraction battery in evaluation order.
func Rules() []Rule {
	return []Rule{
		{Field: FieldEmail, apply: extractEmail},
		{Field: FieldPhone, apply: extractPhone},
		{Field: FieldName, apply: extractName},
		{Field: FieldBedrooms, apply: extractBedrooms},
		{Field: FieldBathrooms, apply: extractBathrooms},
		{Field: FieldBudget, apply: extractBudget},
		{Field: FieldMoveInDate, apply: extractMoveInDate},
		{Field: FieldPetFriendly, apply: extractPets},
		{Field: FieldPreferences, apply: extractAmenities},
	}
}

var defaultRules = Rules()

// Extract applies every rule to text and returns the updated profile.
// The input profile is never mutated. Blank or symbol-only text returns an
// unchanged copy.
func Extract(p lead.Profile, text string) lead.Profile {
	out := p.Clone()
	if !hasContent(text) {
		return out
	}
	in := input{raw: text, lower: strings.ToLower(text)}
	for _, r := range defaultRules {
		r.apply(&out, in)
	}
	return out
}

// Changes lists the fields that differ between two profiles, in rule order.
func Changes(before, after lead.Profile) []Field {
	var changed []Field
	if before.Email != after.Email {
		changed = append(changed, FieldEmail)
	}
	if before.Phone != after.Phone {
		changed = append(changed, FieldPhone)
	}
	if before.Name != after.Name {
		changed = append(changed, FieldName)
	}
	if !eqInt(before.Bedrooms, after.Bedrooms) {
		changed = append(changed, FieldBedrooms)
	}
	if !eqFloat(before.Bathrooms, after.Bathrooms) {
		changed = append(changed, FieldBathrooms)
	}
	if !eqInt(before.Budget, after.Budget) {
		changed = append(changed, FieldBudget)
	}
	if before.MoveInDate != after.MoveInDate {
		changed = append(changed, FieldMoveInDate)
	}
	if !eqBool(before.PetFriendly, after.PetFriendly) {
		changed = append(changed, FieldPetFriendly)
	}
	if len(before.Preferences) != len(after.Preferences) {
		changed = append(changed, FieldPreferences)
	}
	return changed
}

// JoinFields renders fields as a comma-separated list for logs and metadata.
func JoinFields(fields []Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

func hasContent(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func eqInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
