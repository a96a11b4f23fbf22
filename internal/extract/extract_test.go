package extract

import (
	"reflect"
	"testing"

	"github.com/hurttlocker/leasebot/internal/lead"
)

func TestExtract_EmptyInput(t *testing.T) {
	p := lead.NewProfile("s1")
	p.Name = "Alex"
	for _, text := range []string{"", "   ", "?!...", "$$$ ###", "🙂🙂"} {
		got := Extract(p, text)
		if !reflect.DeepEqual(got, p) {
			t.Fatalf("Extract(%q) changed profile: %+v", text, got)
		}
	}
}

func TestExtract_DoesNotMutateInput(t *testing.T) {
	p := lead.NewProfile("s1")
	_ = Extract(p, "2 bedroom with parking, budget $1800, I have a dog")
	if p.Bedrooms != nil || p.Budget != nil || len(p.Preferences) != 0 || p.PetFriendly != nil {
		t.Fatalf("input profile mutated: %+v", p)
	}
}

func TestExtract_Contact(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantEmail string
		wantPhone string
	}{
		{"email", "reach me at jane.doe+rent@mail.example.org please", "jane.doe+rent@mail.example.org", ""},
		{"dashed phone", "call 555-123-4567", "", "555-123-4567"},
		{"parens phone", "my cell is (555) 123-4567", "", "(555) 123-4567"},
		{"country code", "text +1 555.123.4567 anytime", "", "+1 555.123.4567"},
		{"bare digits", "5551234567", "", "5551234567"},
		{"too long", "order 12345551234567", "", ""},
		{"both", "a@b.io or 555 123 4567", "a@b.io", "555 123 4567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(lead.NewProfile("s1"), tt.text)
			if got.Email != tt.wantEmail {
				t.Errorf("Email = %q, want %q", got.Email, tt.wantEmail)
			}
			if got.Phone != tt.wantPhone {
				t.Errorf("Phone = %q, want %q", got.Phone, tt.wantPhone)
			}
		})
	}
}

func TestExtract_Name(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"My name is Maria Lopez", "Maria Lopez"},
		{"i'm Tom", "Tom"},
		{"Call me Ishmael.", "Ishmael"},
		{"This is Dana Scully from the FBI", "Dana Scully"},
		{"Priya here, looking for a studio", "Priya"},
		{"Jordan Lee speaking", "Jordan Lee"},
		{"Hi, I am Chris", "Chris"},
		{"I'm Sarah\nLooking for a 2br", "Sarah"},
		{"My name is Ann\r\nBudget is 1500", "Ann"},
		{"I am looking for an apartment", ""},
		{"this is a great place", ""},
	}
	for _, tt := range tests {
		got := Extract(lead.NewProfile("s1"), tt.text)
		if got.Name != tt.want {
			t.Errorf("Extract(%q).Name = %q, want %q", tt.text, got.Name, tt.want)
		}
	}
}

func TestExtract_LockedFieldsAreFirstWriteWins(t *testing.T) {
	p := Extract(lead.NewProfile("s1"), "My name is Ann Smith, ann@example.com, 555-111-2222, moving June 1")
	p = Extract(p, "Actually my name is Bob Jones, bob@example.com, 555-999-8888, moving July 4")

	if p.Name != "Ann Smith" {
		t.Errorf("Name = %q, want Ann Smith", p.Name)
	}
	if p.Email != "ann@example.com" {
		t.Errorf("Email = %q, want ann@example.com", p.Email)
	}
	if p.Phone != "555-111-2222" {
		t.Errorf("Phone = %q, want 555-111-2222", p.Phone)
	}
	if p.MoveInDate != "June 1" {
		t.Errorf("MoveInDate = %q, want June 1", p.MoveInDate)
	}
}

func TestExtract_Bedrooms(t *testing.T) {
	tests := []struct {
		text string
		want *int
	}{
		{"Looking for a 2 bedroom apartment with parking", lead.IntPtr(2)},
		{"3 beds please", lead.IntPtr(3)},
		{"a 1br would be fine", lead.IntPtr(1)},
		{"2-bedroom unit", lead.IntPtr(2)},
		{"a studio is enough", lead.IntPtr(0)},
		{"two bedrooms", lead.IntPtr(2)},
		{"three or four rooms", lead.IntPtr(3)},
		{"my phone is broken", nil},
		{"2 bath", nil},
		{"2 bedroom, maybe one bath", lead.IntPtr(2)},
	}
	for _, tt := range tests {
		got := Extract(lead.NewProfile("s1"), tt.text).Bedrooms
		if !eqInt(got, tt.want) {
			t.Errorf("Extract(%q).Bedrooms = %v, want %v", tt.text, deref(got), deref(tt.want))
		}
	}
}

func TestExtract_BedroomsRevisable(t *testing.T) {
	p := Extract(lead.NewProfile("s1"), "2 bedroom")
	p = Extract(p, "actually make it 3 bedrooms")
	if p.Bedrooms == nil || *p.Bedrooms != 3 {
		t.Fatalf("Bedrooms = %v, want 3", deref(p.Bedrooms))
	}
}

func TestExtract_Bathrooms(t *testing.T) {
	tests := []struct {
		text string
		want *float64
	}{
		{"2 bath", lead.FloatPtr(2)},
		{"1.5 bathrooms", lead.FloatPtr(1.5)},
		{"2 bed 1 ba", lead.FloatPtr(1)},
		{"2 balcony", nil},
	}
	for _, tt := range tests {
		got := Extract(lead.NewProfile("s1"), tt.text).Bathrooms
		if !eqFloat(got, tt.want) {
			t.Errorf("Extract(%q).Bathrooms = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestExtract_Budget(t *testing.T) {
	tests := []struct {
		text string
		want *int
	}{
		{"$1500 per month", lead.IntPtr(1500)},
		{"$2,000/mo", lead.IntPtr(2000)},
		{"1800 a month", lead.IntPtr(1800)},
		{"$1,200", lead.IntPtr(1200)},
		{"Budget is $50", nil},
		{"I can afford about 1700", lead.IntPtr(1700)},
		{"2000 bucks monthly", lead.IntPtr(2000)},
		{"something under 1600", lead.IntPtr(1600)},
		{"between 1400 and 1900", lead.IntPtr(1400)},
		{"between 1500 and 2000 a month", lead.IntPtr(1500)},
		{"between 1500 and 2000 per month", lead.IntPtr(1500)},
		{"between 1500 and $2000", lead.IntPtr(1500)},
		{"between 1500 to 2000 dollars a month", lead.IntPtr(1500)},
		{"$50 application fee but my budget is 1750", lead.IntPtr(1750)},
		{"$150,000", nil},
		{"no numbers here", nil},
	}
	for _, tt := range tests {
		got := Extract(lead.NewProfile("s1"), tt.text).Budget
		if !eqInt(got, tt.want) {
			t.Errorf("Extract(%q).Budget = %v, want %v", tt.text, deref(got), deref(tt.want))
		}
	}
}

func TestExtract_MoveInDate(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"moving June 15th, 2025", "June 15th, 2025"},
		{"need it by August", "by August"},
		{"around Sept", "around Sept"},
		{"start of jan 3", "jan 3"},
		{"moving 03/01/2025, early march", "03/01/2025"},
		{"sometime in march", "in march"},
		{"need to move ASAP", "ASAP"},
		{"I need it right away, June 1 at the latest", "ASAP"},
		{"Moving in soon", "ASAP"},
		{"03/01/2025", ""},
		{"looking for a place", ""},
	}
	for _, tt := range tests {
		got := Extract(lead.NewProfile("s1"), tt.text).MoveInDate
		if got != tt.want {
			t.Errorf("Extract(%q).MoveInDate = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExtract_Pets(t *testing.T) {
	tests := []struct {
		text string
		want *bool
	}{
		{"I have a dog", lead.BoolPtr(true)},
		{"we've got cats", lead.BoolPtr(true)},
		{"is it ok for my dog?", lead.BoolPtr(true)},
		{"no pets", lead.BoolPtr(false)},
		{"I don't have any pets", lead.BoolPtr(false)},
		{"I don't have a dog", lead.BoolPtr(false)},
		{"No, I do not have a cat", lead.BoolPtr(false)},
		{"we live without an animal, no cat", lead.BoolPtr(false)},
		{"no dog, I have a cat allergy", lead.BoolPtr(false)},
		{"I have a dog but no pets policy matters", lead.BoolPtr(false)},
		{"nothing about animals", nil},
	}
	for _, tt := range tests {
		got := Extract(lead.NewProfile("s1"), tt.text).PetFriendly
		if !eqBool(got, tt.want) {
			t.Errorf("Extract(%q).PetFriendly = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestExtract_NegationKeepsFalse(t *testing.T) {
	p := Extract(lead.NewProfile("s1"), "no pets")
	p = Extract(p, "without a dog? no dog at all")
	p = Extract(p, "I don't have a dog")
	p = Extract(p, "No, I do not have a cat")
	if p.PetFriendly == nil || *p.PetFriendly {
		t.Fatalf("PetFriendly = %v, want false", p.PetFriendly)
	}
}

func TestExtract_Amenities(t *testing.T) {
	p := Extract(lead.NewProfile("s1"), "Need a garage, in-unit washer and dryer, central air and a balcony")
	want := []string{"parking", "laundry", "balcony", "ac"}
	if !reflect.DeepEqual(p.Preferences, want) {
		t.Fatalf("Preferences = %v, want %v", p.Preferences, want)
	}

	p = Extract(p, "parking again, plus a pool and a gym. Elevator please")
	want = []string{"parking", "laundry", "balcony", "ac", "pool", "gym", "elevator"}
	if !reflect.DeepEqual(p.Preferences, want) {
		t.Fatalf("Preferences = %v, want %v", p.Preferences, want)
	}
}

func TestExtract_AmenityKeywordsNeedWholeWords(t *testing.T) {
	p := Extract(lead.NewProfile("s1"), "a place with space near the beach")
	if len(p.Preferences) != 0 {
		t.Fatalf("Preferences = %v, want none", p.Preferences)
	}
}

func TestExtract_SingleMessagePopulatesEverything(t *testing.T) {
	text := "Hi, I'm Sarah Johnson. 2 bedroom apartment with parking. Budget $1800, I have a cat. sarah.j@example.com"
	p := Extract(lead.NewProfile("s1"), text)

	if p.Name != "Sarah Johnson" {
		t.Errorf("Name = %q, want Sarah Johnson", p.Name)
	}
	if p.Email != "sarah.j@example.com" {
		t.Errorf("Email = %q", p.Email)
	}
	if p.Bedrooms == nil || *p.Bedrooms != 2 {
		t.Errorf("Bedrooms = %v, want 2", deref(p.Bedrooms))
	}
	if p.Budget == nil || *p.Budget != 1800 {
		t.Errorf("Budget = %v, want 1800", deref(p.Budget))
	}
	if !p.IsPetFriendly() {
		t.Errorf("PetFriendly = %v, want true", p.PetFriendly)
	}
	if !p.HasPreference("parking") {
		t.Errorf("Preferences = %v, want parking", p.Preferences)
	}
}

func TestChanges(t *testing.T) {
	before := lead.NewProfile("s1")
	after := Extract(before, "2 bedroom, $1800, ann@example.com")
	got := Changes(before, after)
	want := []Field{FieldEmail, FieldBedrooms, FieldBudget}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Changes() = %v, want %v", got, want)
	}
	if s := JoinFields(got); s != "email,bedrooms,budget" {
		t.Fatalf("JoinFields() = %q", s)
	}
	if len(Changes(after, after)) != 0 {
		t.Fatal("Changes(x, x) should be empty")
	}
}

func TestRulesCoverEveryField(t *testing.T) {
	seen := map[Field]bool{}
	for _, r := range Rules() {
		if seen[r.Field] {
			t.Fatalf("duplicate rule for %s", r.Field)
		}
		seen[r.Field] = true
	}
	if len(seen) != 9 {
		t.Fatalf("expected 9 field rules, got %d", len(seen))
	}
}

func deref[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
