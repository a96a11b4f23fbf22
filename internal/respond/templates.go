package respond

import (
	"fmt"
	"math"
	"strings"

	"github.com/hurttlocker/leasebot/internal/lead"
)

// WelcomeMessage opens every session.
const WelcomeMessage = `👋 Hi! I'm your AI Leasing Agent. I'm here to help you find your perfect home!

I can help you with:
🏠 Browse available properties
📅 Schedule property tours
📝 Start your rental application
💰 Get rent estimates and pricing info
❓ Answer questions about our properties

To get started, could you tell me a bit about what you're looking for? For example:
- When are you looking to move in?
- How many bedrooms do you need?
- What's your budget range?`

const askNameReply = `Great! I have your contact info. What's your name so I can personalize your search?`

const askCriteriaReply = `I'd love to show you what's available! To find the best match, could you tell me:
- How many bedrooms do you need?
- What's your monthly budget range?`

const searchFailedReply = `Let me help you find available properties. Could you tell me your preferred number of bedrooms and budget range?`

const noUnitsReply = `I don't have any %d-bedroom units available right now within your $%d/month budget. However, I can:
1. Notify you when something becomes available
2. Show you similar options slightly above budget
3. Suggest nearby properties that might work

What would you prefer?`

const tourContactReply = `I'd be happy to schedule a tour! First, I'll need your contact information:
- Email address
- Phone number

This way I can send you tour confirmation and updates.`

const tourScheduleReply = `Perfect! I can schedule a property tour for you. What days and times work best? We offer tours:
- Monday-Friday: 9am-6pm
- Saturday: 10am-4pm
- Sunday: 12pm-4pm

Just let me know your preferred date and time!`

const applyReply = `Great! Here's our application process:

📋 **Requirements:**
- Valid government-issued ID
- Proof of income (pay stubs, tax returns)
- Employment verification
- Rental history
- Credit & background check ($50 fee)

💰 **Income Requirements:**
- Monthly income should be 3x the rent
- We accept guarantors if needed

⏱️ **Timeline:**
- Application review: 24-48 hours
- Background check: 3-5 business days
- Move-in: Usually within 2 weeks of approval

Would you like to start your application, or do you have questions about any requirements?`

const pricingRangeReply = `Our %d-bedroom units typically range from $%d to $%d per month, depending on:
- Floor level
- View
- Specific amenities
- Lease term length

💡 Tip: Longer lease terms (12+ months) often come with discounts!

Would you like to see specific available units with exact pricing?`

const pricingAskReply = `I can provide pricing information! How many bedrooms are you looking for?`

const amenitiesReply = `Our properties feature great amenities! Here's what we offer:

🏢 **Building Amenities:**
- Fitness center
- Pool & spa
- Clubhouse
- Package receiving
- Secure parking
- Pet-friendly areas

🏠 **Unit Features:**
- Modern appliances
- In-unit washer/dryer
- Central A/C & heating
- High-speed internet ready
- Walk-in closets
- Private balcony/patio

Are you looking for any specific features? I can help narrow down properties based on your preferences!`

const petPolicyReply = `We're pet-friendly! 🐾

**Pet Policy:**
- Dogs & cats welcome (breed restrictions apply)
- Maximum 2 pets per unit
- Pet deposit: $300 per pet
- Pet rent: $25/month per pet
- Weight limit: 50 lbs for dogs

**Required:**
- Vaccination records
- Pet photo
- Previous landlord pet reference (if applicable)

Do you have pets? Tell me about them!`

const missingReply = `To help find the perfect place for you, I still need to know your %s. Could you share that information?`

const nextStepsTemplate = `Thanks for sharing! Based on what you've told me, I can help you:
1. 🏠 Browse %d-bedroom properties in your budget
2. 📅 Schedule property tours
3. 📝 Start your rental application

What would you like to do next?`

const fallbackReply = `I'm here to help with your apartment search! I can assist with:
- Finding available properties
- Scheduling tours
- Application process
- Pricing information
- Amenities and features

What would you like to know more about?`

// formatCandidates renders ranked units, at most maxListed of them.
func formatCandidates(ranked []lead.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Great news! I found %d properties that match your criteria:\n\n", len(ranked))

	for i, c := range ranked {
		if i == maxListed {
			break
		}
		amenities := c.Amenities
		if len(amenities) > 3 {
			amenities = amenities[:3]
		}
		fmt.Fprintf(&b, "🏠 **Property %d**\n", i+1)
		fmt.Fprintf(&b, "📍 %s\n", c.Address)
		fmt.Fprintf(&b, "🛏️ %d bed | 🚿 %s bath\n", c.Bedrooms, formatBaths(c.Bathrooms))
		fmt.Fprintf(&b, "💰 $%d/month\n", c.Rent)
		if len(amenities) > 0 {
			b.WriteString(strings.Join(amenities, ", "))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Match Score: %d%%\n\n", int(math.Round(c.MatchScore*100)))
	}

	if len(ranked) > maxListed {
		fmt.Fprintf(&b, "...and %d more!\n\n", len(ranked)-maxListed)
	}

	b.WriteString("Would you like to:\n1. See more details about any of these properties\n2. Schedule a tour\n3. See additional options")
	return b.String()
}

func formatBaths(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int(v))
	}
	return fmt.Sprintf("%.1f", v)
}
