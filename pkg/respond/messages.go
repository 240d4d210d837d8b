package respond

// topics lists the encouragement topics in a fixed order, which makes random
// selection reproducible under an injected source.
var topics = []string{
	"perseverance",
	"faith",
	"love",
	"hope",
	"peace",
	"motivation",
	"inspiration",
	"encouragement",
	"support",
	"confidence",
	"success",
	"achievement",
	"goal",
}

var messages = map[string]string{
	"perseverance":  "Keep pushing forward, even when it's tough. Every step forward is progress.",
	"faith":         "Believe in yourself and your journey. Faith is the first step, even when you don't see the staircase.",
	"love":          "Spread kindness and compassion wherever you go. Love is the most powerful force in the universe.",
	"hope":          "Never lose hope. The darkest hour of the night comes just before the dawn.",
	"peace":         "Find peace within yourself first, and it will radiate to those around you.",
	"motivation":    "You have the power within you to achieve great things. Keep moving forward!",
	"inspiration":   "Let your dreams inspire you to take action. Every journey begins with a single step.",
	"encouragement": "You're doing better than you think. Keep going, you've got this!",
	"support":       "You're not alone. Reach out for support when you need it - it's a sign of strength.",
	"confidence":    "Believe in your abilities. You're capable of more than you think.",
	"success":       "Success is a journey, not a destination. Enjoy the process and learn from every step.",
	"achievement":   "Celebrate your small wins. They're the building blocks of your bigger achievements.",
	"goal":          "Set clear goals and take consistent action. Progress is made one step at a time.",
}

// Topics returns the known topic keys.
func Topics() []string {
	return append([]string(nil), topics...)
}

// Message returns the encouragement for an exact topic key.
func Message(topic string) (string, bool) {
	m, ok := messages[topic]
	return m, ok
}
