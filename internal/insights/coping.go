package insights

import "strings"

// Strategy 是一条针对当前情绪的应对建议。
type Strategy struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

var positiveStrategies = []Strategy{
	{"Savor the Moment", "Take a few minutes to fully experience this positive feeling. Notice how it feels in your body."},
	{"Express Gratitude", "Think of or write down three things you are grateful for right now, big or small."},
	{"Share the Good News", "Share your positive experience with someone else to amplify the feeling of joy."},
}

var copingStrategies = map[string][]Strategy{
	"sadness": {
		{"Reach Out", "Connect with a friend or family member. Sharing your feelings can lighten the burden."},
		{"Mindful Observation", "Sit with your sadness for a few minutes without judgment. Acknowledge it like a passing cloud."},
		{"Engage Your Senses", "Listen to uplifting music, light a scented candle, or wrap yourself in a soft blanket."},
	},
	"anger": {
		{"Deep Breathing", "Inhale slowly for 4 seconds, hold for 4, and exhale for 6. Repeat until you feel calmer."},
		{"Physical Release", "Go for a brisk walk, do some quick exercise, or squeeze a stress ball to release pent-up energy."},
		{"Write It Out", "On a piece of paper (or here!), write down everything you're angry about, then safely discard it."},
	},
	"fear": {
		{"Grounding Technique", "Name 5 things you can see, 4 things you can touch, 3 things you can hear, 2 you can smell, and 1 you can taste."},
		{"Fact-Check Your Thoughts", "Challenge your fearful thoughts. Ask yourself: What is the evidence for this? What is a more likely outcome?"},
		{"Comforting Self-Talk", "Speak to yourself like you would a dear friend. Say things like, 'This feeling is temporary,' or 'I am safe right now.'"},
	},
	"joy":  positiveStrategies,
	"love": positiveStrategies,
}

var defaultStrategies = []Strategy{
	{"Mindful Check-In", "Take a moment to notice your breath and how your body feels without needing to change anything."},
	{"Quick Stretch", "Stand up and stretch your arms overhead. Roll your shoulders and neck gently to release tension."},
	{"Step Outside", "Even 30 seconds of fresh air can help reset your perspective and change your environment."},
}

// CopingFor 返回某个情绪对应的应对建议，没有专门建议时返回默认集合。
func CopingFor(emotion string) []Strategy {
	src, ok := copingStrategies[strings.ToLower(strings.TrimSpace(emotion))]
	if !ok {
		src = defaultStrategies
	}
	out := make([]Strategy, len(src))
	copy(out, src)
	return out
}
