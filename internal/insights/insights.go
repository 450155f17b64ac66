// Package insights 由一位用户的全部日记计算仪表盘统计。
//
// Compute 是纯函数，每次读取都会基于完整历史重新计算，
// 计算量随日记数量线性增长。
package insights

import (
	"math"
	"sort"
	"strings"
	"time"

	"mindscribe-go/internal/model"
)

const (
	// MoodWindow 是参与平均情绪计算的最近已分析日记数量。
	MoodWindow = 30
	// MinKeywordEntries 是计算主题所需的最少带关键词日记数。
	MinKeywordEntries = 3
	// TopThemeLimit 是返回的主题数量上限。
	TopThemeLimit = 5
	// TrendDays 是情绪趋势覆盖的天数（含今天）。
	TrendDays = 7
)

// EmotionLabels 是分析服务输出的固定情绪标签集合。
var EmotionLabels = []string{"joy", "sadness", "anger", "fear", "love", "surprise", "disgust", "neutral"}

var moodScores = map[string]int{
	"joy":      5,
	"love":     5,
	"surprise": 4,
	"neutral":  3,
	"fear":     2,
	"sadness":  1,
	"anger":    1,
	"disgust":  1,
}

var moodLabels = map[int]string{
	5: "Positive",
	4: "Good",
	3: "Neutral",
	2: "Negative",
	1: "Very Negative",
}

// MoodScore 将情绪标签映射到 1-5 的序数，未知标签视为 3。
func MoodScore(emotion string) int {
	if s, ok := moodScores[strings.ToLower(emotion)]; ok {
		return s
	}
	return 3
}

// MoodLabel 将 1-5 的分数映射为文字标签。
func MoodLabel(score int) string {
	if l, ok := moodLabels[score]; ok {
		return l
	}
	return "N/A"
}

// MoodSummary 是平均情绪。
type MoodSummary struct {
	Label      string  `json:"label"`
	Score      int     `json:"score"`
	Mean       float64 `json:"mean"`
	SampleSize int     `json:"sampleSize"`
}

// ThemeCount 是一个关键词及其出现次数。
type ThemeCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// EmotionTheme 是某个情绪下出现最多的关键词。
type EmotionTheme struct {
	Emotion string `json:"emotion"`
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// TrendPoint 是某一天的平均情绪分数，当天没有已分析日记时为 0。
type TrendPoint struct {
	Date    string  `json:"date"`
	Score   float64 `json:"score"`
	Entries int     `json:"entries"`
}

// Dashboard 是仪表盘的全部统计。
type Dashboard struct {
	TotalEntries     int            `json:"totalEntries"`
	Streak           int            `json:"streak"`
	WordCount        int            `json:"wordCount"`
	AverageMood      MoodSummary    `json:"averageMood"`
	TopThemes        []ThemeCount   `json:"topThemes"`
	EmotionThemes    []EmotionTheme `json:"emotionThemes"`
	EntriesThisWeek  int            `json:"entriesThisWeek"`
	MoodTrend        []TrendPoint   `json:"moodTrend"`
	LatestEmotion    string         `json:"latestEmotion,omitempty"`
	CopingStrategies []Strategy     `json:"copingStrategies"`
}

// Compute 计算仪表盘。entries 需按创建时间从新到旧排列，日历日按 now 的时区划分。
func Compute(entries []model.JournalEntry, now time.Time) Dashboard {
	d := Dashboard{
		TotalEntries:  TotalEntries(entries),
		Streak:        Streak(entries, now),
		WordCount:     WordCount(entries),
		AverageMood:   AverageMood(entries),
		TopThemes:     TopThemes(entries),
		EmotionThemes: EmotionThemes(entries),
		MoodTrend:     MoodTrend(entries, now),
	}
	d.EntriesThisWeek = EntriesThisWeek(entries, now)
	d.LatestEmotion = LatestEmotion(entries)
	d.CopingStrategies = CopingFor(d.LatestEmotion)
	return d
}

// TotalEntries 统计带有服务端时间戳的日记数。
func TotalEntries(entries []model.JournalEntry) int {
	n := 0
	for i := range entries {
		if !entries[i].CreatedAt.IsZero() {
			n++
		}
	}
	return n
}

// dayNumber 把 loc 中的日历日映射为一个整数序号，相邻日期相差 1，不受夏令时影响。
func dayNumber(t time.Time, loc *time.Location) int64 {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC).Unix() / 86400
}

// Streak 计算以今天或昨天结尾的连续写作天数。
func Streak(entries []model.JournalEntry, now time.Time) int {
	loc := now.Location()
	seen := make(map[int64]struct{})
	days := make([]int64, 0, len(entries))
	for i := range entries {
		if entries[i].CreatedAt.IsZero() {
			continue
		}
		n := dayNumber(entries[i].CreatedAt, loc)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		days = append(days, n)
	}
	if len(days) == 0 {
		return 0
	}
	sort.Slice(days, func(i, j int) bool { return days[i] > days[j] })

	today := dayNumber(now, loc)
	if today-days[0] > 1 {
		return 0
	}
	streak := 1
	for i := 1; i < len(days); i++ {
		if days[i-1]-days[i] != 1 {
			break
		}
		streak++
	}
	return streak
}

// WordCount 统计所有日记内容中以空白分隔的词数。
func WordCount(entries []model.JournalEntry) int {
	n := 0
	for i := range entries {
		n += len(strings.Fields(entries[i].Content))
	}
	return n
}

// AverageMood 计算最近 MoodWindow 篇带情绪的已分析日记的平均情绪。
func AverageMood(entries []model.JournalEntry) MoodSummary {
	sum, count := 0, 0
	for i := range entries {
		if count == MoodWindow {
			break
		}
		emotion := entries[i].Emotion()
		if emotion == "" {
			continue
		}
		sum += MoodScore(emotion)
		count++
	}
	if count == 0 {
		return MoodSummary{Label: "N/A"}
	}
	mean := float64(sum) / float64(count)
	score := int(math.Round(mean))
	return MoodSummary{
		Label:      MoodLabel(score),
		Score:      score,
		Mean:       math.Round(mean*100) / 100,
		SampleSize: count,
	}
}

// rankKeywords 按出现次数降序排列，次数相同时保持首次出现的顺序。
func rankKeywords(keywords []string) []ThemeCount {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, k := range keywords {
		if _, ok := counts[k]; !ok {
			order = append(order, k)
		}
		counts[k]++
	}
	ranked := make([]ThemeCount, 0, len(order))
	for _, k := range order {
		ranked = append(ranked, ThemeCount{Keyword: k, Count: counts[k]})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	return ranked
}

// TopThemes 返回出现最多的关键词，带关键词的已分析日记少于 MinKeywordEntries 篇时返回空。
func TopThemes(entries []model.JournalEntry) []ThemeCount {
	var flat []string
	withKeywords := 0
	for i := range entries {
		kw := entries[i].Keywords()
		if len(kw) == 0 {
			continue
		}
		withKeywords++
		flat = append(flat, kw...)
	}
	if withKeywords < MinKeywordEntries {
		return []ThemeCount{}
	}
	ranked := rankKeywords(flat)
	if len(ranked) > TopThemeLimit {
		ranked = ranked[:TopThemeLimit]
	}
	return ranked
}

// EmotionThemes 对每个情绪标签，在至少 MinKeywordEntries 篇带关键词的日记中找出最常见的关键词。
func EmotionThemes(entries []model.JournalEntry) []EmotionTheme {
	byEmotion := make(map[string][]string)
	entryCount := make(map[string]int)
	for i := range entries {
		kw := entries[i].Keywords()
		if len(kw) == 0 {
			continue
		}
		emotion := strings.ToLower(entries[i].Emotion())
		entryCount[emotion]++
		byEmotion[emotion] = append(byEmotion[emotion], kw...)
	}

	themes := make([]EmotionTheme, 0)
	for _, label := range EmotionLabels {
		if entryCount[label] < MinKeywordEntries {
			continue
		}
		ranked := rankKeywords(byEmotion[label])
		if len(ranked) == 0 {
			continue
		}
		themes = append(themes, EmotionTheme{Emotion: label, Keyword: ranked[0].Keyword, Count: ranked[0].Count})
	}
	return themes
}

// EntriesThisWeek 统计最近 7 个日历日（含今天）内的日记数。
func EntriesThisWeek(entries []model.JournalEntry, now time.Time) int {
	loc := now.Location()
	today := dayNumber(now, loc)
	n := 0
	for i := range entries {
		if entries[i].CreatedAt.IsZero() {
			continue
		}
		diff := today - dayNumber(entries[i].CreatedAt, loc)
		if diff >= 0 && diff < TrendDays {
			n++
		}
	}
	return n
}

// MoodTrend 返回最近 TrendDays 天每天的平均情绪分数，按日期从旧到新排列。
func MoodTrend(entries []model.JournalEntry, now time.Time) []TrendPoint {
	loc := now.Location()
	today := dayNumber(now, loc)
	sums := make([]int, TrendDays)
	counts := make([]int, TrendDays)
	for i := range entries {
		emotion := entries[i].Emotion()
		if emotion == "" || entries[i].CreatedAt.IsZero() {
			continue
		}
		diff := today - dayNumber(entries[i].CreatedAt, loc)
		if diff < 0 || diff >= TrendDays {
			continue
		}
		idx := TrendDays - 1 - int(diff)
		sums[idx] += MoodScore(emotion)
		counts[idx]++
	}

	y, m, d := now.In(loc).Date()
	points := make([]TrendPoint, TrendDays)
	for i := 0; i < TrendDays; i++ {
		day := time.Date(y, m, d-(TrendDays-1-i), 0, 0, 0, 0, loc)
		p := TrendPoint{Date: day.Format("2006-01-02"), Entries: counts[i]}
		if counts[i] > 0 {
			p.Score = math.Round(float64(sums[i])/float64(counts[i])*100) / 100
		}
		points[i] = p
	}
	return points
}

// LatestEmotion 返回最新一篇已分析日记的情绪。
func LatestEmotion(entries []model.JournalEntry) string {
	for i := range entries {
		if e := entries[i].Emotion(); e != "" {
			return strings.ToLower(e)
		}
	}
	return ""
}
