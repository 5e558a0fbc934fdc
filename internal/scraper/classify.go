package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/sociallink/api/schemas"
)

// phrase tables are checked in order; the first kind with a matching phrase
// wins. Mentions and likes come before comments so that "liked your comment"
// and "mentioned you in a comment" classify correctly.
var phraseTable = []struct {
	kind    schemas.InteractionKind
	phrases []string
}{
	{schemas.KindMention, []string{
		"mentioned you", "tagged you",
		"te mencionó", "te menciono", "te etiquetó", "te etiqueto",
	}},
	{schemas.KindLike, []string{
		"liked your", "liked this", "liked a",
		"le gustó", "le gusto", "les gustó", "les gusto", "indicó que le gusta", "indico que le gusta",
	}},
	{schemas.KindFollow, []string{
		"started following", "followed you", "is following you", "follows you",
		"comenzó a seguirte", "comenzo a seguirte", "empezó a seguirte", "empezo a seguirte", "te sigue",
	}},
	{schemas.KindShare, []string{
		"shared your", "shared a", "reposted",
		"compartió", "compartio", "reposteó", "reposteo",
	}},
	{schemas.KindDirectMessage, []string{
		"sent you a message", "sent a message", "messaged you",
		"te envió un mensaje", "te envio un mensaje", "te mandó un mensaje", "te mando un mensaje",
	}},
	{schemas.KindComment, []string{
		"commented", "replied", "comment:",
		"comentó", "comento", "respondió", "respondio",
	}},
}

// Classify infers the interaction kind from the rendered item text.
func Classify(text string) (schemas.InteractionKind, bool) {
	lower := strings.ToLower(text)
	for _, row := range phraseTable {
		for _, p := range row.phrases {
			if strings.Contains(lower, p) {
				return row.kind, true
			}
		}
	}
	return "", false
}

var (
	relativePattern = regexp.MustCompile(`(?i)(\d+)\s*(seconds?|secs?|segundos?|segs?|s|minutes?|mins?|minutos?|m|hours?|hrs?|horas?|h|days?|d[ií]as?|d|weeks?|semanas?|w|sem)\b`)
	datePattern     = regexp.MustCompile(`^(?:(\d{4})-)?(\d{1,2})-(\d{1,2})$`)
)

var unitDurations = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseObservedAt converts a relative ("3h", "hace 2 días", "yesterday") or
// short date ("6-1", "2024-12-31") label to an absolute time. ok is false when
// the label is empty or unrecognized.
func ParseObservedAt(label string, now time.Time) (t time.Time, ok bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return time.Time{}, false
	}
	switch label {
	case "just now", "now", "ahora", "justo ahora":
		return now, true
	case "yesterday", "ayer":
		return now.Add(-24 * time.Hour), true
	}

	if m := datePattern.FindStringSubmatch(label); m != nil {
		return parseShortDate(m, now)
	}

	m := relativePattern.FindStringSubmatch(label)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	unit, ok := unitOf(strings.ToLower(m[2]))
	if !ok {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(n) * unit), true
}

func unitOf(word string) (time.Duration, bool) {
	switch {
	case strings.HasPrefix(word, "min"):
		return time.Minute, true
	case strings.HasPrefix(word, "sem"):
		return 7 * 24 * time.Hour, true
	case strings.HasPrefix(word, "se"):
		return time.Second, true
	case strings.HasPrefix(word, "ho"), strings.HasPrefix(word, "hr"):
		return time.Hour, true
	case strings.HasPrefix(word, "d"):
		return 24 * time.Hour, true
	case strings.HasPrefix(word, "we"):
		return 7 * 24 * time.Hour, true
	}
	d, ok := unitDurations[word[0]]
	return d, ok && len(word) == 1
}

// parseShortDate reads month-day labels as the most recent such day not in
// the future.
func parseShortDate(m []string, now time.Time) (time.Time, bool) {
	month, err := strconv.Atoi(m[2])
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[3])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	year := now.Year()
	explicit := m[1] != ""
	if explicit {
		if year, err = strconv.Atoi(m[1]); err != nil {
			return time.Time{}, false
		}
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
	if !explicit && t.After(now) {
		t = t.AddDate(-1, 0, 0)
	}
	return t, true
}
