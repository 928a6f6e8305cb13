// Package chatparse reads exported chat transcripts so they can be summarised
// into an incident description.
package chatparse

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// DefaultSummaryLines is used when Summary is called with maxLines <= 0.
const DefaultSummaryLines = 12

const maxLineBytes = 1 << 20

var (
	linePattern = regexp.MustCompile(`^(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}),\s*(\d{1,2}:\d{2})(?:\s*([APap][Mm]))?\s*-\s*(.*?):\s*(.*)$`)

	directionMarks = strings.NewReplacer("\u200e", "", "\u200f", "")

	// Day-first wins when a date is valid both ways.
	dateLayouts = []string{"2/1/06", "1/2/06", "2/1/2006", "1/2/2006"}
)

// Message is one parsed chat line. Time is nil when the date or time could
// not be interpreted.
type Message struct {
	Time     *time.Time `json:"datetime"`
	Date     string     `json:"date"`
	TimeText string     `json:"time"`
	Sender   string     `json:"sender"`
	Text     string     `json:"message"`
}

// Parse reads a WhatsApp-style export ("31/12/23, 21:30 - Name: text" or
// "12/31/23, 9:30 PM - Name: text"). Lines that do not start a message are
// skipped.
func Parse(r io.Reader) ([]Message, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	out := []Message{}
	for sc.Scan() {
		line := strings.TrimSpace(directionMarks.Replace(sc.Text()))
		if line == "" {
			continue
		}
		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		dateText, clock, ampm := m[1], m[2], strings.ToUpper(m[3])

		msg := Message{
			Date:     dateText,
			TimeText: clock,
			Sender:   strings.TrimSpace(m[4]),
			Text:     strings.TrimSpace(m[5]),
		}
		if ampm != "" {
			msg.TimeText = clock + " " + m[3]
		}
		msg.Time = parseTimestamp(dateText, clock, ampm)
		out = append(out, msg)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read chat export: %w", err)
	}
	return out, nil
}

func parseTimestamp(dateText, clock, ampm string) *time.Time {
	date, ok := parseDate(strings.ReplaceAll(dateText, "-", "/"))
	if !ok {
		return nil
	}

	var (
		tod time.Time
		err error
	)
	if ampm != "" {
		tod, err = time.Parse("3:04 PM", clock+" "+ampm)
	} else {
		tod, err = time.Parse("15:04", clock)
	}
	if err != nil {
		return &date
	}
	ts := time.Date(date.Year(), date.Month(), date.Day(), tod.Hour(), tod.Minute(), 0, 0, time.UTC)
	return &ts
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// Summary renders up to maxLines "Sender: text" lines, skipping empty and
// media placeholder messages.
func Summary(msgs []Message, maxLines int) string {
	if maxLines <= 0 {
		maxLines = DefaultSummaryLines
	}
	var lines []string
	for _, m := range msgs {
		if len(lines) == maxLines {
			break
		}
		text := strings.TrimSpace(m.Text)
		if text == "" || strings.Contains(strings.ToLower(text), "<media omitted>") {
			continue
		}
		sender := m.Sender
		if sender == "" {
			sender = "Unknown"
		}
		lines = append(lines, sender+": "+text)
	}
	return strings.Join(lines, "\n")
}

// Heuristic cues reported by Signals.
const (
	SignalThreat    = "Threat / intimidation language detected"
	SignalObscene   = "Obscene / sexual language detected"
	SignalBlackmail = "Possible blackmail / sextortion language detected"
	SignalWorkplace = "Possible workplace context detected"
)

var signalCues = []struct {
	signal string
	words  []string
}{
	{SignalThreat, []string{"kill", "hurt", "beat", "ruin", "destroy", "threat"}},
	{SignalObscene, []string{"nude", "nudes", "porn", "sex", "dick", "boobs"}},
	{SignalBlackmail, []string{"blackmail", "leak", "share your video", "send your photo"}},
	{SignalWorkplace, []string{"boss", "manager", "hr", "office"}},
}

// Signals is a quick substring scan over all message text. It is coarser
// than the rule matcher and only meant as a hint while reviewing a chat.
func Signals(msgs []Message) []string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, strings.ToLower(m.Text))
	}
	text := strings.Join(parts, " ")

	out := []string{}
	for _, cue := range signalCues {
		for _, w := range cue.words {
			if strings.Contains(text, w) {
				out = append(out, cue.signal)
				break
			}
		}
	}
	return out
}
