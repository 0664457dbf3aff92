package subtitle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cue is one block of the working subtitle set a task carries through
// the pipeline. Text holds the translated line once translation ran.
type Cue struct {
	Index        int           `json:"index"`
	Start        time.Duration `json:"start"`
	End          time.Duration `json:"end"`
	Text         string        `json:"text"`
	OriginalText string        `json:"originalText,omitempty"`
	Emotion      string        `json:"emotion,omitempty"`
}

// Format renders cues in the SubRip interchange format: sequential blocks
// of index, "start --> end" at millisecond resolution, the text line, and
// a blank separator. Indexes are renumbered from 1 when unset.
func Format(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		idx := c.Index
		if idx == 0 {
			idx = i + 1
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", idx, FormatTimestamp(c.Start), FormatTimestamp(c.End), c.Text)
	}
	return b.String()
}

// FormatTimestamp renders a duration as HH:MM:SS,mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d",
		ms/3_600_000,
		ms/60_000%60,
		ms/1_000%60,
		ms%1_000,
	)
}

// Parse reads SubRip text produced by Format (or by any compliant tool)
// back into cues. Malformed blocks fail the whole parse.
func Parse(input string) ([]Cue, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(input), "\r\n", "\n")
	if normalized == "" {
		return []Cue{}, nil
	}

	var cues []Cue
	for _, block := range strings.Split(normalized, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			return nil, fmt.Errorf("malformed subtitle block: %q", block)
		}

		idx, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid cue index %q: %w", lines[0], err)
		}

		start, end, err := parseTimeRange(lines[1])
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", idx, err)
		}

		cues = append(cues, Cue{
			Index: idx,
			Start: start,
			End:   end,
			Text:  strings.Join(lines[2:], "\n"),
		})
	}

	return cues, nil
}

func parseTimeRange(line string) (time.Duration, time.Duration, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time range %q", line)
	}

	start, err := ParseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimestamp(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}

	return start, end, nil
}

// ParseTimestamp reads an HH:MM:SS,mmm timestamp.
func ParseTimestamp(s string) (time.Duration, error) {
	var h, m, sec, ms int
	if _, err := fmt.Sscanf(s, "%d:%d:%d,%d", &h, &m, &sec, &ms); err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}
