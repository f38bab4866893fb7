package strategy

import (
	"context"
	"strings"
)

// Plaintext is the last-resort backend: it extracts page text in reading
// order and never attempts table recovery. Documents where both table
// backends come up empty still get their text captured.
type Plaintext struct{}

func (p *Plaintext) Name() string { return NameText }

func (p *Plaintext) Probe(ctx context.Context) error { return nil }

func (p *Plaintext) Attempt(ctx context.Context, path string) Attempt {
	pages, err := readPages(path)
	if err != nil {
		return errAttempt(NameText, err)
	}

	var text strings.Builder
	for _, pc := range pages {
		if t := pageText(pc.runs); t != "" {
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			text.WriteString(t)
		}
	}

	if text.Len() == 0 {
		return Attempt{Strategy: NameText, Outcome: OutcomeEmpty}
	}
	return Attempt{Strategy: NameText, Outcome: OutcomeSuccess, Text: text.String()}
}
