// Package parser reads flash cards out of markdown files.
//
// A card starts with a "Q:" line and runs until the next "Q:" line, a "---"
// separator or the end of the file. "A:" starts the answer, "C:" names the
// category and "T:" lists comma separated tags. Question and answer may
// span several lines; category and tags are single lines.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	categoryPrefix = "C:"
	tagsPrefix     = "T:"
	separator      = "---"
)

// Card is one parsed card before it is stored.
type Card struct {
	Question string
	Answer   string
	Category string
	Tags     []string
	Line     int // line of the "Q:" prefix, 1-based
}

type field int

const (
	none field = iota
	question
	answer
)

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cards, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cards, nil
}

// Parse reads from an io.Reader and extracts all cards. Cards without an
// answer are dropped.
func Parse(r io.Reader) ([]Card, error) {
	p := &cardParser{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for n := 1; scanner.Scan(); n++ {
		p.line(n, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.finish()
	return p.cards, nil
}

type cardParser struct {
	cards   []Card
	current *Card
	reading field
	block   []string
}

func (p *cardParser) line(n int, text string) {
	switch {
	case text == separator:
		p.finish()
	case strings.HasPrefix(text, questionPrefix):
		p.finish()
		p.current = &Card{Line: n}
		p.start(question, rest(text, questionPrefix))
	case p.current == nil:
		// Text outside of a card.
	case strings.HasPrefix(text, answerPrefix):
		p.start(answer, rest(text, answerPrefix))
	case strings.HasPrefix(text, categoryPrefix):
		p.flush()
		p.current.Category = strings.TrimSpace(rest(text, categoryPrefix))
	case strings.HasPrefix(text, tagsPrefix):
		p.flush()
		p.current.Tags = splitTags(rest(text, tagsPrefix))
	case p.reading != none:
		p.block = append(p.block, text)
	}
}

func (p *cardParser) start(f field, first string) {
	p.flush()
	p.reading = f
	p.block = append(p.block, first)
}

// flush stores the lines read so far into the current field.
func (p *cardParser) flush() {
	if p.current != nil && len(p.block) > 0 {
		content := strings.TrimRight(strings.Join(p.block, "\n"), " \t\n")
		switch p.reading {
		case question:
			p.current.Question = content
		case answer:
			p.current.Answer = content
		}
	}
	p.block = nil
	p.reading = none
}

func (p *cardParser) finish() {
	p.flush()
	if p.current != nil && p.current.Question != "" && p.current.Answer != "" {
		p.cards = append(p.cards, *p.current)
	}
	p.current = nil
}

func rest(line, prefix string) string {
	return strings.TrimPrefix(line[len(prefix):], " ")
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
