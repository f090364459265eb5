// Package render presents a finished story run as console text, Markdown or HTML.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"bedtime_story_generator/generator"
)

// Text writes the console presentation: story, judge record for debugging
// and the reflection card.
func Text(w io.Writer, res *generator.Result) error {
	var b strings.Builder
	b.WriteString("Your Bedtime Story\n")
	b.WriteString(res.Story)
	b.WriteString("\n\n\n")

	b.WriteString("Judge Feedback (for debugging)\n")
	judge, err := json.MarshalIndent(res.Judge, "", "  ")
	if err != nil {
		return err
	}
	b.Write(judge)
	b.WriteString("\n\n\n")

	b.WriteString("Reflection Card\n")
	writeCard(&b, res.Card)

	_, err = io.WriteString(w, b.String())
	return err
}

func writeCard(b *strings.Builder, card generator.ReflectionCard) {
	for i, q := range card.Questions {
		fmt.Fprintf(b, "%d. %s\n", i+1, q)
	}
	b.WriteString("\nAffirmation:\n")
	b.WriteString(card.Affirmation)
	b.WriteString("\n")
}

// Markdown renders the story and reflection card as a Markdown document.
func Markdown(res *generator.Result) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(Title(res))
	b.WriteString("\n\n")
	b.WriteString(res.Story)
	b.WriteString("\n\n## Reflection Card\n\n")
	for i, q := range res.Card.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	b.WriteString("\n> ")
	b.WriteString(res.Card.Affirmation)
	b.WriteString("\n")
	return b.String()
}

// Title derives a heading from the request.
func Title(res *generator.Result) string {
	t := strings.Join(strings.Fields(string(res.Request)), " ")
	if t == "" {
		return "A Bedtime Story"
	}
	r := []rune(t)
	if len(r) > 60 {
		t = string(r[:60]) + "…"
	}
	return "A Bedtime Story: " + t
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.Typographer),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// HTML converts the Markdown rendering of res into a standalone page body.
// Headings and lists are flattened into styled paragraphs so e-readers and
// mail clients keep the layout.
func HTML(res *generator.Result) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(res)), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return normalize(buf.String()), nil
}

// Page wraps HTML output in a minimal document.
func Page(res *generator.Result) (string, error) {
	body, err := HTML(res)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	fmt.Fprintf(&b, "<title>%s</title>", html.EscapeString(Title(res)))
	b.WriteString(`<style>body{max-width:40em;margin:2em auto;font-family:Georgia,serif;line-height:1.6;}</style>`)
	b.WriteString("</head><body>\n")
	b.WriteString(body)
	b.WriteString("</body></html>\n")
	return b.String(), nil
}

var (
	olRe = regexp.MustCompile(`(?s)<ol[^>]*>(.*?)</ol>`)
	ulRe = regexp.MustCompile(`(?s)<ul[^>]*>(.*?)</ul>`)
	liRe = regexp.MustCompile(`(?s)<li[^>]*>(.*?)</li>`)
	hRe  = regexp.MustCompile(`(?s)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
)

var headingSizes = map[string]string{
	"1": "24px",
	"2": "20px",
	"3": "18px",
}

func flattenLists(s string) string {
	s = olRe.ReplaceAllStringFunc(s, func(block string) string {
		items := liRe.FindAllStringSubmatch(block, -1)
		if len(items) == 0 {
			return block
		}
		var b strings.Builder
		for i, item := range items {
			fmt.Fprintf(&b, "<p>%d. %s</p>", i+1, strings.TrimSpace(item[1]))
		}
		return b.String()
	})
	return ulRe.ReplaceAllStringFunc(s, func(block string) string {
		items := liRe.FindAllStringSubmatch(block, -1)
		if len(items) == 0 {
			return block
		}
		var b strings.Builder
		for _, item := range items {
			fmt.Fprintf(&b, "<p>• %s</p>", strings.TrimSpace(item[1]))
		}
		return b.String()
	})
}

func convertHeadings(s string) string {
	return hRe.ReplaceAllStringFunc(s, func(block string) string {
		parts := hRe.FindStringSubmatch(block)
		if len(parts) != 3 {
			return block
		}
		size := headingSizes[parts[1]]
		if size == "" {
			size = "16px"
		}
		return fmt.Sprintf(`<p style="font-size:%s;font-weight:700;margin:1em 0 0.6em;">%s</p>`, size, strings.TrimSpace(parts[2]))
	})
}

func normalize(s string) string {
	return flattenLists(convertHeadings(s))
}
