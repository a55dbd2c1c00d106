package target

import (
	"fmt"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// RenderMarkdown converts captured page HTML to markdown for artifacts
func RenderMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("markdown conversion failed: %w", err)
	}
	return out, nil
}
