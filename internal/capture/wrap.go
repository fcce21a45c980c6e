package capture

import (
	"fmt"
	"strings"

	"brandwise/internal/types"
)

// WrapDocument embeds a fragment into a minimal renderable HTML document.
// HTML fragments pass through (wrapped only when they lack a root); CSS
// fragments are mounted as a stylesheet over a neutral preview body so the
// critic has pixels to measure.
func WrapDocument(frag types.Fragment) string {
	body := string(frag.Bytes)

	switch frag.CodeType {
	case types.CodeHTML:
		if strings.Contains(strings.ToLower(body), "<html") {
			return body
		}
		return fmt.Sprintf(docTemplate, "", body)

	case types.CodeCSS:
		return fmt.Sprintf(docTemplate,
			"<style>\n"+body+"\n</style>",
			previewMarkup)

	default:
		// JSX and CSS-in-JS fragments are not executed and their styles
		// are not extracted: they render as the unstyled preview markup.
		return fmt.Sprintf(docTemplate, "", previewMarkup)
	}
}

const docTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
%s
</head>
<body>
%s
</body>
</html>`

// previewMarkup gives stylesheets something to style: the class names
// found in typical component fragments plus generic landmarks.
const previewMarkup = `<main>
<h1>Preview heading</h1>
<p>Preview paragraph with enough text to measure line height and contrast.</p>
<button class="btn">Action</button>
<div class="card warn hero x a b c">Card content</div>
</main>`
