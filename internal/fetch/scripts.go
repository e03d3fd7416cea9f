package fetch

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
)

// StateScripts returns the text of every <script> whose id is one of names,
// keyed by id. JSON bodies are compacted so they scan like a serialized global;
// anything else is returned trimmed. The first script with a given id wins.
func StateScripts(body []byte, names []string) map[string]string {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	found := make(map[string]string)
	z := html.NewTokenizer(bytes.NewReader(body))
	current := ""

	for {
		switch z.Next() {
		case html.ErrorToken:
			return found

		case html.StartTagToken:
			current = ""
			name, hasAttr := z.TagName()
			if string(name) != "script" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "id" && wanted[string(val)] {
					if _, seen := found[string(val)]; !seen {
						current = string(val)
					}
				}
			}

		case html.TextToken:
			if current != "" {
				found[current] = compact(z.Text())
				current = ""
			}

		case html.EndTagToken:
			current = ""
		}
	}
}

func compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}
