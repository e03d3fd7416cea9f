// Package present renders accepted payloads as the one-line status readout.
package present

import (
	"encoding/json"
	"strings"

	"github.com/edgecomet/detailwatch/internal/extract"
)

const placeholder = "-"

// Line formats p as "key: value" pairs joined by " | ". Missing values print as "-".
func Line(p *extract.Payload) string {
	if p == nil {
		return ""
	}

	var fields [][2]string
	switch {
	case p.Video != nil:
		v := p.Video
		fields = [][2]string{
			{"type", "video"},
			{"video_id", text(v.VideoID)},
			{"author_id", text(v.AuthorID)},
			{"author_uid", text(v.AuthorUID)},
			{"views", number(v.Views)},
			{"likes", number(v.Likes)},
			{"comments", number(v.Comments)},
			{"shares", number(v.Shares)},
		}
	case p.Profile != nil:
		pr := p.Profile
		fields = [][2]string{
			{"type", "profile"},
			{"tiktok_id", text(pr.TikTokID)},
			{"followers", number(pr.Followers)},
			{"following", number(pr.Following)},
			{"likes", number(pr.Likes)},
			{"videos", number(pr.Videos)},
		}
	default:
		return "type: " + text(p.Type)
	}

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f[0] + ": " + f[1]
	}
	return strings.Join(parts, " | ")
}

func text(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}

func number(n *json.Number) string {
	if n == nil {
		return placeholder
	}
	return n.String()
}
