package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/edgecomet/detailwatch/pkg/types"
)

// ProfilePayload is the user record of a profile page
type ProfilePayload struct {
	TikTokID  string       `json:"tiktok_id,omitempty"`
	Followers *json.Number `json:"followers,omitempty"`
	Following *json.Number `json:"following,omitempty"`
	Likes     *json.Number `json:"likes,omitempty"`
	Videos    *json.Number `json:"videos,omitempty"`
}

// VideoPayload is the item record of a video or photo page
type VideoPayload struct {
	VideoID   string       `json:"video_id,omitempty"`
	AuthorID  string       `json:"author_id,omitempty"`
	AuthorUID string       `json:"author_uid,omitempty"`
	Views     *json.Number `json:"views,omitempty"`
	Likes     *json.Number `json:"likes,omitempty"`
	Comments  *json.Number `json:"comments,omitempty"`
	Shares    *json.Number `json:"shares,omitempty"`
}

// Payload is a parsed fragment. Exactly one of Profile and Video is set.
type Payload struct {
	Type    string          `json:"type"`
	Profile *ProfilePayload `json:"profile,omitempty"`
	Video   *VideoPayload   `json:"video,omitempty"`
}

// idString accepts an identifier encoded as a JSON string or number
type idString string

func (s *idString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = idString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*s = idString(n.String())
	return nil
}

type profileRecord struct {
	UserInfo *struct {
		User *struct {
			ID idString `json:"id"`
		} `json:"user"`
		Stats *struct {
			FollowerCount  *json.Number `json:"followerCount"`
			FollowingCount *json.Number `json:"followingCount"`
			HeartCount     *json.Number `json:"heartCount"`
			Heart          *json.Number `json:"heart"`
			VideoCount     *json.Number `json:"videoCount"`
		} `json:"stats"`
	} `json:"userInfo"`
}

type videoDetail struct {
	ItemInfo *struct {
		ItemStruct *struct {
			ID     idString `json:"id"`
			Author *struct {
				ID       idString `json:"id"`
				UniqueID idString `json:"uniqueId"`
			} `json:"author"`
			Stats *struct {
				PlayCount    *json.Number `json:"playCount"`
				DiggCount    *json.Number `json:"diggCount"`
				CommentCount *json.Number `json:"commentCount"`
				ShareCount   *json.Number `json:"shareCount"`
			} `json:"stats"`
		} `json:"itemStruct"`
	} `json:"itemInfo"`
}

// Parse turns a fragment into a structured payload. Profile fragments are
// complete objects; video fragments are a single key-value pair and are
// wrapped in braces first.
func Parse(fragment string, mode types.PageMode) (*Payload, error) {
	if mode == types.PageModeVideoOrPhoto {
		return parseVideo(fragment)
	}
	return parseProfile(fragment)
}

func parseProfile(fragment string) (*Payload, error) {
	var rec profileRecord
	if err := json.Unmarshal([]byte(fragment), &rec); err != nil {
		return nil, fmt.Errorf("invalid profile fragment: %w", err)
	}

	profile := &ProfilePayload{}
	if rec.UserInfo != nil {
		if rec.UserInfo.User != nil {
			profile.TikTokID = string(rec.UserInfo.User.ID)
		}
		if stats := rec.UserInfo.Stats; stats != nil {
			profile.Followers = stats.FollowerCount
			profile.Following = stats.FollowingCount
			profile.Likes = stats.HeartCount
			if profile.Likes == nil {
				profile.Likes = stats.Heart
			}
			profile.Videos = stats.VideoCount
		}
	}

	return &Payload{Type: types.PageModeProfile.String(), Profile: profile}, nil
}

func parseVideo(fragment string) (*Payload, error) {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte("{"+fragment+"}"), &wrapper); err != nil {
		return nil, fmt.Errorf("invalid video fragment: %w", err)
	}

	video := &VideoPayload{}
	raw, ok := wrapper["webapp.video-detail"]
	if !ok {
		return nil, fmt.Errorf("invalid video fragment: missing webapp.video-detail")
	}

	var detail videoDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, fmt.Errorf("invalid video detail: %w", err)
	}

	if detail.ItemInfo != nil && detail.ItemInfo.ItemStruct != nil {
		item := detail.ItemInfo.ItemStruct
		video.VideoID = string(item.ID)
		if item.Author != nil {
			video.AuthorID = string(item.Author.ID)
			video.AuthorUID = string(item.Author.UniqueID)
		}
		if item.Stats != nil {
			video.Views = item.Stats.PlayCount
			video.Likes = item.Stats.DiggCount
			video.Comments = item.Stats.CommentCount
			video.Shares = item.Stats.ShareCount
		}
	}

	return &Payload{Type: types.PageModeVideoOrPhoto.String(), Video: video}, nil
}
