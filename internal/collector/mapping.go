package collector

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/LeventeLantos/outreach-engine/internal/model"
)

// Scrapers disagree on field names; the first non-empty variant wins.
var (
	messageableFields = []string{"canMessage", "can_message", "isMessageable", "messageable", "dmEnabled"}
	usernameFields    = []string{"username", "userName", "ownerUsername", "handle"}
	nameFields        = []string{"fullName", "full_name", "name"}
	urlFields         = []string{"url", "profileUrl", "profile_url", "inputUrl"}
	bioFields         = []string{"biography", "bio", "description"}
	followersFields   = []string{"followersCount", "followers_count", "followers"}
	followingFields   = []string{"followingCount", "following_count", "following", "followsCount"}
)

// MapItems keeps the items that can receive a direct message, converts them
// to recipients and caps the result at limit. Items with no usable handle are
// dropped.
func MapItems(raw []map[string]any, limit int) []model.Recipient {
	out := make([]model.Recipient, 0, min(len(raw), max(limit, 0)))
	for _, item := range raw {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !canMessage(item) {
			continue
		}
		r, ok := mapItem(item)
		if !ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

func canMessage(item map[string]any) bool {
	for _, f := range messageableFields {
		v, ok := item[f]
		if !ok || v == nil {
			continue
		}
		switch b := v.(type) {
		case bool:
			return b
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			return err == nil && parsed
		case float64:
			return b != 0
		}
		return false
	}
	return false
}

func mapItem(item map[string]any) (model.Recipient, bool) {
	username := strings.TrimPrefix(firstString(item, usernameFields), "@")
	url := firstString(item, urlFields)

	id := username
	if id == "" {
		id = url
	}
	if id == "" {
		return model.Recipient{}, false
	}

	return model.Recipient{
		ID:        id,
		Name:      firstString(item, nameFields),
		Username:  username,
		URL:       url,
		Bio:       firstString(item, bioFields),
		Followers: firstInt(item, followersFields),
		Following: firstInt(item, followingFields),
	}, true
}

func firstString(item map[string]any, fields []string) string {
	for _, f := range fields {
		switch v := item[f].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case fmt.Stringer:
			return v.String()
		}
	}
	return ""
}

func firstInt(item map[string]any, fields []string) *int {
	for _, f := range fields {
		var n int
		switch v := item[f].(type) {
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			n = int(v)
		case int:
			n = v
		case int64:
			n = int(v)
		case string:
			parsed, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(v), ",", ""))
			if err != nil {
				continue
			}
			n = parsed
		default:
			continue
		}
		return &n
	}
	return nil
}
