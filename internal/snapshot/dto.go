package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"matchchat/internal/types"
)

// flexInt accepts a JSON number or a numeric string.
type flexInt struct {
	V   int64
	Set bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.TrimSpace(strings.Trim(s, `"`))
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || !wholeInt64(fl) {
			return fmt.Errorf("not an integer: %s", b)
		}
		n = int64(fl)
	}
	f.V, f.Set = n, true
	return nil
}

// wholeInt64 reports whether fl converts to int64 without losing anything.
// Forms like 1e3 or 42.0 pass; 1.7 and 1e30 do not.
func wholeInt64(fl float64) bool {
	return fl == math.Trunc(fl) && fl >= math.MinInt64 && fl < math.MaxInt64
}

// flexTime accepts epoch milliseconds (number or string) or an ISO-8601 timestamp.
type flexTime struct {
	Millis int64
	Set    bool
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	var n flexInt
	if err := n.UnmarshalJSON(b); err == nil {
		f.Millis, f.Set = n.V, n.Set
		return nil
	}
	// Sub-millisecond precision is dropped; ordering only needs millis.
	if fl, err := strconv.ParseFloat(strings.Trim(strings.TrimSpace(string(b)), `"`), 64); err == nil {
		if t := math.Trunc(fl); wholeInt64(t) {
			f.Millis, f.Set = int64(t), true
			return nil
		}
		return fmt.Errorf("timestamp out of range: %s", b)
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("not a timestamp: %s", b)
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.Millis, f.Set = t.UnixMilli(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// flexBool accepts a JSON bool, 0/1, or "true"/"false".
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(b)), `"`))
	switch s {
	case "true", "1", "yes":
		*f = true
	case "false", "0", "no", "", "null":
		*f = false
	default:
		return fmt.Errorf("not a boolean: %s", b)
	}
	return nil
}

type participantDTO struct {
	ID           flexInt `json:"id"`
	Name         string  `json:"name"`
	ProfileImage string  `json:"profile_image"`
}

type channelDTO struct {
	ID           flexInt          `json:"id"`
	Type         string           `json:"type"`
	Name         string           `json:"name"`
	Image        string           `json:"image"`
	Participants []participantDTO `json:"participants"`
	LastMessage  string           `json:"last_message"`
}

func (d channelDTO) toChannel() (types.Channel, error) {
	if !d.ID.Set {
		return types.Channel{}, fmt.Errorf("channel without id")
	}
	kind, err := types.ParseChannelKind(d.Type)
	if err != nil {
		return types.Channel{}, err
	}
	if kind == types.KindAssistant {
		return types.Channel{}, fmt.Errorf("channel %d claims the assistant kind", d.ID.V)
	}
	ch := types.Channel{
		ID:              d.ID.V,
		Kind:            kind,
		Name:            strings.TrimSpace(d.Name),
		Image:           d.Image,
		LastPreviewText: d.LastMessage,
	}
	seen := make(map[int64]bool, len(d.Participants))
	for _, p := range d.Participants {
		if !p.ID.Set || seen[p.ID.V] {
			continue
		}
		seen[p.ID.V] = true
		ch.Participants = append(ch.Participants, types.Participant{
			ID:           p.ID.V,
			Name:         p.Name,
			ProfileImage: p.ProfileImage,
		})
	}
	return ch, nil
}

type messageDTO struct {
	ID        flexInt  `json:"id"`
	ChatID    flexInt  `json:"chat_id"`
	SenderID  flexInt  `json:"sender_id"`
	Content   *string  `json:"content"`
	Timestamp flexTime `json:"timestamp"`
	Avatar    string   `json:"avatar"`
}

func (d messageDTO) toMessage(channelID int64) (types.Message, error) {
	switch {
	case !d.ID.Set:
		return types.Message{}, fmt.Errorf("message without id")
	case !d.SenderID.Set:
		return types.Message{}, fmt.Errorf("message %d without sender", d.ID.V)
	case !d.Timestamp.Set:
		return types.Message{}, fmt.Errorf("message %d without timestamp", d.ID.V)
	case d.Content == nil:
		return types.Message{}, fmt.Errorf("message %d without content", d.ID.V)
	case d.SenderID.V < 0:
		return types.Message{}, fmt.Errorf("message %d uses reserved sender %d", d.ID.V, d.SenderID.V)
	}
	if d.ChatID.Set && channelID != 0 && d.ChatID.V != channelID {
		return types.Message{}, fmt.Errorf("message %d belongs to channel %d, not %d", d.ID.V, d.ChatID.V, channelID)
	}
	if channelID == 0 {
		channelID = d.ChatID.V
	}
	return types.Message{
		ID:              d.ID.V,
		ChannelID:       channelID,
		SenderID:        d.SenderID.V,
		Text:            *d.Content,
		TimestampMillis: d.Timestamp.Millis,
		AvatarRef:       d.Avatar,
	}, nil
}

type presenceDTO struct {
	UserID       flexInt  `json:"user_id"`
	Typing       flexBool `json:"typing"`
	OnlineStatus string   `json:"online_status"`
}

func (d presenceDTO) toPresence(userID int64) types.Presence {
	return types.Presence{
		UserID: userID,
		Typing: bool(d.Typing),
		Online: types.ParseOnlineStatus(d.OnlineStatus),
	}
}

// decodeList decodes a JSON array element by element so one malformed entry
// does not discard the whole snapshot. It returns the decoded items and the
// number of entries that were dropped.
func decodeList[D any, T any](body []byte, convert func(D) (T, error), onDrop func(error)) ([]T, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		var wrapped struct {
			Results []json.RawMessage `json:"results"`
		}
		if werr := json.Unmarshal(body, &wrapped); werr != nil || wrapped.Results == nil {
			return nil, 0, fmt.Errorf("expected a JSON array: %w", err)
		}
		raw = wrapped.Results
	}

	out := make([]T, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		var d D
		if err := json.Unmarshal(r, &d); err != nil {
			dropped++
			onDrop(err)
			continue
		}
		v, err := convert(d)
		if err != nil {
			dropped++
			onDrop(err)
			continue
		}
		out = append(out, v)
	}
	return out, dropped, nil
}
