package feed

import (
	"bytes"
	"time"

	jsoniter "github.com/json-iterator/go"

	"ramzinex-alert-bot/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var heartbeat = []byte("{}")

type connectRequest struct {
	Name string `json:"name"`
}

type subscribeRequest struct {
	Channel string `json:"channel"`
}

type command struct {
	ID          int64             `json:"id"`
	Connect     *connectRequest   `json:"connect,omitempty"`
	Subscribe   *subscribeRequest `json:"subscribe,omitempty"`
	Unsubscribe *subscribeRequest `json:"unsubscribe,omitempty"`
}

type replyError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type trade struct {
	Price  types.LooseDecimal `json:"price"`
	Volume types.LooseDecimal `json:"volume"`
	Type   string             `json:"type"`
}

type publication struct {
	Data struct {
		Trades []trade `json:"trades"`
	} `json:"data"`
}

type push struct {
	Channel string       `json:"channel"`
	Pub     *publication `json:"pub"`
}

// frame is any inbound frame. Replies carry the id of the command they
// answer; pushes carry no id.
type frame struct {
	ID        int64               `json:"id"`
	Connect   jsoniter.RawMessage `json:"connect"`
	Subscribe jsoniter.RawMessage `json:"subscribe"`
	Result    jsoniter.RawMessage `json:"result"`
	Error     *replyError         `json:"error"`
	Push      *push               `json:"push"`

	heartbeat bool
}

type frameKind string

const (
	kindHeartbeat frameKind = "heartbeat"
	kindReply     frameKind = "reply"
	kindPush      frameKind = "push"
	kindUnknown   frameKind = "unknown"
	kindMalformed frameKind = "malformed"
)

func (f *frame) kind() frameKind {
	switch {
	case f.heartbeat:
		return kindHeartbeat
	case f.ID > 0:
		return kindReply
	case f.Push != nil:
		return kindPush
	default:
		return kindUnknown
	}
}

// decodeFrames splits a message into its newline separated frames. Frames
// that cannot be decoded are returned in bad and do not affect the others.
func decodeFrames(msg []byte) (frames []*frame, bad [][]byte) {
	for _, line := range bytes.Split(msg, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if bytes.Equal(line, heartbeat) {
			frames = append(frames, &frame{heartbeat: true})
			continue
		}
		f := &frame{}
		if err := json.Unmarshal(line, f); err != nil {
			bad = append(bad, line)
			continue
		}
		frames = append(frames, f)
	}
	return frames, bad
}

// pricePoint extracts the most recent trade of a push. The last element of
// the trades array is the newest one; a missing or zero price means no
// observation.
func (p *push) pricePoint(inst types.Instrument, now time.Time) (types.PricePoint, bool) {
	if p.Pub == nil || len(p.Pub.Data.Trades) == 0 {
		return types.PricePoint{}, false
	}
	last := p.Pub.Data.Trades[len(p.Pub.Data.Trades)-1]
	price, ok := last.Price.Positive()
	if !ok {
		return types.PricePoint{}, false
	}
	return types.PricePoint{
		Instrument: inst,
		Price:      price,
		Volume:     last.Volume.NullDecimal,
		Side:       last.Type,
		ObservedAt: now,
		Source:     types.SourcePush,
	}, true
}

func encode(c command) ([]byte, error) {
	return json.Marshal(c)
}
