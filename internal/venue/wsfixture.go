package venue

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/chidi150c/sentinel/internal/model"
	"github.com/gorilla/websocket"
)

// wireSnapshot is the JSON shape fixtures are replayed in over the wire;
// it avoids depending on model.BookSnapshot's Go-only time.Time encoding
// for a transport that should look like any other venue feed.
type wireSnapshot struct {
	Symbol string        `json:"symbol"`
	Side   string        `json:"side"`
	Seq    uint64        `json:"seq"`
	TsUnix int64         `json:"ts_unix_ms"`
	Bids   []model.Level `json:"bids"`
	Asks   []model.Level `json:"asks"`
}

var fixtureUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// FixtureServer replays a fixed sequence of BookSnapshots to a single
// websocket client, the way a real venue's market-data task would push
// book updates (§5 "market-data tasks"). It exists purely so the test
// adapter's shape — a long-lived stream a consumer reads snapshots off
// of — matches a real venue adapter's, per SPEC_FULL.md.
type FixtureServer struct {
	Snapshots []model.BookSnapshot
}

func (f *FixtureServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := fixtureUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for _, snap := range f.Snapshots {
		wire := wireSnapshot{
			Symbol: snap.Pair.Symbol,
			Side:   string(snap.Side),
			Seq:    snap.Seq,
			TsUnix: snap.Timestamp.UnixMilli(),
			Bids:   snap.Bids,
			Asks:   snap.Asks,
		}
		if err := conn.WriteJSON(wire); err != nil {
			return
		}
	}
}

// DialFixtureStream connects to a FixtureServer and decodes its
// snapshots, tagging them with pair so the caller can push them into a
// SimVenue (or any BookSnapshot consumer) via the returned channel. The
// channel is closed when the connection ends.
func DialFixtureStream(url string, pair model.Pair) (<-chan model.BookSnapshot, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	out := make(chan model.BookSnapshot, 64)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var wire wireSnapshot
			if err := conn.ReadJSON(&wire); err != nil {
				return
			}
			out <- model.BookSnapshot{
				Pair:      pair,
				Side:      model.BookSide(wire.Side),
				Seq:       wire.Seq,
				Timestamp: time.UnixMilli(wire.TsUnix),
				Bids:      wire.Bids,
				Asks:      wire.Asks,
			}
		}
	}()
	return out, nil
}
