package bus

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestDecode(t *testing.T) {
	ev, ok := decode(redis.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"type": EventTurn,
			"data": `{"run_id":"r1","type":"turn","round":2,"turn":{"agent":"A","round":2,"speech":"S2-A"}}`,
		},
	})
	if !ok {
		t.Fatal("decode failed")
	}
	if ev.ID != "1-0" || ev.RunID != "r1" || ev.Turn == nil || ev.Turn.Speech != "S2-A" {
		t.Errorf("event = %+v", ev)
	}

	if _, ok := decode(redis.XMessage{Values: map[string]interface{}{"data": "{not json"}}); ok {
		t.Error("decoded malformed payload")
	}
	if _, ok := decode(redis.XMessage{Values: map[string]interface{}{}}); ok {
		t.Error("decoded message without data")
	}
}

func TestStreamKey(t *testing.T) {
	if got := Stream("abc"); got != "tinyworld:run:abc" {
		t.Errorf("stream = %q", got)
	}
}
