package network

import (
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/VanDung-dev/root2avro/bridge"
)

// FuzzDecodeRequest tests request header parsing with random inputs.
// Run with: go test -fuzz=FuzzDecodeRequest -fuzztime=30s ./root2avro-engine/network/
func FuzzDecodeRequest(f *testing.F) {
	valid := Request{
		ID:        "abc123",
		Token:     "token",
		Options:   &bridge.Options{Mode: "avro", Codec: "deflate", Start: 1, End: 10},
		Timestamp: time.Now(),
	}
	validJSON, _ := json.Marshal(valid)
	f.Add(validJSON)

	f.Add([]byte(`{"id":"x"}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"id":"x","options":null,"timestamp":"bad"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		req, err := DecodeRequest(data)
		if err != nil {
			return
		}
		if req.ID == "" {
			t.Fatal("Accepted request without id")
		}
		if _, err := json.Marshal(req); err != nil {
			t.Fatalf("Accepted request does not marshal: %v", err)
		}
	})
}
