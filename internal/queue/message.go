package queue

import "encoding/json"

// Message is a scraped listing handed from the scraper's ingestion
// entrypoint to the worker queue for asynchronous classification.
type Message struct {
	ExternalID    string `json:"externalId"`
	Title         string `json:"title"`
	HiringEntity  string `json:"hiringEntity"`
	FullText      string `json:"fullText"`
	SearchKeyword string `json:"searchKeyword"`
	FirstSeenAt   string `json:"firstSeenAt"`
	EnqueuedAt    string `json:"enqueuedAt"`
	Version       int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
