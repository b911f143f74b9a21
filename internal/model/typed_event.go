package model

// TypedEvent is a decoded engine event with its arguments rendered as strings.
// Integers are base-10, addresses are checksummed hex.
type TypedEvent struct {
	ChainID     uint64            `json:"chain_id"`
	BlockNumber uint64            `json:"block_number"`
	TxHash      string            `json:"tx_hash"`
	LogIndex    uint64            `json:"log_index"`
	Address     string            `json:"address"`
	EventName   string            `json:"event_name"`
	Timestamp   uint64            `json:"timestamp"`
	Fields      map[string]string `json:"fields"`
	Raw         *RawLogRef        `json:"raw,omitempty"`
}

// RawLogRef keeps a minimal raw reference for traceability.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}

// Field returns a decoded argument or "" when absent.
func (e TypedEvent) Field(name string) string {
	if e.Fields == nil {
		return ""
	}
	return e.Fields[name]
}
