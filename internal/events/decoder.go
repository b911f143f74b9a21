package events

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"exposurePool/internal/model"
)

// Decoder turns engine logs into typed events using the contract ABIs.
type Decoder struct {
	topicToEvent map[string]abi.Event
}

// NewDecoder builds a decoder for contracts, or for all known contracts when
// none are given. Events with identical signatures share one entry.
func NewDecoder(contracts ...Contract) (*Decoder, error) {
	if len(contracts) == 0 {
		contracts = Contracts
	}
	topicToEvent := make(map[string]abi.Event)
	for _, contract := range contracts {
		parsed, err := ABI(contract)
		if err != nil {
			return nil, err
		}
		for _, event := range parsed.Events {
			topic0 := strings.ToLower(event.ID.Hex())
			if _, ok := topicToEvent[topic0]; ok {
				continue
			}
			topicToEvent[topic0] = event
		}
	}
	return &Decoder{topicToEvent: topicToEvent}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToEvent[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *Decoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	event, ok := d.topicToEvent[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid contract address: %s", log.Address)
	}

	values := make(map[string]interface{}, len(event.Inputs))
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}
	if err := abi.ParseTopicsIntoMap(values, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}

	fields := make(map[string]string, len(event.Inputs))
	for _, input := range event.Inputs {
		value, ok := values[input.Name]
		if !ok {
			return nil, fmt.Errorf("%s: missing %s", event.Name, input.Name)
		}
		rendered, err := formatValue(value)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", event.Name, input.Name, err)
		}
		fields[input.Name] = rendered
	}

	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     common.HexToAddress(log.Address).Hex(),
		EventName:   event.Name,
		Timestamp:   log.Timestamp,
		Fields:      fields,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}, nil
}

func formatValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case common.Address:
		return v.Hex(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		n, err := asBigInt(value)
		if err != nil {
			return "", err
		}
		return n.String(), nil
	}
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
