package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: invalid cbor encode options: %v", err))
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 64,
		MaxMapPairs:      64,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: invalid cbor decode options: %v", err))
	}
}

// Encode serializes an InputEvent for the wire. The websocket layer
// supplies message framing, so no length prefix is needed here.
func Encode(event *InputEvent) ([]byte, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	data, err := encMode.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input event: %w", err)
	}
	return data, nil
}

// QualityMessage is the wire frame carrying a quality-settings update.
type QualityMessage struct {
	Kind     string          `cbor:"1,keyasint"` // always "quality"
	Settings QualitySettings `cbor:"2,keyasint"`
}

// EncodeQuality serializes a quality-settings update frame.
func EncodeQuality(settings QualitySettings) ([]byte, error) {
	data, err := encMode.Marshal(&QualityMessage{Kind: "quality", Settings: settings})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quality settings: %w", err)
	}
	return data, nil
}

// Decode deserializes a wire message back into an InputEvent.
func Decode(data []byte) (*InputEvent, error) {
	event := &InputEvent{}
	if err := decMode.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}
