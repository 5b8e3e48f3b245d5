package protocol

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// ErrInvalid is returned for frames that do not form a valid message.
var ErrInvalid = errors.New("invalid message")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Encode serializes a message.
func Encode(msg Message) ([]byte, error) {
	msg.Tool = msg.Tool.Canonical()
	if err := Validate(&msg); err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", msg.Kind, err)
	}
	return data, nil
}

// Decode parses and validates one frame. Tool aliases are normalized.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msg.Tool = msg.Tool.Canonical()
	if err := Validate(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Validate checks field formats and the fields each kind requires.
func Validate(msg *Message) error {
	if err := getValidator().Struct(msg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return invalidf("%s failed %s", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	switch msg.Kind {
	case KindSegment:
		if msg.Tool == "" {
			return invalidf("segment without tool")
		}
		if msg.Start == nil || msg.End == nil {
			return invalidf("segment without start/end")
		}
		if msg.PageIndex == nil {
			return invalidf("segment without pageIndex")
		}
		if msg.Thickness <= 0 {
			return invalidf("segment thickness must be positive")
		}
	case KindImage, KindClear, KindPageNav:
		if msg.PageIndex == nil {
			return invalidf("%s without pageIndex", msg.Kind)
		}
	}
	return nil
}
