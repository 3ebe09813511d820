package protocol

import "github.com/danmuck/grebe/internal/protocol/message"

// Classify maps a decoded server message onto the error taxonomy. It returns
// nil when the message should be handed to the caller unchanged.
func Classify(msg message.Message) error {
	switch msg.Type {
	case TypeEnd:
		if err := Validate(msg); err != nil {
			return err
		}
		return &EndError{
			Result: msg.Args[0],
			Reason: msg.Args[1],
			P1Move: msg.Args[2],
			P2Move: msg.Args[3],
		}
	case TypeInvalid:
		return &RejectedError{Reason: msg.Arg(0)}
	case TypeLoginFailure:
		return &LoginError{Reason: msg.Arg(0)}
	}
	return nil
}
