// Package game defines the capability a concrete game binds to translate
// protocol move and state strings into its own types.
package game

// Adapter converts between wire strings and game values. M is the move type
// and S the state type.
//
// ParseMove is only called with non-empty input; an empty move string on the
// wire means the player did not move and is mapped to an absent Move by
// ParseOptional.
type Adapter[M, S any] interface {
	FormatMove(move M) (string, error)
	ParseMove(raw string) (M, error)
	ParseState(raw string) (S, error)
}

// Move is a move that may be absent.
type Move[M any] struct {
	Value M
	Made  bool
}

func Some[M any](m M) Move[M] {
	return Move[M]{Value: m, Made: true}
}

func None[M any]() Move[M] {
	return Move[M]{}
}

// ParseOptional parses raw with a, mapping "" to None.
func ParseOptional[M, S any](a Adapter[M, S], raw string) (Move[M], error) {
	if raw == "" {
		return None[M](), nil
	}
	m, err := a.ParseMove(raw)
	if err != nil {
		return None[M](), err
	}
	return Some(m), nil
}

// Identity passes strings through unchanged. It is the adapter used when no
// game-specific behaviour is bound.
type Identity struct{}

var _ Adapter[string, string] = Identity{}

func (Identity) FormatMove(move string) (string, error) { return move, nil }
func (Identity) ParseMove(raw string) (string, error)   { return raw, nil }
func (Identity) ParseState(raw string) (string, error)  { return raw, nil }
