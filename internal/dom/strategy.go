package dom

// Strategy is one named way of extracting a value. It reports false when it
// found nothing usable.
type Strategy[T any] struct {
	Name string
	Try  func() (T, bool)
}

// FirstOf runs strategies in order and returns the first success along with
// the name of the strategy that produced it.
func FirstOf[T any](strategies ...Strategy[T]) (T, string, bool) {
	for _, s := range strategies {
		if v, ok := s.Try(); ok {
			return v, s.Name, true
		}
	}
	var zero T
	return zero, "", false
}

// Named is shorthand for building a Strategy.
func Named[T any](name string, try func() (T, bool)) Strategy[T] {
	return Strategy[T]{Name: name, Try: try}
}

// NonEmpty adapts a string extractor into a Strategy that fails on "".
func NonEmpty(name string, get func() string) Strategy[string] {
	return Strategy[string]{Name: name, Try: func() (string, bool) {
		v := get()
		return v, v != ""
	}}
}
