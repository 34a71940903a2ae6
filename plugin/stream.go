package plugin

// Stream is a lazily-pulled sequence of results. Next returns
// (value, true, nil) for each element, (nil, false, nil) once the
// stream is exhausted with no error, and (nil, false, err) if the
// stream itself raised while producing the next value. These two
// failure-free-exhaustion and raised-while-producing cases must never
// be collapsed into one another by a caller.
type Stream interface {
	Next() (value interface{}, ok bool, err error)
}

// SliceStream adapts a pre-computed slice of values into a Stream, used
// by plugins and tests that don't need true lazy production.
type SliceStream struct {
	values []interface{}
	pos    int
}

// NewSliceStream returns a Stream over values, in order.
func NewSliceStream(values []interface{}) *SliceStream {
	return &SliceStream{values: values}
}

func (s *SliceStream) Next() (interface{}, bool, error) {
	if s.pos >= len(s.values) {
		return nil, false, nil
	}
	v := s.values[s.pos]
	s.pos++
	return v, true, nil
}

// FuncStream adapts a pull function into a Stream.
type FuncStream struct {
	Pull func() (interface{}, bool, error)
}

func (f *FuncStream) Next() (interface{}, bool, error) {
	return f.Pull()
}
