package scanner

import (
	"foldersync/internal/model"
	"sync"
)

// Stream is a lazily produced sequence of entries. C is closed when the
// producer finishes; Err is valid after that.
type Stream struct {
	C <-chan model.Entry

	done chan struct{}
	once sync.Once
	err  error
}

func newStream(c <-chan model.Entry) *Stream {
	return &Stream{C: c, done: make(chan struct{})}
}

func (s *Stream) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Err blocks until the producer is finished and returns the error that
// stopped the enumeration, if any.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Collect drains the stream.
func (s *Stream) Collect() ([]model.Entry, error) {
	var entries []model.Entry
	for e := range s.C {
		entries = append(entries, e)
	}

	if err := s.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// FromEntries wraps an already materialized scan.
func FromEntries(entries []model.Entry) *Stream {
	c := make(chan model.Entry, len(entries))
	for _, e := range entries {
		c <- e
	}
	close(c)

	s := newStream(c)
	s.finish(nil)
	return s
}

// Failed returns a stream that yields nothing and reports err.
func Failed(err error) *Stream {
	c := make(chan model.Entry)
	close(c)

	s := newStream(c)
	s.finish(err)
	return s
}
