package storage

import "errors"

// Sink persists PageRecords as they are produced
type Sink interface {
	Record(rec PageRecord) error
	Close() error
}

// MultiSink fans every record out to a fixed list of sinks
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink wraps sinks; nil entries are ignored
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record writes rec to every sink and returns the first failure
func (m *MultiSink) Record(rec PageRecord) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Record(rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes all sinks, joining their errors
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
