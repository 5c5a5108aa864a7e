package gpio

import "errors"

// FakeLine is a test double for a requested GPIO line.
type FakeLine struct {
	// Samples contains scripted values returned by Value.
	// Each call consumes the next sample; the last one repeats.
	Samples []int

	// index tracks current position in Samples
	index int

	// Writes records every value passed to SetValue.
	Writes []int

	// ReadError, if set, will be returned by Value.
	ReadError error

	// WriteError, if set, will be returned by SetValue.
	WriteError error
}

// NewFakeLine creates a FakeLine with the given samples.
func NewFakeLine(samples ...int) *FakeLine {
	return &FakeLine{Samples: samples}
}

// Value returns the next scripted sample.
func (f *FakeLine) Value() (int, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}

	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}

	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// SetValue records the written value.
func (f *FakeLine) SetValue(value int) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, value)
	return nil
}

// Reset rewinds the samples and clears recorded writes.
func (f *FakeLine) Reset() {
	f.index = 0
	f.Writes = nil
}
