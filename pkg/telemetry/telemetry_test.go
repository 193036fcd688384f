package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSensor struct {
	m   Measurement
	err error
}

func (s stubSensor) Read(context.Context) (Measurement, error) {
	return s.m, s.err
}

func TestNewMeasurement(t *testing.T) {
	m, err := NewMeasurement(21.456, 48.2)
	require.NoError(t, err)
	assert.Equal(t, int16(2146), m.Temperature)
	assert.Equal(t, uint16(4820), m.Humidity)
	assert.InDelta(t, 21.46, m.Celsius(), 0.001)
	assert.InDelta(t, 48.2, m.RelativeHumidity(), 0.001)
	assert.Equal(t, "21.46C 48.20%RH", m.String())

	_, err = NewMeasurement(-41, 50)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = NewMeasurement(20, 101)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCelsiusToFahrenheit(t *testing.T) {
	tests := []struct {
		c, f float64
	}{
		{0, 32},
		{100, 212},
		{-40, -40},
		{37, 98.6},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.f, CelsiusToFahrenheit(tt.c), 0.0001)
	}

	m := Measurement{Temperature: 2500}
	assert.InDelta(t, 77.0, m.Fahrenheit(), 0.0001)
}

func TestEncodeDecode(t *testing.T) {
	m := Measurement{Temperature: -1234, Humidity: 9999}

	data, err := Encode(m)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), 12)
	// Map with two entries, integer keys.
	assert.Equal(t, byte(0xa2), data[0])

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestSourcePayload(t *testing.T) {
	_, err := NewSource(nil)
	assert.ErrorIs(t, err, ErrNoSensor)

	want := Measurement{Temperature: 2000, Humidity: 5000}
	src, err := NewSource(stubSensor{m: want})
	require.NoError(t, err)

	payload, err := src.Payload(context.Background())
	require.NoError(t, err)
	got, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	readErr := errors.New("i2c timeout")
	src, err = NewSource(stubSensor{err: readErr})
	require.NoError(t, err)
	_, err = src.Payload(context.Background())
	assert.ErrorIs(t, err, readErr)
}

func TestSimulatedSensor(t *testing.T) {
	s := NewSimulatedSensor(22, 45, 42)

	for i := 0; i < 200; i++ {
		m, err := s.Read(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, m.Celsius(), -40.0)
		assert.LessOrEqual(t, m.Celsius(), 85.0)
		assert.GreaterOrEqual(t, m.RelativeHumidity(), 0.0)
		assert.LessOrEqual(t, m.RelativeHumidity(), 100.0)
		assert.Equal(t, m, s.Last())
	}

	// Same seed, same walk.
	a := NewSimulatedSensor(22, 45, 7)
	b := NewSimulatedSensor(22, 45, 7)
	for i := 0; i < 10; i++ {
		ma, _ := a.Read(context.Background())
		mb, _ := b.Read(context.Background())
		assert.Equal(t, ma, mb)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
