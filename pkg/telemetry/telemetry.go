// Package telemetry produces environmental measurement payloads.
//
// A Measurement is encoded as a CBOR map with integer keys, which keeps a
// temperature and humidity reading under a dozen bytes.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/loranode/loranode-go/pkg/uplink"
)

// Telemetry errors.
var (
	ErrNoSensor      = errors.New("telemetry: sensor is required")
	ErrOutOfRange    = errors.New("telemetry: reading out of range")
	ErrInvalidFormat = errors.New("telemetry: invalid payload")
)

// Measurement is one sensor reading.
// Temperature is in centi-degrees Celsius, humidity in centi-percent.
type Measurement struct {
	Temperature int16  `cbor:"1,keyasint"`
	Humidity    uint16 `cbor:"2,keyasint"`
}

// NewMeasurement converts a reading in degrees Celsius and percent relative
// humidity.
func NewMeasurement(celsius, humidity float64) (Measurement, error) {
	if celsius < -40 || celsius > 85 {
		return Measurement{}, fmt.Errorf("%w: temperature %.2f", ErrOutOfRange, celsius)
	}
	if humidity < 0 || humidity > 100 {
		return Measurement{}, fmt.Errorf("%w: humidity %.2f", ErrOutOfRange, humidity)
	}
	return Measurement{
		Temperature: int16(math.Round(celsius * 100)),
		Humidity:    uint16(math.Round(humidity * 100)),
	}, nil
}

// Celsius returns the temperature in degrees Celsius.
func (m Measurement) Celsius() float64 {
	return float64(m.Temperature) / 100
}

// Fahrenheit returns the temperature in degrees Fahrenheit.
func (m Measurement) Fahrenheit() float64 {
	return CelsiusToFahrenheit(m.Celsius())
}

// RelativeHumidity returns the humidity in percent.
func (m Measurement) RelativeHumidity() float64 {
	return float64(m.Humidity) / 100
}

// String returns a human-readable reading.
func (m Measurement) String() string {
	return fmt.Sprintf("%.2fC %.2f%%RH", m.Celsius(), m.RelativeHumidity())
}

// CelsiusToFahrenheit converts degrees Celsius to Fahrenheit.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		MaxMapPairs: 8,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode returns the CBOR encoding of m.
func Encode(m Measurement) ([]byte, error) {
	return encMode.Marshal(m)
}

// Decode parses a CBOR-encoded measurement.
func Decode(data []byte) (Measurement, error) {
	var m Measurement
	if err := decMode.Unmarshal(data, &m); err != nil {
		return Measurement{}, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return m, nil
}

// Sensor reads the current environment.
type Sensor interface {
	Read(ctx context.Context) (Measurement, error)
}

// Source adapts a Sensor to uplink.PayloadSource.
type Source struct {
	sensor Sensor
}

// NewSource creates a payload source reading from sensor.
func NewSource(sensor Sensor) (*Source, error) {
	if sensor == nil {
		return nil, ErrNoSensor
	}
	return &Source{sensor: sensor}, nil
}

// Payload reads the sensor and encodes the measurement.
func (s *Source) Payload(ctx context.Context) ([]byte, error) {
	m, err := s.sensor.Read(ctx)
	if err != nil {
		return nil, err
	}
	return Encode(m)
}

// Compile-time interface satisfaction check.
var _ uplink.PayloadSource = (*Source)(nil)

// SimulatedSensor produces a slow random walk around a baseline reading.
type SimulatedSensor struct {
	mu       sync.Mutex
	rng      *rand.Rand
	celsius  float64
	humidity float64
	last     Measurement
}

// NewSimulatedSensor creates a simulated sensor starting at the given
// reading. A zero seed uses the current time.
func NewSimulatedSensor(celsius, humidity float64, seed uint64) *SimulatedSensor {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SimulatedSensor{
		rng:      rand.New(rand.NewPCG(seed, seed>>1|1)),
		celsius:  celsius,
		humidity: humidity,
	}
}

// Read advances the walk by one step and returns the new reading.
func (s *SimulatedSensor) Read(ctx context.Context) (Measurement, error) {
	if err := ctx.Err(); err != nil {
		return Measurement{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.celsius = clamp(s.celsius+(s.rng.Float64()-0.5)*0.4, -40, 85)
	s.humidity = clamp(s.humidity+(s.rng.Float64()-0.5)*1.0, 0, 100)

	m, err := NewMeasurement(s.celsius, s.humidity)
	if err != nil {
		return Measurement{}, err
	}
	s.last = m
	return m, nil
}

// Last returns the most recent reading.
func (s *SimulatedSensor) Last() Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Compile-time interface satisfaction check.
var _ Sensor = (*SimulatedSensor)(nil)

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
