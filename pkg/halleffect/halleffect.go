// Package halleffect analyzes raw ADC samples from analog hall-effect
// key switches into calibrated distance/velocity/acceleration/jerk
// readings pkg/event's Analog* trigger kinds can be compared against.
// It never touches a peripheral itself — the caller (an ADC driver,
// or a test harness) supplies raw samples and gets analysis back,
// keeping this package testable without real hardware and honoring
// the spec's non-goal of not owning ADC/peripheral bring-up.
package halleffect

import "fmt"

// CalibrationStatus reports what the last sample told the calibration
// state machine about a sensor's health.
type CalibrationStatus uint8

const (
	CalibrationNotReady CalibrationStatus = iota
	CalibrationSensorMissing
	CalibrationSensorBroken
	CalibrationMagnetDetected
	CalibrationMagnetWrongPoleOrMissing
	CalibrationInvalidIndex
)

func (s CalibrationStatus) String() string {
	switch s {
	case CalibrationNotReady:
		return "NotReady"
	case CalibrationSensorMissing:
		return "SensorMissing"
	case CalibrationSensorBroken:
		return "SensorBroken"
	case CalibrationMagnetDetected:
		return "MagnetDetected"
	case CalibrationMagnetWrongPoleOrMissing:
		return "MagnetWrongPoleOrMissing"
	case CalibrationInvalidIndex:
		return "InvalidIndex"
	default:
		return "Unknown"
	}
}

// ErrCalibration is returned by SenseData.AddTest whenever a sample
// does not resolve to CalibrationMagnetDetected — the caller gets the
// sensor's status back without having to separately query it.
type ErrCalibration struct {
	Status CalibrationStatus
}

func (e *ErrCalibration) Error() string {
	return fmt.Sprintf("halleffect: calibration check failed: %s", e.Status)
}

// ErrInvalidSensor is returned for an out-of-range sensor index.
type ErrInvalidSensor struct{ Index int }

func (e *ErrInvalidSensor) Error() string {
	return fmt.Sprintf("halleffect: invalid sensor index %d", e.Index)
}

// DistanceModel maps a raw ADC sample to a travel distance. Index is
// the raw sample value; real models are device-specific calibration
// curves loaded at startup, not computed here.
type DistanceModel []int16

// LinearModel builds a synthetic DistanceModel spanning [0, maxRaw]
// linearly onto [0, maxDistance] — useful for tests and for devices
// without a measured curve, the same role pkg/cpu/flags.go's init()
// tables play for the Z80 flag logic: precomputed once, indexed
// cheaply thereafter.
func LinearModel(maxRaw int, maxDistance int16) DistanceModel {
	model := make(DistanceModel, maxRaw+1)
	for i := range model {
		model[i] = int16(int(maxDistance) * i / maxRaw)
	}
	return model
}

func (m DistanceModel) at(raw uint16) int16 {
	if int(raw) >= len(m) {
		if len(m) == 0 {
			return 0
		}
		return m[len(m)-1]
	}
	return m[raw]
}

// SenseAnalysis is the derivative chain computed from one new raw
// sample: distance (offset-corrected against the sensor's observed
// resting minimum), and velocity/acceleration/jerk derived from the
// previous analysis.
type SenseAnalysis struct {
	Raw          uint16
	Distance     int16
	Velocity     int16
	Acceleration int16
	Jerk         int16
}

func newSenseAnalysis(raw uint16, model DistanceModel, offsetMin uint16, prev SenseAnalysis) SenseAnalysis {
	distance := model.at(raw) - model.at(offsetMin)
	velocity := distance - prev.Distance
	acceleration := (velocity - prev.Velocity) / 2
	jerk := acceleration - prev.Acceleration
	return SenseAnalysis{Raw: raw, Distance: distance, Velocity: velocity, Acceleration: acceleration, Jerk: jerk}
}

// rawAccumulator averages samplesPerCycle raw readings before handing
// back a value (blended with the previous cycle's readings once there
// is one), smoothing ADC noise the way a real scan loop would before it
// ever reaches SenseData.
type rawAccumulator struct {
	samples uint8
	scratch uint32
	prev    uint32
}

func (r *rawAccumulator) add(reading uint16, samplesPerCycle uint8) (uint16, bool) {
	r.scratch += uint32(reading)
	r.samples++
	if r.samples < samplesPerCycle {
		return 0, false
	}

	var avg uint32
	if r.prev != 0 {
		avg = (r.scratch + r.prev) / 2 / uint32(samplesPerCycle)
	} else {
		avg = r.scratch / uint32(samplesPerCycle)
	}
	r.prev = r.scratch
	r.scratch = 0
	r.samples = 0
	return uint16(avg), true
}

func (r *rawAccumulator) reset() {
	r.samples = 0
	r.scratch = 0
	r.prev = 0
}

// SenseStats tracks the observed raw-sample range for one sensor,
// which calibrates the distance model's zero point.
type SenseStats struct {
	Min     uint16
	Max     uint16
	Samples uint32
}

func newSenseStats() SenseStats {
	return SenseStats{Min: 0xFFFF, Max: 0}
}

func (s *SenseStats) reset() {
	s.Min = 0xFFFF
	s.Max = 0
}

func (s *SenseStats) observe(reading uint16) {
	if reading < s.Min {
		s.Min = reading
	}
	if reading > s.Max {
		s.Max = reading
	}
	s.Samples++
}

// SenseData is the full per-sensor state: its last analysis, its
// calibration status, its sample accumulator, and its observed range.
type SenseData struct {
	Analysis SenseAnalysis
	Cal      CalibrationStatus
	Stats    SenseStats
	model    DistanceModel
	raw      rawAccumulator
}

func newSenseData(model DistanceModel) SenseData {
	return SenseData{Cal: CalibrationNotReady, Stats: newSenseStats(), model: model}
}

// Add feeds reading through the accumulator in normal (non-test) mode:
// once enough samples have been collected to form a new average, the
// sensor is unconditionally considered magnet-detected and its
// analysis updates.
func (d *SenseData) Add(reading uint16, samplesPerCycle uint8) {
	avg, ready := d.raw.add(reading, samplesPerCycle)
	if !ready {
		return
	}
	d.Stats.observe(avg)
	d.Cal = CalibrationMagnetDetected
	d.Analysis = newSenseAnalysis(avg, d.model, d.Stats.Min, d.Analysis)
}

// AddTest feeds reading through the accumulator in calibration/test
// mode: minOK/maxOK/noSignal bound what counts as a correctly seated
// magnet, and a sample outside those bounds resets the sensor's
// accumulated stats and returns ErrCalibration instead of updating
// Analysis — a broken or missing sensor must not contaminate the
// running min/max used to zero the distance model.
func (d *SenseData) AddTest(reading uint16, samplesPerCycle uint8, minOK, maxOK, noSignal uint16) error {
	avg, ready := d.raw.add(reading, samplesPerCycle)
	if !ready {
		return nil
	}
	d.Stats.observe(avg)
	d.Cal = checkCalibration(avg, minOK, maxOK, noSignal)
	if d.Cal != CalibrationMagnetDetected {
		d.Stats.reset()
		d.raw.reset()
		d.Analysis = SenseAnalysis{Raw: avg}
		return &ErrCalibration{Status: d.Cal}
	}
	d.Analysis = newSenseAnalysis(avg, d.model, d.Stats.Min, d.Analysis)
	return nil
}

func checkCalibration(data, minOK, maxOK, noSignal uint16) CalibrationStatus {
	switch {
	case data > maxOK:
		return CalibrationSensorBroken
	case data < noSignal:
		return CalibrationSensorMissing
	case data < minOK:
		return CalibrationMagnetWrongPoleOrMissing
	default:
		return CalibrationMagnetDetected
	}
}

// Sensors is a fixed-size collection of hall-effect sensors sharing
// one distance model.
type Sensors struct {
	sensors []SenseData
}

// NewSensors allocates n sensors, all sharing model.
func NewSensors(n int, model DistanceModel) *Sensors {
	sensors := make([]SenseData, n)
	for i := range sensors {
		sensors[i] = newSenseData(model)
	}
	return &Sensors{sensors: sensors}
}

func (s *Sensors) checkIndex(index int) error {
	if index < 0 || index >= len(s.sensors) {
		return &ErrInvalidSensor{Index: index}
	}
	return nil
}

// Add feeds a raw sample for sensor index in normal mode.
func (s *Sensors) Add(index int, reading uint16, samplesPerCycle uint8) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.sensors[index].Add(reading, samplesPerCycle)
	return nil
}

// AddTest feeds a raw sample for sensor index in calibration/test mode.
func (s *Sensors) AddTest(index int, reading uint16, samplesPerCycle uint8, minOK, maxOK, noSignal uint16) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	return s.sensors[index].AddTest(reading, samplesPerCycle, minOK, maxOK, noSignal)
}

// GetData returns sensor index's current state. It errors if the
// sensor hasn't produced a calibrated reading yet (CalibrationNotReady)
// or if index is out of range.
func (s *Sensors) GetData(index int) (SenseData, error) {
	if err := s.checkIndex(index); err != nil {
		return SenseData{}, err
	}
	data := s.sensors[index]
	if data.Cal == CalibrationNotReady {
		return SenseData{}, &ErrCalibration{Status: CalibrationNotReady}
	}
	return data, nil
}
