package triage

import "math"

// vitalRange is the accepted closed interval for one measurement and the
// error reported when a value falls outside it.
type vitalRange struct {
	min, max float64
	err      error
}

var (
	temperatureRange     = vitalRange{min: 30, max: 45, err: ErrTemperatureOutOfRange}
	heartRateRange       = vitalRange{min: 0, max: math.Inf(1), err: ErrHeartRateOutOfRange}
	respiratoryRateRange = vitalRange{min: 0, max: math.Inf(1), err: ErrRespiratoryRateOutOfRange}
	pressureRange        = vitalRange{min: 0, max: math.Inf(1), err: ErrBloodPressureOutOfRange}
)

func validateRange(value float64, r vitalRange) error {
	if math.IsNaN(value) || value < r.min || value > r.max {
		return r.err
	}
	return nil
}

// Temperature in degrees Celsius.
type Temperature float64

func NewTemperature(v float64) (Temperature, error) {
	if err := validateRange(v, temperatureRange); err != nil {
		return 0, err
	}
	return Temperature(v), nil
}

// HeartRate in beats per minute.
type HeartRate float64

func NewHeartRate(v float64) (HeartRate, error) {
	if err := validateRange(v, heartRateRange); err != nil {
		return 0, err
	}
	return HeartRate(v), nil
}

// RespiratoryRate in breaths per minute.
type RespiratoryRate float64

func NewRespiratoryRate(v float64) (RespiratoryRate, error) {
	if err := validateRange(v, respiratoryRateRange); err != nil {
		return 0, err
	}
	return RespiratoryRate(v), nil
}

// BloodPressure in mmHg. A failure on either component is reported as
// ErrBloodPressureOutOfRange.
type BloodPressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

func NewBloodPressure(systolic, diastolic float64) (BloodPressure, error) {
	if validateRange(systolic, pressureRange) != nil || validateRange(diastolic, pressureRange) != nil {
		return BloodPressure{}, ErrBloodPressureOutOfRange
	}
	return BloodPressure{Systolic: systolic, Diastolic: diastolic}, nil
}

// VitalSigns are measured once at registration and never change afterwards.
type VitalSigns struct {
	Temperature     Temperature     `json:"temperature"`
	HeartRate       HeartRate       `json:"heart_rate"`
	RespiratoryRate RespiratoryRate `json:"respiratory_rate"`
	BloodPressure   BloodPressure   `json:"blood_pressure"`
}

// NewVitalSigns validates every measurement, reporting the first failure in
// the order temperature, heart rate, respiratory rate, blood pressure.
func NewVitalSigns(temperature, heartRate, respiratoryRate, systolic, diastolic float64) (VitalSigns, error) {
	temp, err := NewTemperature(temperature)
	if err != nil {
		return VitalSigns{}, err
	}
	hr, err := NewHeartRate(heartRate)
	if err != nil {
		return VitalSigns{}, err
	}
	rr, err := NewRespiratoryRate(respiratoryRate)
	if err != nil {
		return VitalSigns{}, err
	}
	bp, err := NewBloodPressure(systolic, diastolic)
	if err != nil {
		return VitalSigns{}, err
	}
	return VitalSigns{Temperature: temp, HeartRate: hr, RespiratoryRate: rr, BloodPressure: bp}, nil
}
