package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldCount is the number of comma-separated fields in one wire record.
const FieldCount = 11

// TimeLayout is the wall-clock format carried in the first field.
// Sub-second precision is required so rows stay ordered within a second.
const TimeLayout = "15:04:05.000000"

// Header lists the store's column names in wire order.
var Header = []string{
	"time", "sh_id",
	"ori_r", "ori_p", "ori_y",
	"gyr_x", "gyr_y", "gyr_z",
	"acc_x", "acc_y", "acc_z",
}

// Orientation holds aircraft-axis angles in degrees.
type Orientation struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// Vec3 holds a raw three-axis reading (gyroscope rad/s or accelerometer Gs).
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Record is one motion sample as it travels on the wire: a fixed-order
// tuple of 11 fields. Time is kept as formatted text so a decoded record
// re-encodes to the exact bytes that were received.
type Record struct {
	Time         string
	SourceID     string
	Orientation  Orientation
	AngularRate  Vec3
	Acceleration Vec3

	// raw holds the original wire fields when the record came from Decode,
	// so persisting or re-encoding reproduces the received text exactly.
	raw []string
}

// DecodeError reports a line that does not form a valid wire record.
type DecodeError struct {
	FieldCount int
	Err        error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid wire record: %v", e.Err)
	}
	return fmt.Sprintf("wire record has %d fields, want %d", e.FieldCount, FieldCount)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// New builds a record from raw sensor readings, stamping it with the local
// wall-clock time of ts.
func New(ts time.Time, sourceID string, ori Orientation, gyr, acc Vec3) Record {
	return Record{
		Time:         ts.Format(TimeLayout),
		SourceID:     sourceID,
		Orientation:  ori,
		AngularRate:  gyr,
		Acceleration: acc,
	}
}

// Fields returns the record's 11 fields in wire order. For a decoded
// record the original field text is returned unchanged.
func (r Record) Fields() []string {
	if r.raw != nil {
		return append([]string(nil), r.raw...)
	}
	return []string{
		r.Time,
		r.SourceID,
		formatFloat(r.Orientation.Roll),
		formatFloat(r.Orientation.Pitch),
		formatFloat(r.Orientation.Yaw),
		formatFloat(r.AngularRate.X),
		formatFloat(r.AngularRate.Y),
		formatFloat(r.AngularRate.Z),
		formatFloat(r.Acceleration.X),
		formatFloat(r.Acceleration.Y),
		formatFloat(r.Acceleration.Z),
	}
}

// Encode renders the record as a single comma-separated line, without a
// trailing newline. The transport layer owns the line terminator.
func (r Record) Encode() string {
	return strings.Join(r.Fields(), ",")
}

// Decode parses one comma-separated line into a Record. The line must
// contain exactly FieldCount fields; anything else yields a *DecodeError.
func Decode(line string) (Record, error) {
	parts := strings.Split(line, ",")
	if len(parts) != FieldCount {
		return Record{}, &DecodeError{FieldCount: len(parts)}
	}

	vals := make([]float64, 9)
	for i, p := range parts[2:] {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Record{}, &DecodeError{
				FieldCount: FieldCount,
				Err:        fmt.Errorf("field %d (%q) is not a number: %w", i+3, p, err),
			}
		}
		vals[i] = v
	}

	return Record{
		Time:         parts[0],
		SourceID:     parts[1],
		Orientation:  Orientation{Roll: vals[0], Pitch: vals[1], Yaw: vals[2]},
		AngularRate:  Vec3{X: vals[3], Y: vals[4], Z: vals[5]},
		Acceleration: Vec3{X: vals[6], Y: vals[7], Z: vals[8]},
		raw:          parts,
	}, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
