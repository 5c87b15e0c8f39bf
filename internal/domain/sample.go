package domain

import "time"

// Sample is one decoded topic message: every extracted signal value keyed by its
// fully qualified URL. Array elements are keyed "url[i]".
type Sample struct {
	Topic        string             `json:"topic"`
	Timestamp    time.Time          `json:"ts"`
	Seq          uint64             `json:"seq"`
	Values       map[string]float64 `json:"values"`
	Source       string             `json:"source,omitempty"`
	TransformVer uint16             `json:"transform_ver"`
}
