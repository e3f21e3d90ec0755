package model

import "time"

type Fingerprint struct {
	MaxModifiedTime        time.Time `json:"max_modified_time"`
	CountAtMaxModifiedTime int       `json:"count_at_max_modified_time"`
	AggregateHash          string    `json:"aggregate_hash"`
}

func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.MaxModifiedTime.Equal(other.MaxModifiedTime) &&
		f.CountAtMaxModifiedTime == other.CountAtMaxModifiedTime &&
		f.AggregateHash == other.AggregateHash
}
