package usecase

import (
	"time"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	return time.AfterFunc(d, f)
}

// SystemClock schedules callbacks on the runtime timer heap.
func SystemClock() ports.Clock {
	return systemClock{}
}

type noopMetrics struct{}

func (noopMetrics) RecordPoll(string)                   {}
func (noopMetrics) RecordTransition(domain.IndexStatus) {}
func (noopMetrics) RecordUpload(string)                 {}
func (noopMetrics) RecordSearch(string, time.Duration)  {}
func (noopMetrics) RecordMetadataLookup(string)         {}
