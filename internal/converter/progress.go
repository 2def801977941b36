package converter

// progressSteps is the number of reported steps: read, transform and write.
const progressSteps = 3

// Progress is a snapshot of a running conversion.
type Progress struct {
	Step    int
	Total   int
	Message string
}

// Percentage returns the completed share in [0, 100].
func (p Progress) Percentage() float64 {
	if p.Total <= 0 {
		return 100
	}
	return min(float64(p.Step)/float64(p.Total)*100, 100)
}

// tracker reports to an optional callback.
type tracker struct {
	report func(Progress)
	done   int
}

func newTracker(report func(Progress)) *tracker {
	return &tracker{report: report}
}

// step reports message at the current step and then advances.
func (t *tracker) step(message string) {
	t.emit(message)
	t.done++
}

func (t *tracker) finish() {
	t.emit("Complete")
}

func (t *tracker) emit(message string) {
	if t.report == nil {
		return
	}
	t.report(Progress{Step: t.done, Total: progressSteps, Message: message})
}
