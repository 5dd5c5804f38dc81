package inference

// evalMode switches s to inference mode with gradient tracking off and
// returns a func that puts both back the way they were. Callers defer it so
// the previous mode survives errors and panics from the scorer.
func evalMode(s Scorer) (restore func()) {
	wasTraining := s.Training()
	s.SetTraining(false)
	restoreGrad := gradMode(s, false)
	return func() {
		restoreGrad()
		s.SetTraining(wasTraining)
	}
}

// gradMode sets gradient tracking on scorers that support it.
func gradMode(s Scorer, enabled bool) (restore func()) {
	gt, ok := s.(GradTracker)
	if !ok {
		return func() {}
	}
	was := gt.GradEnabled()
	gt.SetGradEnabled(enabled)
	return func() { gt.SetGradEnabled(was) }
}
