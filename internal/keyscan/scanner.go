package keyscan

// ClockSource selects the oscillator the tick timer runs from.
type ClockSource uint8

// Clock sources. The RC oscillator drifts by a known amount that the
// scanner compensates for.
const (
	ClockCrystal ClockSource = iota
	ClockRC
)

// ScanConfig holds the scanner timing and policy.
type ScanConfig struct {
	// PeriodMicros is the nominal time between two scan ticks.
	PeriodMicros uint32
	// TimerHz is the tick timer frequency.
	TimerHz uint32
	Clock   ClockSource
	// DriftPPM is the RC oscillator error, positive when it runs fast.
	DriftPPM int32
	// Continuous keeps scanning even when the matrix is quiet.
	Continuous bool
}

// Scanner drives the matrix lines one row per tick. The scan is pipelined:
// invocation i reads the inputs for row i-1, releases it and drives row i,
// so a pass over R rows takes R+1 invocations.
type Scanner struct {
	gpio   GPIO
	matrix *Matrix
	sink   ReportSink
	cfg    ScanConfig

	cursor int
	passes uint64
}

// NewScanner creates a scanner. sink may be nil when events are consumed
// elsewhere.
func NewScanner(gpio GPIO, matrix *Matrix, sink ReportSink, cfg ScanConfig) *Scanner {
	if gpio == nil || matrix == nil {
		panic("keyscan: NewScanner called with nil collaborator")
	}
	return &Scanner{gpio: gpio, matrix: matrix, sink: sink, cfg: cfg}
}

// BeginPass releases every row and rewinds the cursor to the first row.
func (s *Scanner) BeginPass() {
	for out := 0; out < s.matrix.layout.Rows(); out++ {
		s.gpio.DriveRowHighZ(out)
	}
	s.cursor = 0
}

// Cursor returns the index of the next row to drive. It equals the row count
// on the final, read-only invocation of a pass.
func (s *Scanner) Cursor() int { return s.cursor }

// ScanTick advances the pipelined scan by one step and reports whether the
// pass is complete.
func (s *Scanner) ScanTick() bool {
	rows := s.matrix.layout.Rows()
	if s.cursor > 0 {
		prev := s.cursor - 1
		levels := s.gpio.ReadColumns()
		s.gpio.DriveRowHighZ(prev)
		s.matrix.ProcessRow(prev, ^levels&lineMask(s.matrix.layout.Cols()))
	}
	if s.cursor < rows {
		s.gpio.DriveRowLow(s.cursor)
		s.cursor++
		return false
	}
	s.cursor = 0
	s.passes++
	return true
}

// PostScanUpdate runs the once-per-pass bookkeeping: debounce countdowns,
// report synthesis and edge arming on quiet rows. It reports whether another
// pass is needed.
func (s *Scanner) PostScanUpdate() bool {
	debouncing := s.matrix.Tick()
	if s.sink != nil {
		s.sink.Process()
	}
	activity := s.matrix.TakeActivity()

	for out := 0; out < s.matrix.layout.Rows(); out++ {
		if s.matrix.Quiescent(out) {
			s.gpio.DriveRowLow(out)
		}
	}
	return debouncing || activity || s.cfg.Continuous
}

// NextTickTicks returns the next tick duration in timer ticks.
func (s *Scanner) NextTickTicks() uint32 {
	ticks := uint64(s.cfg.PeriodMicros) * uint64(s.cfg.TimerHz) / 1_000_000
	if s.cfg.Clock == ClockRC && s.cfg.DriftPPM != 0 {
		// A fast oscillator needs more of its own ticks for the same period.
		ticks = uint64(int64(ticks) * (1_000_000 + int64(s.cfg.DriftPPM)) / 1_000_000)
	}
	if ticks == 0 {
		ticks = 1
	}
	return uint32(ticks)
}

// SetupIdle configures the inputs and drives every row low so that any
// press pulls an input down.
func (s *Scanner) SetupIdle() {
	s.gpio.SetColumnsInputPullup()
	for out := 0; out < s.matrix.layout.Rows(); out++ {
		s.gpio.DriveRowLow(out)
	}
}

// Release puts every row in high-Z.
func (s *Scanner) Release() {
	for out := 0; out < s.matrix.layout.Rows(); out++ {
		s.gpio.DriveRowHighZ(out)
	}
	s.cursor = 0
}

// ColumnMask returns the mask of all input lines.
func (s *Scanner) ColumnMask() uint32 { return lineMask(s.matrix.layout.Cols()) }

// Passes returns the number of completed passes.
func (s *Scanner) Passes() uint64 { return s.passes }

// Matrix returns the matrix the scanner feeds.
func (s *Scanner) Matrix() *Matrix { return s.matrix }
