package report

type sentReport struct {
	kind Kind
	data []byte
}

// mockTransport records delivered reports. While credit is zero it refuses
// with ErrNoCredit; a negative credit means unlimited.
type mockTransport struct {
	credit int
	err    error
	sent   []sentReport
}

func (t *mockTransport) SendReport(kind Kind, data []byte) error {
	if t.err != nil {
		return t.err
	}
	if t.credit == 0 {
		return ErrNoCredit
	}
	if t.credit > 0 {
		t.credit--
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	t.sent = append(t.sent, sentReport{kind: kind, data: cp})
	return nil
}
