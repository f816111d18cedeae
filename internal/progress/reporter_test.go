package progress

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestCIReporter(t *testing.T) {
	var buf bytes.Buffer
	r := &CIReporter{Description: "Importing families", Out: &buf}
	r.Start(2)
	r.Update(1, "Chair")
	r.Update(2, "Table")
	r.Finish()

	want := "Importing families: 2 items\n[1/2] Chair\n[2/2] Table\nImporting families: done\n"
	assert.Equal(t, want, buf.String())
}

func TestEventReporter(t *testing.T) {
	rec := &recorder{}
	r := NewEventReporter("import", rec)
	r.Start(3)
	r.Update(1, "one")
	r.Finish()

	require.Len(t, rec.events, 3)
	assert.Equal(t, PhaseStart, rec.events[0].Phase)
	assert.Equal(t, 3, rec.events[0].Total)
	assert.Equal(t, PhaseProgress, rec.events[1].Phase)
	assert.Equal(t, "one", rec.events[1].Message)
	assert.Equal(t, PhaseFinish, rec.events[2].Phase)
	assert.Equal(t, 1, rec.events[2].Current)
	for _, e := range rec.events {
		assert.Equal(t, "import", e.Kind)
		assert.False(t, e.Time.IsZero())
	}
}

func TestNewEventReporter_NilPublisher(t *testing.T) {
	_, ok := NewEventReporter("x", nil).(Nop)
	assert.True(t, ok)
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi(NewEventReporter("a", a), nil, NewEventReporter("b", b))
	m.Start(1)
	m.Update(1, "x")
	m.Finish()

	assert.Len(t, a.events, 3)
	assert.Len(t, b.events, 3)
}
