package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lunadb/internal/doc"
)

func TestRunWithGolden_NotesWatch(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/notes_watch.yaml")
	require.NoError(t, err)
	require.NoError(t, RunWithGolden(t, s))
}

func TestTranscript(t *testing.T) {
	out, err := Transcript([]TraceEvent{
		{Seq: 1, Type: EventCall, Step: "1:find", Method: "find", Token: "app.A.1",
			Params: doc.Object{}, Response: doc.Object{"returnValue": doc.Bool(true)}},
		{Seq: 2, Type: EventRemoveCaller, Step: "2:remove_caller", Caller: "app.A", Removed: []string{}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"method":"find","params":{},"response":{"returnValue":true},"seq":1,"step":"1:find","token":"app.A.1","type":"call"}`+"\n"+
			`{"caller":"app.A","removed":[],"seq":2,"step":"2:remove_caller","type":"remove_caller"}`+"\n",
		string(out))
}

func TestGoldenPath(t *testing.T) {
	assert.Equal(t, "scenarios/golden/notes_watch.golden", GoldenPath("scenarios/notes_watch.yaml"))
}
