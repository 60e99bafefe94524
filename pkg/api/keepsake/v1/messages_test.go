package keepsakev1

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/keepsake/pkg/keepsake/output"
	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

func TestEncodeDecode_Status(t *testing.T) {
	next := time.Date(2025, 3, 2, 0, 1, 0, 0, time.UTC)
	in := Status{
		Running:   true,
		PID:       4242,
		Uptime:    90 * time.Second,
		WatchRoot: "/srv/docs",
		Today: output.Day{
			Date:  "2025-03-01",
			Total: 3,
			Files: map[string]int{"report": 2, "notes": 1},
		},
		DebounceEntries: 2,
		NextRollover:    next,
	}

	s, err := Encode(in)
	require.NoError(t, err)

	var out Status
	require.NoError(t, Decode(s, &out))
	assert.Equal(t, in.PID, out.PID)
	assert.Equal(t, in.Uptime, out.Uptime)
	assert.Equal(t, in.Today.Files, out.Today.Files)
	assert.True(t, next.Equal(out.NextRollover))
}

func TestEncodeDecode_WatchRequestKinds(t *testing.T) {
	s, err := Encode(WatchRequest{Root: "/srv", Kinds: []types.EventKind{types.KindDeleted}})
	require.NoError(t, err)
	assert.Equal(t, "deleted", s.GetFields()["kinds"].GetListValue().GetValues()[0].GetStringValue())

	var req WatchRequest
	require.NoError(t, Decode(s, &req))
	assert.Equal(t, []types.EventKind{types.KindDeleted}, req.Kinds)
}

func TestEncode_RejectsNonObject(t *testing.T) {
	_, err := Encode([]int{1, 2})
	assert.Error(t, err)
}

func TestDecode_Nil(t *testing.T) {
	req := WatchRequest{Root: "keep"}
	require.NoError(t, Decode(nil, &req))
	assert.Equal(t, "keep", req.Root)
}
