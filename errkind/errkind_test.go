package errkind_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/oswrapper/errkind"
)

func TestErrorStringsAndSuccess(t *testing.T) {
	require.True(t, errkind.OK.IsSuccess())
	require.False(t, errkind.TimedOut.IsSuccess())

	cases := map[errkind.Error]string{
		errkind.OK:                 "OK",
		errkind.TimedOut:           "TimedOut",
		errkind.InvalidParameter:   "InvalidParameter",
		errkind.CalledByNonThread:  "CalledByNonThread",
		errkind.NotLocked:          "NotLocked",
		errkind.OtherThreadWaiting: "OtherThreadWaiting",
		errkind.OtherError:         "OtherError",
	}
	for e, want := range cases {
		assert.Equal(t, want, e.String())
	}
	assert.Equal(t, "", errkind.OK.Error())
	assert.Equal(t, "NotLocked", errkind.NotLocked.Error())
}

func TestUnknownErrorStringDoesNotPanic(t *testing.T) {
	e := errkind.Error(99)
	assert.Equal(t, "Error(99)", e.String())
}

func TestTimeoutSentinels(t *testing.T) {
	require.True(t, errkind.Polling.IsPolling())
	require.False(t, errkind.Polling.IsForever())
	require.True(t, errkind.Forever.IsForever())
	require.False(t, errkind.Forever.IsPolling())

	assert.Equal(t, time.Duration(0), errkind.Polling.Duration())
	assert.Greater(t, errkind.Forever.Duration(), 100*365*24*time.Hour)
}

func TestMillis(t *testing.T) {
	assert.Equal(t, errkind.Polling, errkind.Millis(0))
	assert.Equal(t, errkind.Polling, errkind.Millis(-5))
	assert.Equal(t, 100*time.Millisecond, errkind.Millis(100).Duration())
}
