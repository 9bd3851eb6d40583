package faults

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withCapturedFatal(t *testing.T) (*bytes.Buffer, *int) {
	t.Helper()
	var buf bytes.Buffer
	origLogger, origExit := logger, exit
	logger = log.New(&buf, "drace: ", 0)
	code := -1
	exit = func(c int) { code = c }
	t.Cleanup(func() {
		logger = origLogger
		exit = origExit
	})
	return &buf, &code
}

func TestFatalLogsMessageAndExitsWithStatus2(t *testing.T) {
	buf, code := withCapturedFatal(t)

	Fatal("inc on unseeded tid")

	assert.Contains(t, buf.String(), "inc on unseeded tid")
	assert.Equal(t, 2, *code)
}

func TestFatalFormatsKeyValuePairs(t *testing.T) {
	buf, _ := withCapturedFatal(t)

	Fatal("release of never-acquired lock", "tid", 7, "lock", "0xdead")

	assert.Contains(t, buf.String(), "tid=7")
	assert.Contains(t, buf.String(), "lock=0xdead")
}

func TestFatalWithNoKeyValuePairsLogsBareMessage(t *testing.T) {
	buf, _ := withCapturedFatal(t)

	Fatal("unknown lock pointer on release")

	assert.Equal(t, "drace: unknown lock pointer on release\n", buf.String())
}

func TestRecoverConvertsPanicToFatal(t *testing.T) {
	buf, code := withCapturedFatal(t)

	func() {
		defer Recover()
		panic("vectorclock: Inc on unseeded tid 7")
	}()

	assert.Contains(t, buf.String(), "vectorclock: Inc on unseeded tid 7")
	assert.Equal(t, 2, *code)
}

func TestRecoverIsNoopWithoutPanic(t *testing.T) {
	_, code := withCapturedFatal(t)

	func() {
		defer Recover()
	}()

	assert.Equal(t, -1, *code)
}
