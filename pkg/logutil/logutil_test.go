package logutil_test

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"src.sel.sh/pkg/logutil"
	"src.sel.sh/pkg/must"
	"src.sel.sh/pkg/testutil"
)

func TestLogger(t *testing.T) {
	logger := logutil.GetLogger("[test] ")
	var sb bytes.Buffer
	logutil.SetOutput(&sb)
	t.Cleanup(func() { logutil.SetOutput(io.Discard) })

	logger.Println("compiled 3 selections")
	if !strings.Contains(sb.String(), "[test] ") ||
		!strings.Contains(sb.String(), "compiled 3 selections") {
		t.Errorf("got log output %q", sb.String())
	}
}

func TestSetOutputFile(t *testing.T) {
	dir := testutil.TempDir(t)
	logger := logutil.GetLogger("[file] ")
	fname := filepath.Join(dir, "log")
	must.OK(logutil.SetOutputFile(fname))
	logger.Println("frame 1")
	must.OK(logutil.SetOutputFile(""))

	if content := must.ReadFileString(fname); !strings.Contains(content, "frame 1") {
		t.Errorf("log file has %q", content)
	}
}
