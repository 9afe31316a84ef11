package shutdown

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"chatsync/pkg/logger"
)

type exitRequest struct {
	Time      string `json:"time"`
	Reason    string `json:"reason"`
	Cmd       string `json:"cmd"`
	CrashPath string `json:"crash_path,omitempty"`
}

// Abort logs a fatal startup error, writes diagnostics next to the
// database and exits. The short delay gives log sinks time to flush.
func Abort(contextMsg string, err error, dbPath string) {
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	dumpPath, derr := writeDiagnostics(dbPath, contextMsg, err)
	if derr != nil {
		fmt.Fprintf(os.Stderr, "failed to write crash dump: %v\n", derr)
	} else {
		logger.Info("wrote_crash_dump", "path", dumpPath)
	}
	time.Sleep(2 * time.Second)
	os.Exit(2)
}

func writeDiagnostics(dbPath, reason string, err error) (string, error) {
	crashDir := "./crash"
	if dbPath != "" {
		crashDir = filepath.Join(dbPath, "state", "crash")
	}
	if mkerr := os.MkdirAll(crashDir, 0o700); mkerr != nil {
		return "", mkerr
	}
	now := time.Now().UTC()
	dumpPath := filepath.Join(crashDir, "crash-"+now.Format("20060102T150405Z")+".log")

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	body := fmt.Sprintf("reason: %s\nerror: %v\ntime: %s\n\n%s", reason, err, now.Format(time.RFC3339), buf[:n])
	if werr := os.WriteFile(dumpPath, []byte(body), 0o600); werr != nil {
		return "", werr
	}

	req := exitRequest{
		Time:      now.Format(time.RFC3339),
		Reason:    reason,
		Cmd:       filepath.Base(os.Args[0]),
		CrashPath: dumpPath,
	}
	b, _ := json.Marshal(req)
	_ = os.WriteFile(filepath.Join(crashDir, "exit-request.json"), b, 0o600)
	return dumpPath, nil
}
