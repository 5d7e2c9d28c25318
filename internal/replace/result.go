package replace

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// The host cannot read the agent's exit status after the fact, its parent is
// long gone by then. The agent records the outcome in a file instead, and the
// next host launch consumes it.

const resultFileName = "agent-result"

func resultFilePath(installDir string) string {
	return filepath.Join(installDir, "logs", resultFileName)
}

// WriteResult records the agent outcome for the next host launch.
func WriteResult(installDir string, result Result) error {
	path := resultFilePath(installDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	line := fmt.Sprintf("%d %s %s\n", result.ExitCode(), result, time.Now().UTC().Format(time.RFC3339))
	return os.WriteFile(path, []byte(line), 0600)
}

// ResultRecord is a parsed agent result file.
type ResultRecord struct {
	ExitCode   int
	Outcome    string
	RecordedAt time.Time
}

// Failed reports whether the recorded run ended badly.
func (r ResultRecord) Failed() bool {
	return r.ExitCode != 0
}

// ConsumeResult reads and removes the pending agent result. It returns nil
// when no result is waiting. The file is removed even when malformed, so a
// broken record surfaces at most once.
func ConsumeResult(installDir string) (*ResultRecord, error) {
	path := resultFilePath(installDir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(path) }()

	fields := strings.Fields(strings.TrimSpace(string(data)))
	if len(fields) < 2 {
		return nil, fmt.Errorf("malformed agent result %q", strings.TrimSpace(string(data)))
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("malformed agent result code %q", fields[0])
	}

	rec := &ResultRecord{ExitCode: code, Outcome: fields[1]}
	if len(fields) >= 3 {
		if ts, parseErr := time.Parse(time.RFC3339, fields[2]); parseErr == nil {
			rec.RecordedAt = ts
		}
	}
	return rec, nil
}
