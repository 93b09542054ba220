package templates

import (
	"fmt"
	"strconv"

	"github.com/JonMunkholm/cytodx/internal/core"
)

// BatchData is what the batch page shows after an upload.
type BatchData struct {
	MaxUploadBytes int64
	Filename       string
	Error          core.UserMessage
	Report         *core.ValidationReport
	Patients       []core.PatientInterpretation
	RawJSON        string
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func lineLabel(line int) string {
	if line <= 0 {
		return "-"
	}
	return strconv.Itoa(line)
}
