package netlogo

import "encoding/json"

// Bridge operations. One JSON object per line in each direction.
const (
	opLoadModel    = "load_model"
	opCommand      = "command"
	opReport       = "report"
	opRepeatReport = "repeat_report"
	opQuit         = "quit"
)

type request struct {
	ID        int64    `json:"id"`
	Op        string   `json:"op"`
	Arg       string   `json:"arg,omitempty"`
	Reporters []string `json:"reporters,omitempty"`
	Reps      int      `json:"reps,omitempty"`
}

type response struct {
	ID    int64           `json:"id"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Table *Table          `json:"table,omitempty"`
}

// BridgeError is an error reported by the simulation itself (a NetLogo
// runtime error, a bad command), as opposed to a transport failure.
type BridgeError struct {
	Op      string
	Message string
}

func (e *BridgeError) Error() string {
	return "netlogo " + e.Op + ": " + e.Message
}
