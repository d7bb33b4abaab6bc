package logger

// Config controls how New builds a Logger. There is no package-level
// singleton: every component that needs a logger is constructed with one
// explicitly (spec.md §9 calls out implicit global singletons as a pattern
// to re-architect away from).
type Config struct {
	Level      string `json:"level"`
	Debug      bool   `json:"debug"`
	Output     string `json:"output"`      // "stdout" (default) or "stderr"
	Pretty     bool   `json:"pretty"`      // console-writer formatting for local dev
	TimeFormat string `json:"time_format"` // zerolog time field format, RFC3339 if empty
}
