package corpus

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// parseResult is the outcome of parsing one JSONL line.
type parseResult struct {
	message   *Message
	malformed bool // timestamp or structure was malformed; line skipped
}

// parseLine parses a single JSONL record per the on-disk record shapes in
// spec.md §6. Unknown `type` discriminators produce a no-op result (not an
// error) — they count toward the file's bytes but never a Message.
// A JSON-unparseable line returns malformed=true so the caller can bump its
// per-file counter without failing the whole file.
func parseLine(line []byte) parseResult {
	line = trimNonJSONWhitespace(line)
	if len(line) == 0 {
		return parseResult{}
	}

	var obj map[string]any
	if err := json.Unmarshal(line, &obj); err != nil {
		return parseResult{malformed: true}
	}

	typ, _ := obj["type"].(string)
	ts, hasTS := parseRecordTimestamp(obj["timestamp"])
	if obj["timestamp"] != nil && !hasTS {
		// A timestamp was present but unparseable: skip the record.
		return parseResult{malformed: true}
	}

	switch typ {
	case "user":
		return parseMessageRecord(obj, RoleUser, ts, hasTS)
	case "assistant":
		res := parseMessageRecord(obj, RoleAssist, ts, hasTS)
		if res.message != nil {
			if model, ok := obj["model"].(string); ok {
				res.message.Model = strings.TrimSpace(model)
			}
		}
		return res
	case "system":
		return parseMessageRecord(obj, RoleSystem, ts, hasTS)
	case "tool_use":
		name, _ := obj["name"].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			return parseResult{}
		}
		inputJSON := coerceJSON(obj["input"])
		return parseResult{message: &Message{
			Role:      RoleAssist,
			Timestamp: ts,
			HasTime:   hasTS,
			Blocks: []Block{{
				Kind:          BlockToolUse,
				ToolName:      name,
				ToolInputJSON: inputJSON,
			}},
		}}
	case "tool_result":
		name, _ := obj["tool_name"].(string)
		name = strings.TrimSpace(name)
		text := coerceText(obj["output"])
		if text == "" && name == "" {
			return parseResult{}
		}
		return parseResult{message: &Message{
			Role:      RoleTool,
			Timestamp: ts,
			HasTime:   hasTS,
			Blocks: []Block{{
				Kind:     BlockToolResp,
				ToolName: name,
				Text:     text,
			}},
		}}
	case "summary":
		text := coerceText(obj["summary"])
		if text == "" {
			return parseResult{}
		}
		return parseResult{message: &Message{
			Role:      RoleSystem,
			Timestamp: ts,
			HasTime:   hasTS,
			Blocks:    []Block{{Kind: BlockText, Text: text}},
		}}
	default:
		// Unknown type: no-op record.
		return parseResult{}
	}
}

func parseMessageRecord(obj map[string]any, role Role, ts time.Time, hasTS bool) parseResult {
	msgObj, _ := obj["message"].(map[string]any)
	if msgObj == nil {
		return parseResult{}
	}
	if r, ok := msgObj["role"].(string); ok && r != "" {
		role = normalizeRole(r, role)
	}

	blocks := parseContent(msgObj["content"])
	if len(blocks) == 0 {
		return parseResult{}
	}

	return parseResult{message: &Message{
		Role:      role,
		Timestamp: ts,
		HasTime:   hasTS,
		Blocks:    blocks,
	}}
}

func normalizeRole(r string, fallback Role) Role {
	switch strings.ToLower(strings.TrimSpace(r)) {
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssist
	case "system":
		return RoleSystem
	case "tool", "tool-result", "tool_result":
		return RoleTool
	default:
		return fallback
	}
}

// parseContent handles both the plain-string content shape and the
// blocks-array shape described in spec.md §6.
func parseContent(raw any) []Block {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		return []Block{{Kind: BlockText, Text: s}}
	case []any:
		blocks := make([]Block, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			blockType, _ := m["type"].(string)
			switch blockType {
			case "text":
				text := strings.TrimSpace(coerceText(m["text"]))
				if text == "" {
					continue
				}
				blocks = append(blocks, Block{Kind: BlockText, Text: text})
			case "tool_use":
				name, _ := m["name"].(string)
				blocks = append(blocks, Block{
					Kind:          BlockToolUse,
					ToolName:      strings.TrimSpace(name),
					ToolInputJSON: coerceJSON(m["input"]),
				})
			case "tool_result":
				name, _ := m["tool_name"].(string)
				blocks = append(blocks, Block{
					Kind:     BlockToolResp,
					ToolName: strings.TrimSpace(name),
					Text:     coerceText(m["output"]),
				})
			}
		}
		return blocks
	default:
		return nil
	}
}

func coerceText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := coerceText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	case map[string]any:
		for _, key := range []string{"text", "output", "content", "result"} {
			if s := coerceText(t[key]); s != "" {
				return s
			}
		}
		return coerceJSON(t)
	default:
		return ""
	}
}

func coerceJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	s := string(b)
	if len(s) > 2000 {
		s = s[:2000]
	}
	return s
}

// parseRecordTimestamp accepts Unix seconds/millis (numeric) or RFC3339.
func parseRecordTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case float64:
		return unixFromFloat(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return unixFromFloat(f), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixFromFloat(float64(i)), true
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func unixFromFloat(f float64) time.Time {
	if f > 1_000_000_000_000 {
		f /= 1000
	}
	return time.Unix(int64(f), 0).UTC()
}

func trimNonJSONWhitespace(line []byte) []byte {
	start := 0
	for start < len(line) && isJSONSpace(line[start]) {
		start++
	}
	end := len(line)
	for end > start && isJSONSpace(line[end-1]) {
		end--
	}
	return line[start:end]
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
