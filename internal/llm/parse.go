package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	thinkTagRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)
	thoughtRegex  = regexp.MustCompile(`(?s)(?:思考|THOUGHT)[：:]\s*(.*?)\s*(?:(?:发言|SAY)[：:]|$)`)
	sayRegex      = regexp.MustCompile(`(?s)(?:发言|SAY)[：:]\s*(.*)`)
	labelRegex    = regexp.MustCompile(`(?:思考|THOUGHT|发言|SAY)[：:]`)
	jsonObjRegex  = regexp.MustCompile(`(?s)\{.*\}`)
)

// 投票回复的 JSON 契约，content/message/vote 任一字段承载目标名
type voteJSON struct {
	Thinking string `json:"thinking"`
	Content  string `json:"content"`
	Message  string `json:"message"`
	Vote     string `json:"vote"`
}

// ParseDescribe 从描述回复中拆出思考与发言两部分。
// 模型没按 思考：/发言： 格式输出时退化为整段文本。
func ParseDescribe(raw string) (thinking, content string, err error) {
	text := strings.TrimSpace(thinkTagRegex.ReplaceAllString(raw, ""))

	if m := thoughtRegex.FindStringSubmatch(text); m != nil {
		thinking = strings.TrimSpace(m[1])
	}

	if m := sayRegex.FindStringSubmatch(text); m != nil {
		content = m[1]
	} else {
		content = text
		if loc := thoughtRegex.FindStringIndex(text); loc != nil {
			content = text[:loc[0]] + text[loc[1]:]
		}

		content = labelRegex.ReplaceAllString(content, "")
	}

	content = strings.NewReplacer("\"", "", "'", "").Replace(content)
	content = strings.TrimSpace(content)

	if content == "" {
		return "", "", fmt.Errorf("描述内容为空")
	}

	return thinking, content, nil
}

// ParseVote 从投票回复中解析出候选人之一。
// 链路：剥 <think> 与代码围栏 -> 提取 JSON 对象 -> 候选人匹配；
// JSON 不合法时直接对整段文本做候选人匹配。
func ParseVote(raw string, candidates []string) (thinking, target string, err error) {
	text := strings.TrimSpace(thinkTagRegex.ReplaceAllString(raw, ""))
	text = stripCodeFence(text)

	var voteRaw string

	if m := jsonObjRegex.FindString(text); m != "" {
		// 部分模型会输出单引号伪 JSON
		if strings.Contains(m, "'") && !strings.Contains(m, "\"") {
			m = strings.ReplaceAll(m, "'", "\"")
		}

		var payload voteJSON
		if jsonErr := json.Unmarshal([]byte(m), &payload); jsonErr == nil {
			thinking = strings.TrimSpace(payload.Thinking)
			voteRaw = firstNonEmpty(payload.Content, payload.Message, payload.Vote)
		}
	}

	if voteRaw == "" {
		voteRaw = text
	}

	voteRaw = strings.Trim(strings.TrimSpace(voteRaw), "\"'")

	if matched := matchCandidate(voteRaw, candidates); matched != "" {
		return thinking, matched, nil
	}

	return thinking, "", fmt.Errorf("无法从回复中解析出有效投票对象: %q", truncate(voteRaw, 50))
}

// ParseFreeText 用于遗言、辩论这类自由文本回复。
func ParseFreeText(raw string) (string, error) {
	text := strings.TrimSpace(thinkTagRegex.ReplaceAllString(raw, ""))
	if text == "" {
		return "", fmt.Errorf("回复内容为空")
	}

	return text, nil
}

func parseByKind(kind, raw string, candidates []string) (thinking, content string, err error) {
	switch kind {
	case KIND_DESCRIBE:
		return ParseDescribe(raw)
	case KIND_VOTE:
		return ParseVote(raw, candidates)
	default:
		content, err = ParseFreeText(raw)
		return "", content, err
	}
}

// 投票文本里常见的动词前缀，剥掉后再试匹配
var votePrefixes = []string{"我投票给", "我投票", "我投给", "我投", "投票给", "投票", "投给", "投", "淘汰"}

func matchCandidate(text string, candidates []string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	for _, c := range candidates {
		if strings.EqualFold(text, c) {
			return c
		}
	}

	lower := strings.ToLower(text)
	for _, c := range candidates {
		if strings.Contains(lower, strings.ToLower(c)) {
			return c
		}
	}

	for _, p := range votePrefixes {
		if strings.HasPrefix(text, p) {
			return matchCandidate(strings.TrimPrefix(text, p), candidates)
		}
	}

	return ""
}

func stripCodeFence(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")

	return strings.TrimSpace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}

	return ""
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit]) + "..."
}
