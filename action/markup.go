package action

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	finalAnswerExpr = regexp.MustCompile(`(?s)<final_answer>(.*?)</final_answer>`)
	actionExpr      = regexp.MustCompile(`(?s)<action>(.*?)</action>`)
)

// FinalAnswer returns the text inside the first <final_answer> block.
func FinalAnswer(reply string) (string, bool) {
	m := finalAnswerExpr.FindStringSubmatch(reply)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ActionText returns the text inside the first <action> block.
func ActionText(reply string) (string, bool) {
	m := actionExpr.FindStringSubmatch(reply)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Observation wraps a textual tool result.
func Observation(text string) string {
	return "<observation>工具返回结果：" + text + "</observation>"
}

// ErrorObservation is fed back when a tool result has no textual content.
func ErrorObservation() string {
	return "<observation>工具执行错误</observation>"
}

// UnknownToolObservation tells the model that the requested tool does not exist.
func UnknownToolObservation(name string, available []string) string {
	return fmt.Sprintf("<observation>工具 `%s` 不存在，请使用以下工具之一: %s</observation>",
		name, strings.Join(available, ", "))
}
