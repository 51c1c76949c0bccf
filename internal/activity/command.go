package activity

import "strings"

// GoalToCommand maps a goal's free text to a concrete shell command by
// keyword, mirroring the reference activity loop's dispatch table: the
// first matching category wins, and a goal matching none of them falls
// back to echoing itself back so the loop always has something to run and
// log.
func GoalToCommand(goalText string) string {
	lower := strings.ToLower(goalText)

	switch {
	case strings.Contains(lower, "disk"):
		return "df -h"
	case strings.Contains(lower, "memory"):
		return "free -h"
	case strings.Contains(lower, "network"):
		return "ss -tunap 2>/dev/null || netstat -an"
	case strings.Contains(lower, "cpu"):
		return "top -bn1 | head -15"
	case strings.Contains(lower, "process"):
		return "ps aux --sort=-%cpu | head -15"
	case strings.Contains(lower, "log"):
		return "journalctl -n 20 --no-pager 2>/dev/null || tail -n 20 /var/log/syslog"
	case strings.Contains(lower, "service"):
		return "systemctl list-units --type=service --state=running --no-pager 2>/dev/null || service --status-all"
	case strings.Contains(lower, "health"), strings.Contains(lower, "uptime"), strings.Contains(lower, "status"):
		return "uptime"
	default:
		return "echo 'Goal: " + sanitizeEcho(goalText) + "'"
	}
}

// sanitizeEcho strips characters that would break out of the single-quoted
// echo argument the default branch renders.
func sanitizeEcho(s string) string {
	return strings.ReplaceAll(s, "'", "")
}
