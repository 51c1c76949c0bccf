package activity

import "testing"

func TestGoalToCommand_KeywordDispatch(t *testing.T) {
	cases := map[string]string{
		"check disk space":       "df -h",
		"Memory usage report":    "free -h",
		"is the network up":     "ss -tunap 2>/dev/null || netstat -an",
		"CPU load check":         "top -bn1 | head -15",
		"list running process":  "ps aux --sort=-%cpu | head -15",
		"scan logs for errors":   "journalctl -n 20 --no-pager 2>/dev/null || tail -n 20 /var/log/syslog",
		"restart a service":      "systemctl list-units --type=service --state=running --no-pager 2>/dev/null || service --status-all",
		"overall health status":  "uptime",
	}
	for goal, want := range cases {
		got := GoalToCommand(goal)
		if got != want {
			t.Errorf("GoalToCommand(%q) = %q, want %q", goal, got, want)
		}
	}
}

func TestGoalToCommand_DefaultsToEcho(t *testing.T) {
	got := GoalToCommand("write a poem about clouds")
	want := "echo 'Goal: write a poem about clouds'"
	if got != want {
		t.Errorf("GoalToCommand default = %q, want %q", got, want)
	}
}

func TestGoalToCommand_SanitizesQuotes(t *testing.T) {
	got := GoalToCommand("say 'hello'")
	if got != "echo 'Goal: say hello'" {
		t.Errorf("unexpected sanitized command: %q", got)
	}
}
