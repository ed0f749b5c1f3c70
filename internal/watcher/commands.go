package watcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type CommandDoc struct {
	Name        string
	Description string
	Example     string
}

// HandleCommand processes inbound chat commands.
func (w *Watcher) HandleCommand(ctx context.Context, cmd string) string {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return ""
	}
	// "/status@theta_bot" in group chats
	name := strings.ToLower(strings.SplitN(parts[0], "@", 2)[0])

	switch name {
	case "/ping":
		return "Pong 🏓"
	case "/help", "/start":
		return w.getHelp()
	case "/status":
		return w.StatusText()
	case "/scan":
		return w.handleScanCommand(ctx)
	case "/add":
		if len(parts) < 2 {
			return "Usage: /add <candidate>"
		}
		p, err := w.AddCandidate(parts[1])
		if err != nil {
			return "⚠️ " + err.Error()
		}
		return fmt.Sprintf("✅ Added %s %.2fP %.0fd for %.2f. %s", p.Symbol, p.Strike, p.DTE, p.InitialCredit, p.Why)
	case "/close", "/half":
		if len(parts) < 2 {
			return fmt.Sprintf("Usage: %s <id>", name)
		}
		p, err := w.CloseTrade(parts[1], name == "/close")
		if err != nil {
			return "⚠️ " + err.Error()
		}
		if name == "/half" {
			return fmt.Sprintf("✂️ Partially closed %s. Realized $%.2f so far.", p.Symbol, p.RealizedPnL)
		}
		return fmt.Sprintf("🏁 Closed %s. Realized $%.2f.", p.Symbol, p.RealizedPnL)
	case "/send":
		if len(parts) < 2 {
			return "Usage: /send <id>"
		}
		msg, err := w.SubmitOrder(ctx, parts[1])
		if err != nil && msg == "" {
			return "⚠️ " + err.Error()
		}
		return msg
	case "/auto":
		return w.handleAutoCommand(parts)
	case "/settings":
		return w.handleSettingsCommand(parts)
	case "/log":
		lines := w.AutoLog(autoLogSize)
		if len(lines) == 0 {
			return "No auto actions yet."
		}
		return strings.Join(lines, "\n")
	default:
		return "Unknown command. Try /status, /scan, /close, /half, /send, /settings or /help."
	}
}

func (w *Watcher) getHelp() string {
	var sb strings.Builder
	sb.WriteString("🤖 *THETA WATCHER COMMANDS*\n")
	for _, c := range w.commands {
		sb.WriteString(fmt.Sprintf("%s - %s\n  `%s`\n", c.Name, c.Description, c.Example))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (w *Watcher) handleScanCommand(ctx context.Context) string {
	res, err := w.Scan(ctx)
	if err != nil {
		return "⚠️ Scan failed: " + err.Error()
	}

	source := "simulated"
	if res.Live {
		source = "live"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔎 *SCAN*: %d %s candidates\n", len(res.Candidates), source))
	for _, c := range res.Candidates {
		sb.WriteString(fmt.Sprintf("• `%s` %s %.2fP %dd Δ%.2f IVR %.0f @ %.2f\n",
			shortID(c.ID), c.Symbol, c.Strike, c.DTE, c.Delta, c.IVRank, c.Credit))
	}
	if len(res.Added) > 0 {
		sb.WriteString(fmt.Sprintf("Added %d trades", len(res.Added)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (w *Watcher) handleAutoCommand(parts []string) string {
	if len(parts) < 2 {
		return "Usage: /auto on|off"
	}
	s := w.Settings()
	switch strings.ToLower(parts[1]) {
	case "on":
		s.AutoClose = true
	case "off":
		s.AutoClose = false
	default:
		return "Usage: /auto on|off"
	}
	if err := w.UpdateSettings(s); err != nil {
		return "⚠️ " + err.Error()
	}
	return "✅ Automation updated: " + s.Summary()
}

// handleSettingsCommand shows settings, or applies key=value pairs:
// partial, earlylock, ivr and auto.
func (w *Watcher) handleSettingsCommand(parts []string) string {
	s := w.Settings()
	if len(parts) == 1 {
		return "⚙️ " + s.Summary()
	}

	for _, kv := range parts[1:] {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Sprintf("⚠️ Expected key=value, got %q", kv)
		}
		if strings.ToLower(key) == "auto" {
			switch strings.ToLower(val) {
			case "on", "true":
				s.AutoClose = true
			case "off", "false":
				s.AutoClose = false
			default:
				return fmt.Sprintf("⚠️ auto must be on or off, got %q", val)
			}
			continue
		}

		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Sprintf("⚠️ %s must be a number, got %q", key, val)
		}
		switch strings.ToLower(key) {
		case "partial":
			s.PartialAtPct = f
		case "earlylock":
			s.EarlyLockDiffPct = f
		case "ivr":
			s.IVRAlertThreshold = f
		default:
			return fmt.Sprintf("⚠️ Unknown setting %q. Use partial, earlylock, ivr or auto.", key)
		}
	}

	if err := w.UpdateSettings(s); err != nil {
		return "⚠️ " + err.Error()
	}
	return "✅ Automation updated: " + s.Summary()
}
