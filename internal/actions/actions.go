// Package actions renders a recorded event as the pyautogui call stored in
// the export trajectory.
package actions

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/HaozheZhao/cua-annotation-tool/internal/events"
)

const maxTypedRunes = 30

var (
	dragPattern  = regexp.MustCompile(`Drag from \((\d+),\s*(\d+)\) to \((\d+),\s*(\d+)\)`)
	scrollDown   = regexp.MustCompile(`⬇️×(\d+)`)
	scrollUp     = regexp.MustCompile(`⬆️×(\d+)`)
	typePattern  = regexp.MustCompile(`⌨️ Type: (.+)`)
	pressPattern = regexp.MustCompile(`⌨️ Press: (.+)`)
)

// Encode returns the action string for ev. coord is the effective coordinate
// (an override when one exists); nil falls back to the origin, matching how
// recorders log pointer-less clicks.
func Encode(ev events.Event, coord *events.Coordinate) string {
	x, y := 0, 0
	if coord != nil {
		x, y = coord.X, coord.Y
	}
	desc := ev.Description
	lower := strings.ToLower(desc)

	switch ev.Action {
	case events.ActionClick:
		switch {
		case strings.Contains(lower, "double"):
			return fmt.Sprintf("pyautogui.doubleClick(%d, %d)", x, y)
		case strings.Contains(lower, "right"):
			return fmt.Sprintf("pyautogui.rightClick(%d, %d)", x, y)
		case strings.Contains(lower, "triple"):
			return fmt.Sprintf("pyautogui.click(%d, %d, clicks=3)", x, y)
		default:
			return fmt.Sprintf("pyautogui.click(%d, %d)", x, y)
		}
	case events.ActionDrag:
		if m := dragPattern.FindStringSubmatch(desc); m != nil {
			fromX, fromY := m[1], m[2]
			if coord != nil && ev.Coordinate != nil && *coord != *ev.Coordinate {
				fromX, fromY = strconv.Itoa(x), strconv.Itoa(y)
			}
			return fmt.Sprintf("pyautogui.moveTo(%s, %s); pyautogui.dragTo(%s, %s)", fromX, fromY, m[3], m[4])
		}
		return fmt.Sprintf("pyautogui.drag(%d, %d)", x, y)
	case "scroll":
		total := 0
		if m := scrollDown.FindStringSubmatch(desc); m != nil {
			n, _ := strconv.Atoi(m[1])
			total -= n
		}
		if m := scrollUp.FindStringSubmatch(desc); m != nil {
			n, _ := strconv.Atoi(m[1])
			total += n
		}
		return fmt.Sprintf("pyautogui.scroll(%d)", total)
	case "type":
		if m := typePattern.FindStringSubmatch(desc); m != nil {
			return fmt.Sprintf("pyautogui.write('%s')", truncateRunes(m[1], maxTypedRunes))
		}
		return "pyautogui.write('...')"
	case "press":
		if m := pressPattern.FindStringSubmatch(desc); m != nil {
			return fmt.Sprintf("pyautogui.hotkey(%s)", m[1])
		}
		return "pyautogui.press('...')"
	default:
		return "# " + ev.Action
	}
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
